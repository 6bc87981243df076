package guard

import (
	"context"
	"fmt"
	"time"

	"meowauth/internal/scheduler"
)

// OutcomeKind tags the result of a verification round-trip
type OutcomeKind int

const (
	OutcomeConfirmed OutcomeKind = iota + 1
	OutcomeRejected
	OutcomeTransportError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// VerificationOutcome is the result of asking the authority who we are.
// Only a confirmed outcome carries an address.
type VerificationOutcome struct {
	Kind       OutcomeKind
	Address    string
	StatusCode int
	Cause      error
}

// Confirmed reports whether the authority accepted the host
func (o VerificationOutcome) Confirmed() bool {
	return o.Kind == OutcomeConfirmed
}

// Err returns nil for a confirmed outcome, otherwise an error wrapping
// ErrRejected or ErrTransport.
func (o VerificationOutcome) Err() error {
	switch o.Kind {
	case OutcomeConfirmed:
		return nil
	case OutcomeRejected:
		return fmt.Errorf("%w: status %d", ErrRejected, o.StatusCode)
	default:
		if o.Cause != nil {
			return fmt.Errorf("%w: %w", ErrTransport, o.Cause)
		}
		return ErrTransport
	}
}

func confirmed(address string) VerificationOutcome {
	return VerificationOutcome{Kind: OutcomeConfirmed, Address: address, StatusCode: 200}
}

func rejected(status int) VerificationOutcome {
	return VerificationOutcome{Kind: OutcomeRejected, StatusCode: status}
}

func transportError(cause error) VerificationOutcome {
	return VerificationOutcome{Kind: OutcomeTransportError, Cause: cause}
}

// ProbeResult is what one address-probe service reported. Observed is false
// when the service was unavailable; such results take no part in the drift
// decision.
type ProbeResult struct {
	Service  string `json:"service"`
	Address  string `json:"address,omitempty"`
	Observed bool   `json:"observed"`
	Err      error  `json:"-"`
}

// TickResult is the verdict of one drift check
type TickResult int

const (
	// TickMatched: at least one probe answered and all answers agree with the
	// verified identity.
	TickMatched TickResult = iota + 1
	// TickMismatched: some probe disagreed; the threshold was not reached.
	TickMismatched
	// TickInconclusive: no probe produced an address.
	TickInconclusive
	// TickEscalatedRecovered: threshold reached and the authority confirmed
	// the host again.
	TickEscalatedRecovered
	// TickEscalatedFailed: threshold reached and re-verification failed.
	TickEscalatedFailed
)

func (r TickResult) String() string {
	switch r {
	case TickMatched:
		return "matched"
	case TickMismatched:
		return "mismatched"
	case TickInconclusive:
		return "inconclusive"
	case TickEscalatedRecovered:
		return "escalated_recovered"
	case TickEscalatedFailed:
		return "escalated_failed"
	default:
		return "unknown"
	}
}

// TickReport describes one drift check
type TickReport struct {
	Result     TickResult
	Probes     []ProbeResult
	Mismatches int
	// Outcome is set only when the tick escalated to re-verification.
	Outcome *VerificationOutcome
}

// Verifier performs the authoritative verification round-trip
type Verifier interface {
	Verify(ctx context.Context, port int) VerificationOutcome
}

// Prober asks one external service for the host's public address
type Prober interface {
	Probe(ctx context.Context, serviceURL string) ProbeResult
}

// Handle cancels the recurring drift check
type Handle = scheduler.Handle

// Scheduler runs the guard's work off the host's main goroutine.
// Every must not invoke task synchronously.
type Scheduler interface {
	Go(task func())
	Every(initialDelay, period time.Duration, task func()) Handle
}

// Host is the process being guarded
type Host interface {
	// Shutdown terminates the host. reason explains why.
	Shutdown(reason error)
}
