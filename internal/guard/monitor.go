package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"
)

// MonitorConfig controls the drift check
type MonitorConfig struct {
	ProbeServices    []string
	MaxMismatchCount int
	// ResetOnCleanTick also clears the counter on ticks where no probe
	// produced an address.
	ResetOnCleanTick bool
	Port             int
}

// DriftMonitor compares the host's observed public address with the verified
// identity and escalates to re-verification after sustained disagreement.
type DriftMonitor struct {
	cfg      MonitorConfig
	identity *IdentityState
	verifier Verifier
	prober   Prober
	clock    clock.Clock
	logger   *slog.Logger
	metrics  *Metrics
}

func NewDriftMonitor(cfg MonitorConfig, identity *IdentityState, verifier Verifier, prober Prober,
	clk clock.Clock, logger *slog.Logger, metrics *Metrics) (*DriftMonitor, error) {
	if len(cfg.ProbeServices) == 0 {
		return nil, fmt.Errorf("%w: no probe services", ErrInvalidConfig)
	}
	if cfg.MaxMismatchCount < 1 {
		return nil, fmt.Errorf("%w: max mismatch count %d", ErrInvalidConfig, cfg.MaxMismatchCount)
	}
	if identity == nil || verifier == nil || prober == nil {
		return nil, fmt.Errorf("%w: drift monitor needs identity, verifier and prober", ErrInvalidConfig)
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	services := make([]string, len(cfg.ProbeServices))
	copy(services, cfg.ProbeServices)
	cfg.ProbeServices = services

	return &DriftMonitor{
		cfg:      cfg,
		identity: identity,
		verifier: verifier,
		prober:   prober,
		clock:    clk,
		logger:   logger.With(slog.String("component", "drift_monitor")),
		metrics:  metrics,
	}, nil
}

// Tick runs one drift check. It never shuts anything down itself; a
// TickEscalatedFailed report tells the caller re-verification failed.
func (m *DriftMonitor) Tick(ctx context.Context) TickReport {
	probes := m.probeAll(ctx)
	verified := m.identity.Address()

	observed := 0
	mismatched := false
	for _, p := range probes {
		if !p.Observed {
			continue
		}
		observed++
		if p.Address != verified {
			mismatched = true
		}
	}

	report := TickReport{Probes: probes}

	switch {
	case mismatched:
		count := m.identity.RecordMismatch()
		m.logger.WarnContext(ctx, "observed address differs from verified identity",
			slog.String("action", "tick_mismatch"),
			slog.String("verified", verified),
			slog.Any("observed", observedAddresses(probes)),
			slog.Int("mismatches", count),
			slog.Int("threshold", m.cfg.MaxMismatchCount),
		)
		if count >= m.cfg.MaxMismatchCount {
			m.escalate(ctx, &report)
		} else {
			report.Result = TickMismatched
		}

	case observed == 0:
		if m.cfg.ResetOnCleanTick {
			m.identity.ResetMismatches()
		}
		report.Result = TickInconclusive
		m.logger.WarnContext(ctx, "no probe produced an address",
			slog.String("action", "tick_inconclusive"),
			slog.Int("services", len(probes)),
		)

	default:
		m.identity.ResetMismatches()
		report.Result = TickMatched
		m.logger.DebugContext(ctx, "observed address matches verified identity",
			slog.String("action", "tick_matched"),
			slog.String("address", verified),
		)
	}

	report.Mismatches = m.identity.Mismatches()
	m.metrics.recordTick(ctx, report)
	return report
}

func (m *DriftMonitor) escalate(ctx context.Context, report *TickReport) {
	m.logger.WarnContext(ctx, "mismatch threshold reached, re-verifying",
		slog.String("action", "escalation_started"),
	)

	outcome := m.verifier.Verify(ctx, m.cfg.Port)
	report.Outcome = &outcome

	if outcome.Confirmed() {
		previous := m.identity.Address()
		m.identity.Confirm(outcome.Address, m.clock.Now())
		report.Result = TickEscalatedRecovered
		m.logger.InfoContext(ctx, "re-verification confirmed host",
			slog.String("action", "escalation_recovered"),
			slog.String("previous", previous),
			slog.String("address", outcome.Address),
		)
		return
	}

	report.Result = TickEscalatedFailed
	m.logger.ErrorContext(ctx, "re-verification failed",
		slog.String("action", "escalation_failed"),
		slog.String("outcome", outcome.Kind.String()),
		slog.Int("status", outcome.StatusCode),
		slog.String("error", outcome.Err().Error()),
	)
}

// probeAll queries every service concurrently and waits for all of them
func (m *DriftMonitor) probeAll(ctx context.Context) []ProbeResult {
	results := make([]ProbeResult, len(m.cfg.ProbeServices))

	var g errgroup.Group
	for i, svc := range m.cfg.ProbeServices {
		g.Go(func() error {
			results[i] = m.prober.Probe(ctx, svc)
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func observedAddresses(probes []ProbeResult) []string {
	out := make([]string, 0, len(probes))
	for _, p := range probes {
		if p.Observed {
			out = append(out, p.Address)
		}
	}
	return out
}
