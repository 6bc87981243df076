package guard

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingClock is a mock clock that counts the timers and tickers created
// on it, so a test can wait for the scheduler to arm one before moving time.
type countingClock struct {
	*clock.Mock
	armed atomic.Int32
}

func newCountingClock() *countingClock {
	return &countingClock{Mock: clock.NewMock()}
}

func (c *countingClock) Timer(d time.Duration) *clock.Timer {
	t := c.Mock.Timer(d)
	c.armed.Add(1)
	return t
}

func (c *countingClock) Ticker(d time.Duration) *clock.Ticker {
	t := c.Mock.Ticker(d)
	c.armed.Add(1)
	return t
}

// waitArmed blocks until at least n timers or tickers exist
func (c *countingClock) waitArmed(t *testing.T, n int32) {
	t.Helper()
	require.Eventually(t, func() bool { return c.armed.Load() >= n }, 2*time.Second, time.Millisecond)
}

// fakeVerifier returns queued outcomes in order, repeating the last one
type fakeVerifier struct {
	mu       sync.Mutex
	outcomes []VerificationOutcome
	calls    int
	ports    []int
}

func newFakeVerifier(outcomes ...VerificationOutcome) *fakeVerifier {
	return &fakeVerifier{outcomes: outcomes}
}

func (f *fakeVerifier) Verify(_ context.Context, port int) VerificationOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = append(f.ports, port)
	idx := f.calls
	f.calls++
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	return f.outcomes[idx]
}

func (f *fakeVerifier) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeVerifier) push(o VerificationOutcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	// Drop anything not yet consumed so o is returned next.
	n := min(f.calls, len(f.outcomes))
	f.outcomes = append(f.outcomes[:n:n], o)
}

// fakeProber answers per service; services without an answer are unavailable
type fakeProber struct {
	mu      sync.Mutex
	answers map[string]string
}

func newFakeProber() *fakeProber {
	return &fakeProber{answers: make(map[string]string)}
}

func (f *fakeProber) set(service, address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if address == "" {
		delete(f.answers, service)
		return
	}
	f.answers[service] = address
}

func (f *fakeProber) setAll(services []string, address string) {
	for _, s := range services {
		f.set(s, address)
	}
}

func (f *fakeProber) Probe(_ context.Context, service string) ProbeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr, ok := f.answers[service]
	if !ok {
		return ProbeResult{Service: service, Err: ErrProbeUnavailable}
	}
	return ProbeResult{Service: service, Address: addr, Observed: true}
}

// fakeScheduler queues work until the test runs it explicitly
type fakeScheduler struct {
	mu        sync.Mutex
	pending   []func()
	recurring []*fakeRecurring
}

type fakeRecurring struct {
	initialDelay time.Duration
	period       time.Duration
	task         func()

	mu        sync.Mutex
	cancelled bool
	runs      int
}

func (r *fakeRecurring) Cancel() {
	r.mu.Lock()
	r.cancelled = true
	r.mu.Unlock()
}

func (r *fakeRecurring) isCancelled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancelled
}

func (f *fakeScheduler) Go(task func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = append(f.pending, task)
}

func (f *fakeScheduler) Every(initialDelay, period time.Duration, task func()) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := &fakeRecurring{initialDelay: initialDelay, period: period, task: task}
	f.recurring = append(f.recurring, r)
	return r
}

// runPending runs every queued one-shot task
func (f *fakeScheduler) runPending() {
	f.mu.Lock()
	tasks := f.pending
	f.pending = nil
	f.mu.Unlock()
	for _, t := range tasks {
		t()
	}
}

// fire runs each non-cancelled recurring task once and returns how many ran
func (f *fakeScheduler) fire() int {
	f.mu.Lock()
	units := append([]*fakeRecurring(nil), f.recurring...)
	f.mu.Unlock()

	ran := 0
	for _, r := range units {
		if r.isCancelled() {
			continue
		}
		r.mu.Lock()
		r.runs++
		r.mu.Unlock()
		r.task()
		ran++
	}
	return ran
}

func (f *fakeScheduler) recurringUnits() []*fakeRecurring {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeRecurring(nil), f.recurring...)
}

type fakeHost struct {
	mu      sync.Mutex
	reasons []error
}

func (h *fakeHost) Shutdown(reason error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reasons = append(h.reasons, reason)
}

func (h *fakeHost) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.reasons)
}

func (h *fakeHost) LastReason() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.reasons) == 0 {
		return nil
	}
	return h.reasons[len(h.reasons)-1]
}
