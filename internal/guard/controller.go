package guard

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"meowauth/internal/infrastructure"
)

// State is the controller's lifecycle position
type State int

const (
	StateIdle State = iota
	StateVerifying
	StateMonitoring
	// StateShutDown is terminal: the host was asked to stop.
	StateShutDown
	// StateStopped is terminal: the host stopped the guard itself.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateVerifying:
		return "verifying"
	case StateMonitoring:
		return "monitoring"
	case StateShutDown:
		return "shut_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Config holds the controller's policy knobs
type Config struct {
	// Port is reported to the authority as the host's listening port.
	Port             int
	CheckInterval    time.Duration
	MaxMismatchCount int
	ResetOnCleanTick bool
	ProbeServices    []string
}

// Dependencies are the collaborators the controller drives. Authority,
// Prober, Scheduler and Host are required.
type Dependencies struct {
	Authority Verifier
	Prober    Prober
	Scheduler Scheduler
	Host      Host
	Logger    *slog.Logger
	Metrics   *Metrics
	Clock     clock.Clock
}

// Controller verifies the host once, then keeps a recurring drift check
// running until the host stops the guard or the guard stops the host.
type Controller struct {
	cfg       Config
	verifier  Verifier
	scheduler Scheduler
	host      Host
	logger    *slog.Logger
	metrics   *Metrics
	clock     clock.Clock
	identity  *IdentityState
	monitor   *DriftMonitor

	mu             sync.Mutex
	state          State
	handle         Handle
	ctx            context.Context
	cancel         context.CancelFunc
	startedAt      time.Time
	ticks          int64
	escalations    int64
	lastTick       time.Time
	lastResult     TickResult
	shutdownReason error
}

func NewController(cfg Config, deps Dependencies) (*Controller, error) {
	if deps.Authority == nil || deps.Prober == nil || deps.Scheduler == nil || deps.Host == nil {
		return nil, fmt.Errorf("%w: controller needs authority, prober, scheduler and host", ErrInvalidConfig)
	}
	if cfg.CheckInterval <= 0 {
		return nil, fmt.Errorf("%w: check interval %s", ErrInvalidConfig, cfg.CheckInterval)
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	logger := infrastructure.WithComponent(deps.Logger, "guard")

	identity := &IdentityState{}
	monitor, err := NewDriftMonitor(MonitorConfig{
		ProbeServices:    cfg.ProbeServices,
		MaxMismatchCount: cfg.MaxMismatchCount,
		ResetOnCleanTick: cfg.ResetOnCleanTick,
		Port:             cfg.Port,
	}, identity, deps.Authority, deps.Prober, deps.Clock, deps.Logger, deps.Metrics)
	if err != nil {
		return nil, err
	}

	return &Controller{
		cfg:       cfg,
		verifier:  deps.Authority,
		scheduler: deps.Scheduler,
		host:      deps.Host,
		logger:    logger,
		metrics:   deps.Metrics,
		clock:     deps.Clock,
		identity:  identity,
		monitor:   monitor,
		state:     StateIdle,
	}, nil
}

// StartVerification schedules the initial verification and returns at once.
// ctx bounds every network call the guard makes from now on.
func (c *Controller) StartVerification(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrAlreadyStarted
	}
	c.state = StateVerifying
	c.startedAt = c.clock.Now()
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.scheduler.Go(c.initialVerify)
	return nil
}

func (c *Controller) initialVerify() {
	ctx := infrastructure.ContextWithTraceID(c.ctx)
	c.logger.InfoContext(ctx, "verifying host with authority",
		slog.String("action", "verification_started"),
		slog.Int("port", c.cfg.Port),
	)

	outcome := c.verifier.Verify(ctx, c.cfg.Port)
	c.logOutcome(ctx, outcome)

	if !outcome.Confirmed() {
		c.fail(ctx, "initial verification", outcome)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateVerifying {
		return
	}
	c.identity.Confirm(outcome.Address, c.clock.Now())
	c.handle = c.scheduler.Every(c.cfg.CheckInterval, c.cfg.CheckInterval, c.runTick)
	c.state = StateMonitoring
	c.logger.InfoContext(ctx, "drift monitoring started",
		slog.String("address", outcome.Address),
		slog.Duration("interval", c.cfg.CheckInterval),
	)
}

func (c *Controller) runTick() {
	c.mu.Lock()
	if c.state != StateMonitoring {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	ctx := infrastructure.ContextWithTraceID(c.ctx)
	report := c.monitor.Tick(ctx)

	c.mu.Lock()
	c.ticks++
	c.lastTick = c.clock.Now()
	c.lastResult = report.Result
	if report.Outcome != nil {
		c.escalations++
	}
	c.mu.Unlock()

	if report.Result == TickEscalatedFailed {
		c.fail(ctx, "re-verification", *report.Outcome)
	}
}

// fail moves the controller to StateShutDown and asks the host to stop.
// Only the first call while verifying or monitoring has any effect.
func (c *Controller) fail(ctx context.Context, stage string, outcome VerificationOutcome) {
	c.mu.Lock()
	if c.state != StateVerifying && c.state != StateMonitoring {
		c.mu.Unlock()
		return
	}
	c.state = StateShutDown
	handle := c.handle
	c.handle = nil
	reason := fmt.Errorf("%s failed: %w", stage, outcome.Err())
	c.shutdownReason = reason
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}

	c.logger.ErrorContext(ctx, "requesting host shutdown",
		slog.String("action", "host_shutdown_requested"),
		slog.String("stage", stage),
		slog.String("reason", reason.Error()),
	)
	c.metrics.recordShutdown(ctx, stage)
	c.host.Shutdown(reason)
	c.cancel()
}

func (c *Controller) logOutcome(ctx context.Context, outcome VerificationOutcome) {
	switch outcome.Kind {
	case OutcomeConfirmed:
		c.logger.InfoContext(ctx, "authority confirmed host",
			slog.String("action", "verification_confirmed"),
			slog.String("address", outcome.Address),
		)
	case OutcomeRejected:
		c.logger.ErrorContext(ctx, "authority rejected host",
			slog.String("action", "verification_rejected"),
			slog.Int("status", outcome.StatusCode),
		)
	default:
		c.logger.ErrorContext(ctx, "authority unreachable",
			slog.String("action", "verification_transport_error"),
			slog.String("error", outcome.Err().Error()),
		)
	}
}

// Stop cancels monitoring without shutting the host down. It is a no-op
// once the controller has reached a terminal state.
func (c *Controller) Stop() error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		c.mu.Unlock()
		return ErrNotStarted
	case StateShutDown, StateStopped:
		c.mu.Unlock()
		return nil
	}
	c.state = StateStopped
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()

	if handle != nil {
		handle.Cancel()
	}
	c.cancel()
	c.logger.Info("guard stopped")
	return nil
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Identity returns the verified address, or "" before the first confirmation
func (c *Controller) Identity() string {
	return c.identity.Address()
}

// Mismatches returns the current consecutive mismatch count
func (c *Controller) Mismatches() int {
	return c.identity.Mismatches()
}

// Status returns a point-in-time view of the controller
func (c *Controller) Status() Status {
	id := c.identity.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:            c.state.String(),
		Identity:         id.Address,
		Mismatches:       id.Mismatches,
		MaxMismatchCount: c.cfg.MaxMismatchCount,
		CheckInterval:    c.cfg.CheckInterval.String(),
		ProbeServices:    append([]string(nil), c.cfg.ProbeServices...),
		TicksRun:         c.ticks,
		Escalations:      c.escalations,
	}
	if !c.startedAt.IsZero() {
		t := c.startedAt
		st.StartedAt = &t
	}
	if !id.VerifiedAt.IsZero() {
		t := id.VerifiedAt
		st.VerifiedAt = &t
	}
	if !c.lastTick.IsZero() {
		t := c.lastTick
		st.LastTickAt = &t
		st.LastTickResult = c.lastResult.String()
	}
	if c.shutdownReason != nil {
		st.ShutdownReason = c.shutdownReason.Error()
		st.ShutdownErr = c.shutdownReason
	}
	return st
}
