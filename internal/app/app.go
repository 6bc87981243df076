package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"meowauth/internal/config"
	apierrors "meowauth/internal/errors"
	"meowauth/internal/guard"
	"meowauth/internal/infrastructure"
	customMiddleware "meowauth/internal/middleware"
	"meowauth/internal/scheduler"
	"meowauth/internal/security"
	handlers "meowauth/internal/transport/http"
)

// ErrGuardShutdown is returned by Run when the guard terminated the host
var ErrGuardShutdown = errors.New("host shut down by license guard")

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders
	Scheduler     *scheduler.Scheduler
	Guard         *guard.Controller
	Router        *chi.Mux
	Server        *http.Server

	listener net.Listener
	port     int
	logging  *infrastructure.Logging

	ctx    context.Context
	cancel context.CancelFunc

	mu             sync.Mutex
	shutdownReason error
}

// Option customizes NewApplication
type Option func(*options)

type options struct {
	clock clock.Clock
}

// WithClock replaces the wall clock driving the drift check
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// NewApplication wires every component from cfg and binds the listener
func NewApplication(cfg *config.Config, opts ...Option) (*Application, error) {
	o := options{clock: clock.New()}
	for _, opt := range opts {
		opt(&o)
	}

	logging, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger := logging.Logger

	logger.Info("Application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	otelProviders, err := infrastructure.InitializeOTel(cfg.Telemetry, logger)
	if err != nil {
		logging.Close()
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		logging:       logging,
		ctx:           ctx,
		cancel:        cancel,
	}

	if err := app.listen(); err != nil {
		cancel()
		logging.Close()
		return nil, err
	}

	if err := app.initializeGuard(o.clock); err != nil {
		app.abort()
		return nil, fmt.Errorf("failed to initialize guard: %w", err)
	}

	if err := app.setupRouter(); err != nil {
		app.abort()
		return nil, fmt.Errorf("failed to set up router: %w", err)
	}

	app.createServer()
	return app, nil
}

// abort releases what NewApplication acquired before failing
func (a *Application) abort() {
	a.cancel()
	a.listener.Close()
	a.logging.Close()
}

func (a *Application) listen() error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", a.Config.Server.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", a.Config.Server.Port, err)
	}
	a.listener = ln

	a.port = a.Config.HostPort()
	if a.port == 0 {
		a.port = ln.Addr().(*net.TCPAddr).Port
	}
	return nil
}

// initializeGuard builds the clients, scheduler and controller
func (a *Application) initializeGuard(clk clock.Clock) error {
	gc := a.Config.Guard

	metrics, err := guard.NewMetrics(a.OTelProviders.Meter)
	if err != nil {
		return err
	}

	authorityHTTP, err := security.NewHTTPClient(security.ClientConfig{
		ConnectTimeout: gc.ConnectTimeout,
		ReadTimeout:    gc.ReadTimeout,
		PinnedKeys:     gc.PinnedKeys,
	})
	if err != nil {
		return fmt.Errorf("authority client: %w", err)
	}
	probeHTTP, err := security.NewHTTPClient(security.ClientConfig{
		ConnectTimeout: gc.ConnectTimeout,
		ReadTimeout:    gc.ReadTimeout,
	})
	if err != nil {
		return fmt.Errorf("probe client: %w", err)
	}

	authority, err := guard.NewAuthorityClient(gc.AuthorityURL, authorityHTTP, a.Logger, metrics)
	if err != nil {
		return err
	}

	a.Scheduler = scheduler.New(clk, a.Logger)

	ctrl, err := guard.NewController(guard.Config{
		Port:             a.port,
		CheckInterval:    gc.CheckInterval,
		MaxMismatchCount: gc.MaxMismatchCount,
		ResetOnCleanTick: gc.ResetOnCleanTick,
		ProbeServices:    gc.ProbeServices,
	}, guard.Dependencies{
		Authority: authority,
		Prober:    guard.NewProbeClient(probeHTTP, a.Logger, metrics),
		Scheduler: a.Scheduler,
		Host:      a,
		Logger:    a.Logger,
		Metrics:   metrics,
		Clock:     clk,
	})
	if err != nil {
		return err
	}
	a.Guard = ctrl
	return nil
}

func (a *Application) setupRouter() error {
	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return err
	}

	a.Router = handlers.NewRouter(handlers.RouterOptions{
		Guard:     a.Guard,
		Errors:    apierrors.NewErrorHandler(a.Logger, a.Config.Telemetry.Environment == "development"),
		Logger:    a.Logger,
		Version:   config.AppVersion,
		RateLimit: a.Config.RateLimit,
		OTel:      otelMiddleware,
		Metrics:   a.OTelProviders.PrometheusHTTP,
	})
	return nil
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Addr returns the bound listener address
func (a *Application) Addr() net.Addr {
	return a.listener.Addr()
}

// Shutdown implements guard.Host. It records the first reason and ends Run.
func (a *Application) Shutdown(reason error) {
	a.mu.Lock()
	if a.shutdownReason == nil {
		a.shutdownReason = reason
	}
	a.mu.Unlock()

	a.Logger.Error("license guard requested host shutdown",
		slog.String("reason", reason.Error()))
	a.cancel()
}

// Close releases the log file. Call it after the last log line.
func (a *Application) Close() error {
	return a.logging.Close()
}

// ShutdownReason returns why the guard stopped the host, or nil
func (a *Application) ShutdownReason() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.shutdownReason
}

// Run serves HTTP and runs the guard until ctx ends or the guard shuts the
// host down.
func (a *Application) Run(ctx context.Context) error {
	// The guard owns its own cancellation so a parent cancel ends it via
	// Stop rather than as a failed verification.
	if err := a.Guard.StartVerification(context.WithoutCancel(ctx)); err != nil {
		return err
	}

	stopOnParent := context.AfterFunc(ctx, a.cancel)
	defer stopOnParent()

	g, gctx := errgroup.WithContext(a.ctx)

	g.Go(func() error {
		a.Logger.Info("HTTP server listening",
			slog.String("address", a.listener.Addr().String()),
			slog.Int("reported_port", a.port))
		if err := a.Server.Serve(a.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		return a.stop()
	})

	err := g.Wait()
	if reason := a.ShutdownReason(); reason != nil {
		return fmt.Errorf("%w: %w", ErrGuardShutdown, reason)
	}
	return err
}

// stop tears the components down in dependency order
func (a *Application) stop() error {
	a.Logger.Info("Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := a.Guard.Stop(); err != nil && !errors.Is(err, guard.ErrNotStarted) {
		errs = append(errs, fmt.Errorf("guard stop: %w", err))
	}

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}

	if err := a.Scheduler.Stop(a.Config.Server.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
	}

	if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Error shutting down OpenTelemetry", slog.String("error", err.Error()))
	}

	a.Logger.Info("Application shutdown complete")
	return errors.Join(errs...)
}
