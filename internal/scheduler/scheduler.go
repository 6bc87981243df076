// Package scheduler runs one-shot and recurring background tasks for the guard.
//
// Recurring tasks never overlap: each firing runs to completion on the task's
// own goroutine before the next tick is waited for, and ticks that arrive while
// a task is still running are dropped. Cancelling a task stops future firings
// but does not interrupt one that is already running.
package scheduler

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Handle cancels a recurring task
type Handle interface {
	Cancel()
}

// Scheduler executes tasks off the caller's goroutine
type Scheduler struct {
	clock  clock.Clock
	logger *slog.Logger

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once
	closed   atomic.Bool
}

// New creates a scheduler. A nil clock means the wall clock.
func New(clk clock.Clock, logger *slog.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		clock:  clk,
		logger: logger.With(slog.String("component", "scheduler")),
		done:   make(chan struct{}),
	}
}

// Go runs task once on a new goroutine
func (s *Scheduler) Go(task func()) {
	if s.closed.Load() {
		s.logger.Warn("task rejected, scheduler stopped")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run("async", task)
	}()
}

// Every runs task after initialDelay and then once per period until the
// returned handle is cancelled or the scheduler is stopped.
func (s *Scheduler) Every(initialDelay, period time.Duration, task func()) Handle {
	t := &recurringTask{stop: make(chan struct{})}
	if s.closed.Load() {
		s.logger.Warn("recurring task rejected, scheduler stopped")
		t.Cancel()
		return t
	}
	if period <= 0 {
		panic(fmt.Sprintf("scheduler: non-positive period %s", period))
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop(t, initialDelay, period, task)
	}()
	return t
}

func (s *Scheduler) loop(t *recurringTask, initialDelay, period time.Duration, task func()) {
	timer := s.clock.Timer(initialDelay)
	defer timer.Stop()

	select {
	case <-t.stop:
		return
	case <-s.done:
		return
	case <-timer.C:
	}

	ticker := s.clock.Ticker(period)
	defer ticker.Stop()

	for {
		if t.cancelled() {
			return
		}
		s.run("recurring", task)

		select {
		case <-t.stop:
			return
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

// run executes task and converts a panic into a log entry so a broken task
// never takes the process down with it.
func (s *Scheduler) run(kind string, task func()) {
	defer func() {
		if rvr := recover(); rvr != nil {
			s.logger.Error("panic recovered in scheduled task",
				slog.String("kind", kind),
				slog.Any("panic", rvr),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()
	task()
}

// Stop cancels every recurring task, rejects new work, and waits up to
// timeout for running tasks to return.
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.stopOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)
	})

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		s.logger.Info("scheduler stopped")
		return nil
	case <-time.After(timeout):
		s.logger.Warn("scheduler stop timeout exceeded")
		return fmt.Errorf("timeout waiting for scheduled tasks to finish")
	}
}

type recurringTask struct {
	stop chan struct{}
	once sync.Once
}

// Cancel stops future firings. Safe to call more than once.
func (t *recurringTask) Cancel() {
	t.once.Do(func() { close(t.stop) })
}

func (t *recurringTask) cancelled() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
