package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meowauth/internal/config"
	apierrors "meowauth/internal/errors"
	"meowauth/internal/guard"
)

type stubGuard struct {
	mu     sync.Mutex
	status guard.Status
}

func (s *stubGuard) Status() guard.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubGuard) set(st guard.Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func newTestRouter(g GuardStatusProvider, rl config.RateLimitConfig) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(RouterOptions{
		Guard:     g,
		Errors:    apierrors.NewErrorHandler(logger, false),
		Logger:    logger,
		Version:   "test",
		RateLimit: rl,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
	})
}

func get(t *testing.T, h http.Handler, method, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))

	var body map[string]interface{}
	if rec.Header().Get("Content-Type") != "" && rec.Body.Len() > 0 && rec.Body.Bytes()[0] == '{' {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestGuardStatusEndpoint(t *testing.T) {
	g := &stubGuard{status: guard.Status{
		State:            "monitoring",
		Identity:         "1.2.3.4",
		Mismatches:       2,
		MaxMismatchCount: 5,
		CheckInterval:    "5m0s",
		ProbeServices:    []string{"https://api.ip.sb/ip"},
		TicksRun:         7,
	}}
	h := newTestRouter(g, config.RateLimitConfig{})

	rec, body := get(t, h, http.MethodGet, config.GuardStatusEndpoint)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "monitoring", body["state"])
	assert.Equal(t, "1.2.3.4", body["identity"])
	assert.Equal(t, float64(2), body["mismatches"])
	assert.Equal(t, float64(7), body["ticks_run"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestHealthEndpoints(t *testing.T) {
	g := &stubGuard{status: guard.Status{State: "verifying"}}
	h := newTestRouter(g, config.RateLimitConfig{})

	for _, path := range []string{"/health", "/health/live"} {
		rec, body := get(t, h, http.MethodGet, path)
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "healthy", body["status"], path)
		assert.Equal(t, "test", body["version"], path)
	}
}

func TestReadinessFollowsGuardState(t *testing.T) {
	g := &stubGuard{}
	h := newTestRouter(g, config.RateLimitConfig{})

	rejectedErr := fmt.Errorf("initial verification failed: %w", guard.ErrRejected)
	transportErr := fmt.Errorf("re-verification failed: %w", guard.ErrTransport)

	tests := []struct {
		name       string
		status     guard.Status
		wantStatus int
		wantType   string
		wantReason string
	}{
		{"verifying", guard.Status{State: guard.StateVerifying.String()}, http.StatusServiceUnavailable, apierrors.TypeGuardNotReady, ""},
		{"monitoring", guard.Status{State: guard.StateMonitoring.String(), Identity: "1.2.3.4"}, http.StatusOK, "", ""},
		{"rejected", guard.Status{State: guard.StateShutDown.String(), ShutdownReason: rejectedErr.Error(), ShutdownErr: rejectedErr},
			http.StatusServiceUnavailable, apierrors.TypeGuardRejected, rejectedErr.Error()},
		{"authority unreachable", guard.Status{State: guard.StateShutDown.String(), ShutdownReason: transportErr.Error(), ShutdownErr: transportErr},
			http.StatusServiceUnavailable, apierrors.TypeGuardNetwork, transportErr.Error()},
		{"stopped", guard.Status{State: guard.StateStopped.String()}, http.StatusServiceUnavailable, apierrors.TypeGuardNotReady, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g.set(tt.status)
			rec, body := get(t, h, http.MethodGet, "/health/ready")

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "ready", body["status"])
				assert.Equal(t, "1.2.3.4", body["identity"])
				return
			}
			assert.Equal(t, tt.wantType, body["type"])
			details := body["details"].(map[string]interface{})
			assert.Equal(t, tt.status.State, details["state"])
			if tt.wantReason == "" {
				assert.NotContains(t, details, "reason")
			} else {
				assert.Equal(t, tt.wantReason, details["reason"])
			}
		})
	}
}

// Readiness polls during verification are routine and must not reach the
// error log.
func TestReadinessFailureLogsAtDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := NewRouter(RouterOptions{
		Guard:  &stubGuard{status: guard.Status{State: guard.StateVerifying.String()}},
		Errors: apierrors.NewErrorHandler(logger, false),
		Logger: logger,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, buf.String(), `"request failed"`)
	assert.NotContains(t, buf.String(), `"level":"ERROR"`)
}

func TestRouterErrors(t *testing.T) {
	h := newTestRouter(&stubGuard{}, config.RateLimitConfig{})

	rec, body := get(t, h, http.MethodGet, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apierrors.TypeNotFound, body["type"])

	rec, body = get(t, h, http.MethodPost, config.GuardStatusEndpoint)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, apierrors.TypeMethodNotAllowed, body["type"])
}

func TestRouterRateLimit(t *testing.T) {
	h := newTestRouter(&stubGuard{}, config.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1})

	rec, _ := get(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, body := get(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, apierrors.TypeRateLimit, body["type"])

	// Metrics are never throttled.
	rec, _ = get(t, h, http.MethodGet, config.MetricsEndpoint)
	assert.Equal(t, http.StatusOK, rec.Code)
}
