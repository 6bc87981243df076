package guard

import "time"

// Status is the JSON view served by the guard status endpoint
type Status struct {
	State            string     `json:"state"`
	Identity         string     `json:"identity,omitempty"`
	Mismatches       int        `json:"mismatches"`
	MaxMismatchCount int        `json:"max_mismatch_count"`
	CheckInterval    string     `json:"check_interval"`
	ProbeServices    []string   `json:"probe_services"`
	TicksRun         int64      `json:"ticks_run"`
	Escalations      int64      `json:"escalations"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	LastTickAt       *time.Time `json:"last_tick_at,omitempty"`
	LastTickResult   string     `json:"last_tick_result,omitempty"`
	ShutdownReason   string     `json:"shutdown_reason,omitempty"`

	// ShutdownErr is the error passed to Host.Shutdown, for errors.Is checks.
	ShutdownErr error `json:"-"`
}

// Monitoring reports whether the guard is actively checking for drift
func (s Status) Monitoring() bool {
	return s.State == StateMonitoring.String()
}
