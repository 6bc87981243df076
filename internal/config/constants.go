package config

import "time"

// Application constants
const (
	AppName    = "MeowAuth Guard"
	AppVersion = "1.0.0"

	// EnvPrefix namespaces all environment variables, e.g. MEOW_GUARD_AUTHORITY_URL
	EnvPrefix = "MEOW"
)

// Guard defaults
const (
	DefaultCheckInterval    = 5 * time.Minute
	DefaultMaxMismatchCount = 5
	DefaultResetOnCleanTick = false
	DefaultConnectTimeout   = 5 * time.Second
	DefaultReadTimeout      = 5 * time.Second

	// One international and one domestic service, so a single outage or a
	// proxy that only rewrites some routes cannot hide drift.
	ProbeServiceInternational = "https://api.ip.sb/ip"
	ProbeServiceDomestic      = "https://4.ipw.cn"
)

// Server and logging defaults
const (
	DefaultServerPort = 8080
	DefaultLogLevel   = "info"
	DefaultLogFormat  = "json"
	DefaultLogFile    = "logs/guard.log"
)

// API endpoints
const (
	GuardStatusEndpoint = "/api/guard/status"
	HealthEndpoint      = "/health"
	MetricsEndpoint     = "/metrics"
)

// DefaultProbeServices returns a fresh copy of the default probe service list
func DefaultProbeServices() []string {
	return []string{ProbeServiceInternational, ProbeServiceDomestic}
}
