// Package config provides centralized configuration management for the guard.
// It handles loading configuration from multiple sources, validation, and provides
// a type-safe API for accessing configuration values throughout the application.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. Configuration file (YAML)
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern MEOW_* for namespacing:
//
//	MEOW_SERVER_PORT=25565
//	MEOW_GUARD_AUTHORITY_URL=https://auth.example.com/verify
//	MEOW_GUARD_CHECK_INTERVAL=5m
//	MEOW_GUARD_MAX_MISMATCH_COUNT=5
//	MEOW_GUARD_PROBE_SERVICES=https://api.ip.sb/ip,https://4.ipw.cn
//	MEOW_LOGGING_LEVEL=debug
//
// MEOW_CONFIG_FILE selects the YAML file; otherwise config.yaml and
// configs/config.yaml are tried.
//
// # Validation
//
// All configuration is validated at load time with struct tags
// (go-playground/validator) to ensure:
//
//	- The authority URL is present and well formed
//	- Every probe service is a URL and at least one is configured
//	- Intervals, thresholds and timeouts are within acceptable ranges
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
