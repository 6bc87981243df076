// Package guard keeps a host process bound to the network identity its
// license authority confirmed.
//
// The Controller verifies the host once through the AuthorityClient. On
// success it schedules a recurring DriftMonitor tick that asks public address
// probes where the host appears to be. Consecutive ticks whose observations
// disagree with the verified address raise a mismatch counter; when it
// reaches the configured threshold the authority is asked again. A rejected
// or failed verification, initial or escalated, ends with Host.Shutdown.
//
// Network and parse failures never escape as panics or errors from the
// clients; they are returned as tagged VerificationOutcome and ProbeResult
// values.
package guard
