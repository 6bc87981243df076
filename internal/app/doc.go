// Package app wires the guarded host process together and owns its
// lifecycle.
//
// # Initialization Flow
//
//	1. Initialize logging and observability from the loaded configuration
//	2. Build bounded HTTP clients for the authority and the address probes
//	3. Create the scheduler and the guard controller
//	4. Set up HTTP handlers and middleware
//	5. Bind the listener so the real port is known before verification
//
// # Lifecycle
//
// Run serves HTTP, starts the guard and blocks until either the caller's
// context ends or the guard calls Shutdown. Application is the guard's Host:
// Shutdown never blocks, it records the reason and cancels the run context.
// Run then stops the guard, the server and the scheduler in that order and
// returns an error wrapping ErrGuardShutdown and the guard's reason.
//
// # Error Handling
//
// The app does not call os.Exit(); cmd/guardd maps a non-nil error from Run
// to a non-zero exit status.
package app
