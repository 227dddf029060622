// Package credstore persists the provider session credentials between process
// runs so a restarted client can find its prior session during bootstrap.
//
// Two backends exist: [Memory] for tests and single-process use, and [Redis]
// for clients that share a local Redis (kiosk devices, the CLI). Redis values
// use the versioned binary codec in codec.go.
//
// # What this package must NOT do
//
//   - Interpret, refresh, or validate the stored session token.
//   - Hold the session state of the engine; that lives in session.Store.
package credstore
