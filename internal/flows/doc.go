// Package flows contains the orchestration steps behind every Engine operation.
//
// Each flow function accepts a typed dependency struct and returns a result
// with a classified failure instead of touching engine state. The Engine and
// the AuthFlow controller decide what to write and which message to show.
//
// # Architecture boundaries
//
// Flow functions call the identity provider through function fields in their
// Deps structs. They do NOT own the session store, the token cache, metrics,
// or diagnostics; ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import authsync (to avoid import cycles).
//   - Write the session store.
package flows
