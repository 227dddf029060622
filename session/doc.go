// Package session holds the client's authentication state: the [Store] that is
// the single source of truth for {accessToken, idToken, user}, and the
// process-wide [TokenCache] that mirrors the current id token for code that
// issues authenticated requests outside of any reactive tree.
//
// # Invariants
//
// A [Session] is either fully authenticated (all three fields present) or fully
// anonymous. Every write is a whole-object replacement; there is no way to set a
// token without a user or the other way around.
//
// The [TokenCache] has exactly one writer: the [Store] it was handed at
// construction. Its setter is unexported so nothing outside this package can
// write it. Every effective Store write updates the cache before the call
// returns and before watchers run.
//
// # What this package must NOT do
//
//   - Call the identity provider or perform I/O.
//   - Import authsync or any identity adapter (no upward imports).
//   - Log or otherwise expose token values.
package session
