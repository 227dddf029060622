// Package authsync keeps a client's authentication state in sync with an
// identity provider.
//
// An [Engine] owns one session store (package session) holding the access
// token, the id token and the user as a single all-or-nothing value. The
// store mirrors the id token into a token cache read by the network layer on
// every outbound call (see package middleware). Three writers reconcile the
// store with the provider:
//
//   - bootstrap, run once by [Engine.Start], restores a prior session and
//     releases the [Engine.Ready] barrier;
//   - the event bridge applies provider lifecycle events (signed in, signed
//     out, failures) pushed out of band;
//   - [AuthFlow] drives the sign-up, confirmation and sign-in screen.
//
// All three resolve the session the same way and write it with one
// whole-object replacement, so they converge regardless of ordering.
//
// # Architecture boundaries
//
// authsync is the public surface. Provider adapters live in identity/kratos and
// identity/memory; flow classification and input normalization live under
// internal/flows and are never exported.
//
// # What this package must NOT do
//
//   - Schedule token refresh, merge sessions across devices, or queue work
//     offline.
//   - Log or emit passwords, confirmation codes, or tokens.
package authsync
