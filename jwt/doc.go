// Package jwt issues and inspects the identity and access tokens that flow
// through a session.
//
// Issuance and verification use configured signing keys (HS256 or Ed25519).
// Inspection without verification is provided for the client side, which never
// holds the provider's keys but still needs the subject and expiry of a token it
// was handed.
//
// # What this package must NOT do
//
//   - Treat an unverified claim set as proof of identity.
//   - Refresh or rotate tokens.
package jwt
