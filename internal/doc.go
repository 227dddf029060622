// Package internal contains helpers that are private to authsync, currently
// random code and token generation.
//
// # Sub-packages
//
//   - flows: session resolution, event actions, and input normalization
//
// # What this package must NOT do
//
//   - Export types that appear in the public authsync API.
//   - Be imported by any package outside the authsync module.
package internal
