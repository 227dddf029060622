// Package middleware connects the session token cache to net/http.
//
//   - [Bearer] decorates an http.RoundTripper so every outbound request carries
//     the id token cached at send time.
//   - [Guard] gates a local handler on a cached token and exposes it through the
//     request context.
//
// # What this package must NOT do
//
//   - Write the token cache (only the session store writes it).
//   - Capture a token once and reuse it across requests.
//   - Log header values.
package middleware
