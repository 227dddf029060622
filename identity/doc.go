// Package identity defines the contract between the session engine and a hosted
// identity provider: the [Provider] operations, the closed [ErrorKind] taxonomy
// every adapter maps its failures onto, and the asynchronous [Event] stream
// delivered through a [Hub].
//
// # Architecture boundaries
//
// Adapters (identity/kratos, identity/memory) translate provider-specific
// responses and error codes into this package's types. Nothing above this
// package inspects provider-specific strings.
//
// # What this package must NOT do
//
//   - Hold session state or write the session store.
//   - Import authsync or session.
package identity
