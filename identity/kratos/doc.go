// Package kratos adapts the Ory Kratos native self-service API to
// identity.Provider.
//
// Registration, login, verification, and logout use the native ("api") flows.
// The Kratos session token is the access token and is persisted in a
// credstore.Store so a restarted client finds its session. The id token is the
// session tokenized with a configured JWT template, or the session token itself
// when no template is set.
//
// Kratos reports failures as UI messages with numeric ids and as error objects
// with string ids; both are mapped onto identity.ErrorKind in errors.go.
package kratos
