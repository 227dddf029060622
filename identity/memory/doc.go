// Package memory is an in-process identity provider.
//
// It keeps a user pool with confirmation codes and at most one current session,
// mints signed tokens with the module's jwt package, and publishes the same
// lifecycle events a hosted provider would. Failures can be injected per
// operation, and sessions can be started or ended out of band to exercise the
// event path.
//
// It is meant for local development, demos, and tests. Nothing is persisted.
package memory
