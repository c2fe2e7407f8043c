// Package auth defines the identity boundary of the platform.
//
// It is the single place that owns usernames, passkey credentials, and
// session issuance so other services can depend on stable user IDs and
// signed session claims instead of re-implementing identity rules.
//
// Subpackages:
//   - app: auth server wiring and lifecycle
//   - api/http: JSON endpoints for the ceremonies and session probes
//   - ceremony: the passkey registration and login protocols
//   - challenge: transient state of in-flight ceremonies
//   - passkey: WebAuthn relying-party configuration
//   - session: session tokens, cookies, and request identity
//   - storage: persistence interfaces and the SQLite implementation
//   - token: signed claims codec
//   - user: user domain model and username policy
package auth
