// Package auth provides stateless authentication and ownership-based
// authorisation for the IoT System API.
//
// A request is authenticated by the Authenticator pipeline:
//
//	allow-list -> bearer extraction -> revocation check -> HS256 verify
//	-> principal lookup -> bind SecurityContext
//
// Tokens live for 24 hours. Logout records the token in a RevocationStore
// (memory, SQLite or PostgreSQL) until it expires, and the
// RevocationSweeper drops records once they can no longer matter.
//
// Authorisation has two roles. ADMIN may act on any device or monitoring
// record; USER only on resources it created or was made a member of
// (see CanAccess). A nil principal is 401, a policy denial is 403.
//
// Passwords are hashed with Argon2id.
package auth
