// Package api implements the HTTP REST API and WebSocket server for the
// IoT system.
//
// This package provides:
//   - Account endpoints: register, login, logout and the current user
//   - Device CRUD, device commands and per-device monitorings
//   - Monitoring CRUD with batch create and bulk delete
//   - Audit log queries and an admin-triggered revocation sweep
//   - A WebSocket hub that streams device and monitoring changes
//   - Prometheus metrics on /metrics
//
// # Security
//
// Every /api/v1 request runs through auth.Authenticator. Login and
// registration are on its allow-list; other routes need a bearer token
// that is not revoked, verifies, and names an existing user. Store
// failures during authentication answer 500, never 401. Resource access
// then follows the ownership policy: ADMIN may touch anything, USER only
// what it created or was made a member of.
//
// WebSocket clients either send the Authorization header or redeem a
// single-use ticket from POST /api/v1/auth/ws-ticket. Events are only
// delivered for resources the connection's principal may access.
//
// # Graceful Degradation
//
// The server runs without MQTT. Commands are stored and reported as
// applied; only delivery to the device is skipped.
package api
