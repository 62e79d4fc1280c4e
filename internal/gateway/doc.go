// Package gateway wires the support-gateway server together.
//
// Gateway owns the SQLite store, the support engine, the socket handler,
// the dedupe cache and the event publisher, and serves them on one HTTP
// listener:
//
//   - GET / issues the user_id cookie that names a visitor's conversation
//   - GET, POST /api/profile read and update the visitor profile
//   - POST /api/admin/login exchanges staff credentials for a bearer token
//   - GET /api/conversations/{id}/transcript exports JSON or HTML
//   - GET /health and GET /ready report liveness and store readiness
//   - GET /ws/client and GET /ws/admin upgrade to the two socket roles
//
// Lifecycle:
//
//	gw, err := gateway.New(cfg, logger)
//	err = gw.Run(ctx) // blocks until ctx is canceled
//
// Shutdown closes every open socket before closing the store, so no handler
// writes to a closed database.
package gateway
