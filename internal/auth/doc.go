// Package auth handles staff accounts and admin session tokens.
//
// Passwords are stored as bcrypt hashes. A successful login yields an HS256
// JWT whose "sub" claim is the account id; HTTPAuthMiddleware and the admin
// WebSocket handshake verify it and load the account.
package auth
