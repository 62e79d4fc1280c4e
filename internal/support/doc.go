// Package support wires the presence, routing and relay components into one
// engine driven by transport events.
//
// The transport calls ClientConnected/ClientDisconnected and
// AdminConnected/AdminDisconnected when sockets open and close, and hands
// every inbound frame to HandleClientFrame or HandleAdminFrame. The engine
// never blocks on a socket; all live output goes through the hub.
package support
