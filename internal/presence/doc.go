// Package presence tracks which conversations have a connected visitor and
// pushes the resulting roster to every connected admin.
//
// # Registry
//
// Registry is a volatile set of conversation ids. Connect and Disconnect are
// idempotent: a second Connect reports AlreadyConnected and changes nothing,
// and Disconnect of an absent id is a no-op. Callers use the result to decide
// whether a roster broadcast is needed.
//
// # Broadcaster
//
// Broadcaster resolves a registry snapshot into visitor profiles and emits the
// full list as a connected_clients event. There is no delta protocol; every
// notification carries the whole roster.
package presence
