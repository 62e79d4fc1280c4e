// Package dedupe remembers recently seen send ids so a message retransmitted
// by a reconnecting browser is stored once.
package dedupe
