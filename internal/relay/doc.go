// Package relay implements the real-time presence and event-relay service for
// the recruiting platform: it tracks which users are online, manages logical
// delivery channels (rooms), and relays typed events between connected browser
// sessions with at-most-one-active-session-per-user semantics.
//
// The relay is a best-effort, single-process, in-memory side channel layered
// on top of durable writes performed elsewhere; it never persists anything and
// never verifies the identity a client declares.
package relay
