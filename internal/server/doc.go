// Package server implements the CollabHub real-time coordination hub: a
// WebSocket service that tracks which connections belong to which room, fans
// chat and activity events out to the right subset of members, and keeps
// every member's view of room membership consistent across joins, room
// switches, and disconnects.
//
// The implementation is organized into specialized files for configuration,
// the hub, connections, event routing, and the HTTP surface to keep the
// codebase maintainable and testable as the project grows.
package server
