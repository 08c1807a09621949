package core

import "github.com/daxaudio/dax-server/internal/domain"

// Event is a wire event name.
type Event string

// GroupID names a broadcast fan-out target managed by the transport.
type GroupID string

// RoomGroup is the one group a room broadcasts to.
func RoomGroup(id domain.RoomID) GroupID { return GroupID(id) }

// Transport is the capability the core requests delivery through.
// Owned by the adapter; the adapter owns the sockets and closes them,
// the core only asks via CloseConn. Emits are fire-and-forget: the
// adapter may drop frames on backpressure but must never block.
type Transport interface {
	EmitToConn(conn domain.ConnID, event Event, payload any)
	EmitToGroup(group GroupID, event Event, payload any)
	JoinGroup(conn domain.ConnID, group GroupID)
	LeaveGroup(conn domain.ConnID, group GroupID)
	CloseConn(conn domain.ConnID)
}
