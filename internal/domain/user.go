// Package domain contains entities without logic, just meta-data
package domain

type UserID string

// ConnID is an opaque transport connection handle. The core never
// dereferences it; only the transport adapter can map it back to a socket.
type ConnID string

// User is the stable identity behind any number of transport connections.
// Mutable fields are guarded by the registry that owns the user; nothing
// here locks.
type User struct {
	ID          UserID
	Connections map[ConnID]struct{}
	CurrentRoom RoomID // empty when the user is not in a room
	Controller  *Controller
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in the registry.
func NewUser(id UserID, conn ConnID) *User {
	return &User{
		ID:          id,
		Connections: map[ConnID]struct{}{conn: {}},
	}
}

// ReplaceConnections drops every known connection in favor of conn and
// returns the stale handles. Stale sockets are abandoned, not closed.
func (u *User) ReplaceConnections(conn ConnID) []ConnID {
	stale := make([]ConnID, 0, len(u.Connections))
	for c := range u.Connections {
		if c != conn {
			stale = append(stale, c)
		}
	}
	u.Connections = map[ConnID]struct{}{conn: {}}
	return stale
}

// ConnectionList snapshots the live connection handles.
func (u *User) ConnectionList() []ConnID {
	out := make([]ConnID, 0, len(u.Connections))
	for c := range u.Connections {
		out = append(out, c)
	}
	return out
}
