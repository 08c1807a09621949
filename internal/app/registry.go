package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

// UserSnapshot is a read-only copy for callers. Live fields stay behind
// the registry lock.
type UserSnapshot struct {
	ID          domain.UserID
	Connections []domain.ConnID
	CurrentRoom domain.RoomID
	Paired      bool
}

// Registry maps stable user identifiers to users and guards every
// mutable user field. One instance per server process; tests build their
// own. Lock order is registry before room, never the other way around.
type Registry struct {
	mu        sync.RWMutex
	users     map[domain.UserID]*domain.User
	rooms     *RoomManager
	transport core.Transport
}

func NewRegistry(rooms *RoomManager, transport core.Transport) *Registry {
	return &Registry{
		users:     make(map[domain.UserID]*domain.User),
		rooms:     rooms,
		transport: transport,
	}
}

// ResolveOrCreate binds a fresh connection to the identity. An unseen id
// creates the user owning exactly {conn}. A known id has its whole
// connection set replaced: stale sockets are evicted from the room group
// and abandoned, never closed. A user already in a room gets the new
// connection rejoined to that room's broadcast group, and any paired
// controller is invalidated because it was opened against the previous
// connection lifetime.
func (r *Registry) ResolveOrCreate(id domain.UserID, conn domain.ConnID) (UserSnapshot, error) {
	if id == "" {
		return UserSnapshot{}, domain.ErrInvalidIdentity
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		u = domain.NewUser(id, conn)
		r.users[id] = u
		log.Info().Str("module", "app.registry").Str("user", string(id)).Msg("user created")
		return snapshot(u), nil
	}

	stale := u.ReplaceConnections(conn)
	if u.CurrentRoom != "" {
		if svc, live := r.rooms.Get(u.CurrentRoom); live {
			svc.ReplaceConns(u.ID, stale, []domain.ConnID{conn})
			log.Info().Str("module", "app.registry").Str("user", string(id)).Str("room", string(u.CurrentRoom)).Msg("rejoined room on reconnect")
		}
		if u.Controller != nil {
			r.unpairLocked(u)
		}
	}
	log.Info().Str("module", "app.registry").Str("user", string(id)).Int("evicted", len(stale)).Msg("connection replaced")
	return snapshot(u), nil
}

// Lookup resolves an identity. An empty id is an ErrInvalidIdentity,
// surfaced to the caller, never silently ignored.
func (r *Registry) Lookup(id domain.UserID) (UserSnapshot, error) {
	if id == "" {
		return UserSnapshot{}, domain.ErrInvalidIdentity
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return UserSnapshot{}, domain.ErrUserNotFound
	}
	return snapshot(u), nil
}

// SetRoom records the user's current room. Reports false for unknown ids.
func (r *Registry) SetRoom(id domain.UserID, room domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false
	}
	u.CurrentRoom = room
	return true
}

// ClearRoom drops the user's room reference, but only while it still
// points at room: a user who already joined elsewhere is left alone.
func (r *Registry) ClearRoom(id domain.UserID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok && u.CurrentRoom == room {
		u.CurrentRoom = ""
	}
}

// ClearRoomAll is ClearRoom over a destroyed room's participant list.
func (r *Registry) ClearRoomAll(ids []domain.UserID, room domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range ids {
		if u, ok := r.users[id]; ok && u.CurrentRoom == room {
			u.CurrentRoom = ""
		}
	}
}

// Pair records ctrl as the user's controller. A previous pairing is
// implicitly unpaired first; a user holds at most one controller.
func (r *Registry) Pair(owner domain.UserID, ctrl domain.Controller) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[owner]
	if !ok {
		return domain.ErrUserNotFound
	}
	if u.Controller != nil {
		r.unpairLocked(u)
	}
	u.Controller = &ctrl
	log.Info().Str("module", "app.registry").Str("user", string(owner)).Str("controller", string(ctrl.ID)).Msg("controller paired")
	return nil
}

// Unpair tears down the user's controller pairing. Reports false, with
// no state touched, when the user has no controller or no current room.
// Serialized under the registry lock: one success per live pairing.
func (r *Registry) Unpair(id domain.UserID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return false
	}
	return r.unpairLocked(u)
}

func (r *Registry) unpairLocked(u *domain.User) bool {
	if u.Controller == nil || u.CurrentRoom == "" {
		return false
	}
	ctrl := u.Controller
	if svc, ok := r.rooms.Get(u.CurrentRoom); ok {
		svc.DetachConn(ctrl.Conn)
	}
	r.transport.CloseConn(ctrl.Conn)
	u.Controller = nil
	log.Info().Str("module", "app.registry").Str("user", string(u.ID)).Str("controller", string(ctrl.ID)).Msg("controller unpaired")
	return true
}

func snapshot(u *domain.User) UserSnapshot {
	return UserSnapshot{
		ID:          u.ID,
		Connections: u.ConnectionList(),
		CurrentRoom: u.CurrentRoom,
		Paired:      u.Controller != nil,
	}
}
