package signal

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

// Envelope is the wire frame: an event name plus an opaque payload.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Hub tracks live connections and broadcast group membership and
// implements core.Transport on top of them. Group ids are managed by
// the core (one per room); the hub only fans out.
type Hub struct {
	mu     sync.RWMutex
	conns  map[domain.ConnID]sender
	groups map[core.GroupID]map[domain.ConnID]struct{}
}

func NewHub() *Hub {
	return &Hub{
		conns:  make(map[domain.ConnID]sender),
		groups: make(map[core.GroupID]map[domain.ConnID]struct{}),
	}
}

func (h *Hub) Add(id domain.ConnID, s sender) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[id] = s
}

// Remove forgets the connection and its group memberships. It does not
// close the socket; the pump owning it does that.
func (h *Hub) Remove(id domain.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns, id)
	for gid, members := range h.groups {
		delete(members, id)
		if len(members) == 0 {
			delete(h.groups, gid)
		}
	}
}

func (h *Hub) JoinGroup(conn domain.ConnID, group core.GroupID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		h.groups[group] = members
	}
	members[conn] = struct{}{}
}

func (h *Hub) LeaveGroup(conn domain.ConnID, group core.GroupID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, conn)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

func (h *Hub) EmitToConn(conn domain.ConnID, event core.Event, payload any) {
	data, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	s, live := h.conns[conn]
	h.mu.RUnlock()
	if !live {
		return
	}
	if err := s.TrySend(data); err != nil {
		log.Debug().Str("module", "signal.hub").Str("conn", string(conn)).Str("event", string(event)).Err(err).Msg("emit dropped")
	}
}

func (h *Hub) EmitToGroup(group core.GroupID, event core.Event, payload any) {
	data, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id := range h.groups[group] {
		s, live := h.conns[id]
		if !live {
			continue
		}
		if err := s.TrySend(data); err != nil {
			log.Debug().Str("module", "signal.hub").Str("conn", string(id)).Str("event", string(event)).Err(err).Msg("group emit dropped")
		}
	}
}

// EmitToAll fans out to every live connection. Data-plane relays that
// predate rooms (orientation frames, sound library sync) use it.
func (h *Hub) EmitToAll(event core.Event, payload any) {
	data, ok := encode(event, payload)
	if !ok {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, s := range h.conns {
		if err := s.TrySend(data); err != nil {
			log.Debug().Str("module", "signal.hub").Str("conn", string(id)).Str("event", string(event)).Err(err).Msg("broadcast dropped")
		}
	}
}

func (h *Hub) CloseConn(conn domain.ConnID) {
	h.mu.Lock()
	s, ok := h.conns[conn]
	delete(h.conns, conn)
	for gid, members := range h.groups {
		delete(members, conn)
		if len(members) == 0 {
			delete(h.groups, gid)
		}
	}
	h.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Stats reports live group and connection counts.
func (h *Hub) Stats() (groups, conns int) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups), len(h.conns)
}

// GroupSize reports the member count of a group.
func (h *Hub) GroupSize(group core.GroupID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

func encode(event core.Event, payload any) ([]byte, bool) {
	out := struct {
		Type string `json:"type"`
		Data any    `json:"data,omitempty"`
	}{Type: string(event), Data: payload}
	data, err := json.Marshal(out)
	if err != nil {
		log.Error().Str("module", "signal.hub").Str("event", string(event)).Err(err).Msg("encode")
		return nil, false
	}
	return data, true
}
