package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

// RoomService is a threadsafe in-memory room. It owns the participant
// set, the room's broadcast group membership, and the playback clock.
// It never closes adapter-owned sockets.
type RoomService struct {
	room      domain.Room
	group     core.GroupID
	clock     *core.Clock
	transport core.Transport

	mu           sync.Mutex
	participants map[domain.UserID]map[domain.ConnID]struct{}
	attached     map[domain.ConnID]struct{}
	closed       bool
}

func NewRoomService(room domain.Room, clock *core.Clock, transport core.Transport) *RoomService {
	return &RoomService{
		room:         room,
		group:        core.RoomGroup(room.ID),
		clock:        clock,
		transport:    transport,
		participants: make(map[domain.UserID]map[domain.ConnID]struct{}),
		attached:     make(map[domain.ConnID]struct{}),
	}
}

func (s *RoomService) ID() domain.RoomID   { return s.room.ID }
func (s *RoomService) Host() domain.UserID { return s.room.Host }
func (s *RoomService) Group() core.GroupID { return s.group }

// AddParticipant joins the user and their live connections to the room.
// Idempotent: re-adding a participant refreshes their connection record
// and group membership without duplicating either. A closed room rejects
// the join so a racing destroy can never be resurrected.
func (s *RoomService) AddParticipant(id domain.UserID, conns []domain.ConnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrRoomNotFound
	}
	record, ok := s.participants[id]
	if !ok {
		record = make(map[domain.ConnID]struct{}, len(conns))
		s.participants[id] = record
	}
	for _, c := range conns {
		record[c] = struct{}{}
		s.transport.JoinGroup(c, s.group)
	}
	log.Info().Str("module", "app.room").Str("room", string(s.room.ID)).Str("user", string(id)).Msg("participant added")
	return nil
}

// RemoveParticipant takes the user's recorded connections out of the
// broadcast group and forgets the participant.
func (s *RoomService) RemoveParticipant(id domain.UserID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.participants[id] {
		s.transport.LeaveGroup(c, s.group)
	}
	delete(s.participants, id)
	log.Info().Str("module", "app.room").Str("room", string(s.room.ID)).Str("user", string(id)).Msg("participant removed")
}

// ReplaceConns swaps a reconnected participant's group membership: stale
// handles leave the group, fresh ones join. No-op for non-participants.
func (s *RoomService) ReplaceConns(id domain.UserID, stale, fresh []domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.participants[id]
	if !ok || s.closed {
		return
	}
	for _, c := range stale {
		delete(record, c)
		s.transport.LeaveGroup(c, s.group)
	}
	for _, c := range fresh {
		record[c] = struct{}{}
		s.transport.JoinGroup(c, s.group)
	}
}

// AttachConn adds a bare connection (a paired controller device) to the
// broadcast group without making it a participant.
func (s *RoomService) AttachConn(conn domain.ConnID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrRoomNotFound
	}
	s.attached[conn] = struct{}{}
	s.transport.JoinGroup(conn, s.group)
	return nil
}

// DetachConn removes an attached connection from the broadcast group.
func (s *RoomService) DetachConn(conn domain.ConnID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attached, conn)
	s.transport.LeaveGroup(conn, s.group)
}

func (s *RoomService) HasParticipant(id domain.UserID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.participants[id]
	return ok
}

func (s *RoomService) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// Participants snapshots the joined user ids.
func (s *RoomService) Participants() []domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserID, 0, len(s.participants))
	for id := range s.participants {
		out = append(out, id)
	}
	return out
}

// Close stops the clock, tears the broadcast group down connection by
// connection, and marks the room dead so late joins fail. Returns the
// user ids that were still participating; the caller clears their room
// references (the room must not reach into the registry, lock order is
// registry before room).
func (s *RoomService) Close() []domain.UserID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.clock.Stop()
	ids := make([]domain.UserID, 0, len(s.participants))
	for id, conns := range s.participants {
		for c := range conns {
			s.transport.LeaveGroup(c, s.group)
		}
		ids = append(ids, id)
	}
	for c := range s.attached {
		s.transport.LeaveGroup(c, s.group)
	}
	s.participants = make(map[domain.UserID]map[domain.ConnID]struct{})
	s.attached = make(map[domain.ConnID]struct{})
	log.Info().Str("module", "app.room").Str("room", string(s.room.ID)).Msg("room closed")
	return ids
}

// StartPlayback starts the clock from zero, or resyncs: a running clock
// reports its current elapsed time instead of restarting. Idempotent
// under concurrent calls.
func (s *RoomService) StartPlayback() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clock.Running() {
		return s.clock.Elapsed()
	}
	s.clock.Start()
	return 0
}

// StopPlayback fully resets the clock. Stop is never a pause-in-place.
func (s *RoomService) StopPlayback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock.Stop()
}

// CurrentPlaybackTime is the elapsed time while playing, else 0.
func (s *RoomService) CurrentPlaybackTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Elapsed()
}

func (s *RoomService) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Running()
}

type RoomInfo struct {
	ID           domain.RoomID `json:"id"`
	Participants int           `json:"participants"`
	Playing      bool          `json:"playing"`
}

// RoomManager is the process-wide room table. One instance per server;
// tests build their own.
type RoomManager struct {
	mu        sync.RWMutex
	transport core.Transport
	rooms     map[domain.RoomID]*RoomService
	newClock  func() *core.Clock
}

func NewRoomManager(transport core.Transport) *RoomManager {
	return &RoomManager{
		transport: transport,
		rooms:     make(map[domain.RoomID]*RoomService),
		newClock:  core.NewClock,
	}
}

// Create registers a room for the host. Exactly one room may exist per
// id: creating over a live room fails with ErrAlreadyExists and mutates
// nothing.
func (m *RoomManager) Create(id domain.RoomID, host domain.UserID) (*RoomService, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rooms[id]; ok {
		return nil, domain.ErrAlreadyExists
	}
	svc := NewRoomService(domain.Room{ID: id, Host: host}, m.newClock(), m.transport)
	m.rooms[id] = svc
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Str("host", string(host)).Msg("room created")
	return svc, nil
}

func (m *RoomManager) Get(id domain.RoomID) (*RoomService, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.rooms[id]
	return svc, ok
}

// Remove deregisters the room without touching its state; callers close
// the returned service themselves.
func (m *RoomManager) Remove(id domain.RoomID) (*RoomService, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	svc, ok := m.rooms[id]
	if ok {
		delete(m.rooms, id)
	}
	return svc, ok
}

func (m *RoomManager) List() []RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RoomInfo, 0, len(m.rooms))
	for id, svc := range m.rooms {
		out = append(out, RoomInfo{ID: id, Participants: svc.ParticipantCount(), Playing: svc.Playing()})
	}
	return out
}
