package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

// Outbound events the coordinator emits through the transport.
const (
	EventStartSound       core.Event = "start-sound"
	EventElapsedTime      core.Event = "elapsed-time"
	EventControllerPaired core.Event = "controller-paired"
	EventDestroyRoom      core.Event = "destroy-room"
	EventRoomsOfUser      core.Event = "rooms-of-user"
)

// Result is the structured reply for request-style events.
type Result struct {
	Status  string        `json:"status"`
	Message string        `json:"message"`
	RoomID  domain.RoomID `json:"roomId,omitempty"`
}

func okResult(msg string) Result   { return Result{Status: "ok", Message: msg} }
func errResult(err error) Result   { return Result{Status: "error", Message: err.Error()} }
func errMessage(msg string) Result { return Result{Status: "error", Message: msg} }

const (
	defaultJoinRetryAttempts = 4
	defaultJoinRetryBackoff  = 100 * time.Millisecond
)

// userLocks serializes the coordinator's multi-step room operations per
// user id. The registry and rooms guard their own state, but a
// lookup→mutate sequence spanning both needs one exclusive section per
// user or two racing joins could land the user in two rooms. Lock order:
// user lock first, then registry, then room.
type userLocks struct {
	mu    sync.Mutex
	locks map[domain.UserID]*sync.Mutex
}

func (l *userLocks) lock(id domain.UserID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// Coordinator is the protocol layer: it receives inbound events from the
// transport adapter, mutates the registry and room table, and emits
// results and broadcasts back through the transport. Room-membership
// operations for one user are serialized through userLocks; no emission
// happens while any lock is held by the stores below.
type Coordinator struct {
	registry  *Registry
	rooms     *RoomManager
	transport core.Transport
	users     userLocks

	retryAttempts int
	retryBackoff  time.Duration
}

func NewCoordinator(registry *Registry, rooms *RoomManager, transport core.Transport) *Coordinator {
	return &Coordinator{
		registry:      registry,
		rooms:         rooms,
		transport:     transport,
		users:         userLocks{locks: make(map[domain.UserID]*sync.Mutex)},
		retryAttempts: defaultJoinRetryAttempts,
		retryBackoff:  defaultJoinRetryBackoff,
	}
}

// SetJoinRetry overrides the join retry bounds from config.
func (c *Coordinator) SetJoinRetry(attempts int, backoff time.Duration) {
	if attempts > 0 {
		c.retryAttempts = attempts
	}
	if backoff > 0 {
		c.retryBackoff = backoff
	}
}

// DesktopConnect resolves or creates the identity behind a new desktop
// connection. A returning identity is rejoined to its room and has any
// stale controller pairing invalidated by the registry.
func (c *Coordinator) DesktopConnect(userID domain.UserID, conn domain.ConnID) error {
	snap, err := c.registry.ResolveOrCreate(userID, conn)
	if err != nil {
		return err
	}
	log.Info().Str("module", "app.coordinator").Str("user", string(snap.ID)).Str("room", string(snap.CurrentRoom)).Msg("desktop connected")
	return nil
}

// CreateRoom registers a room hosted by userID. Each failure mode is a
// distinct, user-visible message; on success the host's connections are
// in the broadcast group and the host's room reference is set, or none
// of those effects applied.
func (c *Coordinator) CreateRoom(userID domain.UserID, roomID domain.RoomID) Result {
	if userID == "" {
		return errMessage("userId is null or was not provided")
	}
	if roomID == "" {
		return errMessage("roomId not provided")
	}
	unlock := c.users.lock(userID)
	defer unlock()
	snap, err := c.registry.Lookup(userID)
	if err != nil {
		return errResult(err)
	}
	if snap.CurrentRoom != "" {
		return errMessage("user already has a room")
	}
	svc, err := c.rooms.Create(roomID, userID)
	if err != nil {
		return errResult(err)
	}
	if err := svc.AddParticipant(userID, snap.Connections); err != nil {
		// Lost a race with an immediate destroy; the table entry is
		// already gone, nothing to roll back.
		return errResult(err)
	}
	c.registry.SetRoom(userID, roomID)
	res := okResult(fmt.Sprintf("room created: %s", roomID))
	res.RoomID = roomID
	return res
}

// JoinRoom joins userID into roomID, retrying while neither the room nor
// the user exists yet: the join event can race the connection-open event
// on the same logical client. Each attempt re-resolves from scratch and
// no lock is held across the backoff sleep. Exhausting the bound is a
// fatal ErrUserResolutionTimeout. A room that exists makes user absence
// an immediate ErrUserNotFound, and a resolved user joining an absent
// (or just-destroyed) room gets ErrRoomNotFound; join never creates or
// resurrects a room.
func (c *Coordinator) JoinRoom(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	if userID == "" {
		return domain.ErrInvalidIdentity
	}
	for attempt := 1; ; attempt++ {
		snap, lookupErr := c.registry.Lookup(userID)
		svc, roomOK := c.rooms.Get(roomID)

		switch {
		case lookupErr == nil && roomOK:
			return c.completeJoin(svc, snap.ID)
		case lookupErr == nil:
			return domain.ErrRoomNotFound
		case roomOK:
			return domain.ErrUserNotFound
		}

		if attempt >= c.retryAttempts {
			return fmt.Errorf("join room %s as %s after %d attempts: %w",
				roomID, userID, attempt, domain.ErrUserResolutionTimeout)
		}
		log.Warn().Str("module", "app.coordinator").Str("user", string(userID)).Str("room", string(roomID)).Int("attempt", attempt).Msg("user not resolved yet, retrying join")

		timer := time.NewTimer(c.retryBackoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// completeJoin is the exclusive section of a join: the user's current
// room is re-read under the user lock so concurrent joins for the same
// user apply one at a time, each leaving the previous room first.
func (c *Coordinator) completeJoin(svc *RoomService, userID domain.UserID) error {
	unlock := c.users.lock(userID)
	defer unlock()
	snap, err := c.registry.Lookup(userID)
	if err != nil {
		return err
	}
	if snap.CurrentRoom == svc.ID() {
		// Re-join is a no-op success; membership stays deduplicated.
		return svc.AddParticipant(snap.ID, snap.Connections)
	}
	if snap.CurrentRoom != "" {
		// At most one room per user: leave the old one first.
		if old, ok := c.rooms.Get(snap.CurrentRoom); ok {
			old.RemoveParticipant(snap.ID)
		}
		c.registry.ClearRoom(snap.ID, snap.CurrentRoom)
	}
	if err := svc.AddParticipant(snap.ID, snap.Connections); err != nil {
		return err
	}
	c.registry.SetRoom(snap.ID, svc.ID())
	log.Info().Str("module", "app.coordinator").Str("user", string(snap.ID)).Str("room", string(svc.ID())).Msg("joined room")
	return nil
}

// LeaveRoom removes the user from their current room. A departing host
// tears the whole room down: the room invariant keeps the host joined
// for the room's entire lifetime, so there is no host-less room state.
func (c *Coordinator) LeaveRoom(userID domain.UserID) Result {
	if userID == "" {
		return errResult(domain.ErrInvalidIdentity)
	}
	unlock := c.users.lock(userID)
	defer unlock()
	snap, err := c.registry.Lookup(userID)
	if err != nil {
		return errResult(err)
	}
	if snap.CurrentRoom == "" {
		return errResult(domain.ErrNoActiveRoom)
	}
	svc, ok := c.rooms.Get(snap.CurrentRoom)
	if !ok {
		c.registry.ClearRoom(userID, snap.CurrentRoom)
		return errResult(domain.ErrRoomNotFound)
	}
	if svc.Host() == userID {
		if err := c.DestroyRoom(snap.CurrentRoom); err != nil {
			return errResult(err)
		}
		return okResult("left room")
	}
	svc.RemoveParticipant(userID)
	c.registry.ClearRoom(userID, snap.CurrentRoom)
	return okResult("left room")
}

// DestroyRoom deregisters the room and performs full participant
// cleanup: broadcast group torn down, the host's controller pairing
// closed, every participant's room reference cleared, clock stopped.
func (c *Coordinator) DestroyRoom(roomID domain.RoomID) error {
	svc, ok := c.rooms.Remove(roomID)
	if !ok {
		return domain.ErrRoomNotFound
	}
	c.transport.EmitToGroup(svc.Group(), EventDestroyRoom, roomID)
	ids := svc.Close()
	// Unpair while the host still references the room; a pairing must
	// not outlive the room it was opened against.
	c.registry.Unpair(svc.Host())
	c.registry.ClearRoomAll(ids, roomID)
	log.Info().Str("module", "app.coordinator").Str("room", string(roomID)).Int("participants", len(ids)).Msg("room destroyed")
	return nil
}

// SoundEnded is the internal end-of-playback signal: the room's sound
// finished, so the room is done.
func (c *Coordinator) SoundEnded(roomID domain.RoomID) error {
	log.Info().Str("module", "app.coordinator").Str("room", string(roomID)).Msg("sound ended, destroying room")
	return c.DestroyRoom(roomID)
}

// PairController pairs a controller device connection to the room's
// host. On success the controller connection is in the room's broadcast
// group and the room hears about the pairing.
func (c *Coordinator) PairController(controllerID domain.ControllerID, roomID domain.RoomID, conn domain.ConnID) Result {
	if controllerID == "" {
		return errMessage("controllerId not found or provided")
	}
	if roomID == "" {
		return errMessage("roomId not found or provided")
	}
	svc, ok := c.rooms.Get(roomID)
	if !ok {
		return errResult(domain.ErrRoomNotFound)
	}
	host := svc.Host()
	if host == "" {
		return errResult(domain.ErrNoHost)
	}
	if err := svc.AttachConn(conn); err != nil {
		return errResult(err)
	}
	ctrl := domain.Controller{ID: controllerID, Owner: host, Conn: conn}
	if err := c.registry.Pair(host, ctrl); err != nil {
		svc.DetachConn(conn)
		return errResult(err)
	}
	c.transport.EmitToGroup(svc.Group(), EventControllerPaired, roomID)
	res := okResult(fmt.Sprintf("controller paired successfully to %s", roomID))
	res.RoomID = roomID
	return res
}

// UnpairController reports false when the user has no live pairing.
func (c *Coordinator) UnpairController(userID domain.UserID) bool {
	return c.registry.Unpair(userID)
}

// PlaySound starts (or resyncs) the playback clock of the user's room
// and broadcasts the position the room should be playing from.
func (c *Coordinator) PlaySound(userID domain.UserID) error {
	svc, err := c.roomOf(userID)
	if err != nil {
		return err
	}
	elapsed := svc.StartPlayback()
	c.transport.EmitToGroup(svc.Group(), EventStartSound, elapsed)
	log.Info().Str("module", "app.coordinator").Str("room", string(svc.ID())).Float64("elapsed", elapsed).Msg("start sound")
	return nil
}

// GetElapsedTime broadcasts the current playback position to the room.
func (c *Coordinator) GetElapsedTime(userID domain.UserID) error {
	svc, err := c.roomOf(userID)
	if err != nil {
		return err
	}
	c.transport.EmitToGroup(svc.Group(), EventElapsedTime, svc.CurrentPlaybackTime())
	return nil
}

// RoomsOfUser replies to the asking connection with the user's current
// room, if any.
func (c *Coordinator) RoomsOfUser(userID domain.UserID, conn domain.ConnID) error {
	snap, err := c.registry.Lookup(userID)
	if err != nil {
		return err
	}
	if snap.CurrentRoom == "" {
		return nil
	}
	c.transport.EmitToConn(conn, EventRoomsOfUser, snap.CurrentRoom)
	return nil
}

func (c *Coordinator) roomOf(userID domain.UserID) (*RoomService, error) {
	snap, err := c.registry.Lookup(userID)
	if err != nil {
		return nil, err
	}
	if snap.CurrentRoom == "" {
		return nil, domain.ErrRoomNotFound
	}
	svc, ok := c.rooms.Get(snap.CurrentRoom)
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	return svc, nil
}

// Fatal reports whether err must propagate instead of becoming a
// structured error result.
func Fatal(err error) bool {
	return errors.Is(err, domain.ErrUserResolutionTimeout)
}
