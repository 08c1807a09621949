package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

func newTestRegistry(t *testing.T) (*Registry, *RoomManager, *fakeTransport) {
	t.Helper()
	tr := newFakeTransport()
	rooms := NewRoomManager(tr)
	return NewRegistry(rooms, tr), rooms, tr
}

func TestRegistry_ResolveOrCreate_ReplacesConnections(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	first, err := reg.ResolveOrCreate("u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnID{"c1"}, first.Connections)

	second, err := reg.ResolveOrCreate("u1", "c2")
	require.NoError(t, err)
	assert.Equal(t, []domain.ConnID{"c2"}, second.Connections, "new connection replaces the set, it is not appended")
}

func TestRegistry_ResolveOrCreate_EmptyID(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.ResolveOrCreate("", "c1")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)
}

func TestRegistry_Lookup(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	_, err := reg.Lookup("")
	assert.ErrorIs(t, err, domain.ErrInvalidIdentity)

	_, err = reg.Lookup("nobody")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = reg.ResolveOrCreate("u1", "c1")
	require.NoError(t, err)

	snap, err := reg.Lookup("u1")
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u1"), snap.ID)
}

func TestRegistry_Reconnect_RejoinsRoomAndUnpairs(t *testing.T) {
	reg, rooms, tr := newTestRegistry(t)
	group := core.RoomGroup("R1")

	_, err := reg.ResolveOrCreate("u1", "c1")
	require.NoError(t, err)

	svc, err := rooms.Create("R1", "u1")
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant("u1", []domain.ConnID{"c1"}))
	require.True(t, reg.SetRoom("u1", "R1"))

	require.NoError(t, svc.AttachConn("ctrl-conn"))
	require.NoError(t, reg.Pair("u1", domain.Controller{ID: "ctl1", Owner: "u1", Conn: "ctrl-conn"}))

	snap, err := reg.ResolveOrCreate("u1", "c2")
	require.NoError(t, err)

	assert.Equal(t, domain.RoomID("R1"), snap.CurrentRoom, "reconnect keeps the room")
	assert.True(t, tr.inGroup(group, "c2"), "fresh connection rejoined to the room group")
	assert.False(t, tr.inGroup(group, "c1"), "stale connection evicted from the room group")

	assert.False(t, snap.Paired, "stale controller pairing invalidated on reconnect")
	assert.False(t, tr.inGroup(group, "ctrl-conn"))
	assert.Contains(t, tr.closedConns(), domain.ConnID("ctrl-conn"))
}

func TestRegistry_Unpair_NoController(t *testing.T) {
	reg, _, tr := newTestRegistry(t)

	assert.False(t, reg.Unpair("ghost"), "unknown user")

	_, err := reg.ResolveOrCreate("u1", "c1")
	require.NoError(t, err)
	assert.False(t, reg.Unpair("u1"), "user without controller")
	assert.Empty(t, tr.closedConns())
}

func TestRegistry_Pair_ReplacesPrevious(t *testing.T) {
	reg, rooms, tr := newTestRegistry(t)

	_, err := reg.ResolveOrCreate("u1", "c1")
	require.NoError(t, err)
	svc, err := rooms.Create("R1", "u1")
	require.NoError(t, err)
	require.NoError(t, svc.AddParticipant("u1", []domain.ConnID{"c1"}))
	reg.SetRoom("u1", "R1")

	require.NoError(t, svc.AttachConn("old-ctrl"))
	require.NoError(t, reg.Pair("u1", domain.Controller{ID: "a", Owner: "u1", Conn: "old-ctrl"}))
	require.NoError(t, svc.AttachConn("new-ctrl"))
	require.NoError(t, reg.Pair("u1", domain.Controller{ID: "b", Owner: "u1", Conn: "new-ctrl"}))

	assert.Contains(t, tr.closedConns(), domain.ConnID("old-ctrl"), "previous pairing implicitly unpaired")
	assert.True(t, tr.inGroup(core.RoomGroup("R1"), "new-ctrl"))

	assert.True(t, reg.Unpair("u1"))
	assert.False(t, reg.Unpair("u1"), "exactly one unpair succeeds per live pairing")
}
