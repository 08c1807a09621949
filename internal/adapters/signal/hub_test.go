package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

type fakeSender struct {
	frames [][]byte
	closed bool
	err    error
}

func (f *fakeSender) TrySend(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, data)
	return nil
}

func (f *fakeSender) Close() { f.closed = true }

func (f *fakeSender) envelopes(t *testing.T) []Envelope {
	t.Helper()
	out := make([]Envelope, 0, len(f.frames))
	for _, frame := range f.frames {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func TestHub_EmitToConn(t *testing.T) {
	h := NewHub()
	s := &fakeSender{}
	h.Add("c1", s)

	h.EmitToConn("c1", "start-sound", 2.5)
	h.EmitToConn("nobody", "start-sound", 2.5)

	envs := s.envelopes(t)
	require.Len(t, envs, 1)
	assert.Equal(t, "start-sound", envs[0].Type)
	assert.Equal(t, "2.5", string(envs[0].Data))
}

func TestHub_EmitToGroup(t *testing.T) {
	h := NewHub()
	in1, in2, out := &fakeSender{}, &fakeSender{}, &fakeSender{}
	h.Add("c1", in1)
	h.Add("c2", in2)
	h.Add("c3", out)

	group := core.RoomGroup("R1")
	h.JoinGroup("c1", group)
	h.JoinGroup("c2", group)

	h.EmitToGroup(group, "destroy-room", "R1")

	require.Len(t, in1.frames, 1)
	require.Len(t, in2.frames, 1)
	assert.Empty(t, out.frames, "non-members hear nothing")
	assert.JSONEq(t, `{"type":"destroy-room","data":"R1"}`, string(in1.frames[0]))
}

func TestHub_EmitToGroup_SkipsDeadSender(t *testing.T) {
	h := NewHub()
	ok, dead := &fakeSender{}, &fakeSender{err: ErrBackpressure}
	h.Add("c1", ok)
	h.Add("c2", dead)

	group := core.RoomGroup("R1")
	h.JoinGroup("c1", group)
	h.JoinGroup("c2", group)

	h.EmitToGroup(group, "elapsed-time", 1.0)

	assert.Len(t, ok.frames, 1, "one stalled member must not block the rest")
}

func TestHub_EmitToAll(t *testing.T) {
	h := NewHub()
	s1, s2 := &fakeSender{}, &fakeSender{}
	h.Add("c1", s1)
	h.Add("c2", s2)

	h.EmitToAll("is-phone-supported", map[string]bool{"supported": true})

	assert.Len(t, s1.frames, 1)
	assert.Len(t, s2.frames, 1)
}

func TestHub_LeaveGroup(t *testing.T) {
	h := NewHub()
	s := &fakeSender{}
	h.Add("c1", s)

	group := core.RoomGroup("R1")
	h.JoinGroup("c1", group)
	require.Equal(t, 1, h.GroupSize(group))

	h.LeaveGroup("c1", group)
	assert.Equal(t, 0, h.GroupSize(group))

	h.EmitToGroup(group, "start-sound", 0.0)
	assert.Empty(t, s.frames)

	groups, conns := h.Stats()
	assert.Equal(t, 0, groups, "empty groups are dropped from the table")
	assert.Equal(t, 1, conns)
}

func TestHub_Remove(t *testing.T) {
	h := NewHub()
	s := &fakeSender{}
	h.Add("c1", s)
	h.JoinGroup("c1", core.RoomGroup("R1"))
	h.JoinGroup("c1", core.RoomGroup("R2"))

	h.Remove("c1")

	groups, conns := h.Stats()
	assert.Equal(t, 0, groups)
	assert.Equal(t, 0, conns)
	assert.False(t, s.closed, "remove forgets the connection but does not close it")
}

func TestHub_CloseConn(t *testing.T) {
	h := NewHub()
	s, other := &fakeSender{}, &fakeSender{}
	h.Add("c1", s)
	h.Add("c2", other)
	group := core.RoomGroup("R1")
	h.JoinGroup("c1", group)
	h.JoinGroup("c2", group)

	h.CloseConn("c1")

	assert.True(t, s.closed)
	assert.Equal(t, 1, h.GroupSize(group))
	h.EmitToConn("c1", "ping", nil)
	assert.Empty(t, s.frames)

	h.CloseConn("c1")
	assert.False(t, other.closed, "double close is a no-op for everyone else")
}

func TestWsConn_Backpressure(t *testing.T) {
	c := NewWsConn("c1", nil)

	for i := 0; i < cap(c.send); i++ {
		require.NoError(t, c.TrySend([]byte("x")))
	}
	assert.ErrorIs(t, c.TrySend([]byte("overflow")), ErrBackpressure)

	var id domain.ConnID = "c1"
	assert.Equal(t, id, c.ID())
}
