package app

import (
	"sync"

	"github.com/daxaudio/dax-server/internal/core"
	"github.com/daxaudio/dax-server/internal/domain"
)

type emitCall struct {
	Group   core.GroupID
	Conn    domain.ConnID
	Event   core.Event
	Payload any
}

// fakeTransport records emissions and tracks group membership the way
// the websocket hub does, without any sockets.
type fakeTransport struct {
	mu     sync.Mutex
	groups map[core.GroupID]map[domain.ConnID]struct{}
	emits  []emitCall
	closed []domain.ConnID
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{groups: make(map[core.GroupID]map[domain.ConnID]struct{})}
}

func (f *fakeTransport) EmitToConn(conn domain.ConnID, event core.Event, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emitCall{Conn: conn, Event: event, Payload: payload})
}

func (f *fakeTransport) EmitToGroup(group core.GroupID, event core.Event, payload any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emits = append(f.emits, emitCall{Group: group, Event: event, Payload: payload})
}

func (f *fakeTransport) JoinGroup(conn domain.ConnID, group core.GroupID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.groups[group]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		f.groups[group] = members
	}
	members[conn] = struct{}{}
}

func (f *fakeTransport) LeaveGroup(conn domain.ConnID, group core.GroupID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if members, ok := f.groups[group]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(f.groups, group)
		}
	}
}

func (f *fakeTransport) CloseConn(conn domain.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, conn)
}

func (f *fakeTransport) inGroup(group core.GroupID, conn domain.ConnID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.groups[group][conn]
	return ok
}

func (f *fakeTransport) groupSize(group core.GroupID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.groups[group])
}

func (f *fakeTransport) groupEmits(group core.GroupID, event core.Event) []emitCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []emitCall
	for _, e := range f.emits {
		if e.Group == group && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeTransport) closedConns() []domain.ConnID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.ConnID(nil), f.closed...)
}
