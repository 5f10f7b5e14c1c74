package presence

import (
	"sync"

	"github.com/rs/zerolog/log"

	"campushub/pkg/types"
)

// Session is the presence view of one live connection: a stable id, the
// verified identity it is bound to, and an ordered, non-blocking push.
type Session interface {
	ID() string
	Identity() *types.Identity
	Send(event *types.ServerEvent) error
}

// bucket is one room's membership set. Each bucket has its own lock so
// joins, leaves and dispatch are mutually exclusive per room while
// traffic to unrelated rooms proceeds in parallel.
type bucket struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// Table maps rooms to their live sessions. Membership is derived at
// registration time from the session's identity (exactly the personal
// room and the role room) and nothing here is ever persisted.
type Table struct {
	mu      sync.RWMutex
	rooms   map[types.Room]*bucket
	members map[string][]types.Room // sessionID -> joined rooms
}

// NewTable creates an empty presence table.
func NewTable() *Table {
	return &Table{
		rooms:   make(map[types.Room]*bucket),
		members: make(map[string][]types.Room),
	}
}

// Register joins the session to its personal and role rooms. Multiple
// sessions of the same identity coexist; each is keyed by session id.
func (t *Table) Register(s Session) error {
	if s == nil {
		return ErrNilSession
	}
	identity := s.Identity()
	if identity == nil || !types.IsValidUserID(identity.ID) || !types.IsValidRole(identity.Role) {
		return ErrInvalidIdentity
	}

	rooms := []types.Room{types.UserRoom(identity.ID), types.RoleRoom(identity.Role)}

	t.mu.Lock()
	if _, exists := t.members[s.ID()]; exists {
		t.mu.Unlock()
		return ErrAlreadyRegistered
	}
	t.members[s.ID()] = rooms

	for _, room := range rooms {
		b := t.rooms[room]
		if b == nil {
			b = &bucket{sessions: make(map[string]Session)}
			t.rooms[room] = b
		}
		b.mu.Lock()
		b.sessions[s.ID()] = s
		b.mu.Unlock()
	}
	t.mu.Unlock()

	log.Debug().Str("session", s.ID()).Str("user", identity.ID).
		Str("role", identity.Role).Msg("session registered")
	return nil
}

// Unregister removes the session from every room it joined. Once this
// returns, the session receives nothing further; calling it again is a
// no-op.
func (t *Table) Unregister(s Session) {
	if s == nil {
		return
	}

	t.mu.Lock()
	rooms, exists := t.members[s.ID()]
	if !exists {
		t.mu.Unlock()
		return
	}
	delete(t.members, s.ID())

	for _, room := range rooms {
		b := t.rooms[room]
		if b == nil {
			continue
		}
		b.mu.Lock()
		delete(b.sessions, s.ID())
		empty := len(b.sessions) == 0
		b.mu.Unlock()
		if empty {
			delete(t.rooms, room)
		}
	}
	t.mu.Unlock()

	log.Debug().Str("session", s.ID()).Msg("session unregistered")
}

// Dispatch pushes an event to every session currently in the room and
// returns how many accepted it. Sessions are pushed to independently: a
// closed or saturated session is skipped, never retried. The bucket
// lock is held while enqueueing so events reach every member of a room
// in routing order.
func (t *Table) Dispatch(room types.Room, event *types.ServerEvent) int {
	if room == types.BroadcastAll {
		return t.Broadcast(event)
	}

	t.mu.RLock()
	b := t.rooms[room]
	t.mu.RUnlock()
	if b == nil {
		return 0
	}

	delivered := 0
	b.mu.Lock()
	for _, s := range b.sessions {
		if err := s.Send(event); err != nil {
			log.Debug().Err(err).Str("session", s.ID()).Str("room", string(room)).
				Msg("skipping undeliverable session")
			continue
		}
		delivered++
	}
	b.mu.Unlock()

	return delivered
}

// Broadcast dispatches to every role room, reaching all connected
// sessions without any session joining more than its two rooms.
func (t *Table) Broadcast(event *types.ServerEvent) int {
	delivered := 0
	for _, role := range types.AllRoles() {
		delivered += t.Dispatch(types.RoleRoom(role), event)
	}
	return delivered
}

// Rooms returns the rooms a session currently belongs to.
func (t *Table) Rooms(sessionID string) []types.Room {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rooms := t.members[sessionID]
	out := make([]types.Room, len(rooms))
	copy(out, rooms)
	return out
}

// Stats reports table size for health reporting.
func (t *Table) Stats() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return map[string]int{
		"live_sessions": len(t.members),
		"active_rooms":  len(t.rooms),
	}
}
