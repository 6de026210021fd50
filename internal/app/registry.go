package app

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/core"
	"github.com/flexy/meet/internal/domain"
)

var (
	ErrSessionExists  = errors.New("session already registered")
	ErrSessionUnknown = errors.New("unknown session")
)

type sessionEntry struct {
	conn core.SignalConnection
	room domain.RoomName
	user domain.User
}

// Member is a point-in-time snapshot of one room member.
type Member struct {
	SID  core.SessionID
	User domain.User
	Conn core.SignalConnection
}

// Departure reports the room a session vacated, with the descriptor it
// carried there, so the caller can announce the egress.
type Departure struct {
	Room domain.RoomName
	User domain.User
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"member_count"`
}

// Registry is the process-wide session table plus the room reverse index.
// Both are mutated under one mutex so they can never diverge, even across
// concurrent joins and disconnects. This is the only cross-session shared
// mutable state in the server.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	rooms    map[domain.RoomName]map[core.SessionID]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		rooms:    make(map[domain.RoomName]map[core.SessionID]struct{}),
	}
}

// Register creates a session with no room. A duplicate sid is a programmer
// error on the transport side and is rejected.
func (r *Registry) Register(sid core.SessionID, conn core.SignalConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; ok {
		return ErrSessionExists
	}
	r.sessions[sid] = &sessionEntry{conn: conn}
	metricSessions.Inc()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("session registered")
	return nil
}

// JoinRoom assigns room and descriptor to the session and returns the other
// members already there. A session already in another room is moved: the
// vacated room is reported so the caller can broadcast the implicit leave.
func (r *Registry) JoinRoom(sid core.SessionID, room domain.RoomName, user domain.User) ([]Member, *Departure, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return nil, nil, ErrSessionUnknown
	}

	var vacated *Departure
	if entry.room != "" && entry.room != room {
		vacated = &Departure{Room: entry.room, User: entry.user}
		r.dropFromIndex(sid, entry.room)
	}

	others := r.membersLocked(room, sid)
	entry.room = room
	entry.user = user
	idx, ok := r.rooms[room]
	if !ok {
		idx = make(map[core.SessionID]struct{})
		r.rooms[room] = idx
		metricRooms.Inc()
	}
	idx[sid] = struct{}{}

	log.Info().Str("module", "app.registry").Str("sid", string(sid)).
		Str("room", string(room)).Str("user", string(user.ID)).Msg("joined room")
	return others, vacated, nil
}

// Leave clears the room assignment. Leaving with no room is a no-op.
func (r *Registry) Leave(sid core.SessionID) *Departure {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.room == "" {
		return nil
	}
	dep := &Departure{Room: entry.room, User: entry.user}
	r.dropFromIndex(sid, entry.room)
	entry.room = ""
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).
		Str("room", string(dep.Room)).Msg("left room")
	return dep
}

// Remove deletes the session entirely, implying Leave.
func (r *Registry) Remove(sid core.SessionID) *Departure {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.sessions[sid]
	if !ok {
		return nil
	}
	var dep *Departure
	if entry.room != "" {
		dep = &Departure{Room: entry.room, User: entry.user}
		r.dropFromIndex(sid, entry.room)
	}
	delete(r.sessions, sid)
	metricSessions.Dec()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("session removed")
	return dep
}

// MembersOf returns a point-in-time snapshot of the session ids in room.
func (r *Registry) MembersOf(room domain.RoomName) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0, len(r.rooms[room]))
	for sid := range r.rooms[room] {
		out = append(out, sid)
	}
	return out
}

// SnapshotRoom returns the members of room, skipping exclude if non-empty.
func (r *Registry) SnapshotRoom(room domain.RoomName, exclude core.SessionID) []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.membersLocked(room, exclude)
}

// RoomOf reports the session's current room, if any.
func (r *Registry) RoomOf(sid core.SessionID) (domain.RoomName, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[sid]
	if !ok || entry.room == "" {
		return "", false
	}
	return entry.room, true
}

// FindInRoom locates a member of room by participant id.
func (r *Registry) FindInRoom(room domain.RoomName, id domain.UserID) (Member, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for sid := range r.rooms[room] {
		if e := r.sessions[sid]; e != nil && e.user.ID == id {
			return Member{SID: sid, User: e.user, Conn: e.conn}, true
		}
	}
	return Member{}, false
}

// Rooms lists live rooms with their member counts.
func (r *Registry) Rooms() []RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RoomInfo, 0, len(r.rooms))
	for name, idx := range r.rooms {
		out = append(out, RoomInfo{Name: name, MemberCount: len(idx)})
	}
	return out
}

func (r *Registry) membersLocked(room domain.RoomName, exclude core.SessionID) []Member {
	idx := r.rooms[room]
	out := make([]Member, 0, len(idx))
	for sid := range idx {
		if sid == exclude {
			continue
		}
		e := r.sessions[sid]
		out = append(out, Member{SID: sid, User: e.user, Conn: e.conn})
	}
	return out
}

// dropFromIndex removes sid from room's index entry, deleting the entry when
// the last member is gone. Callers hold r.mu.
func (r *Registry) dropFromIndex(sid core.SessionID, room domain.RoomName) {
	idx, ok := r.rooms[room]
	if !ok {
		return
	}
	delete(idx, sid)
	if len(idx) == 0 {
		delete(r.rooms, room)
		metricRooms.Dec()
	}
}
