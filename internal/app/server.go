// Package app owns the signaling server's room-scoped coordination core:
// the session registry, the room broadcaster and the per-session protocol
// state machine driving them.
package app

import (
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/core"
	"github.com/flexy/meet/internal/domain"
	"github.com/flexy/meet/internal/wire"
)

var (
	ErrRoomRequired = errors.New("room required")
	ErrRoomNameLong = errors.New("room name too long")
)

// Server drives the session lifecycle: Connected -> InRoom -> Closed.
// Each method is safe for concurrent use; registry mutation is serialized
// inside the registry, broadcast ordering inside the broadcaster.
type Server struct {
	reg   *Registry
	bcast *Broadcaster
}

func NewServer(reg *Registry, bcast *Broadcaster) *Server {
	return &Server{reg: reg, bcast: bcast}
}

// Connect creates the session record for a fresh transport channel.
func (s *Server) Connect(sid core.SessionID, conn core.SignalConnection) error {
	return s.reg.Register(sid, conn)
}

// Join puts the session into room, announces it to the existing members and
// returns their descriptors for the joiner's snapshot reply. A session
// already in another room is moved; the old room hears a user-disconnected
// with the old descriptor before the new room hears user-connected.
// A malformed room name is rejected to the sender only: no broadcast, no
// state change.
func (s *Server) Join(sid core.SessionID, room domain.RoomName, user domain.User) ([]domain.User, error) {
	if room == "" {
		return nil, ErrRoomRequired
	}
	if len(room) > domain.MaxRoomNameLen {
		return nil, ErrRoomNameLong
	}

	others, vacated, err := s.reg.JoinRoom(sid, room, user)
	if err != nil {
		return nil, err
	}
	if vacated != nil {
		s.announceDeparture(*vacated)
	}

	if frame, err := wire.UserConnected(user); err == nil {
		s.bcast.Broadcast(room, frame, sid)
	} else {
		log.Error().Err(err).Str("module", "app.server").Msg("encode user-connected")
	}

	members := make([]domain.User, 0, len(others))
	for _, m := range others {
		members = append(members, m.User)
	}
	return members, nil
}

// Message fans payload out to the session's current room as createMessage,
// sender included, so the sender's view stays consistent with everyone
// else's without local-echo logic. A session not in a room is a no-op.
func (s *Server) Message(sid core.SessionID, payload string) {
	room, ok := s.reg.RoomOf(sid)
	if !ok {
		log.Debug().Str("module", "app.server").Str("sid", string(sid)).Msg("message outside room dropped")
		return
	}
	frame, err := wire.CreateMessage(payload)
	if err != nil {
		log.Error().Err(err).Str("module", "app.server").Msg("encode createMessage")
		return
	}
	s.bcast.Broadcast(room, frame, "")
}

// Signal relays an opaque negotiation payload to one participant in the
// sender's room. Unknown targets and sessions outside a room are dropped;
// the server never inspects the payload.
func (s *Server) Signal(sid core.SessionID, sig wire.PeerSignal) {
	room, ok := s.reg.RoomOf(sid)
	if !ok {
		return
	}
	target, ok := s.reg.FindInRoom(room, sig.To)
	if !ok {
		log.Debug().Str("module", "app.server").Str("room", string(room)).
			Str("to", string(sig.To)).Msg("peer-signal target not in room")
		return
	}
	frame, err := wire.Encode(sig)
	if err != nil {
		log.Error().Err(err).Str("module", "app.server").Msg("encode peer-signal")
		return
	}
	if err := target.Conn.TrySend(frame); err != nil {
		metricDeliveryDrops.Inc()
		log.Warn().Err(err).Str("module", "app.server").Str("sid", string(target.SID)).Msg("peer-signal dropped")
	}
}

// Disconnect removes the session and, when it was in a room, announces the
// departure to every remaining member. No further events are processed for
// the session afterwards.
func (s *Server) Disconnect(sid core.SessionID) {
	dep := s.reg.Remove(sid)
	if dep != nil {
		s.announceDeparture(*dep)
	}
}

// Rooms exposes the live room listing for the HTTP API.
func (s *Server) Rooms() []RoomInfo {
	return s.reg.Rooms()
}

func (s *Server) announceDeparture(dep Departure) {
	frame, err := wire.UserDisconnected(dep.User)
	if err != nil {
		log.Error().Err(err).Str("module", "app.server").Msg("encode user-disconnected")
		return
	}
	s.bcast.Broadcast(dep.Room, frame, "")
}
