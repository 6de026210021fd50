package signal

import (
	"encoding/json"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/app"
	"github.com/flexy/meet/internal/core"
	"github.com/flexy/meet/internal/wire"
)

func (ctl *Controller) handleJoin(sid core.SessionID, c *wsConn, data []byte) {
	var p wire.JoinRoom
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad join payload")
		ctl.sendError(c, "bad_payload")
		return
	}
	if !ctl.Limiter.Allow(sid) {
		log.Warn().Str("module", "signal").Str("sid", string(sid)).Msg("join rate limited")
		ctl.sendError(c, "too_many_joins")
		return
	}

	members, err := ctl.Srv.Join(sid, p.Room, p.User)
	switch {
	case errors.Is(err, app.ErrRoomRequired):
		ctl.sendError(c, "room required")
		return
	case errors.Is(err, app.ErrRoomNameLong):
		ctl.sendError(c, "room name too long")
		return
	case err != nil:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("join")
		ctl.sendError(c, "join failed")
		return
	}

	log.Info().Str("module", "signal").Str("sid", string(sid)).
		Str("room", string(p.Room)).Msg("join")

	// Snapshot reply seeds the joiner's roster with everyone already there.
	ctl.sendJSON(c, wire.RoomState{
		Type:    wire.TypeRoomState,
		Room:    p.Room,
		Members: members,
		Count:   len(members) + 1,
	})
}

func (ctl *Controller) handleMessage(sid core.SessionID, data []byte) {
	var p wire.ChatMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad message payload")
		return
	}
	ctl.Srv.Message(sid, p.Payload)
}

func (ctl *Controller) handlePeerSignal(sid core.SessionID, data []byte) {
	var p wire.PeerSignal
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("bad peer-signal payload")
		return
	}
	ctl.Srv.Signal(sid, p)
}
