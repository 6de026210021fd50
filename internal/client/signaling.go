package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/core"
	"github.com/flexy/meet/internal/domain"
	"github.com/flexy/meet/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var ErrSessionClosed = errors.New("signaling session closed")

// Session is the client side of the signaling channel: one websocket with
// read/write pumps and a typed event stream for the coordinator.
type Session struct {
	conn   *websocket.Conn
	events chan Event
	out    chan core.Frame
	done   chan struct{}
	once   sync.Once
}

// Dial connects to the signaling endpoint and starts the pumps.
func Dial(ctx context.Context, serverURL string) (*Session, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, serverURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	s := &Session{
		conn:   conn,
		events: make(chan Event, 16),
		out:    make(chan core.Frame, 16),
		done:   make(chan struct{}),
	}

	conn.SetReadLimit(maxMessageSize)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go s.readPump()
	go s.writePump()
	return s, nil
}

// Events delivers decoded server messages in arrival order. The channel
// closes when the transport does.
func (s *Session) Events() <-chan Event { return s.events }

// Join emits the join-room request with the participant descriptor.
func (s *Session) Join(room domain.RoomName, user domain.User) error {
	return s.send(wire.JoinRoom{Type: wire.TypeJoinRoom, Room: room, User: user})
}

// SendMessage emits a chat payload for full-room fanout.
func (s *Session) SendMessage(payload string) error {
	return s.send(wire.ChatMessage{Type: wire.TypeMessage, Payload: payload})
}

// SendSignal relays a negotiation payload to one room member.
func (s *Session) SendSignal(sig wire.PeerSignal) error {
	sig.Type = wire.TypePeerSignal
	return s.send(sig)
}

func (s *Session) Close() error {
	s.once.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
	return nil
}

func (s *Session) send(v any) error {
	frame, err := wire.Encode(v)
	if err != nil {
		return err
	}
	select {
	case s.out <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) readPump() {
	defer func() {
		_ = s.Close()
		close(s.events)
	}()

	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			log.Info().Err(err).Str("module", "client.signaling").Msg("read loop ended")
			return
		}
		ev, ok := decodeEvent(data)
		if !ok {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
			return
		}
	}
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.Close()
	}()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case frame := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Warn().Err(err).Str("module", "client.signaling").Msg("write failed")
				return
			}
		}
	}
}

func decodeEvent(data []byte) (Event, bool) {
	var env wire.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "client.signaling").Msg("bad frame")
		return Event{}, false
	}

	switch env.Type {
	case wire.TypeRoomState:
		var p wire.RoomState
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false
		}
		return Event{Type: env.Type, Members: p.Members}, true
	case wire.TypeUserConnected, wire.TypeUserDisconnected:
		var p wire.UserEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false
		}
		return Event{Type: env.Type, User: p.User}, true
	case wire.TypeCreateMessage:
		var p wire.ChatMessage
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false
		}
		return Event{Type: env.Type, Payload: p.Payload}, true
	case wire.TypePeerSignal:
		var p wire.PeerSignal
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false
		}
		return Event{Type: env.Type, User: p.From, Kind: p.Kind, SDP: p.SDP}, true
	case wire.TypeError:
		var p wire.Error
		if err := json.Unmarshal(data, &p); err != nil {
			return Event{}, false
		}
		log.Warn().Str("module", "client.signaling").Str("error", p.Error).Msg("server rejected request")
		return Event{Type: env.Type, Payload: p.Error}, true
	default:
		log.Debug().Str("module", "client.signaling").Str("type", env.Type).Msg("unknown frame")
		return Event{}, false
	}
}
