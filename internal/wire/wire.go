// Package wire defines the JSON envelopes exchanged over the signaling
// channel. Both the server controller and the client session decode from and
// encode into these types, so the two sides cannot drift apart.
package wire

import (
	"encoding/json"

	"github.com/flexy/meet/internal/core"
	"github.com/flexy/meet/internal/domain"
)

// Client to server.
const (
	TypeJoinRoom = "join-room"
	TypeMessage  = "message"
)

// Server to client.
const (
	TypeRoomState        = "room-state"
	TypeUserConnected    = "user-connected"
	TypeUserDisconnected = "user-disconnected"
	TypeCreateMessage    = "createMessage"
	TypeError            = "error"
)

// Both directions: targeted media negotiation payloads relayed between two
// room members. The server never inspects SDP.
const TypePeerSignal = "peer-signal"

// Envelope carries only the discriminator; handlers re-unmarshal the full
// payload once the type is known.
type Envelope struct {
	Type string `json:"type"`
}

type JoinRoom struct {
	Type string          `json:"type"`
	Room domain.RoomName `json:"room"`
	User domain.User     `json:"user"`
}

type ChatMessage struct {
	Type    string `json:"type"`
	Payload string `json:"payload"`
}

type RoomState struct {
	Type    string          `json:"type"`
	Room    domain.RoomName `json:"room"`
	Members []domain.User   `json:"members"`
	Count   int             `json:"count"`
}

// UserEvent announces a membership change; Type is TypeUserConnected or
// TypeUserDisconnected.
type UserEvent struct {
	Type string      `json:"type"`
	User domain.User `json:"user"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// PeerSignal is an opaque negotiation message from one participant to
// another in the same room. Kind is defined by the media layer
// (e.g. "offer", "answer").
type PeerSignal struct {
	Type string        `json:"type"`
	To   domain.UserID `json:"to"`
	From domain.User   `json:"from"`
	Kind string        `json:"kind"`
	SDP  string        `json:"sdp"`
}

func Encode(v any) (core.Frame, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return core.Frame(b), nil
}

func UserConnected(u domain.User) (core.Frame, error) {
	return Encode(UserEvent{Type: TypeUserConnected, User: u})
}

func UserDisconnected(u domain.User) (core.Frame, error) {
	return Encode(UserEvent{Type: TypeUserDisconnected, User: u})
}

func CreateMessage(payload string) (core.Frame, error) {
	return Encode(ChatMessage{Type: TypeCreateMessage, Payload: payload})
}
