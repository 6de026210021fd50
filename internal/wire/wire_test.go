package wire

import (
	"encoding/json"
	"testing"

	"github.com/flexy/meet/internal/domain"
)

// The field names are the protocol; a renamed json tag would silently break
// every deployed client.
func TestFrameShapes(t *testing.T) {
	u := domain.User{ID: "u1", Name: "Ada"}

	frame, err := UserConnected(u)
	if err != nil {
		t.Fatal(err)
	}
	var m map[string]any
	if err := json.Unmarshal(frame, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != TypeUserConnected {
		t.Fatalf("type = %v", m["type"])
	}
	user, ok := m["user"].(map[string]any)
	if !ok || user["id"] != "u1" || user["name"] != "Ada" {
		t.Fatalf("user = %v", m["user"])
	}

	frame, err = CreateMessage("hi")
	if err != nil {
		t.Fatal(err)
	}
	m = nil
	if err := json.Unmarshal(frame, &m); err != nil {
		t.Fatal(err)
	}
	if m["type"] != TypeCreateMessage || m["payload"] != "hi" {
		t.Fatalf("createMessage frame = %v", m)
	}
}

func TestEnvelopeDiscriminates(t *testing.T) {
	raw := []byte(`{"type":"join-room","room":"main","user":{"id":"u1","name":"Ada"}}`)

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatal(err)
	}
	if env.Type != TypeJoinRoom {
		t.Fatalf("type = %q", env.Type)
	}

	var req JoinRoom
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatal(err)
	}
	if req.Room != "main" || req.User.ID != "u1" {
		t.Fatalf("join = %+v", req)
	}
}
