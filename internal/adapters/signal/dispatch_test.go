package signal

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/flexy/meet/internal/app"
	"github.com/flexy/meet/internal/config"
	"github.com/flexy/meet/internal/core"
	"github.com/flexy/meet/internal/domain"
	"github.com/flexy/meet/internal/wire"
)

func newTestController() *Controller {
	reg := app.NewRegistry()
	srv := app.NewServer(reg, app.NewBroadcaster(reg))
	return NewController(srv, &config.Config{
		JoinLimit:    8,
		JoinInterval: time.Minute,
		SendBuffer:   8,
	})
}

// loopConn is a wsConn without a transport; frames land in the send buffer.
func loopConn() *wsConn {
	return &wsConn{send: make(chan core.Frame, 8)}
}

func recvFrame(t *testing.T, c *wsConn, v any) {
	t.Helper()
	select {
	case frame := <-c.send:
		if err := json.Unmarshal(frame, v); err != nil {
			t.Fatalf("decode %q: %v", frame, err)
		}
	default:
		t.Fatal("no frame queued")
	}
}

func TestDispatchJoinRepliesWithRoomState(t *testing.T) {
	ctl := newTestController()
	c := loopConn()
	_ = ctl.Srv.Connect("s1", c)

	ctl.handle("s1", c, []byte(`{"type":"join-room","room":"main","user":{"id":"u1","name":"Ada"}}`))

	var state wire.RoomState
	recvFrame(t, c, &state)
	if state.Type != wire.TypeRoomState || state.Room != "main" {
		t.Fatalf("reply = %+v", state)
	}
	if len(state.Members) != 0 || state.Count != 1 {
		t.Fatalf("first joiner state = %+v", state)
	}
}

func TestDispatchJoinEmptyRoomRejected(t *testing.T) {
	ctl := newTestController()
	c := loopConn()
	_ = ctl.Srv.Connect("s1", c)

	ctl.handle("s1", c, []byte(`{"type":"join-room","room":"","user":{"id":"u1","name":"Ada"}}`))

	var e wire.Error
	recvFrame(t, c, &e)
	if e.Type != wire.TypeError || e.Error != "room required" {
		t.Fatalf("reply = %+v", e)
	}
	if rooms := ctl.Srv.Rooms(); len(rooms) != 0 {
		t.Fatalf("rejected join created room: %v", rooms)
	}
}

func TestDispatchJoinRateLimited(t *testing.T) {
	ctl := newTestController()
	ctl.Limiter = NewJoinRateLimiter(1, time.Minute)
	c := loopConn()
	_ = ctl.Srv.Connect("s1", c)

	join := []byte(`{"type":"join-room","room":"main","user":{"id":"u1","name":"Ada"}}`)
	ctl.handle("s1", c, join)
	<-c.send // room-state
	ctl.handle("s1", c, join)

	var e wire.Error
	recvFrame(t, c, &e)
	if e.Type != wire.TypeError || e.Error != "too_many_joins" {
		t.Fatalf("reply = %+v", e)
	}
}

func TestDispatchMessageFansOut(t *testing.T) {
	ctl := newTestController()
	c1, c2 := loopConn(), loopConn()
	_ = ctl.Srv.Connect("s1", c1)
	_ = ctl.Srv.Connect("s2", c2)
	ctl.handle("s1", c1, []byte(`{"type":"join-room","room":"main","user":{"id":"u1","name":"Ada"}}`))
	ctl.handle("s2", c2, []byte(`{"type":"join-room","room":"main","user":{"id":"u2","name":"Bob"}}`))
	for len(c1.send) > 0 {
		<-c1.send
	}
	for len(c2.send) > 0 {
		<-c2.send
	}

	ctl.handle("s1", c1, []byte(`{"type":"message","payload":"hi"}`))

	for _, c := range []*wsConn{c1, c2} {
		var msg wire.ChatMessage
		recvFrame(t, c, &msg)
		if msg.Type != wire.TypeCreateMessage || msg.Payload != "hi" {
			t.Fatalf("fanout = %+v", msg)
		}
	}
}

func TestDispatchPeerSignalRelayed(t *testing.T) {
	ctl := newTestController()
	c1, c2 := loopConn(), loopConn()
	_ = ctl.Srv.Connect("s1", c1)
	_ = ctl.Srv.Connect("s2", c2)
	ctl.handle("s1", c1, []byte(`{"type":"join-room","room":"main","user":{"id":"u1","name":"Ada"}}`))
	ctl.handle("s2", c2, []byte(`{"type":"join-room","room":"main","user":{"id":"u2","name":"Bob"}}`))
	for len(c1.send) > 0 {
		<-c1.send
	}
	for len(c2.send) > 0 {
		<-c2.send
	}

	ctl.handle("s1", c1, []byte(`{"type":"peer-signal","to":"u2","from":{"id":"u1","name":"Ada"},"kind":"offer","sdp":"v=0"}`))

	var sig wire.PeerSignal
	recvFrame(t, c2, &sig)
	if sig.To != domain.UserID("u2") || sig.From.ID != "u1" || sig.Kind != "offer" {
		t.Fatalf("relayed = %+v", sig)
	}
	if len(c1.send) != 0 {
		t.Fatal("sender received its own signal")
	}
}

func TestDispatchIgnoresGarbage(t *testing.T) {
	ctl := newTestController()
	c := loopConn()
	_ = ctl.Srv.Connect("s1", c)

	ctl.handle("s1", c, []byte(`not json`))
	ctl.handle("s1", c, []byte(`{"type":"no-such-type"}`))

	if len(c.send) != 0 {
		t.Fatal("garbage produced a reply")
	}
}
