package client

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/flexy/meet/internal/domain"
	"github.com/flexy/meet/internal/wire"
)

type fakeSource struct {
	mu      sync.Mutex
	stopped int
}

func (s *fakeSource) Stop() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
}

func (s *fakeSource) stops() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

type fakeStream struct{ id string }

func (s fakeStream) ID() string { return s.id }

type fakeLink struct {
	mu       sync.Mutex
	peer     domain.User
	answered int
	closed   int
	onStream func(RemoteStream)
	onClose  func()

	answerErr error
}

func (l *fakeLink) Peer() domain.User { return l.peer }

func (l *fakeLink) Answer(MediaSource) error {
	l.mu.Lock()
	l.answered++
	l.mu.Unlock()
	return l.answerErr
}

func (l *fakeLink) OnStream(fn func(RemoteStream)) { l.onStream = fn }
func (l *fakeLink) OnClose(fn func())              { l.onClose = fn }

func (l *fakeLink) Close() {
	l.mu.Lock()
	l.closed++
	l.mu.Unlock()
}

func (l *fakeLink) closes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

type fakeDialer struct {
	mu       sync.Mutex
	opened   []domain.UserID
	metas    []domain.User
	links    []*fakeLink
	openErr  error
	incoming func(Link)
}

func (d *fakeDialer) Open(remote domain.UserID, _ MediaSource, meta domain.User) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.openErr != nil {
		return nil, d.openErr
	}
	l := &fakeLink{peer: domain.User{ID: remote}}
	d.opened = append(d.opened, remote)
	d.metas = append(d.metas, meta)
	d.links = append(d.links, l)
	return l, nil
}

func (d *fakeDialer) OnIncoming(fn func(Link)) { d.incoming = fn }

func (d *fakeDialer) lastLink(t *testing.T) *fakeLink {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.links) == 0 {
		t.Fatal("no link opened")
	}
	return d.links[len(d.links)-1]
}

// signalDialer additionally records relayed negotiation payloads.
type signalDialer struct {
	fakeDialer
	signals []wire.PeerSignal
}

func (d *signalDialer) HandleSignal(from domain.User, kind, sdp string) {
	d.signals = append(d.signals, wire.PeerSignal{From: from, Kind: kind, SDP: sdp})
}

type fakeSignaling struct {
	mu     sync.Mutex
	events chan Event
	joined []domain.RoomName
	closed int
}

func newFakeSignaling() *fakeSignaling {
	return &fakeSignaling{events: make(chan Event, 8)}
}

func (s *fakeSignaling) Events() <-chan Event { return s.events }

func (s *fakeSignaling) Join(room domain.RoomName, _ domain.User) error {
	s.mu.Lock()
	s.joined = append(s.joined, room)
	s.mu.Unlock()
	return nil
}

func (s *fakeSignaling) Close() error {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
	return nil
}

func (s *fakeSignaling) closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func newTestCoordinator() (*Coordinator, *fakeSource, *fakeDialer, *fakeSignaling) {
	src := &fakeSource{}
	d := &fakeDialer{}
	sig := newFakeSignaling()
	c := NewCoordinator(domain.User{ID: "me", Name: "Me"}, src, d, sig)
	return c, src, d, sig
}

// drain pumps queued notices through the loop handler on the test goroutine.
func drain(c *Coordinator) {
	for {
		select {
		case n := <-c.notify:
			c.handleNotice(n)
		default:
			return
		}
	}
}

func TestJoinRequiresMediaSource(t *testing.T) {
	d := &fakeDialer{}
	sig := newFakeSignaling()
	c := NewCoordinator(domain.User{ID: "me"}, nil, d, sig)
	if err := c.Join("main"); !errors.Is(err, ErrNoMediaSource) {
		t.Fatalf("want ErrNoMediaSource, got %v", err)
	}
	if len(sig.joined) != 0 {
		t.Fatal("join-room sent without a media source")
	}
}

func TestPeerConnectedDialsWithOwnDescriptor(t *testing.T) {
	c, _, d, _ := newTestCoordinator()
	var up []domain.User
	c.PeerUp = func(u domain.User) { up = append(up, u) }

	c.handleEvent(Event{Type: wire.TypeUserConnected, User: domain.User{ID: "peer1", Name: "P"}})

	if len(d.opened) != 1 || d.opened[0] != "peer1" {
		t.Fatalf("opened = %v", d.opened)
	}
	if d.metas[0].ID != "me" {
		t.Fatalf("dial metadata = %v", d.metas[0])
	}
	if _, ok := c.links["peer1"]; !ok {
		t.Fatal("link not tracked")
	}
	if len(up) != 1 || up[0].ID != "peer1" {
		t.Fatalf("PeerUp = %v", up)
	}
}

func TestDialFailureLeavesNoEntry(t *testing.T) {
	c, _, d, _ := newTestCoordinator()
	d.openErr = errors.New("ice gathering failed")

	c.handleEvent(Event{Type: wire.TypeUserConnected, User: domain.User{ID: "peer1"}})

	if len(c.links) != 0 {
		t.Fatalf("links = %v", c.links)
	}
}

func TestIncomingLinkAnswered(t *testing.T) {
	c, _, d, _ := newTestCoordinator()

	in := &fakeLink{peer: domain.User{ID: "caller", Name: "C"}}
	d.incoming(in)
	drain(c)

	if in.answered != 1 {
		t.Fatalf("answered = %d", in.answered)
	}
	entry, ok := c.links["caller"]
	if !ok || entry.Link != Link(in) {
		t.Fatal("inbound link not tracked")
	}
}

func TestIncomingAnswerFailureClosesLink(t *testing.T) {
	c, _, d, _ := newTestCoordinator()

	in := &fakeLink{peer: domain.User{ID: "caller"}, answerErr: errors.New("no codecs")}
	d.incoming(in)
	drain(c)

	if in.closes() != 1 {
		t.Fatalf("closes = %d", in.closes())
	}
	if len(c.links) != 0 {
		t.Fatal("failed link left tracked")
	}
}

func TestPeerDisconnectedClosesLink(t *testing.T) {
	c, _, d, _ := newTestCoordinator()
	var down []domain.User
	c.PeerDown = func(u domain.User) { down = append(down, u) }

	peer := domain.User{ID: "peer1"}
	c.handleEvent(Event{Type: wire.TypeUserConnected, User: peer})
	link := d.lastLink(t)

	c.handleEvent(Event{Type: wire.TypeUserDisconnected, User: peer})

	if link.closes() != 1 {
		t.Fatalf("closes = %d", link.closes())
	}
	if len(c.links) != 0 {
		t.Fatal("departed link left tracked")
	}
	if len(down) != 1 || down[0].ID != "peer1" {
		t.Fatalf("PeerDown = %v", down)
	}

	// Second disconnect for the same peer is harmless.
	c.handleEvent(Event{Type: wire.TypeUserDisconnected, User: peer})
	if link.closes() != 1 {
		t.Fatal("idempotent drop closed the link again")
	}
}

func TestDuplicatePeerLastEstablishedWins(t *testing.T) {
	c, _, d, _ := newTestCoordinator()

	peer := domain.User{ID: "peer1"}
	c.handleEvent(Event{Type: wire.TypeUserConnected, User: peer})
	first := d.lastLink(t)
	c.handleEvent(Event{Type: wire.TypeUserConnected, User: peer})
	second := d.lastLink(t)

	if first.closes() != 1 {
		t.Fatalf("first link closes = %d", first.closes())
	}
	entry := c.links["peer1"]
	if entry == nil || entry.Link != Link(second) {
		t.Fatal("second link not the tracked one")
	}
	if len(c.links) != 1 {
		t.Fatalf("links = %d", len(c.links))
	}
}

func TestStreamAttachesToTrackedLink(t *testing.T) {
	c, _, d, _ := newTestCoordinator()

	peer := domain.User{ID: "peer1"}
	c.handleEvent(Event{Type: wire.TypeUserConnected, User: peer})
	link := d.lastLink(t)

	link.onStream(fakeStream{id: "stream-1"})
	drain(c)

	entry := c.links["peer1"]
	if entry == nil || entry.Stream == nil || entry.Stream.ID() != "stream-1" {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestStreamAfterDepartureClosesLink(t *testing.T) {
	c, _, d, _ := newTestCoordinator()

	peer := domain.User{ID: "peer1"}
	c.handleEvent(Event{Type: wire.TypeUserConnected, User: peer})
	link := d.lastLink(t)

	// Departure first, then the late stream notification from the media layer.
	c.handleEvent(Event{Type: wire.TypeUserDisconnected, User: peer})
	link.onStream(fakeStream{id: "late"})
	drain(c)

	if link.closes() != 2 {
		t.Fatalf("closes = %d, want drop + late-stream close", link.closes())
	}
	if len(c.links) != 0 {
		t.Fatal("departed peer re-tracked by late stream")
	}
}

func TestNaturalCloseRemovesEntry(t *testing.T) {
	c, _, d, _ := newTestCoordinator()

	peer := domain.User{ID: "peer1"}
	c.handleEvent(Event{Type: wire.TypeUserConnected, User: peer})
	link := d.lastLink(t)

	link.onClose()
	drain(c)

	if len(c.links) != 0 {
		t.Fatal("closed link left tracked")
	}
}

func TestChatHookReceivesPayload(t *testing.T) {
	c, _, _, _ := newTestCoordinator()
	var got []string
	c.Chat = func(p string) { got = append(got, p) }

	c.handleEvent(Event{Type: wire.TypeCreateMessage, Payload: "hello"})

	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("chat = %v", got)
	}
}

func TestPeerSignalForwardedToDialer(t *testing.T) {
	src := &fakeSource{}
	d := &signalDialer{}
	sig := newFakeSignaling()
	c := NewCoordinator(domain.User{ID: "me"}, src, d, sig)

	c.handleEvent(Event{
		Type: wire.TypePeerSignal,
		User: domain.User{ID: "peer1", Name: "P"},
		Kind: "offer",
		SDP:  "v=0",
	})

	if len(d.signals) != 1 {
		t.Fatalf("signals = %v", d.signals)
	}
	s := d.signals[0]
	if s.From.ID != "peer1" || s.Kind != "offer" || s.SDP != "v=0" {
		t.Fatalf("forwarded = %+v", s)
	}
}

func TestRunTeardownReleasesEverything(t *testing.T) {
	c, src, d, sig := newTestCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	sig.events <- Event{Type: wire.TypeUserConnected, User: domain.User{ID: "peer1"}}

	// Wait for the loop to establish the link.
	deadline := time.After(2 * time.Second)
	for {
		d.mu.Lock()
		n := len(d.links)
		d.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("link never established")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if got := d.lastLink(t).closes(); got != 1 {
		t.Fatalf("link closes = %d", got)
	}
	if src.stops() != 1 {
		t.Fatalf("source stops = %d", src.stops())
	}
	if sig.closes() != 1 {
		t.Fatalf("signaling closes = %d", sig.closes())
	}
}

func TestLinkSurfacingAfterTeardownIsClosed(t *testing.T) {
	c, _, d, _ := newTestCoordinator()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	// Fill the notice buffer so post falls through to the done branch.
	for i := 0; i < cap(c.notify); i++ {
		c.notify <- notice{}
	}
	late := &fakeLink{peer: domain.User{ID: "straggler"}}
	d.incoming(late)

	if late.closes() != 1 {
		t.Fatalf("straggler closes = %d", late.closes())
	}
}
