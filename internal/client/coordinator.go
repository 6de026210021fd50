// Package client implements the participant side of the signaling protocol:
// a websocket session against the server and the coordinator that turns
// membership events into direct media links.
package client

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/domain"
	"github.com/flexy/meet/internal/wire"
)

var ErrNoMediaSource = errors.New("no local media source acquired")

// Event is one decoded server-to-client signaling message.
type Event struct {
	Type    string
	User    domain.User   // user-connected, user-disconnected, peer-signal sender
	Payload string        // createMessage
	Members []domain.User // room-state
	Kind    string        // peer-signal
	SDP     string        // peer-signal
}

// Signaling is the coordinator's view of the server session.
type Signaling interface {
	Events() <-chan Event
	Join(room domain.RoomName, user domain.User) error
	Close() error
}

type noticeKind int

const (
	noticeIncoming noticeKind = iota
	noticeStream
	noticeClosed
)

// notice funnels asynchronous media-layer callbacks onto the loop goroutine.
type notice struct {
	kind   noticeKind
	user   domain.User
	link   Link
	stream RemoteStream
}

// Coordinator is the per-participant connection state machine. All mutation
// of its links map happens on the Run goroutine; transport and media
// notifications are funneled in through channels, so no lock is needed.
type Coordinator struct {
	self   domain.User
	source MediaSource
	dialer Dialer
	sig    Signaling

	links  map[domain.UserID]*RemoteLink
	notify chan notice
	done   chan struct{}

	// Optional hooks, set before Run. Invoked on the loop goroutine.
	Chat     func(payload string)
	PeerUp   func(user domain.User)
	PeerDown func(user domain.User)
}

// NewCoordinator wires the coordinator to an already-acquired media source.
func NewCoordinator(self domain.User, source MediaSource, dialer Dialer, sig Signaling) *Coordinator {
	c := &Coordinator{
		self:   self,
		source: source,
		dialer: dialer,
		sig:    sig,
		links:  make(map[domain.UserID]*RemoteLink),
		notify: make(chan notice, 32),
		done:   make(chan struct{}),
	}
	dialer.OnIncoming(func(l Link) {
		c.post(notice{kind: noticeIncoming, user: l.Peer(), link: l})
	})
	return c
}

// Join emits the join-room request. The local source must already be
// acquired; joining without one is a programming error surfaced here rather
// than as a broken room presence.
func (c *Coordinator) Join(room domain.RoomName) error {
	if c.source == nil {
		return ErrNoMediaSource
	}
	return c.sig.Join(room, c.self)
}

// Run consumes signaling events and media notifications until ctx is done or
// the signaling channel closes, then tears everything down.
func (c *Coordinator) Run(ctx context.Context) {
	defer c.teardown()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-c.sig.Events():
			if !ok {
				return
			}
			c.handleEvent(ev)
		case n := <-c.notify:
			c.handleNotice(n)
		}
	}
}

// post hands a media notification to the loop. After teardown the loop is
// gone; a link surfacing then is closed on the spot so nothing leaks.
func (c *Coordinator) post(n notice) {
	select {
	case c.notify <- n:
	case <-c.done:
		if n.link != nil {
			n.link.Close()
		}
	}
}

func (c *Coordinator) handleEvent(ev Event) {
	switch ev.Type {
	case wire.TypeUserConnected:
		c.dial(ev.User)
	case wire.TypeUserDisconnected:
		c.drop(ev.User)
	case wire.TypeCreateMessage:
		if c.Chat != nil {
			c.Chat(ev.Payload)
		}
	case wire.TypeRoomState:
		log.Info().Str("module", "client.coordinator").Int("members", len(ev.Members)).Msg("room snapshot")
	case wire.TypePeerSignal:
		if sh, ok := c.dialer.(SignalHandler); ok {
			sh.HandleSignal(ev.User, ev.Kind, ev.SDP)
		}
	default:
		log.Debug().Str("module", "client.coordinator").Str("type", ev.Type).Msg("ignored event")
	}
}

func (c *Coordinator) handleNotice(n notice) {
	switch n.kind {
	case noticeIncoming:
		c.accept(n.user, n.link)
	case noticeStream:
		c.attach(n.user, n.link, n.stream)
	case noticeClosed:
		// Natural closure may race a user-disconnected that already removed
		// the entry; both orders are harmless.
		if entry, ok := c.links[n.user.ID]; ok && entry.Link == n.link {
			delete(c.links, n.user.ID)
			log.Info().Str("module", "client.coordinator").Str("peer", string(n.user.ID)).Msg("link closed")
		}
	}
}

// dial initiates an outbound link on user-connected, attaching our own
// descriptor so the remote side can label the stream.
func (c *Coordinator) dial(user domain.User) {
	link, err := c.dialer.Open(user.ID, c.source, c.self)
	if err != nil {
		log.Error().Err(err).Str("module", "client.coordinator").
			Str("peer", string(user.ID)).Msg("outbound link failed")
		return
	}
	c.track(user, link)
	if c.PeerUp != nil {
		c.PeerUp(user)
	}
}

// accept answers an inbound link with the local source.
func (c *Coordinator) accept(user domain.User, link Link) {
	if err := link.Answer(c.source); err != nil {
		log.Error().Err(err).Str("module", "client.coordinator").
			Str("peer", string(user.ID)).Msg("answer failed")
		link.Close()
		return
	}
	c.track(user, link)
	if c.PeerUp != nil {
		c.PeerUp(user)
	}
}

// track registers the link's notifications and inserts its entry, replacing
// (and closing) any previous link for the same peer.
func (c *Coordinator) track(user domain.User, link Link) {
	link.OnStream(func(s RemoteStream) {
		c.post(notice{kind: noticeStream, user: user, link: link, stream: s})
	})
	link.OnClose(func() {
		c.post(notice{kind: noticeClosed, user: user, link: link})
	})
	if old, ok := c.links[user.ID]; ok && old.Link != link {
		old.Link.Close()
	}
	c.links[user.ID] = &RemoteLink{User: user, Link: link}
}

// attach records a negotiated stream. Last-established wins for duplicate
// peers; a stream for a peer that already departed is torn down immediately.
func (c *Coordinator) attach(user domain.User, link Link, stream RemoteStream) {
	entry, ok := c.links[user.ID]
	switch {
	case !ok:
		log.Warn().Str("module", "client.coordinator").
			Str("peer", string(user.ID)).Msg("stream for departed peer, closing")
		link.Close()
	case entry.Link == link:
		entry.Stream = stream
	default:
		entry.Link.Close()
		c.links[user.ID] = &RemoteLink{User: user, Link: link, Stream: stream}
	}
}

// drop removes and closes the link on user-disconnected. An absent entry is
// a no-op: the link may have closed naturally first.
func (c *Coordinator) drop(user domain.User) {
	if entry, ok := c.links[user.ID]; ok {
		entry.Link.Close()
		delete(c.links, user.ID)
	}
	if c.PeerDown != nil {
		c.PeerDown(user)
	}
}

// teardown closes every link, stops the source and disconnects signaling.
// The three steps are independent; one failing never skips the others.
func (c *Coordinator) teardown() {
	close(c.done)
	for id, entry := range c.links {
		entry.Link.Close()
		delete(c.links, id)
	}
	if c.source != nil {
		c.source.Stop()
	}
	if err := c.sig.Close(); err != nil {
		log.Warn().Err(err).Str("module", "client.coordinator").Msg("signaling close")
	}
	log.Info().Str("module", "client.coordinator").Msg("torn down")
}
