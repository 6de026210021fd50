package rtc

import (
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/client"
	"github.com/flexy/meet/internal/domain"
)

// remoteStream labels the remote media by its SDP stream id.
type remoteStream struct {
	id string
}

func (s remoteStream) ID() string { return s.id }

// PeerLink implements client.Link over one pion PeerConnection. Only
// inbound links are answerable; Answer routes the answer SDP back through
// the dialer's exchange.
type PeerLink struct {
	pc      *webrtc.PeerConnection
	peer    domain.User
	dialer  *Dialer
	inbound bool

	mu       sync.Mutex
	onStream func(client.RemoteStream)
	onClose  func()
	pending  *remoteStream
	closed   bool
}

func newPeerLink(pc *webrtc.PeerConnection, peer domain.User, dialer *Dialer, inbound bool) *PeerLink {
	return &PeerLink{pc: pc, peer: peer, dialer: dialer, inbound: inbound}
}

func (l *PeerLink) Peer() domain.User { return l.peer }

// start wires the PeerConnection callbacks. Remote tracks surface as the
// link's stream; a failed or closed connection surfaces as closure.
func (l *PeerLink) start() {
	l.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Info().Str("module", "rtc").Str("peer", string(l.peer.ID)).
			Str("kind", track.Kind().String()).Str("stream_id", track.StreamID()).Msg("remote track")
		l.deliver(remoteStream{id: track.StreamID()})
	})

	l.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer", string(l.peer.ID)).
			Str("state", s.String()).Msg("peer state")
		if s == webrtc.PeerConnectionStateFailed || s == webrtc.PeerConnectionStateClosed {
			l.notifyClosed()
		}
	})
}

// Answer accepts an inbound link: attach the local source, produce a
// non-trickle answer and relay it back to the caller.
func (l *PeerLink) Answer(source client.MediaSource) error {
	if !l.inbound {
		return ErrNotAnswerable
	}
	attachTracks(l.pc, source)

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return err
	}
	gathered := webrtc.GatheringCompletePromise(l.pc)
	if err := l.pc.SetLocalDescription(answer); err != nil {
		return err
	}
	<-gathered

	return l.dialer.exchange.SendAnswer(l.peer.ID, l.dialer.self, l.pc.LocalDescription().SDP)
}

// OnStream registers the stream callback; a stream that arrived before
// registration is delivered immediately.
func (l *PeerLink) OnStream(fn func(client.RemoteStream)) {
	l.mu.Lock()
	l.onStream = fn
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	if pending != nil && fn != nil {
		fn(*pending)
	}
}

func (l *PeerLink) OnClose(fn func()) {
	l.mu.Lock()
	l.onClose = fn
	l.mu.Unlock()
}

func (l *PeerLink) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	if err := l.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(l.peer.ID)).Msg("close error")
	}
	l.dialer.forget(l.peer.ID, l)
}

func (l *PeerLink) deliver(s remoteStream) {
	l.mu.Lock()
	fn := l.onStream
	if fn == nil {
		l.pending = &s
	}
	l.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

func (l *PeerLink) notifyClosed() {
	l.mu.Lock()
	fn := l.onClose
	l.mu.Unlock()
	if fn != nil {
		fn()
	}
}
