package client

import (
	"github.com/flexy/meet/internal/domain"
)

// MediaSource is the local capture handle. It must be acquired before the
// coordinator joins a room; stopping it releases every captured track.
type MediaSource interface {
	Stop()
}

// RemoteStream is an opaque handle to a remote participant's media, produced
// by a Link once negotiation completes.
type RemoteStream interface {
	ID() string
}

// Link is a direct media channel to one remote participant. Stream and close
// notifications arrive on the media layer's goroutines; the coordinator
// funnels them back onto its own loop.
type Link interface {
	// Peer is the remote descriptor: for an outbound link the callee, for an
	// inbound one the caller as labeled by the metadata it attached.
	Peer() domain.User
	// Answer accepts an inbound link with the local source. Only inbound
	// links are answerable.
	Answer(source MediaSource) error
	OnStream(func(RemoteStream))
	OnClose(func())
	Close()
}

// Dialer is the external media capability: it opens outbound links and
// surfaces inbound ones. Negotiation mechanics live behind it.
type Dialer interface {
	// Open initiates a link to remote, attaching meta so the far side can
	// label the resulting stream without a second round-trip.
	Open(remote domain.UserID, source MediaSource, meta domain.User) (Link, error)
	OnIncoming(func(Link))
}

// SignalHandler is implemented by dialers that negotiate through the
// signaling channel; the coordinator forwards relayed peer-signal events
// to it verbatim.
type SignalHandler interface {
	HandleSignal(from domain.User, kind, sdp string)
}

// RemoteLink pairs an established (or establishing) link with the remote
// descriptor and, once negotiated, the remote stream.
type RemoteLink struct {
	User   domain.User
	Link   Link
	Stream RemoteStream
}
