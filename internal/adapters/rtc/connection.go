// Package rtc implements the client's media capability with pion. Offers
// and answers travel through the Exchange seam; the adapter never touches
// the room protocol itself.
package rtc

import (
	"errors"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/client"
	"github.com/flexy/meet/internal/domain"
)

const (
	KindOffer  = "offer"
	KindAnswer = "answer"
)

var ErrNotAnswerable = errors.New("link is not inbound")

// Exchange carries session descriptions to a remote participant. The
// signaling session satisfies it via peer-signal relay.
type Exchange interface {
	SendOffer(to domain.UserID, meta domain.User, sdp string) error
	SendAnswer(to domain.UserID, meta domain.User, sdp string) error
}

// TrackSource exposes captured local tracks for attachment; the media
// capture source satisfies it.
type TrackSource interface {
	Tracks() []mediadevices.Track
}

func DefaultConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	}
}

// Dialer opens outbound peer links and surfaces inbound ones decoded from
// relayed peer-signal events.
type Dialer struct {
	api      *webrtc.API
	cfg      webrtc.Configuration
	self     domain.User
	exchange Exchange

	mu         sync.Mutex
	links      map[domain.UserID]*PeerLink
	onIncoming func(client.Link)
}

func NewDialer(api *webrtc.API, cfg webrtc.Configuration, self domain.User, ex Exchange) *Dialer {
	return &Dialer{
		api:      api,
		cfg:      cfg,
		self:     self,
		exchange: ex,
		links:    make(map[domain.UserID]*PeerLink),
	}
}

func (d *Dialer) OnIncoming(fn func(client.Link)) {
	d.mu.Lock()
	d.onIncoming = fn
	d.mu.Unlock()
}

// Open initiates an outbound link: local tracks attached, non-trickle offer
// sent through the exchange. The returned link produces its stream once the
// remote answer lands.
func (d *Dialer) Open(remote domain.UserID, source client.MediaSource, meta domain.User) (client.Link, error) {
	pc, err := d.newPeerConnection()
	if err != nil {
		return nil, err
	}
	link := newPeerLink(pc, domain.User{ID: remote}, d, false)
	link.start()

	attachTracks(pc, source)

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		link.Close()
		return nil, err
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		link.Close()
		return nil, err
	}
	<-gathered

	if err := d.exchange.SendOffer(remote, meta, pc.LocalDescription().SDP); err != nil {
		link.Close()
		return nil, err
	}

	d.mu.Lock()
	d.links[remote] = link
	d.mu.Unlock()
	return link, nil
}

// HandleSignal routes a relayed negotiation payload: offers become inbound
// links handed to OnIncoming, answers complete pending outbound links.
func (d *Dialer) HandleSignal(from domain.User, kind, sdp string) {
	switch kind {
	case KindOffer:
		d.handleOffer(from, sdp)
	case KindAnswer:
		d.handleAnswer(from, sdp)
	default:
		log.Warn().Str("module", "rtc").Str("kind", kind).Msg("unknown signal kind")
	}
}

func (d *Dialer) handleOffer(from domain.User, sdp string) {
	pc, err := d.newPeerConnection()
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("new pc")
		return
	}
	link := newPeerLink(pc, from, d, true)
	link.start()

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(from.ID)).Msg("apply offer")
		link.Close()
		return
	}

	d.mu.Lock()
	d.links[from.ID] = link
	fn := d.onIncoming
	d.mu.Unlock()
	if fn != nil {
		fn(link)
	}
}

func (d *Dialer) handleAnswer(from domain.User, sdp string) {
	d.mu.Lock()
	link := d.links[from.ID]
	d.mu.Unlock()
	if link == nil {
		log.Warn().Str("module", "rtc").Str("peer", string(from.ID)).Msg("answer without pending offer")
		return
	}
	if err := link.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		log.Error().Err(err).Str("module", "rtc").Str("peer", string(from.ID)).Msg("apply answer")
	}
}

func (d *Dialer) newPeerConnection() (*webrtc.PeerConnection, error) {
	if d.api != nil {
		return d.api.NewPeerConnection(d.cfg)
	}
	return webrtc.NewPeerConnection(d.cfg)
}

func (d *Dialer) forget(peer domain.UserID, link *PeerLink) {
	d.mu.Lock()
	if d.links[peer] == link {
		delete(d.links, peer)
	}
	d.mu.Unlock()
}

// attachTracks adds captured local tracks, falling back to recvonly
// transceivers so the SDP still carries valid m-lines without capture.
func attachTracks(pc *webrtc.PeerConnection, source client.MediaSource) {
	if ts, ok := source.(TrackSource); ok {
		for _, track := range ts.Tracks() {
			if _, err := pc.AddTrack(track); err != nil {
				log.Error().Err(err).Str("module", "rtc").Msg("add track")
			}
		}
		return
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		if _, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("add transceiver")
		}
	}
}
