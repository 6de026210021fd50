// Package media acquires the local camera/microphone source with
// pion/mediadevices. Capture is platform-gated; on unsupported platforms
// Capture fails and the client must not join.
package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// Source wraps the captured tracks. It satisfies client.MediaSource and
// rtc.TrackSource.
type Source struct {
	tracks   []mediadevices.Track
	selector *mediadevices.CodecSelector
}

func (s *Source) Tracks() []mediadevices.Track { return s.tracks }

// Stop releases every captured track. Safe to call with zero tracks.
func (s *Source) Stop() {
	for _, t := range s.tracks {
		if err := t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("track", t.ID()).Msg("track close")
		}
	}
	s.tracks = nil
}

// WebRTCAPI builds a pion API whose media engine knows the capture codecs,
// so the captured tracks can be attached to peer connections directly.
func (s *Source) WebRTCAPI() (*webrtc.API, error) {
	engine := &webrtc.MediaEngine{}
	s.selector.Populate(engine)

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(
		webrtc.WithMediaEngine(engine),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

func newCodecSelector() (*mediadevices.CodecSelector, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 1_500_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	return mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	), nil
}
