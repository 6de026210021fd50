// Command client is a headless room participant: it captures local media,
// joins a room on the signaling server and maintains direct links to every
// other member. Chat lines are read from stdin.
package main

import (
	"bufio"
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/flexy/meet/internal/adapters/media"
	"github.com/flexy/meet/internal/adapters/rtc"
	"github.com/flexy/meet/internal/client"
	"github.com/flexy/meet/internal/domain"
	"github.com/flexy/meet/internal/wire"
)

// signalExchange routes SDP through the signaling session's peer-signal
// relay.
type signalExchange struct {
	sess *client.Session
}

func (e signalExchange) SendOffer(to domain.UserID, meta domain.User, sdp string) error {
	return e.sess.SendSignal(wire.PeerSignal{To: to, From: meta, Kind: rtc.KindOffer, SDP: sdp})
}

func (e signalExchange) SendAnswer(to domain.UserID, meta domain.User, sdp string) error {
	return e.sess.SendSignal(wire.PeerSignal{To: to, From: meta, Kind: rtc.KindAnswer, SDP: sdp})
}

func main() {
	serverURL := pflag.String("server", "ws://localhost:8080/api/ws/signal", "signaling endpoint")
	room := pflag.String("room", "main", "room to join")
	name := pflag.String("name", "guest", "display name")
	debug := pflag.Bool("debug", false, "verbose logging")
	pflag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	user, err := domain.NewUser(*name)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid display name")
	}

	// Local media must exist before any join-room request goes out.
	source, err := media.Capture()
	if err != nil {
		log.Fatal().Err(err).Msg("cannot acquire local media")
	}

	sess, err := client.Dial(ctx, *serverURL)
	if err != nil {
		source.Stop()
		log.Fatal().Err(err).Msg("cannot reach signaling server")
	}

	api, err := source.WebRTCAPI()
	if err != nil {
		source.Stop()
		log.Fatal().Err(err).Msg("webrtc api")
	}
	dialer := rtc.NewDialer(api, rtc.DefaultConfig(), user, signalExchange{sess: sess})

	coord := client.NewCoordinator(user, source, dialer, sess)
	coord.Chat = func(payload string) {
		log.Info().Str("chat", payload).Msg("message")
	}
	coord.PeerUp = func(u domain.User) {
		log.Info().Str("peer", u.Name).Msg("peer linked")
	}
	coord.PeerDown = func(u domain.User) {
		log.Info().Str("peer", u.Name).Msg("peer gone")
	}

	if err := coord.Join(domain.RoomName(*room)); err != nil {
		source.Stop()
		log.Fatal().Err(err).Msg("join failed")
	}
	log.Info().Str("room", *room).Str("name", user.Name).Msg("joined")

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := scanner.Text()
			if line == "" {
				continue
			}
			if err := sess.SendMessage(line); err != nil {
				log.Warn().Err(err).Msg("send message")
				return
			}
		}
	}()

	coord.Run(ctx)
}
