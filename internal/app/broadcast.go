package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/flexy/meet/internal/core"
	"github.com/flexy/meet/internal/domain"
)

// Broadcaster fans one event out to every session currently in a room.
// Delivery is per-recipient and best-effort: a closed or slow transport is
// logged and counted, never surfaced to the caller. One mutex spans the
// snapshot and the enqueue loop, so events the server processes sequentially
// for a room start their delivery in that same order; TrySend never blocks,
// so a stalled recipient cannot hold the lock.
type Broadcaster struct {
	mu  sync.Mutex
	reg *Registry
}

func NewBroadcaster(reg *Registry) *Broadcaster {
	return &Broadcaster{reg: reg}
}

// Broadcast delivers frame to every member of room, skipping exclude when
// non-empty. Returns the number of successful deliveries.
func (b *Broadcaster) Broadcast(room domain.RoomName, frame core.Frame, exclude core.SessionID) int {
	b.mu.Lock()
	members := b.reg.SnapshotRoom(room, exclude)
	sent := 0
	for _, m := range members {
		if err := m.Conn.TrySend(frame); err != nil {
			metricDeliveryDrops.Inc()
			log.Warn().Err(err).Str("module", "app.broadcast").
				Str("room", string(room)).Str("sid", string(m.SID)).Msg("delivery dropped")
			continue
		}
		metricDeliveries.Inc()
		sent++
	}
	b.mu.Unlock()

	metricBroadcasts.Inc()
	log.Debug().Str("module", "app.broadcast").Str("room", string(room)).
		Int("sent", sent).Int("members", len(members)).Msg("broadcast")
	return sent
}
