package presence

import (
	"context"
	"time"

	"github.com/weiawesome/wes-io-community/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-community/chat-service/internal/metrics"
	"github.com/weiawesome/wes-io-community/pkg/log"
)

// ConnectionSource lists the connections joined on this process.
type ConnectionSource interface {
	Snapshot() []hub.ClientRooms
}

// Sweeper periodically renews presence for live local connections and then
// deletes rows nobody renewed, which covers processes that died without
// running disconnect cleanup.
type Sweeper struct {
	tracker    *Tracker
	source     ConnectionSource
	interval   time.Duration
	staleAfter time.Duration
}

func NewSweeper(tracker *Tracker, source ConnectionSource, interval, staleAfter time.Duration) *Sweeper {
	return &Sweeper{
		tracker:    tracker,
		source:     source,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

// Run ticks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	l := log.L()
	l.Info().Dur("interval", s.interval).Dur("stale_after", s.staleAfter).Msg("presence sweeper started")

	for {
		select {
		case <-ctx.Done():
			l.Info().Msg("presence sweeper stopped")
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one renew-then-sweep pass and returns the number of rows swept.
func (s *Sweeper) Tick(ctx context.Context) int64 {
	l := log.L()

	if s.source != nil {
		for _, conn := range s.source.Snapshot() {
			for _, room := range conn.Rooms {
				// The snapshot may be older than a concurrent leave.
				if _, err := s.tracker.Touch(ctx, room, conn.UserID, conn.ConnectionID); err != nil {
					l.Warn().Err(err).
						Str(log.FieldConnectionID, conn.ConnectionID).
						Str(log.FieldCommunityID, room).
						Msg("failed to renew presence")
				}
			}
		}
	}

	n, err := s.tracker.SweepStale(ctx, s.staleAfter)
	if err != nil {
		l.Error().Err(err).Msg("presence sweep failed")
		return 0
	}
	if n > 0 {
		metrics.PresenceSwept.Add(float64(n))
		l.Info().Int64("removed", n).Msg("swept stale presence")
	}
	return n
}
