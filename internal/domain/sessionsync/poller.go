package sessionsync

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultPollInterval is the refresh cadence of an open view.
const DefaultPollInterval = 30 * time.Second

// Poller refreshes one unit on a fixed schedule while views are open.
type Poller struct {
	sync     *Synchronizer
	schedule cron.Schedule
	logger   zerolog.Logger
	kick     chan struct{}
}

func NewPoller(s *Synchronizer, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{
		sync:     s,
		schedule: cron.Every(interval),
		logger:   logger.With().Str("unit_id", s.UnitID()).Logger(),
		kick:     make(chan struct{}, 1),
	}
}

// Kick asks for an immediate refresh. It never blocks.
func (p *Poller) Kick() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run refreshes once right away, then on every scheduled tick, until ctx is
// done. Ticks are skipped while the unit has a draft pending.
func (p *Poller) Run(ctx context.Context) {
	p.logger.Debug().Msg("session poller started")
	defer p.logger.Debug().Msg("session poller stopped")

	p.refresh(ctx, true)
	for {
		now := time.Now()
		timer := time.NewTimer(p.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-p.kick:
			timer.Stop()
			p.refresh(ctx, true)
		case <-timer.C:
			p.refresh(ctx, false)
		}
	}
}

func (p *Poller) refresh(ctx context.Context, forced bool) {
	if !forced && p.sync.Suspended() {
		p.logger.Debug().Msg("draft open for a bed without session, skipping refresh")
		return
	}
	if _, err := p.sync.Refresh(ctx); err != nil && ctx.Err() == nil {
		p.logger.Warn().Err(err).Msg("scheduled refresh failed")
	}
}
