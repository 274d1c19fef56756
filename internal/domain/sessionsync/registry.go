package sessionsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/scp/internal/domain/evaluation"
)

// DefaultViewIdleTimeout is how long a view lease survives without a touch.
const DefaultViewIdleTimeout = 5 * time.Minute

var ErrUnknownView = errors.New("unknown view")

type Options struct {
	PollInterval    time.Duration
	ViewIdleTimeout time.Duration
}

type unitState struct {
	sync     *Synchronizer
	poller   *Poller
	views    map[string]time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	lastUsed time.Time
}

// Registry owns one Synchronizer per unit and runs its poller while the
// unit has open views. It is the evaluation engine's Directory.
type Registry struct {
	fetch  Fetcher
	store  SnapshotStore
	opts   Options
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.Mutex
	base  context.Context
	units map[string]*unitState
}

var _ evaluation.Directory = (*Registry)(nil)

func NewRegistry(fetch Fetcher, store SnapshotStore, opts Options, logger zerolog.Logger) *Registry {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ViewIdleTimeout <= 0 {
		opts.ViewIdleTimeout = DefaultViewIdleTimeout
	}
	if store == nil {
		store = NewMemoryStore()
	}
	return &Registry{
		fetch:  fetch,
		store:  store,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		base:   context.Background(),
		units:  make(map[string]*unitState),
	}
}

// Start binds pollers to ctx and reaps idle views until ctx is done.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	r.base = ctx
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(r.opts.ViewIdleTimeout / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Reap()
			}
		}
	}()
}

// Stop halts every running poller and waits for them.
func (r *Registry) Stop() {
	r.mu.Lock()
	var waiting []chan struct{}
	for _, u := range r.units {
		if u.cancel != nil {
			u.cancel()
			waiting = append(waiting, u.done)
			u.cancel, u.done, u.poller = nil, nil, nil
		}
	}
	r.mu.Unlock()
	for _, done := range waiting {
		<-done
	}
}

// Unit returns the unit's synchronizer, creating it on first use.
func (r *Registry) Unit(unitID string) *Synchronizer {
	r.mu.Lock()
	u, created := r.unitLocked(unitID)
	ctx := r.base
	r.mu.Unlock()
	if created {
		u.sync.Warm(ctx)
	}
	return u.sync
}

// unitLocked returns the unit's state and whether it was just created. A new
// synchronizer is warmed by the caller once r.mu is released.
func (r *Registry) unitLocked(unitID string) (*unitState, bool) {
	now := r.now()
	u, ok := r.units[unitID]
	if ok {
		u.lastUsed = now
		return u, false
	}
	u = &unitState{
		sync:     NewSynchronizer(unitID, r.fetch, r.store, r.logger),
		views:    make(map[string]time.Time),
		lastUsed: now,
	}
	r.units[unitID] = u
	return u, true
}

// OpenView leases a view on the unit. The first lease starts polling; every
// lease triggers an immediate refresh.
func (r *Registry) OpenView(unitID string) string {
	viewID := uuid.New().String()

	r.mu.Lock()
	u, created := r.unitLocked(unitID)
	base := r.base
	u.views[viewID] = r.now()
	if u.poller == nil {
		ctx, cancel := context.WithCancel(r.base)
		u.poller = NewPoller(u.sync, r.opts.PollInterval, r.logger)
		u.cancel = cancel
		u.done = make(chan struct{})
		go func(p *Poller, done chan struct{}) {
			defer close(done)
			p.Run(ctx)
		}(u.poller, u.done)
	} else {
		u.poller.Kick()
	}
	n := len(u.views)
	r.mu.Unlock()

	if created {
		u.sync.Warm(base)
	}
	r.logger.Debug().Str("unit_id", unitID).Str("view_id", viewID).Int("views", n).Msg("view opened")
	return viewID
}

// Touch renews a view lease.
func (r *Registry) Touch(unitID, viewID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[unitID]
	if !ok {
		return ErrUnknownView
	}
	if _, ok := u.views[viewID]; !ok {
		return ErrUnknownView
	}
	u.views[viewID] = r.now()
	return nil
}

// CloseView ends a lease. Closing the last one stops the unit's poller.
func (r *Registry) CloseView(unitID, viewID string) error {
	r.mu.Lock()
	u, ok := r.units[unitID]
	if !ok {
		r.mu.Unlock()
		return ErrUnknownView
	}
	if _, ok := u.views[viewID]; !ok {
		r.mu.Unlock()
		return ErrUnknownView
	}
	delete(u.views, viewID)
	done := r.stopIfIdleLocked(u)
	r.mu.Unlock()

	if done != nil {
		<-done
	}
	r.logger.Debug().Str("unit_id", unitID).Str("view_id", viewID).Msg("view closed")
	return nil
}

// Reap drops leases not touched within the idle timeout and drafts older
// than it. A unit left with no lease, draft or poller, and unused for the
// idle timeout, is forgotten.
func (r *Registry) Reap() {
	cutoff := r.now().Add(-r.opts.ViewIdleTimeout)

	r.mu.Lock()
	var waiting []chan struct{}
	for unitID, u := range r.units {
		for viewID, seen := range u.views {
			if seen.Before(cutoff) {
				delete(u.views, viewID)
				r.logger.Info().Str("unit_id", unitID).Str("view_id", viewID).Msg("idle view reaped")
			}
		}
		if n := u.sync.ExpireDrafts(cutoff); n > 0 {
			r.logger.Info().Str("unit_id", unitID).Int("drafts", n).Msg("stale drafts expired")
		}
		if done := r.stopIfIdleLocked(u); done != nil {
			waiting = append(waiting, done)
		}
		if len(u.views) == 0 && u.cancel == nil && !u.sync.HasDrafts() && u.lastUsed.Before(cutoff) {
			delete(r.units, unitID)
			r.logger.Debug().Str("unit_id", unitID).Msg("idle unit dropped")
		}
	}
	r.mu.Unlock()

	for _, done := range waiting {
		<-done
	}
}

func (r *Registry) stopIfIdleLocked(u *unitState) chan struct{} {
	if len(u.views) > 0 || u.cancel == nil {
		return nil
	}
	u.cancel()
	done := u.done
	u.cancel, u.done, u.poller = nil, nil, nil
	return done
}

// Polling reports whether the unit's poller is running.
func (r *Registry) Polling(unitID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.units[unitID]
	return ok && u.poller != nil
}

// ActiveSessions refreshes the unit and returns its active list.
func (r *Registry) ActiveSessions(ctx context.Context, unitID string) ([]*evaluation.Session, error) {
	return r.Unit(unitID).Refresh(ctx)
}

func (r *Registry) Track(s *evaluation.Session) {
	if s == nil {
		return
	}
	if s.UnitID == "" {
		r.logger.Warn().Str("session_id", s.ID).Msg("cannot track session without unit")
		return
	}
	r.Unit(s.UnitID).Track(s)
}

// Lookup finds the last known state of a session. An empty unitID searches
// every unit.
func (r *Registry) Lookup(unitID, sessionID string) (*evaluation.Session, bool) {
	if unitID != "" {
		return r.Unit(unitID).Lookup(sessionID)
	}
	r.mu.Lock()
	syncs := make([]*Synchronizer, 0, len(r.units))
	for _, u := range r.units {
		syncs = append(syncs, u.sync)
	}
	r.mu.Unlock()
	for _, s := range syncs {
		if sess, ok := s.Lookup(sessionID); ok {
			return sess, true
		}
	}
	return nil, false
}
