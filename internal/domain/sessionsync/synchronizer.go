package sessionsync

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/scp/internal/domain/evaluation"
)

// Fetcher returns the records service's active-session list of a unit.
type Fetcher interface {
	ListActiveSessions(ctx context.Context, unitID string) ([]*evaluation.Session, error)
}

// Snapshot is the reconciled view of one unit.
type Snapshot struct {
	UnitID      string                         `json:"unit_id"`
	Sessions    []*evaluation.Session          `json:"sessions"`
	Beds        map[string]*evaluation.Session `json:"beds"`
	Drafts      []string                       `json:"drafts,omitempty"`
	Suspended   bool                           `json:"suspended"`
	RefreshedAt *time.Time                     `json:"refreshed_at,omitempty"`
}

// Normalize drops nil and id-less entries, trims identifiers and upper-cases
// the status. Entries without a bed are kept and flagged unmatched.
func Normalize(unitID string, in []*evaluation.Session) []*evaluation.Session {
	out := make([]*evaluation.Session, 0, len(in))
	for _, s := range in {
		if s == nil {
			continue
		}
		cp := s.Clone()
		cp.ID = strings.TrimSpace(cp.ID)
		if cp.ID == "" {
			continue
		}
		cp.BedID = strings.TrimSpace(cp.BedID)
		if strings.TrimSpace(cp.UnitID) == "" {
			cp.UnitID = unitID
		}
		cp.Status = evaluation.NormalizeStatus(cp.Status)
		cp.Unmatched = cp.BedID == ""
		out = append(out, cp)
	}
	return out
}

type tracked struct {
	session *evaluation.Session
	at      time.Time
}

// Synchronizer holds the reconciled session state of one unit. It never
// writes to the records service.
type Synchronizer struct {
	unitID string
	fetch  Fetcher
	store  SnapshotStore
	logger zerolog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	sessions    []*evaluation.Session
	beds        map[string]*evaluation.Session
	known       map[string]*evaluation.Session
	tracked     map[string]tracked
	drafts      map[string]time.Time
	refreshedAt time.Time

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int
}

func NewSynchronizer(unitID string, fetch Fetcher, store SnapshotStore, logger zerolog.Logger) *Synchronizer {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Synchronizer{
		unitID:  unitID,
		fetch:   fetch,
		store:   store,
		logger:  logger.With().Str("unit_id", unitID).Logger(),
		now:     time.Now,
		beds:    make(map[string]*evaluation.Session),
		known:   make(map[string]*evaluation.Session),
		tracked: make(map[string]tracked),
		drafts:  make(map[string]time.Time),
		subs:    make(map[int]func(Snapshot)),
	}
}

func (s *Synchronizer) UnitID() string { return s.unitID }

// Warm seeds an empty synchronizer from the snapshot store.
func (s *Synchronizer) Warm(ctx context.Context) {
	s.mu.RLock()
	empty := s.refreshedAt.IsZero() && len(s.sessions) == 0
	s.mu.RUnlock()
	if !empty {
		return
	}
	list, ok, err := s.store.Load(ctx, s.unitID)
	if err != nil {
		s.logger.Warn().Err(err).Msg("load session snapshot failed")
		return
	}
	if !ok {
		return
	}
	s.mu.Lock()
	if s.refreshedAt.IsZero() && len(s.sessions) == 0 {
		s.sessions = Normalize(s.unitID, list)
		s.beds = bedMap(s.sessions, s.logger)
		for _, sess := range s.sessions {
			s.known[sess.ID] = sess
		}
	}
	s.mu.Unlock()
	s.logger.Debug().Int("sessions", len(list)).Msg("session state warmed from snapshot")
}

// Refresh fetches the authoritative active list and reconciles local state.
// A bed whose known active session is missing from the fetch is cleared.
// Mutation results tracked while the fetch was in flight are applied on top.
func (s *Synchronizer) Refresh(ctx context.Context) ([]*evaluation.Session, error) {
	started := s.now()
	list, err := s.fetch.ListActiveSessions(ctx, s.unitID)
	if err != nil {
		return nil, err
	}
	fresh := Normalize(s.unitID, list)

	s.mu.Lock()
	beds := bedMap(fresh, s.logger)
	for bedID, prev := range s.beds {
		if cur, ok := beds[bedID]; !ok || cur.ID != prev.ID {
			s.logger.Debug().
				Str("bed_id", bedID).
				Str("session_id", prev.ID).
				Msg("session no longer active upstream, clearing bed")
			if k, known := s.known[prev.ID]; known && k.IsActive() {
				delete(s.known, prev.ID)
			}
		}
	}
	s.sessions = fresh
	s.beds = beds
	for _, sess := range fresh {
		s.known[sess.ID] = sess
	}
	for id, t := range s.tracked {
		if t.at.Before(started) {
			delete(s.tracked, id)
			continue
		}
		s.applyLocked(t.session)
	}
	s.refreshedAt = s.now()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	if err := s.store.Save(ctx, s.unitID, snap.Sessions); err != nil {
		s.logger.Warn().Err(err).Msg("save session snapshot failed")
	}
	s.notify(snap)
	return cloneAll(snap.Sessions), nil
}

// Track applies a mutation result right away, without waiting for the next
// refresh.
func (s *Synchronizer) Track(sess *evaluation.Session) {
	if sess == nil || strings.TrimSpace(sess.ID) == "" {
		return
	}
	norm := Normalize(s.unitID, []*evaluation.Session{sess})[0]

	s.mu.Lock()
	s.tracked[norm.ID] = tracked{session: norm, at: s.now()}
	s.applyLocked(norm)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Synchronizer) applyLocked(sess *evaluation.Session) {
	s.known[sess.ID] = sess.Clone()

	replaced := false
	for i, cur := range s.sessions {
		if cur.ID == sess.ID {
			replaced = true
			if sess.IsActive() {
				s.sessions[i] = sess.Clone()
			} else {
				s.sessions = append(s.sessions[:i], s.sessions[i+1:]...)
			}
			break
		}
	}
	if !replaced && sess.IsActive() {
		s.sessions = append(s.sessions, sess.Clone())
	}

	// drop the previous bed of a session that moved
	for bedID, cur := range s.beds {
		if cur.ID == sess.ID && bedID != sess.BedID {
			delete(s.beds, bedID)
		}
	}
	if sess.BedID == "" {
		return
	}
	if sess.IsActive() {
		s.beds[sess.BedID] = sess.Clone()
	} else if cur, ok := s.beds[sess.BedID]; ok && cur.ID == sess.ID {
		delete(s.beds, sess.BedID)
	}
}

// SessionForBed returns the active session of a bed.
func (s *Synchronizer) SessionForBed(bedID string) (*evaluation.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.beds[bedID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

// Lookup returns the last known state of a session, released ones included.
func (s *Synchronizer) Lookup(sessionID string) (*evaluation.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.known[sessionID]
	if !ok {
		return nil, false
	}
	return sess.Clone(), true
}

func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Synchronizer) snapshotLocked() Snapshot {
	snap := Snapshot{
		UnitID:    s.unitID,
		Sessions:  cloneAll(s.sessions),
		Beds:      make(map[string]*evaluation.Session, len(s.beds)),
		Suspended: s.suspendedLocked(),
	}
	if snap.Sessions == nil {
		snap.Sessions = []*evaluation.Session{}
	}
	for bedID, sess := range s.beds {
		snap.Beds[bedID] = sess.Clone()
	}
	for bedID := range s.drafts {
		snap.Drafts = append(snap.Drafts, bedID)
	}
	sort.Strings(snap.Drafts)
	if !s.refreshedAt.IsZero() {
		t := s.refreshedAt
		snap.RefreshedAt = &t
	}
	return snap
}

// BeginDraft marks a bed as having an evaluation form open.
func (s *Synchronizer) BeginDraft(bedID string) {
	s.mu.Lock()
	s.drafts[bedID] = s.now()
	s.mu.Unlock()
}

// EndDraft closes the form of a bed.
func (s *Synchronizer) EndDraft(bedID string) {
	s.mu.Lock()
	delete(s.drafts, bedID)
	s.mu.Unlock()
}

// ExpireDrafts ends drafts opened before cutoff and returns how many.
func (s *Synchronizer) ExpireDrafts(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for bedID, at := range s.drafts {
		if at.Before(cutoff) {
			delete(s.drafts, bedID)
			n++
		}
	}
	return n
}

// HasDrafts reports whether any bed has a form open.
func (s *Synchronizer) HasDrafts() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.drafts) > 0
}

// Suspended reports whether polling must pause: some bed without a session
// has a form open.
func (s *Synchronizer) Suspended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.suspendedLocked()
}

func (s *Synchronizer) suspendedLocked() bool {
	for bedID := range s.drafts {
		if _, ok := s.beds[bedID]; !ok {
			return true
		}
	}
	return false
}

// Subscribe registers fn for every state change. The returned func
// unsubscribes.
func (s *Synchronizer) Subscribe(fn func(Snapshot)) func() {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Synchronizer) notify(snap Snapshot) {
	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// bedMap indexes the active, bed-linked sessions. The first one listed for a
// bed wins.
func bedMap(list []*evaluation.Session, logger zerolog.Logger) map[string]*evaluation.Session {
	beds := make(map[string]*evaluation.Session, len(list))
	for _, sess := range list {
		if sess.Unmatched || !sess.IsActive() {
			continue
		}
		if cur, ok := beds[sess.BedID]; ok {
			logger.Warn().
				Str("bed_id", sess.BedID).
				Str("session_id", sess.ID).
				Str("kept_session_id", cur.ID).
				Msg("more than one active session for bed")
			continue
		}
		beds[sess.BedID] = sess
	}
	return beds
}
