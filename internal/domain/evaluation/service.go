package evaluation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/scp/internal/domain/classification"
)

// SubmitRequest is a fully answered questionnaire for one bed.
type SubmitRequest struct {
	BedID        string
	UnitID       string
	Method       *classification.Method
	Items        Items
	RecordNumber string
	Author       *Author
	Entry        EntryPoint
}

// OverwriteRequest replaces the answers of an existing active session.
type OverwriteRequest struct {
	SessionID    string
	UnitID       string
	BedID        string
	Method       *classification.Method
	Items        Items
	RecordNumber string
	Author       *Author
	Entry        EntryPoint
}

// Engine owns the session lifecycle of a bed: submission, conflict detection,
// confirmed overwrite and release. Every entry point of the dashboard goes
// through the same engine with its own RecordPolicy.
type Engine struct {
	gw       Gateway
	dir      Directory
	journal  JournalRepository
	policies map[EntryPoint]RecordPolicy
	logger   zerolog.Logger
	now      func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewEngine(gw Gateway, dir Directory, logger zerolog.Logger) *Engine {
	return &Engine{
		gw:       gw,
		dir:      dir,
		journal:  NewMemoryJournal(),
		policies: DefaultPolicies(DefaultRecordNumberMinLength),
		logger:   logger,
		now:      time.Now,
		inflight: make(map[string]struct{}),
	}
}

// SetJournal replaces the default in-memory journal.
func (e *Engine) SetJournal(j JournalRepository) {
	e.journal = j
}

// Journal returns the engine's journal repository.
func (e *Engine) Journal() JournalRepository {
	return e.journal
}

// SetPolicy overrides the record-number policy of one entry point.
func (e *Engine) SetPolicy(entry EntryPoint, p RecordPolicy) {
	e.policies[entry] = p
}

// Score previews a questionnaire without side effects.
func (e *Engine) Score(method *classification.Method, items Items) (total float64, classLabel string, complete bool) {
	total = ComputeTotal(items)
	return total, method.ResolveClass(total), ValidateComplete(method, items)
}

func (e *Engine) validate(method *classification.Method, items Items, recordNumber string, entry EntryPoint) error {
	if method == nil {
		return &ValidationError{Reason: ReasonMissingField, Field: "method"}
	}
	if missing := missingAnswers(method, items); len(missing) > 0 {
		return &ValidationError{Reason: ReasonIncomplete, Field: "items", Missing: missing}
	}
	if entry == "" {
		entry = EntryEvaluation
	}
	policy, ok := e.policies[entry]
	if !ok {
		policy = e.policies[EntryEvaluation]
	}
	return policy.Check(recordNumber)
}

// acquire marks key as in flight. The returned func releases it.
func (e *Engine) acquire(key string) (func(), error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inflight[key]; busy {
		return nil, ErrInFlight
	}
	e.inflight[key] = struct{}{}
	return func() {
		e.mu.Lock()
		delete(e.inflight, key)
		e.mu.Unlock()
	}, nil
}

func bedKey(unitID, bedID string) string { return "bed:" + unitID + "/" + bedID }

func sessionKey(sessionID string) string { return "session:" + sessionID }

// sessionLockKey guards a session by its bed when the bed is known. That is
// the key Submit takes for the bed.
func sessionLockKey(unitID, bedID, sessionID string, known *Session) string {
	if known != nil {
		if unitID == "" {
			unitID = known.UnitID
		}
		if bedID == "" {
			bedID = known.BedID
		}
	}
	if bedID != "" {
		return bedKey(unitID, bedID)
	}
	return sessionKey(sessionID)
}

// Submit creates a session for the bed, unless the bed already has an active
// one: then nothing is written and the outcome carries a Conflict that must
// be resolved with ConfirmOverwrite.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (*Outcome, error) {
	if strings.TrimSpace(req.BedID) == "" {
		return nil, &ValidationError{Reason: ReasonMissingField, Field: "bed_id"}
	}
	if strings.TrimSpace(req.UnitID) == "" {
		return nil, &ValidationError{Reason: ReasonMissingField, Field: "unit_id"}
	}
	if err := e.validate(req.Method, req.Items, req.RecordNumber, req.Entry); err != nil {
		return nil, err
	}

	done, err := e.acquire(bedKey(req.UnitID, req.BedID))
	if err != nil {
		return nil, err
	}
	defer done()

	active, err := e.dir.ActiveSessions(ctx, req.UnitID)
	if err != nil {
		e.logger.Error().Err(err).Str("unit_id", req.UnitID).Msg("list active sessions failed")
		return nil, &RemoteError{Op: "list active sessions", Err: err}
	}
	for _, s := range active {
		if s.BedID == req.BedID && s.IsActive() {
			e.logger.Info().
				Str("unit_id", req.UnitID).
				Str("bed_id", req.BedID).
				Str("session_id", s.ID).
				Msg("bed already has an active session, overwrite requires confirmation")
			return &Outcome{Conflict: &Conflict{
				ExistingSessionID: s.ID,
				BedID:             req.BedID,
				Existing:          s.Clone(),
			}}, nil
		}
	}

	created, err := e.gw.CreateSession(ctx, CreateParams{
		BedID:        req.BedID,
		UnitID:       req.UnitID,
		MethodKey:    req.Method.Key,
		Items:        req.Items,
		RecordNumber: strings.TrimSpace(req.RecordNumber),
		AuthorID:     authorID(req.Author),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("unit_id", req.UnitID).Str("bed_id", req.BedID).Msg("create session failed")
		return nil, &RemoteError{Op: "create session", Err: err}
	}

	s := e.settle(created, req.UnitID, req.BedID, req.Method, req.Items, req.RecordNumber, req.Author)
	e.dir.Track(s)
	e.record(ctx, ActionCreated, s, nil)

	e.logger.Info().
		Str("unit_id", s.UnitID).
		Str("bed_id", s.BedID).
		Str("session_id", s.ID).
		Float64("total_points", s.TotalPoints).
		Str("class_label", s.ClassLabel).
		Msg("evaluation session created")
	return &Outcome{Session: s.Clone()}, nil
}

// ConfirmOverwrite replaces the answers of an existing session in place. The
// session keeps its identity. Repeating the call with the same input yields
// the same state.
func (e *Engine) ConfirmOverwrite(ctx context.Context, req OverwriteRequest) (*Session, error) {
	if strings.TrimSpace(req.SessionID) == "" {
		return nil, &ValidationError{Reason: ReasonMissingField, Field: "session_id"}
	}
	if err := e.validate(req.Method, req.Items, req.RecordNumber, req.Entry); err != nil {
		return nil, err
	}

	previous, known := e.dir.Lookup(req.UnitID, req.SessionID)
	bedID := req.BedID
	if bedID == "" && known {
		bedID = previous.BedID
	}
	done, err := e.acquire(sessionLockKey(req.UnitID, bedID, req.SessionID, previous))
	if err != nil {
		return nil, err
	}
	defer done()

	updated, err := e.gw.UpdateSession(ctx, UpdateParams{
		SessionID:    req.SessionID,
		MethodKey:    req.Method.Key,
		Items:        req.Items,
		RecordNumber: strings.TrimSpace(req.RecordNumber),
		AuthorID:     authorID(req.Author),
	})
	if err != nil {
		e.logger.Error().Err(err).Str("session_id", req.SessionID).Msg("update session failed")
		return nil, &RemoteError{Op: "update session", Err: err}
	}
	if updated.ID == "" {
		updated.ID = req.SessionID
	}

	s := e.settle(updated, req.UnitID, bedID, req.Method, req.Items, req.RecordNumber, req.Author)
	e.dir.Track(s)
	e.record(ctx, ActionOverwritten, s, previous)

	e.logger.Info().
		Str("unit_id", s.UnitID).
		Str("bed_id", s.BedID).
		Str("session_id", s.ID).
		Float64("total_points", s.TotalPoints).
		Str("class_label", s.ClassLabel).
		Msg("evaluation session overwritten")
	return s.Clone(), nil
}

// Release ends a session. Releasing a session that is already released, or
// that the records service no longer knows, succeeds.
func (e *Engine) Release(ctx context.Context, unitID, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return &ValidationError{Reason: ReasonMissingField, Field: "session_id"}
	}
	known, ok := e.dir.Lookup(unitID, sessionID)
	if ok && NormalizeStatus(known.Status) == StatusReleased {
		return nil
	}

	done, err := e.acquire(sessionLockKey(unitID, "", sessionID, known))
	if err != nil {
		return err
	}
	defer done()

	if err := e.gw.ReleaseSession(ctx, sessionID); err != nil {
		if !errors.Is(err, ErrSessionGone) {
			e.logger.Error().Err(err).Str("session_id", sessionID).Msg("release session failed")
			return &RemoteError{Op: "release session", Err: err}
		}
		e.logger.Debug().Str("session_id", sessionID).Msg("session already released upstream")
	}

	released := &Session{ID: sessionID, UnitID: unitID}
	if ok {
		released = known.Clone()
		if released.UnitID == "" {
			released.UnitID = unitID
		}
	}
	released.Status = StatusReleased
	e.dir.Track(released)
	e.record(ctx, ActionReleased, released, nil)

	e.logger.Info().Str("unit_id", released.UnitID).Str("bed_id", released.BedID).Str("session_id", sessionID).Msg("evaluation session released")
	return nil
}

// settle fills in what the records service may leave out and computes the
// score from the submitted answers.
func (e *Engine) settle(s *Session, unitID, bedID string, method *classification.Method, items Items, recordNumber string, author *Author) *Session {
	if s == nil {
		s = &Session{}
	}
	if s.UnitID == "" {
		s.UnitID = unitID
	}
	if s.BedID == "" {
		s.BedID = bedID
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	s.Status = NormalizeStatus(s.Status)
	s.MethodKey = method.Key
	s.Items = items.Clone()
	s.TotalPoints = ComputeTotal(items)
	s.ClassLabel = method.ResolveClass(s.TotalPoints)
	s.RecordNumber = strings.TrimSpace(recordNumber)
	if author != nil {
		a := *author
		s.Author = &a
	}
	s.Unmatched = s.BedID == ""
	return s
}

// record appends to the journal. Failures are logged only: the mutation
// already happened upstream.
func (e *Engine) record(ctx context.Context, action string, s, previous *Session) {
	if e.journal == nil {
		return
	}
	entry := &JournalEntry{
		SessionID:  s.ID,
		UnitID:     s.UnitID,
		BedID:      s.BedID,
		Action:     action,
		RecordedAt: e.now().UTC(),
	}
	if action != ActionReleased {
		total := s.TotalPoints
		entry.TotalPoints = &total
		entry.ClassLabel = strPtr(s.ClassLabel)
		entry.MethodKey = strPtr(s.MethodKey)
		entry.RecordNumber = strPtr(s.RecordNumber)
	}
	if s.Author != nil {
		entry.AuthorID = strPtr(s.Author.ID)
		entry.AuthorName = strPtr(s.Author.Name)
	}
	if previous != nil {
		pt := previous.TotalPoints
		entry.PreviousTotalPoints = &pt
		entry.PreviousClassLabel = strPtr(previous.ClassLabel)
	}
	if err := e.journal.Record(ctx, entry); err != nil {
		e.logger.Warn().Err(err).Str("session_id", s.ID).Str("action", action).Msg("journal write failed")
	}
}

// History lists journal entries of a session, newest first.
func (e *Engine) History(ctx context.Context, sessionID string, limit, offset int) ([]*JournalEntry, int, error) {
	return e.journal.ListBySession(ctx, sessionID, limit, offset)
}

// BedHistory lists journal entries of a bed, newest first.
func (e *Engine) BedHistory(ctx context.Context, unitID, bedID string, limit, offset int) ([]*JournalEntry, int, error) {
	return e.journal.ListByBed(ctx, unitID, bedID, limit, offset)
}

func authorID(a *Author) string {
	if a == nil {
		return ""
	}
	return a.ID
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
