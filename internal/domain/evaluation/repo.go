package evaluation

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// CreateParams is the payload of the records service create call.
type CreateParams struct {
	BedID        string
	UnitID       string
	MethodKey    string
	Items        Items
	RecordNumber string
	AuthorID     string
}

// UpdateParams is the payload of the records service update call.
type UpdateParams struct {
	SessionID    string
	MethodKey    string
	Items        Items
	RecordNumber string
	AuthorID     string
}

// Gateway is the records service, the only place sessions are persisted.
type Gateway interface {
	CreateSession(ctx context.Context, p CreateParams) (*Session, error)
	UpdateSession(ctx context.Context, p UpdateParams) (*Session, error)
	ReleaseSession(ctx context.Context, sessionID string) error
}

// Directory is the shared view of a unit's sessions.
type Directory interface {
	// ActiveSessions refetches the unit's whole active list.
	ActiveSessions(ctx context.Context, unitID string) ([]*Session, error)
	// Track applies the result of a mutation without waiting for a refresh.
	Track(s *Session)
	// Lookup returns the last known state of a session.
	Lookup(unitID, sessionID string) (*Session, bool)
}

type JournalRepository interface {
	Record(ctx context.Context, e *JournalEntry) error
	ListBySession(ctx context.Context, sessionID string, limit, offset int) ([]*JournalEntry, int, error)
	ListByBed(ctx context.Context, unitID, bedID string, limit, offset int) ([]*JournalEntry, int, error)
}

// MemoryJournal keeps journal entries in process memory.
type MemoryJournal struct {
	mu      sync.RWMutex
	entries []*JournalEntry
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{}
}

func (j *MemoryJournal) Record(_ context.Context, e *JournalEntry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	cp := *e
	j.mu.Lock()
	j.entries = append(j.entries, &cp)
	j.mu.Unlock()
	return nil
}

func (j *MemoryJournal) ListBySession(_ context.Context, sessionID string, limit, offset int) ([]*JournalEntry, int, error) {
	return j.filter(func(e *JournalEntry) bool { return e.SessionID == sessionID }, limit, offset)
}

func (j *MemoryJournal) ListByBed(_ context.Context, unitID, bedID string, limit, offset int) ([]*JournalEntry, int, error) {
	return j.filter(func(e *JournalEntry) bool { return e.UnitID == unitID && e.BedID == bedID }, limit, offset)
}

func (j *MemoryJournal) filter(keep func(*JournalEntry) bool, limit, offset int) ([]*JournalEntry, int, error) {
	j.mu.RLock()
	var matched []*JournalEntry
	for _, e := range j.entries {
		if keep(e) {
			matched = append(matched, e)
		}
	}
	j.mu.RUnlock()

	// newest first, like the Postgres listing
	sort.SliceStable(matched, func(a, b int) bool {
		return matched[a].RecordedAt.After(matched[b].RecordedAt)
	})
	total := len(matched)
	if offset >= total {
		return nil, total, nil
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matched[offset:end], total, nil
}
