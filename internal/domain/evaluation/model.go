package evaluation

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is the session state as reported by the records service. Values
// other than the three known ones are kept verbatim.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusExpired  Status = "EXPIRED"
	StatusReleased Status = "RELEASED"
)

// NormalizeStatus upper-cases and trims a status string.
func NormalizeStatus(s Status) Status {
	return Status(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Author identifies the evaluator who last wrote a session.
type Author struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Items holds the selected option value per question key.
//
// Decoding is tolerant: numeric strings are parsed, any other non-numeric
// value decodes to 0 while keeping its key, so completeness checks still see
// the answer.
type Items map[string]float64

func (it *Items) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*it = nil
		return nil
	}
	out := make(Items, len(raw))
	for k, v := range raw {
		out[k] = numericValue(v)
	}
	*it = out
	return nil
}

func numericValue(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// Clone returns an independent copy.
func (it Items) Clone() Items {
	if it == nil {
		return nil
	}
	out := make(Items, len(it))
	for k, v := range it {
		out[k] = v
	}
	return out
}

// Session is one classification attempt attached to a bed.
type Session struct {
	ID           string     `json:"id"`
	BedID        string     `json:"bed_id,omitempty"`
	UnitID       string     `json:"unit_id,omitempty"`
	MethodKey    string     `json:"method_key,omitempty"`
	Items        Items      `json:"items,omitempty"`
	TotalPoints  float64    `json:"total_points"`
	ClassLabel   string     `json:"class_label,omitempty"`
	Status       Status     `json:"status"`
	RecordNumber string     `json:"record_number,omitempty"`
	Author       *Author    `json:"author,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`

	// Unmatched marks entries the records service returned without a bed
	// linkage. They stay in unit listings but never own a bed.
	Unmatched bool `json:"unmatched,omitempty"`
}

// IsActive reports whether the records service considers the session active.
func (s *Session) IsActive() bool {
	return s != nil && NormalizeStatus(s.Status) == StatusActive
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Items = s.Items.Clone()
	if s.Author != nil {
		a := *s.Author
		cp.Author = &a
	}
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		cp.ExpiresAt = &t
	}
	return &cp
}

// Conflict is returned instead of creating a session when the bed already
// has an active one. The caller must confirm the overwrite explicitly.
type Conflict struct {
	ExistingSessionID string   `json:"existing_session_id"`
	BedID             string   `json:"bed_id"`
	Existing          *Session `json:"existing,omitempty"`
}

// Outcome of a submission: exactly one of Session or Conflict is set.
type Outcome struct {
	Session  *Session  `json:"session,omitempty"`
	Conflict *Conflict `json:"conflict,omitempty"`
}

// RequiresConfirmation reports whether the submission stopped on a conflict.
func (o *Outcome) RequiresConfirmation() bool {
	return o != nil && o.Conflict != nil
}

// Journal actions.
const (
	ActionCreated     = "created"
	ActionOverwritten = "overwritten"
	ActionReleased    = "released"
)

// JournalEntry records one successful mutation of a session. Overwrites keep
// the replaced totals since the records service does not.
type JournalEntry struct {
	ID                  uuid.UUID `db:"id" json:"id"`
	SessionID           string    `db:"session_id" json:"session_id"`
	UnitID              string    `db:"unit_id" json:"unit_id"`
	BedID               string    `db:"bed_id" json:"bed_id"`
	Action              string    `db:"action" json:"action"`
	MethodKey           *string   `db:"method_key" json:"method_key,omitempty"`
	TotalPoints         *float64  `db:"total_points" json:"total_points,omitempty"`
	ClassLabel          *string   `db:"class_label" json:"class_label,omitempty"`
	PreviousTotalPoints *float64  `db:"previous_total_points" json:"previous_total_points,omitempty"`
	PreviousClassLabel  *string   `db:"previous_class_label" json:"previous_class_label,omitempty"`
	RecordNumber        *string   `db:"record_number" json:"record_number,omitempty"`
	AuthorID            *string   `db:"author_id" json:"author_id,omitempty"`
	AuthorName          *string   `db:"author_name" json:"author_name,omitempty"`
	RecordedAt          time.Time `db:"recorded_at" json:"recorded_at"`
}

// ComputeTotal sums the item values. Non-finite values count as 0.
func ComputeTotal(items Items) float64 {
	var total float64
	for _, v := range items {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		total += v
	}
	return total
}
