package evaluation

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInFlight rejects a mutating call for a bed or session that already
	// has one outstanding.
	ErrInFlight = errors.New("another evaluation request for this bed is in progress")

	// ErrSessionGone is reported by a Gateway when the session to release no
	// longer exists or was already released.
	ErrSessionGone = errors.New("session not found or already released")
)

// Validation reasons.
const (
	ReasonIncomplete   = "incomplete_questionnaire"
	ReasonRecordNumber = "record_number_too_short"
	ReasonMissingField = "missing_field"
)

// ValidationError is a locally detected input problem. It is never sent to
// the records service.
type ValidationError struct {
	Reason  string
	Field   string
	Missing []string
	Detail  string
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonIncomplete:
		return fmt.Sprintf("questionnaire incomplete: missing answers for %s", strings.Join(e.Missing, ", "))
	case ReasonRecordNumber:
		return e.Detail
	default:
		return fmt.Sprintf("%s is required", e.Field)
	}
}

// RemoteError wraps a failure of the records service.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
