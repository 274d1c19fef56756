package evaluation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ehr/scp/internal/domain/classification"
)

// EntryPoint names the screen a submission comes from.
type EntryPoint string

const (
	// EntryEvaluation is the "start new evaluation" flow.
	EntryEvaluation EntryPoint = "evaluation"
	// EntryDetails is the bed details modal.
	EntryDetails EntryPoint = "details"
)

// DefaultRecordNumberMinLength is the minimum record number length of the
// evaluation flow.
const DefaultRecordNumberMinLength = 3

// RecordPolicy is the record-number rule of one entry point.
type RecordPolicy struct {
	Required  bool
	MinLength int
}

// DefaultPolicies keeps the two flows as they are used today: the evaluation
// flow requires a record number, the details modal accepts any value
// including an empty one.
func DefaultPolicies(minLength int) map[EntryPoint]RecordPolicy {
	if minLength <= 0 {
		minLength = DefaultRecordNumberMinLength
	}
	return map[EntryPoint]RecordPolicy{
		EntryEvaluation: {Required: true, MinLength: minLength},
		EntryDetails:    {Required: false, MinLength: minLength},
	}
}

// ParseEntryPoint maps a query value to an entry point, defaulting to the
// evaluation flow.
func ParseEntryPoint(s string) (EntryPoint, error) {
	switch EntryPoint(strings.ToLower(strings.TrimSpace(s))) {
	case "", EntryEvaluation:
		return EntryEvaluation, nil
	case EntryDetails:
		return EntryDetails, nil
	default:
		return "", fmt.Errorf("unknown entry point %q", s)
	}
}

// Check applies the policy to a record number.
func (p RecordPolicy) Check(recordNumber string) error {
	if !p.Required {
		return nil
	}
	if utf8.RuneCountInString(strings.TrimSpace(recordNumber)) < p.MinLength {
		return &ValidationError{
			Reason: ReasonRecordNumber,
			Field:  "record_number",
			Detail: fmt.Sprintf("record number must have at least %d characters", p.MinLength),
		}
	}
	return nil
}

// ValidateComplete reports whether every question of the method has an
// answer in items.
func ValidateComplete(method *classification.Method, items Items) bool {
	return len(missingAnswers(method, items)) == 0
}

func missingAnswers(method *classification.Method, items Items) []string {
	var missing []string
	for _, key := range method.QuestionKeys() {
		if _, ok := items[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}
