package staffing

import (
	"fmt"
	"strings"
)

// FieldError names one failing input.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every input that blocks the computation.
type ValidationError struct {
	Fields []FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		names = append(names, f.Field)
	}
	return "invalid staffing parameters: " + strings.Join(names, ", ")
}

func (e *ValidationError) add(field, msg string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: msg})
}

// PersistenceError is a failed save of a computed result. The result is kept
// so the caller can retry the save as is.
type PersistenceError struct {
	Result *Result
	Err    error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("save staffing result: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
