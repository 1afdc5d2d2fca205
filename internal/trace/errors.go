package trace

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrMalformed matches every *FormatError via errors.Is.
var ErrMalformed = errors.New("malformed trace")

// FormatError reports a trace that cannot be parsed or replayed. Line is the
// 1-based line of the offending record, 0 when the problem is not tied to a
// single record.
type FormatError struct {
	Line    int
	Content string
	Reason  string
}

func (e *FormatError) Error() string {
	if e.Line == 0 {
		return "malformed trace: " + e.Reason
	}
	return fmt.Sprintf("malformed trace: line %d: %s: %q", e.Line, e.Reason, e.Content)
}

// Is makes errors.Is(err, ErrMalformed) true for any FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrMalformed
}

// Malformed builds a FormatError for the record ev.
func Malformed(ev *Event, format string, args ...any) *FormatError {
	return &FormatError{
		Line:    ev.Line,
		Content: ev.Record(),
		Reason:  fmt.Sprintf(format, args...),
	}
}
