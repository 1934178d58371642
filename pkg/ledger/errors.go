package ledger

import (
	"errors"
	"fmt"
)

// SchemaError reports a malformed ledger record. Row is the 1-based record
// number in the file, the header being row 1.
type SchemaError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *SchemaError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("ledger row %d, column %s (%q): %v", e.Row, e.Column, e.Value, e.Err)
	}

	return fmt.Sprintf("ledger row %d: %v", e.Row, e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// IsSchemaError reports whether err is or wraps a *SchemaError.
func IsSchemaError(err error) bool {
	var serr *SchemaError

	return errors.As(err, &serr)
}
