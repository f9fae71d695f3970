package parser

import (
	"errors"
	"fmt"
)

// ErrNotArray is reported when the top-level message is valid JSON but not an array.
var ErrNotArray = errors.New("json is not an array")

// ParseError reports a message that could not be split into records.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string { return e.Err.Error() }

func (e *ParseError) Unwrap() error { return e.Err }

// RecordError reports a record that failed decoding. Field is the dotted
// name of the offending slot (e.g. "front.left.speed"), empty when the
// record itself is malformed.
type RecordError struct {
	Index  int
	Field  string
	Reason string
}

func (e *RecordError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("record %d %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("record %d: %s %s", e.Index, e.Field, e.Reason)
}

// fieldError is a decode failure inside a nested block, before it is
// attributed to a record index.
type fieldError struct {
	field  string
	reason string
}

func (e *fieldError) Error() string { return e.field + " " + e.reason }

// within prefixes the failing field with the enclosing block name.
func (e *fieldError) within(block string) *fieldError {
	if e.field == "" {
		return &fieldError{field: block, reason: e.reason}
	}
	return &fieldError{field: block + "." + e.field, reason: e.reason}
}

func (e *fieldError) at(index int) *RecordError {
	return &RecordError{Index: index, Field: e.field, Reason: e.reason}
}

const (
	reasonMissing   = "is missing"
	reasonNotNumber = "is not a number"
	reasonNotArray  = "is not an array"
)

func reasonLength(got, want int) string {
	return fmt.Sprintf("has %d elements, expected %d", got, want)
}
