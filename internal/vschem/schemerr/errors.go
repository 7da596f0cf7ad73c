package schemerr

import (
	"errors"
	"fmt"
)

// Wire codes for the three decode failure kinds.
const (
	CodeFormat   = "E_FORMAT"
	CodeSchema   = "E_SCHEMA"
	CodeIndex    = "E_INDEX"
	CodeInternal = "E_INTERNAL"
)

// FormatError reports a framing violation: bad varint, oversized or truncated
// header string, or a stream that is not gzip.
type FormatError struct {
	Op  string
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("format: %s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("format: %s: %s", e.Op, e.Msg)
}

func (e *FormatError) Unwrap() error { return e.Err }

// SchemaError reports a missing tree key or a node of the wrong kind.
// Path is slash separated from the root, e.g. "gridData/ship_1/[3]/pid".
type SchemaError struct {
	Path string
	Msg  string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: %s: %s", e.Path, e.Msg)
}

// IndexError reports a palette or auxiliary-record index outside its sequence.
type IndexError struct {
	Path  string
	What  string
	Index int
	Len   int
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index: %s: %s %d out of range [0,%d)", e.Path, e.What, e.Index, e.Len)
}

func Format(op, msg string) error { return &FormatError{Op: op, Msg: msg} }

func Formatf(op string, err error, format string, args ...any) error {
	return &FormatError{Op: op, Msg: fmt.Sprintf(format, args...), Err: err}
}

func Schema(path, format string, args ...any) error {
	return &SchemaError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

func Index(path, what string, idx, n int) error {
	return &IndexError{Path: path, What: what, Index: idx, Len: n}
}

// Code maps err to its wire code.
func Code(err error) string {
	var (
		fe *FormatError
		se *SchemaError
		ie *IndexError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &fe):
		return CodeFormat
	case errors.As(err, &se):
		return CodeSchema
	case errors.As(err, &ie):
		return CodeIndex
	default:
		return CodeInternal
	}
}
