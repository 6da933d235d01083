package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrEmptyGeometry is returned when an envelope is requested for a geometry without points.
	ErrEmptyGeometry = errors.New("empty geometry")

	// ErrKeyResolution is returned when a record has both or neither of an
	// explicit key value and a key field.
	ErrKeyResolution = errors.New("key resolution failed")

	// ErrUnrecognizedColumn is matched by *UnrecognizedColumnError.
	ErrUnrecognizedColumn = errors.New("unrecognized column")

	// ErrForeignKeyViolation is returned when a referenced parent row does not exist.
	ErrForeignKeyViolation = errors.New("foreign key violation")

	// ErrSchema is returned for malformed schema descriptors and DDL failures.
	ErrSchema = errors.New("schema error")

	// ErrTableExists is returned by table creation when the table is already
	// provisioned and destructive reset is not allowed.
	ErrTableExists = errors.New("table already exists")

	// ErrNotFound is returned when a requested upstream feature does not exist.
	ErrNotFound = errors.New("not found")
)

// FetchError describes a failed remote query. StatusCode is zero for
// transport failures. Error payloads delivered with HTTP 200 carry the code
// reported in the payload.
type FetchError struct {
	Source     string
	URL        string
	StatusCode int
	// Payload marks errors reported inside a response body; they are never retried.
	Payload bool
	Err     error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d: %v", e.Source, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Temporary reports whether retrying the request may succeed.
func (e *FetchError) Temporary() bool {
	if e.Payload {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}

// UnrecognizedColumnError lists record fields that are not columns of Table.
type UnrecognizedColumnError struct {
	Table   string
	Columns []string
}

func (e *UnrecognizedColumnError) Error() string {
	return fmt.Sprintf("unrecognized columns in %s: %s", e.Table, strings.Join(e.Columns, ", "))
}

func (e *UnrecognizedColumnError) Is(target error) bool {
	return target == ErrUnrecognizedColumn
}
