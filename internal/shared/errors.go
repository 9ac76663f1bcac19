package shared

import (
	"fmt"
	"strings"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig = fmt.Errorf("configuration not found")
	ErrInvalidConfig = fmt.Errorf("invalid configuration")

	// Remote errors
	ErrRemoteConnection = fmt.Errorf("remote connection failed")
	ErrPartialBatch     = fmt.Errorf("batch partially applied")
	ErrTimeout          = fmt.Errorf("operation timed out")

	// Rule errors
	ErrValidation       = fmt.Errorf("validation failed")
	ErrUnsupportedField = fmt.Errorf("unsupported field")
	ErrImport           = fmt.Errorf("import rejected")

	// Store errors
	ErrPlaylistNotFound = fmt.Errorf("playlist not found")
	ErrPlaylistExists   = fmt.Errorf("playlist already exists")
	ErrRunNotFound      = fmt.Errorf("refresh run not found")
	ErrAlreadyRunning   = fmt.Errorf("refresh already running")
	ErrDefinitionMoved  = fmt.Errorf("playlist definition changed during refresh")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrInvalidFlag     = fmt.Errorf("invalid flag value")
)

// ValidationError collects every problem found in a playlist definition.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", ErrValidation, strings.Join(e.Problems, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Add records a problem.
func (e *ValidationError) Add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// OrNil returns e when it holds problems and nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Problems) == 0 {
		return nil
	}
	return e
}

// UnsupportedFieldError names a tag field the server does not know. Leaves
// referencing it evaluate to false.
type UnsupportedFieldError struct {
	Field string
}

func (e *UnsupportedFieldError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnsupportedField, e.Field)
}

func (e *UnsupportedFieldError) Unwrap() error { return ErrUnsupportedField }

// PartialBatchError reports a command list the server rejected part way.
// Index is the position of the first failed command, or -1 when unknown.
type PartialBatchError struct {
	Index int
	Err   error
}

func (e *PartialBatchError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("%v at command %d: %v", ErrPartialBatch, e.Index, e.Err)
	}
	return fmt.Sprintf("%v: %v", ErrPartialBatch, e.Err)
}

func (e *PartialBatchError) Unwrap() []error { return []error{ErrPartialBatch, e.Err} }

// ImportError wraps the reason an interchange document was rejected.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%v: %v", ErrImport, e.Err)
}

func (e *ImportError) Unwrap() []error { return []error{ErrImport, e.Err} }
