package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which operation produced the error
type Phase string

const (
	PhaseCreate  Phase = "create"  // table construction
	PhaseInsert  Phase = "insert"  // table insert or update
	PhaseFind    Phase = "find"    // table lookup
	PhaseRemove  Phase = "remove"  // single-key removal
	PhaseClose   Phase = "close"   // table or pool teardown
	PhaseAlloc   Phase = "alloc"   // linear memory allocation
	PhaseRelease Phase = "release" // returning memory or handles
	PhaseConfig  Phase = "config"  // configuration loading
	PhaseMemory  Phase = "memory"  // memory backend access
)

// Kind categorizes the error
type Kind string

const (
	KindTableFull    Kind = "table_full"
	KindInvalidInput Kind = "invalid_input"
	KindClosed       Kind = "closed"
	KindAllocation   Kind = "allocation"
	KindDoubleFree   Kind = "double_free"
	KindRelease      Kind = "release"
	KindOutOfBounds  Kind = "out_of_bounds"
	KindNotFound     Kind = "not_found"
	KindInvalidData  Kind = "invalid_data"
)

// Error is the structured error type used throughout bufmap
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the config path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TableFull creates a capacity exhaustion error for an insert
func TableFull(capacity int) *Error {
	return &Error{
		Phase:  PhaseInsert,
		Kind:   KindTableFull,
		Detail: fmt.Sprintf("hash table is full (capacity %d)", capacity),
		Value:  capacity,
	}
}

// Closed creates an error for an operation on a closed table or pool
func Closed(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(size, align uint32) *Error {
	return &Error{
		Phase:  PhaseAlloc,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// DoubleFree creates an error for releasing something that is not live
func DoubleFree(phase Phase, what string, id uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDoubleFree,
		Detail: fmt.Sprintf("%s %#x is not live", what, id),
		Value:  id,
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("access [%#x, +%d) out of bounds (size %d)", offset, length, size),
		Value:  offset,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
