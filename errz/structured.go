// Package errz defines the typed errors produced while loading code objects.
//
// Every failure is fatal to the load that produced it. Errors carry the byte
// offset (or instruction offset) at which they were detected so that a
// corrupt input can be located with a hex dump.
package errz

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

// ErrorKind represents the category of an error. Kinds implement the error
// interface so they can be used as targets for errors.Is:
//
//	if errors.Is(err, errz.TruncatedInput) { ... }
type ErrorKind int

const (
	// TruncatedInput indicates fewer bytes remained than a read required.
	TruncatedInput ErrorKind = iota + 1
	// UnsupportedVersion indicates a container magic that does not match
	// the expected target version.
	UnsupportedVersion
	// MalformedInput indicates a structural violation of the marshal
	// encoding or the container header.
	MalformedInput
	// UnsupportedConstantKind indicates a marshal type tag outside the
	// supported set.
	UnsupportedConstantKind
	// IntegerOverflow indicates an arbitrary-precision integer literal that
	// does not fit in 64 bits.
	IntegerOverflow
	// MalformedInstruction indicates an instruction whose operand cannot be
	// resolved against its code object.
	MalformedInstruction
	// CompileError is reported by the external compiler on the source path.
	CompileError
)

// InvalidMagic is the header-level name for UnsupportedVersion.
const InvalidMagic = UnsupportedVersion

// String returns the string representation of the error kind.
func (k ErrorKind) String() string {
	switch k {
	case TruncatedInput:
		return "truncated input"
	case UnsupportedVersion:
		return "unsupported version"
	case MalformedInput:
		return "malformed input"
	case UnsupportedConstantKind:
		return "unsupported constant kind"
	case IntegerOverflow:
		return "integer overflow"
	case MalformedInstruction:
		return "malformed instruction"
	case CompileError:
		return "compile error"
	default:
		return "error"
	}
}

// Error implements the error interface.
func (k ErrorKind) Error() string {
	return k.String()
}

// SourceLocation is a position in source text. Only compile errors carry one.
type SourceLocation struct {
	Filename string
	Line     int    // 1-based line number
	Column   int    // 1-based column number
	Source   string // The line of source code
}

// String returns a formatted string representation of the source location.
func (s SourceLocation) String() string {
	if s.Filename != "" {
		return fmt.Sprintf("%s:%d:%d", s.Filename, s.Line, s.Column)
	}
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// IsZero returns true if the location has not been set.
func (s SourceLocation) IsZero() bool {
	return s.Line == 0 && s.Column == 0
}

// StructuredError is the error type returned by every package in this module.
type StructuredError struct {
	Message  string
	Kind     ErrorKind
	Offset   int // -1 when no byte offset applies
	Location SourceLocation
	Cause    error
}

// Error implements the error interface.
func (e *StructuredError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " at offset %d", e.Offset)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if !e.Location.IsZero() {
		fmt.Fprintf(&b, " (%s)", e.Location.String())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause of the error.
func (e *StructuredError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is this error's kind.
func (e *StructuredError) Is(target error) bool {
	k, ok := target.(ErrorKind)
	return ok && k == e.Kind
}

// FriendlyErrorMessage returns a human-friendly error message. Compile errors
// include the offending source line with a caret under the column.
func (e *StructuredError) FriendlyErrorMessage() string {
	var msg bytes.Buffer
	msg.WriteString(e.Error())
	msg.WriteString("\n")
	if e.Location.Source != "" {
		msg.WriteString(" | ")
		msg.WriteString(e.Location.Source)
		msg.WriteString("\n")
		if e.Location.Column > 0 {
			msg.WriteString(" | ")
			msg.WriteString(strings.Repeat(" ", e.Location.Column-1))
			msg.WriteString("^\n")
		}
	}
	return msg.String()
}

// New creates a new StructuredError at the given offset.
func New(kind ErrorKind, offset int, message string) *StructuredError {
	return &StructuredError{
		Message: message,
		Kind:    kind,
		Offset:  offset,
	}
}

// Newf creates a new StructuredError with a formatted message.
func Newf(kind ErrorKind, offset int, format string, args ...any) *StructuredError {
	return &StructuredError{
		Message: fmt.Sprintf(format, args...),
		Kind:    kind,
		Offset:  offset,
	}
}

// NewCompileError creates a CompileError at a source location.
func NewCompileError(message string, loc SourceLocation) *StructuredError {
	return &StructuredError{
		Message:  message,
		Kind:     CompileError,
		Offset:   -1,
		Location: loc,
	}
}

// WithCause wraps the error with a cause.
func (e *StructuredError) WithCause(cause error) *StructuredError {
	e.Cause = cause
	return e
}

// KindOf returns the kind of the first StructuredError in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}

// OffsetOf returns the offset recorded by the first StructuredError in err's
// chain, or -1.
func OffsetOf(err error) int {
	var se *StructuredError
	if errors.As(err, &se) {
		return se.Offset
	}
	return -1
}
