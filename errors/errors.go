package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseEncode   Phase = "encode"   // host to guest
	PhaseDecode   Phase = "decode"   // guest to host
	PhaseMemory   Phase = "memory"   // linear memory access
	PhaseHandle   Phase = "handle"   // handle table operations
	PhaseRuntime  Phase = "runtime"  // guest calls
	PhaseHost     Phase = "host"     // host import execution
	PhaseLoad     Phase = "load"     // module loading
	PhaseConfig   Phase = "config"   // configuration
	PhaseDispatch Phase = "dispatch" // Execute/Call protocol
)

// Kind categorizes the error
type Kind string

const (
	KindMarshalling       Kind = "marshalling"
	KindBoundary          Kind = "boundary"
	KindResourceExhausted Kind = "resource_exhausted"
	KindInvalidHandle     Kind = "invalid_handle"
	KindOutOfBounds       Kind = "out_of_bounds"
	KindInvalidData       Kind = "invalid_data"
	KindInvalidUTF8       Kind = "invalid_utf8"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindInvalidInput      Kind = "invalid_input"
	KindUnsupported       Kind = "unsupported"
	KindInstantiation     Kind = "instantiation"
	KindTrap              Kind = "trap"
	KindClosed            Kind = "closed"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	GoType string
	Export string
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Export != "" {
		b.WriteString(" in ")
		b.WriteString(e.Export)
	}

	if e.GoType != "" {
		b.WriteString(": Go type ")
		b.WriteString(e.GoType)
	}

	if e.Detail != "" {
		if e.GoType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase == "" {
			return e.Kind == t.Kind
		}
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether any *Error in err's chain has the given kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, &Error{Kind: kind})
}

// As is errors.As for *Error.
func As(err error) (*Error, bool) {
	var e *Error
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
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

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// Export sets the guest export or host import involved
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
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

// Marshalling creates an error for a host value that cannot cross the
// boundary as text.
func Marshalling(phase Phase, goType, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMarshalling,
		GoType: goType,
		Detail: detail,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error. It is a marshalling failure:
// only valid UTF-8 is text on either side of the boundary.
func InvalidUTF8(phase Phase, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindMarshalling,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
		Cause:  &Error{Phase: phase, Kind: KindInvalidUTF8},
	}
}

// Boundary creates the error raised when the guest signals failure through
// the throw import. The message is kept verbatim in Value.
func Boundary(message string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindBoundary,
		Detail: message,
		Value:  message,
	}
}

// BoundaryMessage extracts the guest message from a boundary error.
func BoundaryMessage(err error) (string, bool) {
	var e *Error
	for cur := err; cur != nil; {
		if !stderrors.As(cur, &e) {
			return "", false
		}
		if e.Kind == KindBoundary {
			msg, ok := e.Value.(string)
			return msg, ok
		}
		cur = e.Cause
	}
	return "", false
}

// ResourceExhausted creates an allocation failure error
func ResourceExhausted(export string, size uint32, cause error) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindResourceExhausted,
		Export: export,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Value:  size,
		Cause:  cause,
	}
}

// InvalidHandle creates an error for a handle that does not address a live
// value.
func InvalidHandle(handle uint32, detail string) *Error {
	return &Error{
		Phase:  PhaseHandle,
		Kind:   KindInvalidHandle,
		Detail: fmt.Sprintf("handle %d: %s", handle, detail),
		Value:  handle,
	}
}

// OutOfBounds creates an out of bounds memory access error
func OutOfBounds(offset, length uint64, size int) *Error {
	return &Error{
		Phase:  PhaseMemory,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) outside memory of %d bytes", offset, offset+length, size),
		Value:  offset,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
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

// Trap wraps a failed guest call.
func Trap(export string, cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindTrap,
		Export: export,
		Detail: "guest call failed",
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error for missing module/instance
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
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

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Load creates a module loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// Closed creates an error for use of a closed instance or pool.
func Closed(what string) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindClosed,
		Detail: what + " is closed",
	}
}

// ValidText reports whether data is valid UTF-8, returning a marshalling
// error otherwise.
func ValidText(phase Phase, data []byte) error {
	if utf8.Valid(data) {
		return nil
	}
	return InvalidUTF8(phase, data)
}
