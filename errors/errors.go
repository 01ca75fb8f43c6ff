package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase names the stage of the pipeline an error came from.
type Phase string

const (
	PhaseRegister Phase = "register" // type registration
	PhaseConvert  Phase = "convert"  // type conversion
	PhaseWrite    Phase = "write"    // opcode stream / binarization
	PhaseRead     Phase = "read"     // binary decoding
	PhaseParse    Phase = "parse"    // data view paths, text values, schemas
	PhaseTables   Phase = "tables"   // resource file tables
	PhaseLoad     Phase = "load"     // resource container loading
	PhaseStore    Phase = "store"    // async buffer stores
)

// Kind is the failure class callers branch on, usually through IsKind.
type Kind string

const (
	KindTypeMismatch       Kind = "type_mismatch"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindInvalidData        Kind = "invalid_data"
	KindUnsupported        Kind = "unsupported"
	KindMissingBinding     Kind = "missing_binding"
	KindUnmappedReference  Kind = "unmapped_reference"
	KindMalformedPath      Kind = "malformed_path"
	KindBufferOverrun      Kind = "buffer_overrun"
	KindOutOfMemory        Kind = "out_of_memory"
	KindSkipMismatch       Kind = "skip_mismatch"
	KindCorrupted          Kind = "corrupted"
	KindChecksum           Kind = "checksum"
	KindNotFound           Kind = "not_found"
	KindNilPointer         Kind = "nil_pointer"
	KindInvalidEnum        Kind = "invalid_enum"
	KindInvalidInput       Kind = "invalid_input"
	KindRegistration       Kind = "registration"
	KindIncompatibleTypes  Kind = "incompatible_types"
	KindUnknownProperty    Kind = "unknown_property"
	KindDuplicateEntry     Kind = "duplicate_entry"
	KindRegistrySealed     Kind = "registry_sealed"
	KindOpcodeMismatch     Kind = "opcode_mismatch"
	KindCompressionFailure Kind = "compression"
)

// Error carries the phase and kind of a failure plus whatever context the
// failing site knew: the data view path, the type involved and the value.
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	Type     string
	Expected string
	Detail   string
	Path     []string
}

// Error renders "phase kind at path: got T, want E; detail: cause", leaving
// out the parts that are empty.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Phase))
	b.WriteByte(' ')
	b.WriteString(string(e.Kind))
	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, ""))
	}

	var notes []string
	switch {
	case e.Type != "" && e.Expected != "":
		notes = append(notes, "got "+e.Type+", want "+e.Expected)
	case e.Type != "":
		notes = append(notes, e.Type)
	case e.Expected != "":
		notes = append(notes, "want "+e.Expected)
	}
	if e.Detail != "" {
		notes = append(notes, e.Detail)
	}
	if len(notes) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(notes, "; "))
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches any phase.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e.Kind != t.Kind {
		return false
	}
	return t.Phase == "" || t.Phase == e.Phase
}

// OfKind returns a sentinel usable with errors.Is that matches any phase.
func OfKind(kind Kind) *Error {
	return &Error{Kind: kind}
}

// IsKind reports whether err, or an error it wraps, is an *Error of kind.
func IsKind(err error, kind Kind) bool {
	return stderrors.Is(err, OfKind(kind))
}

// Builder assembles an Error for sites that know more than the
// constructors take.
type Builder struct {
	err Error
}

func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind}}
}

// Path sets the data view path, one segment per element.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

func (b *Builder) Type(t string) *Builder {
	b.err.Type = t
	return b
}

func (b *Builder) Expected(t string) *Builder {
	b.err.Expected = t
	return b
}

func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail formats msg with args when any are given.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	b.err.Detail = msg
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	}
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// TypeMismatch reports a value of type got where expected was required.
func TypeMismatch(phase Phase, path []string, got, expected string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		Type:     got,
		Expected: expected,
	}
}

// MissingBinding reports a custom type operation with no bound function.
func MissingBinding(phase Phase, typeName, operation string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMissingBinding,
		Type:   typeName,
		Detail: fmt.Sprintf("no %s binding", operation),
	}
}

// UnmappedReference reports a reference absent from the mapping tables.
func UnmappedReference(phase Phase, what string, ref any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnmappedReference,
		Detail: fmt.Sprintf("%s %v is not mapped", what, ref),
		Value:  ref,
	}
}

// MalformedPath reports a data view path that cannot be parsed.
func MalformedPath(path string, detail string) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindMalformedPath,
		Path:   []string{path},
		Detail: detail,
	}
}

// BufferOverrun reports a read past the end of the input.
func BufferOverrun(phase Phase, pos, want, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindBufferOverrun,
		Detail: fmt.Sprintf("read of %d bytes at position %d exceeds length %d", want, pos, length),
		Value:  pos,
	}
}

// SkipMismatch reports unbalanced skip block nesting.
func SkipMismatch(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindSkipMismatch,
		Detail: detail,
	}
}

// Unsupported reports an operation or format the module does not handle.
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds reports an index outside a table, array or section.
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

func NilPointer(phase Phase, path []string, typeName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		Type:   typeName,
		Detail: "nil pointer",
	}
}

// InvalidEnum reports a name or number that is not a member of enumType.
func InvalidEnum(phase Phase, value any, enumType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEnum,
		Type:   enumType,
		Detail: fmt.Sprintf("invalid enum value %v for %s", value, enumType),
		Value:  value,
	}
}

// InvalidData reports malformed input bytes or text.
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// OpcodeMismatch reports a decoded tag that differs from the expected opcode.
func OpcodeMismatch(phase Phase, got, expected string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOpcodeMismatch,
		Detail: fmt.Sprintf("found opcode %s, expected %s", got, expected),
	}
}

// Wrap attaches a phase and kind to a foreign error.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotFound reports a lookup by name that found nothing.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput reports a bad argument from the caller.
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration reports a type that could not be registered or defined.
func Registration(name string, detail string) *Error {
	return &Error{
		Phase:  PhaseRegister,
		Kind:   KindRegistration,
		Type:   name,
		Detail: detail,
	}
}

// Duplicate reports an entry that already exists.
func Duplicate(phase Phase, what string, value any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicateEntry,
		Detail: fmt.Sprintf("duplicate %s %v", what, value),
		Value:  value,
	}
}

// Load wraps an I/O failure while reading a resource container.
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed wraps a decoder failure on a text format such as YAML.
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
