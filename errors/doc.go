// Package errors provides structured error types for the typestream module.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the data view path, the offending and expected type names,
// and the cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConvert, errors.KindTypeMismatch).
//		Path(".transform", ".position").
//		Type("string").
//		Expected("Vector3").
//		Detail("no conversion registered").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.UnmappedReference(errors.PhaseWrite, "property", prop)
//	err := errors.BufferOverrun(errors.PhaseRead, pos, 8, len(data))
//
// All errors implement the standard error interface and support errors.Is/As.
// OfKind builds a sentinel that matches a kind regardless of phase.
package errors
