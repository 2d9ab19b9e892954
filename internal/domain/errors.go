package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingProviderError signals an embedding provider failure
	// (unreachable, timeout, non-2xx status or unusable payload).
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrUnexpectedResponseShape signals a provider payload that matches no known shape.
	ErrUnexpectedResponseShape = errors.New("unexpected embedding response shape")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrStoreAccess signals a failure talking to the comment store.
	ErrStoreAccess = errors.New("store access error")
	// ErrInvalidLimit signals a non-positive search limit.
	ErrInvalidLimit = errors.New("limit must be positive")
)

// StoreAccessError wraps a store failure with the operation that failed.
// It matches both ErrStoreAccess and the underlying cause via errors.Is.
type StoreAccessError struct {
	Op  string
	Err error
}

func (e *StoreAccessError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreAccess.Error(), e.Op, e.Err)
}

func (e *StoreAccessError) Unwrap() []error { return []error{ErrStoreAccess, e.Err} }

// NewStoreAccessError creates a store access error for the given operation.
func NewStoreAccessError(op string, err error) error {
	return &StoreAccessError{Op: op, Err: err}
}

// ErrorKind classifies failures for the retrieval failure policy.
type ErrorKind string

const (
	// KindNone is returned for a nil error.
	KindNone ErrorKind = ""
	// KindEmbedding covers provider failures, including unexpected shapes.
	KindEmbedding ErrorKind = "embedding"
	// KindStore covers connection, query and dimensionality failures during search.
	KindStore ErrorKind = "store"
	// KindUnknown covers anything else (context cancellation, programming errors).
	KindUnknown ErrorKind = "unknown"
)

// KindOf maps an error onto its ErrorKind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrEmbeddingProviderError):
		return KindEmbedding
	case errors.Is(err, ErrStoreAccess):
		return KindStore
	default:
		return KindUnknown
	}
}
