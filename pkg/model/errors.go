package model

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned when a document is not found
	ErrNotFound = errors.New("document not found")
	// ErrExists is returned when trying to create a document that already exists
	ErrExists = errors.New("document already exists")
	// ErrMalformedID is returned when a textual identifier cannot be decoded
	ErrMalformedID = errors.New("malformed document id")
	// ErrInvalidDocumentID is returned when a document carries an identity value
	// that is not a document id
	ErrInvalidDocumentID = errors.New("invalid document id")
	// ErrInvalidCollection is returned when a collection name is empty or malformed
	ErrInvalidCollection = errors.New("invalid collection name")
	// ErrMutationFailed is returned when an update run is rolled back; no document
	// touched by the run retains any change
	ErrMutationFailed = errors.New("mutation failed")
	// ErrClosed is returned when an operation is attempted on a closed database
	ErrClosed = errors.New("database closed")
	// ErrCanceled is returned when the operation is canceled by the client
	ErrCanceled = errors.New("operation canceled")
)

// WrapError converts context.Canceled and context.DeadlineExceeded to ErrCanceled.
// Other errors pass through unchanged.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if IsCanceled(err) {
		return ErrCanceled
	}
	return err
}

// IsCanceled returns true if the error is due to context cancellation or deadline exceeded.
func IsCanceled(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, ErrCanceled)
}
