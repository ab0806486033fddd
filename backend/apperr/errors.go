// Package apperr defines the error kinds surfaced by the registration and
// file services. Backing-store failures are converted into these kinds at the
// component boundary so handlers can always render a message.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation failed")
	ErrDelivery           = errors.New("otp delivery failed")
	ErrExpired            = errors.New("otp expired")
	ErrInvalidCode        = errors.New("invalid otp")
	ErrTooManyAttempts    = errors.New("too many otp attempts")
	ErrSessionExpired     = errors.New("no pending registration")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrAccess             = errors.New("access denied")
	ErrStorage            = errors.New("storage failure")
)

// ValidationError is a user-correctable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// DeliveryError reports that the email channel rejected or could not reach
// the recipient.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("otp delivery: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool { return target == ErrDelivery }

// AccessError is an ownership mismatch. Users must see it exactly like a
// missing file.
type AccessError struct {
	FileID string
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("file %s: access denied", e.FileID)
}

func (e *AccessError) Is(target error) bool { return target == ErrAccess }

// Layer says which backing store a StorageError came from.
type Layer string

const (
	LayerBlob     Layer = "blob"
	LayerMetadata Layer = "metadata"
)

// StorageError is a failed call to a backing store.
type StorageError struct {
	Layer Layer
	Op    string
	Err   error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s store: %s: %v", e.Layer, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// Blob wraps err as a blob-layer StorageError.
func Blob(op string, err error) error {
	return &StorageError{Layer: LayerBlob, Op: op, Err: err}
}

// Metadata wraps err as a metadata-layer StorageError.
func Metadata(op string, err error) error {
	return &StorageError{Layer: LayerMetadata, Op: op, Err: err}
}

// LayerOf returns the layer of the first StorageError in err's chain.
func LayerOf(err error) (Layer, bool) {
	var se *StorageError
	if errors.As(err, &se) {
		return se.Layer, true
	}
	return "", false
}
