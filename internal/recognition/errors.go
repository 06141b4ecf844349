package recognition

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFaceDetected means no face was found by either detector tier.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrEmptyInput means enrollment was called without images. It also
	// matches ErrNoFaceDetected.
	ErrEmptyInput = fmt.Errorf("%w: no images supplied", ErrNoFaceDetected)
	// ErrNotFound means the identity to edit or delete does not exist.
	ErrNotFound = errors.New("identity not found")
	// ErrStoreUnavailable wraps failures of the identity store.
	ErrStoreUnavailable = errors.New("identity store unavailable")
	// ErrNameTaken means a rename targets a name held by another identity.
	ErrNameTaken = errors.New("identity name already taken")
	// ErrInvalidName means the identity name is empty.
	ErrInvalidName = errors.New("identity name is required")
	// ErrInvalidImage means the query image could not be decoded.
	ErrInvalidImage = errors.New("invalid image")
)

func storeError(err error) error {
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}
