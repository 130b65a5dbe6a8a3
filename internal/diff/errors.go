package diff

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSnapshot indicates snapshot metadata is internally inconsistent
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvalidOps indicates an operation list cannot be applied to a snapshot
	ErrInvalidOps = errors.New("invalid edit operations")
)

// ErrorCode identifies why a snapshot was rejected.
type ErrorCode string

const (
	ErrorCodeRunOutOfRange ErrorCode = "RUN_OUT_OF_RANGE"
	ErrorCodeRunInverted   ErrorCode = "RUN_INVERTED"
	ErrorCodeRunOverlap    ErrorCode = "RUN_OVERLAP"
)

// SnapshotError describes an inconsistent snapshot.
type SnapshotError struct {
	Code    ErrorCode
	Run     int // index of the offending run
	Offset  int // offending offset
	Message string
}

// Error implements the error interface
func (e *SnapshotError) Error() string {
	return fmt.Sprintf("%s: %s (run %d, offset %d)", e.Code, e.Message, e.Run, e.Offset)
}

// Unwrap makes errors.Is(err, ErrInvalidSnapshot) hold.
func (e *SnapshotError) Unwrap() error {
	return ErrInvalidSnapshot
}
