package speech

import "errors"

// Common errors for the output pipeline.
var (
	// Sink errors
	ErrSinkFailure     = errors.New("output sink failed")
	ErrSinkUnavailable = errors.New("output sink is not available")
	ErrSinkClosed      = errors.New("output sink has been closed")

	// Input errors
	ErrInvalidPriority = errors.New("invalid priority")
	ErrEmptyUtterance  = errors.New("utterance has nothing to output")

	// General errors
	ErrCanceled = errors.New("output was canceled")
)
