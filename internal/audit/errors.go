package audit

import "errors"

var (
	// ErrMissingFields is returned when a record lacks its topic, message or user.
	ErrMissingFields = errors.New("audit: missing required fields")

	// ErrWriteFailed wraps every storage or transport failure of a Writer.
	ErrWriteFailed = errors.New("audit: write failed")
)
