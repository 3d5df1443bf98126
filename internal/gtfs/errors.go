package gtfs

import "errors"

var (
	// ErrNotFound marks an unknown route or stop identifier.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks malformed dates or out-of-range parameters.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFeedUnavailable marks a realtime fetch or decode failure. Callers
	// recover from it by answering from the schedule alone.
	ErrFeedUnavailable = errors.New("realtime feed unavailable")
	// ErrStore marks a failed static-schedule query.
	ErrStore = errors.New("schedule store error")
)
