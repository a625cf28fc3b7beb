package domain

import "errors"

var (
	// ErrInvalidPayload marks an inbound transport payload that failed decoding or validation.
	ErrInvalidPayload = errors.New("invalid inbound payload")
	// ErrUnknownBlockingAction is returned when a stored rule has an unrecognised action.
	ErrUnknownBlockingAction = errors.New("unknown blocking action")
)
