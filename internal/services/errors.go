// Package services defines the business logic for the summarization
// pipeline. This file centralizes common service-level error values so that
// they can be consistently returned by service methods and checked by
// callers.
//
// These errors are intended for internal use by the service layer; the bot
// command layer translates them into user-facing chat replies.
package services

import "errors"

var (
	// ErrNoMessages indicates that the requested window matched no stored
	// messages. It is a defined empty state, not a failure: the caller
	// should render "nothing to summarize" and must not invoke generation.
	ErrNoMessages = errors.New("no messages to summarize")

	// ErrInvalidWindow is returned when a window size is zero or negative.
	// Validation belongs to the caller; this is the service's backstop.
	ErrInvalidWindow = errors.New("window size must be positive")
)
