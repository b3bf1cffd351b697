package domain

import "errors"

var (
	// ErrMissingConversationID is returned when an inbound payload carries no
	// resolvable conversation id in any of its known fields.
	ErrMissingConversationID = errors.New("missing conversation id")

	// ErrMissingParameter is returned when a required request parameter is absent.
	ErrMissingParameter = errors.New("missing required parameter")
)
