package actor

import "errors"

var (
	// Lifecycle errors
	ErrNotInitialized = errors.New("actor not yet initialized")
	ErrDestroyed      = errors.New("actor destroyed")
	ErrDisabled       = errors.New("actor disabled")

	// Validation errors
	ErrUnknownTopic = errors.New("unknown message")
	ErrNoBehavior   = errors.New("behavior definition is required")

	// Routing errors
	ErrNoChildToForward = errors.New("No child to forward message to.")
)
