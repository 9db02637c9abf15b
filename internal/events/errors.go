package events

import "errors"

var (
	// ErrQueueFull is returned by PublishAsync when the async worker
	// pool's backlog channel is saturated.
	ErrQueueFull = errors.New("event queue full")
)
