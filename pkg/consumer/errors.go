package consumer

import "errors"

// Lifecycle errors (spec §4.5, §7): fatal for the operation, recoverable
// by correcting the call site rather than by retrying.
var (
	ErrNotOpen     = errors.New("consumer: not open")
	ErrAlreadyOpen = errors.New("consumer: already open")
)
