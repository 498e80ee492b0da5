package types

import "github.com/google/uuid"

// RequestType distinguishes a sideline-request's intent. The core treats
// the request body as opaque; only the type is ever inspected.
type RequestType string

const (
	RequestStart RequestType = "start"
	RequestStop  RequestType = "stop"
)

// SidelineRequest is the side-channel metadata persisted next to offsets,
// keyed by request ID. RequestBody is an opaque blob to the core; only the
// persistence adapter and its caller give it meaning.
//
// StartingState is captured when the request is accepted; EndingState is
// filled in once the request is marked stopped (absent while still
// running). Both are snapshots produced by the same flush the consumer
// already performs, not something the core recomputes.
type SidelineRequest struct {
	Type          RequestType
	ID            string
	RequestBody   []byte
	StartingState map[PartitionKey]int64
	EndingState   map[PartitionKey]int64 // nil until the request is stopped
}

// NewSidelineRequestID returns a fresh random request ID. Callers are not
// required to use it — the core only ever treats IDs as opaque map keys —
// but it is the default generator for callers that don't mint their own.
func NewSidelineRequestID() string {
	return uuid.New().String()
}
