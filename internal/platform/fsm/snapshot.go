// Package fsm holds the shared snapshot shape returned by every state
// machine in the protocol engine. A snapshot is immutable: machines build a
// fresh value on each transition and hand out copies, never pointers into
// their own context.
package fsm

import "time"

// Snapshot is the state of a machine at one point in time. Value is the
// state tag, Context the machine-specific data.
type Snapshot[C any] struct {
	Value     string    `json:"value"`
	Context   C         `json:"context"`
	UpdatedAt time.Time `json:"updatedAt"`
}
