package powerinfo

import (
	"context"
	"fmt"
)

// Reading is one power source observed during one poll.
type Reading struct {
	SourceID        string `json:"sourceId"`
	CapacityPercent int    `json:"capacityPercent"`
	// IsCharging is true while the source is on external power.
	IsCharging bool `json:"isCharging"`
}

// Reader queries the OS for the current power sources.
//
// Sample returns a *QueryError when the snapshot as a whole could not be
// taken. Sources with missing fields are left out of the result instead of
// failing the sample. An empty result (no battery) is not an error.
type Reader interface {
	Sample(ctx context.Context) ([]Reading, error)
}

// ReaderFunc adapts a function to Reader.
type ReaderFunc func(ctx context.Context) ([]Reading, error)

func (f ReaderFunc) Sample(ctx context.Context) ([]Reading, error) { return f(ctx) }

// QueryError is returned when the power source snapshot is unavailable.
type QueryError struct {
	Op  string
	Err error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("power source query failed: %s: %v", e.Op, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
