package alloc

import (
	"errors"
	"fmt"
)

var (
	// ErrInfeasibleDemand: no supplier subset covers total per-item demand.
	ErrInfeasibleDemand = errors.New("insufficient stock for demand")
	// ErrStuck: a destination cannot be fully covered by any single
	// remaining supplier during sequential assignment.
	ErrStuck = errors.New("allocation stuck")
)

// DemandError reports which item and destination made demand infeasible.
type DemandError struct {
	Item        string
	Destination int
}

func (e *DemandError) Error() string {
	if e.Item == "" {
		return fmt.Sprintf("insufficient stock for destination %d", e.Destination)
	}
	return fmt.Sprintf("insufficient stock of %q for destination %d", e.Item, e.Destination)
}

func (e *DemandError) Unwrap() error { return ErrInfeasibleDemand }

// StuckError reports the destination no single supplier could cover.
type StuckError struct {
	Destination int
}

func (e *StuckError) Error() string {
	return fmt.Sprintf("no single supplier covers destination %d", e.Destination)
}

func (e *StuckError) Unwrap() error { return ErrStuck }
