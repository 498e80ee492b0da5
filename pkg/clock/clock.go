// Package clock provides the injectable time source the Consumer uses to
// drive its auto-commit cadence (spec §9 "Injectable clock").
package clock

import "time"

// Clock is the capability the Consumer needs: the current instant.
type Clock interface {
	Now() time.Time
}

// System is the default, wall-clock-backed Clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }
