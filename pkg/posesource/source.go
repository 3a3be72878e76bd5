// Package posesource computes the desired end-effector pose for each control tick.
package posesource

import (
	"context"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// Source yields the next target given the pose the device currently reports.
// ok is false when there is nothing to command this tick.
type Source interface {
	NextTarget(current pose.Pose) (target pose.Pose, ok bool)
}

// Lifecycle is implemented by sources that hold a subscription.
type Lifecycle interface {
	Open(ctx context.Context) error
	Close() error
}

// OrientationPolicy decides the orientation of a target.
type OrientationPolicy int

const (
	// HoldCurrent keeps the orientation the device currently reports.
	HoldCurrent OrientationPolicy = iota
	// ZeroOut sends an all-zero orientation.
	ZeroOut
	// MapFromSource maps the sample quaternion with the position axis permutation.
	MapFromSource
)

// String returns the configuration name of the policy.
func (p OrientationPolicy) String() string {
	switch p {
	case HoldCurrent:
		return "hold"
	case ZeroOut:
		return "zero"
	case MapFromSource:
		return "map"
	}
	return fmt.Sprintf("OrientationPolicy(%d)", int(p))
}

// ParsePolicy parses "hold", "zero" or "map".
func ParsePolicy(s string) (OrientationPolicy, error) {
	switch s {
	case "hold":
		return HoldCurrent, nil
	case "zero":
		return ZeroOut, nil
	case "map":
		return MapFromSource, nil
	}
	return 0, fmt.Errorf("unknown orientation policy %q (want hold, zero or map)", s)
}

// PoseDependent is implemented by sources that can tell whether their targets
// depend on the current pose. A source whose targets do not can be polled
// before the device has reported any pose.
type PoseDependent interface {
	NeedsCurrent() bool
}

// DefaultFixedTarget is the position the fixed source commands.
var DefaultFixedTarget = r3.Vector{X: -0.1, Y: 0.1, Z: 0.1}

// Fixed always targets the same position.
type Fixed struct {
	Position r3.Vector
	// Policy is HoldCurrent or ZeroOut. MapFromSource has no source and behaves like HoldCurrent.
	Policy OrientationPolicy
}

// NewFixed returns a fixed source holding the current orientation.
func NewFixed(position r3.Vector) *Fixed {
	return &Fixed{Position: position, Policy: HoldCurrent}
}

// NextTarget returns the fixed position. It always has a target.
func (f *Fixed) NextTarget(current pose.Pose) (pose.Pose, bool) {
	target := pose.Pose{Position: f.Position, Orientation: current.Orientation}
	if f.Policy == ZeroOut {
		target.Orientation = pose.Orientation{}
	}
	return target, true
}

// NeedsCurrent reports whether targets carry the current orientation.
func (f *Fixed) NeedsCurrent() bool {
	return f.Policy != ZeroOut
}
