// Package cartesian is the client side of a cartesian controller: the device that accepts
// end-effector targets and resolves joint motion itself.
//
// The capability is split into small interfaces. Consumers should depend only on the
// ones they use; Device composes all of them.
package cartesian

import (
	"context"
	"time"

	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// DOFController reads and reconfigures the solver's degree-of-freedom mask.
type DOFController interface {
	DOF(ctx context.Context) ([]float64, error)
	// SetDOF requests a new mask and returns the mask the device actually applied.
	SetDOF(ctx context.Context, dof []float64) ([]float64, error)
}

// LimitController reads and writes per-axis joint limits in degrees.
type LimitController interface {
	Limits(ctx context.Context, axis int) (min, max float64, err error)
	SetLimits(ctx context.Context, axis int, min, max float64) error
}

// MotionPolicyController selects how pose commands are executed.
type MotionPolicyController interface {
	// SetTrajTime sets the transit time of point-to-point moves.
	SetTrajTime(ctx context.Context, d time.Duration) error
	// SetTrackingMode switches continuous target tracking on or off.
	SetTrackingMode(ctx context.Context, enabled bool) error
}

// PoseController commands and observes the end-effector pose.
type PoseController interface {
	// GoToPose requests a move and returns without waiting for it.
	// Only local failures (e.g. a closed device) are reported.
	GoToPose(ctx context.Context, p pose.Pose) error
	// Pose returns the last pose the device reported.
	Pose(ctx context.Context) (pose.Pose, error)
}

// Device is the full cartesian control capability.
type Device interface {
	DOFController
	LimitController
	MotionPolicyController
	PoseController

	// StopControl cancels any in-flight move.
	StopControl(ctx context.Context) error
	// Close releases the connection.
	Close() error
}

// Opener opens a Device from a configuration.
type Opener interface {
	Open(ctx context.Context, cfg Config) (Device, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, cfg Config) (Device, error)

// Open calls f(ctx, cfg).
func (f OpenerFunc) Open(ctx context.Context, cfg Config) (Device, error) {
	return f(ctx, cfg)
}

// Ensure Client implements Device
var _ Device = (*Client)(nil)
