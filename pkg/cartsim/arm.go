// Package cartsim simulates the cartesian controller of the iCub simulator's arms.
//
// It stands in for the external controller so the control programs and their
// integration tests run without the robot software. There is no inverse
// kinematics: the end-effector pose is filtered toward the commanded target.
package cartsim

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/hub"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// arrivalTolerance is the distance (meters) under which a move is considered done.
const arrivalTolerance = 1e-4

// defaultLimits are the iCub torso (pitch, roll, yaw) and right-arm joint limits in degrees.
var defaultLimits = [][2]float64{
	{-22, 70}, {-30, 30}, {-50, 50},
	{-95.5, 8}, {0, 160.8}, {-37, 100}, {15.5, 106}, {-60, 90}, {-80, 0}, {-20, 40},
}

// HomePose is the right hand pose the simulated arm starts in.
var HomePose = pose.New(-0.3, 0.1, 0.1, pose.Orientation{-0.0189, -0.8577, 0.5138, 2.8622})

// Arm is one simulated cartesian controller.
type Arm struct {
	name       string
	interfaces []string
	telemetry  *hub.Hub

	mu       sync.Mutex
	dof      []float64
	limits   [][2]float64
	current  pose.Pose
	target   pose.Pose
	trajTime time.Duration
	tracking bool
	moving   bool
	commands uint64
	stops    uint64
}

// NewArm creates a simulated arm with the default iCub limits, torso enabled.
func NewArm(name string) *Arm {
	return newDevice(name, []string{cartesian.InterfaceName})
}

func newDevice(name string, interfaces []string) *Arm {
	limits := make([][2]float64, len(defaultLimits))
	copy(limits, defaultLimits)

	dof := make([]float64, len(limits))
	for i := range dof {
		dof[i] = 1
	}

	return &Arm{
		name:       name,
		interfaces: interfaces,
		telemetry:  hub.New(name),
		dof:        dof,
		limits:     limits,
		current:    HomePose,
		target:     HomePose,
		trajTime:   2 * time.Second,
	}
}

// Name returns the remote endpoint name of the arm.
func (a *Arm) Name() string {
	return a.name
}

// HasCartesian reports whether the device exposes cartesian control.
func (a *Arm) HasCartesian() bool {
	for _, i := range a.interfaces {
		if i == cartesian.InterfaceName {
			return true
		}
	}
	return false
}

// DOF returns a copy of the DOF mask.
func (a *Arm) DOF() []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]float64, len(a.dof))
	copy(out, a.dof)
	return out
}

// SetDOF applies a new mask. Values are normalized to 0 or 1.
func (a *Arm) SetDOF(dof []float64) ([]float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(dof) != len(a.dof) {
		return nil, fmt.Errorf("dof mask has %d entries, want %d", len(dof), len(a.dof))
	}
	for i, v := range dof {
		if v > 0.5 {
			a.dof[i] = 1
		} else {
			a.dof[i] = 0
		}
	}
	out := make([]float64, len(a.dof))
	copy(out, a.dof)
	return out, nil
}

// Limits returns the limits of axis.
func (a *Arm) Limits(axis int) (float64, float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if axis < 0 || axis >= len(a.limits) {
		return 0, 0, fmt.Errorf("axis %d out of range [0, %d)", axis, len(a.limits))
	}
	return a.limits[axis][0], a.limits[axis][1], nil
}

// SetLimits replaces the limits of axis.
func (a *Arm) SetLimits(axis int, min, max float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if axis < 0 || axis >= len(a.limits) {
		return fmt.Errorf("axis %d out of range [0, %d)", axis, len(a.limits))
	}
	if min > max {
		return fmt.Errorf("min %.2f greater than max %.2f", min, max)
	}
	a.limits[axis] = [2]float64{min, max}
	return nil
}

// SetTrajTime sets the point-to-point transit time.
func (a *Arm) SetTrajTime(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("trajectory time must be positive, got %v", d)
	}
	a.mu.Lock()
	a.trajTime = d
	a.mu.Unlock()
	return nil
}

// SetTracking toggles tracking mode.
func (a *Arm) SetTracking(enabled bool) {
	a.mu.Lock()
	a.tracking = enabled
	a.mu.Unlock()
}

// Tracking reports whether tracking mode is on.
func (a *Arm) Tracking() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tracking
}

// GoToPose sets a new target.
func (a *Arm) GoToPose(p pose.Pose) {
	a.mu.Lock()
	a.target = p
	a.moving = true
	a.commands++
	a.mu.Unlock()
}

// Pose returns the current end-effector pose.
func (a *Arm) Pose() pose.Pose {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

// Stop freezes the target at the current pose.
func (a *Arm) Stop() {
	a.mu.Lock()
	a.target = a.current
	a.moving = false
	a.stops++
	a.mu.Unlock()
}

// Counters returns how many pose commands and stops the arm has received.
func (a *Arm) Counters() (commands, stops uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.commands, a.stops
}

// Step advances the simulation by dt and returns the resulting state frame.
//
// Both motion policies use a first-order filter toward the target whose time
// constant is a third of the trajectory time, so a point-to-point move settles
// in roughly trajTime. Tracking mode follows each new target the same way.
func (a *Arm) Step(dt time.Duration) cartesian.StateFrame {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.moving {
		tau := a.trajTime.Seconds() / 3
		alpha := 1 - math.Exp(-dt.Seconds()/tau)

		cur, tgt := a.current, a.target
		cur.Position = cur.Position.Add(tgt.Position.Sub(cur.Position).Mul(alpha))
		for i := range cur.Orientation {
			cur.Orientation[i] += alpha * (tgt.Orientation[i] - cur.Orientation[i])
		}
		a.current = cur

		if tgt.Position.Sub(cur.Position).Norm() < arrivalTolerance {
			a.current = tgt
			a.moving = false
		}
	}

	return cartesian.StateFrame{
		Wire:   a.current.ToWire(),
		Moving: a.moving,
		Stamp:  time.Now().UnixMilli(),
	}
}
