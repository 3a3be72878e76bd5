// Package cartesiantest provides an in-memory cartesian.Device that records every call.
package cartesiantest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// Call names recorded by Spy.
const (
	CallDOF         = "DOF"
	CallSetDOF      = "SetDOF"
	CallLimits      = "Limits"
	CallSetLimits   = "SetLimits"
	CallSetTrajTime = "SetTrajTime"
	CallSetTracking = "SetTrackingMode"
	CallGoToPose    = "GoToPose"
	CallPose        = "Pose"
	CallStopControl = "StopControl"
	CallClose       = "Close"
	CallOpen        = "Open"
)

const defaultDOFLength = 10

// ErrInjected is the default error returned for calls listed in Spy.Fail.
var ErrInjected = errors.New("cartesiantest: injected failure")

// Spy is a fake device. Configure the exported fields before use.
type Spy struct {
	mu sync.Mutex

	// Fail makes the named calls return the mapped error.
	Fail map[string]error

	dof      []float64
	limits   map[int][2]float64
	current  pose.Pose
	trajTime time.Duration
	tracking bool

	calls    []string
	commands []pose.Pose
}

// NewSpy returns a spy with a 10-entry all-enabled DOF mask and torso pitch limits (-50, 80).
func NewSpy() *Spy {
	dof := make([]float64, defaultDOFLength)
	for i := range dof {
		dof[i] = 1
	}
	return &Spy{
		Fail:   make(map[string]error),
		dof:    dof,
		limits: map[int][2]float64{cartesian.AxisTorsoPitch: {-50, 80}},
	}
}

// SetLimitsOf sets the limits of axis without recording a call.
func (s *Spy) SetLimitsOf(axis int, min, max float64) {
	s.mu.Lock()
	s.limits[axis] = [2]float64{min, max}
	s.mu.Unlock()
}

// SetPose sets the pose the spy reports without recording a call.
func (s *Spy) SetPose(p pose.Pose) {
	s.mu.Lock()
	s.current = p
	s.mu.Unlock()
}

// record logs a call and returns its injected error, if any. s.mu must be held.
func (s *Spy) record(name string) error {
	s.calls = append(s.calls, name)
	return s.Fail[name]
}

// DOF implements cartesian.Device.
func (s *Spy) DOF(ctx context.Context) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallDOF); err != nil {
		return nil, err
	}
	return append([]float64(nil), s.dof...), nil
}

// SetDOF implements cartesian.Device.
func (s *Spy) SetDOF(ctx context.Context, dof []float64) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallSetDOF); err != nil {
		return nil, err
	}
	s.dof = append([]float64(nil), dof...)
	return append([]float64(nil), s.dof...), nil
}

// Limits implements cartesian.Device.
func (s *Spy) Limits(ctx context.Context, axis int) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallLimits); err != nil {
		return 0, 0, err
	}
	l := s.limits[axis]
	return l[0], l[1], nil
}

// SetLimits implements cartesian.Device.
func (s *Spy) SetLimits(ctx context.Context, axis int, min, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallSetLimits); err != nil {
		return err
	}
	s.limits[axis] = [2]float64{min, max}
	return nil
}

// SetTrajTime implements cartesian.Device.
func (s *Spy) SetTrajTime(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallSetTrajTime); err != nil {
		return err
	}
	s.trajTime = d
	return nil
}

// SetTrackingMode implements cartesian.Device.
func (s *Spy) SetTrackingMode(ctx context.Context, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallSetTracking); err != nil {
		return err
	}
	s.tracking = enabled
	return nil
}

// GoToPose implements cartesian.Device. The spy's pose does not change.
func (s *Spy) GoToPose(ctx context.Context, p pose.Pose) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallGoToPose); err != nil {
		return err
	}
	s.commands = append(s.commands, p)
	return nil
}

// Pose implements cartesian.Device.
func (s *Spy) Pose(ctx context.Context) (pose.Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record(CallPose); err != nil {
		return pose.Pose{}, err
	}
	return s.current, nil
}

// StopControl implements cartesian.Device.
func (s *Spy) StopControl(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(CallStopControl)
}

// Close implements cartesian.Device.
func (s *Spy) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(CallClose)
}

// Calls returns the names of all calls in order.
func (s *Spy) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Count returns how many times the named call was made.
func (s *Spy) Count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == name {
			n++
		}
	}
	return n
}

// Commands returns every commanded pose in order.
func (s *Spy) Commands() []pose.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pose.Pose(nil), s.commands...)
}

// DOFMask returns the current mask.
func (s *Spy) DOFMask() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.dof...)
}

// LimitsOf returns the limits of axis.
func (s *Spy) LimitsOf(axis int) (min, max float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.limits[axis]
	return l[0], l[1]
}

// Motion returns the configured trajectory time and tracking flag.
func (s *Spy) Motion() (trajTime time.Duration, tracking bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.trajTime, s.tracking
}

// Opener returns an Opener that hands out this spy, or err if non-nil.
// Each Open is recorded.
func (s *Spy) Opener(err error) cartesian.Opener {
	return cartesian.OpenerFunc(func(ctx context.Context, cfg cartesian.Config) (cartesian.Device, error) {
		s.mu.Lock()
		s.calls = append(s.calls, CallOpen)
		s.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return s, nil
	})
}

var _ cartesian.Device = (*Spy)(nil)
