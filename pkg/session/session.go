// Package session owns one cartesian device for the lifetime of a control run:
// opening it, the one-time torso configuration, the motion policy, and teardown.
//
// A Session has a single owner. Only Close is safe to call from another goroutine.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

var (
	// ErrNotConfigured is returned by CommandPose before ConfigureDOFAndLimits has succeeded.
	ErrNotConfigured = errors.New("session: DOF and limits not configured")

	// ErrClosed is returned by operations on a closed session.
	ErrClosed = errors.New("session: closed")
)

// Session is an open cartesian device.
type Session struct {
	dev    cartesian.Device
	remote string
	torso  TorsoConfig

	configured atomic.Bool

	closeOnce sync.Once
	closed    chan struct{}
}

// Open opens the device described by cfg.
// The error is the opener's, so errors.Is matches cartesian.ErrDeviceOpenFailed
// and cartesian.ErrInterfaceUnavailable.
func Open(ctx context.Context, opener cartesian.Opener, cfg cartesian.Config, torso TorsoConfig) (*Session, error) {
	dev, err := opener.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Remote, err)
	}
	return New(dev, cfg.Remote, torso), nil
}

// New wraps an already opened device.
func New(dev cartesian.Device, remote string, torso TorsoConfig) *Session {
	return &Session{
		dev:    dev,
		remote: remote,
		torso:  torso,
		closed: make(chan struct{}),
	}
}

// Remote returns the device endpoint name.
func (s *Session) Remote() string {
	return s.remote
}

// Configured reports whether ConfigureDOFAndLimits has succeeded.
func (s *Session) Configured() bool {
	return s.configured.Load()
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

func flag(enabled bool) float64 {
	if enabled {
		return 1
	}
	return 0
}

// ConfigureDOFAndLimits applies the torso DOF policy and caps the torso pitch limit.
// It must succeed before any pose is commanded.
func (s *Session) ConfigureDOFAndLimits(ctx context.Context) error {
	if s.isClosed() {
		return ErrClosed
	}

	cur, err := s.dev.DOF(ctx)
	if err != nil {
		return fmt.Errorf("read DOF: %w", err)
	}
	if len(cur) <= cartesian.AxisTorsoYaw {
		return fmt.Errorf("DOF mask has %d entries, want at least %d", len(cur), cartesian.AxisTorsoYaw+1)
	}

	dof := make([]float64, len(cur))
	copy(dof, cur)
	dof[cartesian.AxisTorsoPitch] = flag(s.torso.Pitch)
	dof[cartesian.AxisTorsoRoll] = flag(s.torso.Roll)
	dof[cartesian.AxisTorsoYaw] = flag(s.torso.Yaw)

	applied, err := s.dev.SetDOF(ctx, dof)
	if err != nil {
		return fmt.Errorf("write DOF: %w", err)
	}
	log.Info("DOF configured", "remote", s.remote, "dof", pose.FormatVector(applied...))

	min, max, err := s.dev.Limits(ctx, cartesian.AxisTorsoPitch)
	if err != nil {
		return fmt.Errorf("read torso pitch limits: %w", err)
	}
	if err := s.dev.SetLimits(ctx, cartesian.AxisTorsoPitch, min, s.torso.MaxPitch); err != nil {
		return fmt.Errorf("write torso pitch limits: %w", err)
	}
	log.Info("torso pitch limited", "remote", s.remote, "min", min, "max", s.torso.MaxPitch, "was", max)

	s.configured.Store(true)
	return nil
}

// SetTrajectoryTime makes commands point-to-point moves lasting d.
func (s *Session) SetTrajectoryTime(ctx context.Context, d time.Duration) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.dev.SetTrajTime(ctx, d); err != nil {
		return fmt.Errorf("set trajectory time: %w", err)
	}
	return nil
}

// SetTrackingMode switches continuous target tracking on or off.
func (s *Session) SetTrackingMode(ctx context.Context, enabled bool) error {
	if s.isClosed() {
		return ErrClosed
	}
	if err := s.dev.SetTrackingMode(ctx, enabled); err != nil {
		return fmt.Errorf("set tracking mode: %w", err)
	}
	return nil
}

// ApplyMotion configures the motion policy m selects.
func (s *Session) ApplyMotion(ctx context.Context, m MotionConfig) error {
	if err := m.Validate(); err != nil {
		return err
	}
	switch m.Mode {
	case Tracking:
		return s.SetTrackingMode(ctx, true)
	default:
		return s.SetTrajectoryTime(ctx, m.TrajTime)
	}
}

// CommandPose asks the device to move toward p without waiting for it.
func (s *Session) CommandPose(ctx context.Context, p pose.Pose) error {
	if s.isClosed() {
		return ErrClosed
	}
	if !s.configured.Load() {
		return ErrNotConfigured
	}
	return s.dev.GoToPose(ctx, p)
}

// CurrentPose returns the pose the device last reported.
func (s *Session) CurrentPose(ctx context.Context) (pose.Pose, error) {
	if s.isClosed() {
		return pose.Pose{}, ErrClosed
	}
	return s.dev.Pose(ctx)
}

// Close stops motion if the session was configured, then releases the device.
// Only the first call has any effect.
func (s *Session) Close(ctx context.Context) error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		var stopErr error
		if s.configured.Load() {
			if stopErr = s.dev.StopControl(ctx); stopErr != nil {
				stopErr = fmt.Errorf("stop control: %w", stopErr)
			}
		}
		err = errors.Join(stopErr, s.dev.Close())
		log.Info("session closed", "remote", s.remote)
	})
	return err
}
