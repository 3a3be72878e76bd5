package session

import (
	"fmt"
	"time"
)

// DefaultMaxTorsoPitch is the torso pitch upper limit in degrees.
const DefaultMaxTorsoPitch = 30.0

// DefaultTrajTime is the point-to-point transit time used by the fixed-target follower.
const DefaultTrajTime = time.Second

// TorsoConfig says which torso joints take part in the cartesian solution
// and how far the torso may pitch forward.
type TorsoConfig struct {
	Pitch bool `yaml:"pitch" json:"pitch"`
	Roll  bool `yaml:"roll" json:"roll"`
	Yaw   bool `yaml:"yaw" json:"yaw"`

	// MaxPitch replaces the upper limit of the pitch axis. The lower limit is kept.
	MaxPitch float64 `yaml:"max_pitch" json:"max_pitch"`
}

// DefaultTorso disables all three torso joints and caps pitch at 30 degrees.
func DefaultTorso() TorsoConfig {
	return TorsoConfig{MaxPitch: DefaultMaxTorsoPitch}
}

// MotionMode selects how pose commands are executed by the device.
type MotionMode string

const (
	// Trajectory executes each command as a point-to-point move of fixed duration.
	Trajectory MotionMode = "trajectory"
	// Tracking follows a continuously updated target.
	Tracking MotionMode = "tracking"
)

// MotionConfig picks one motion policy.
type MotionConfig struct {
	Mode MotionMode `yaml:"mode" json:"mode"`

	// TrajTime is used in Trajectory mode only.
	TrajTime time.Duration `yaml:"traj_time" json:"traj_time"`
}

// Validate checks that the configuration is usable.
func (m MotionConfig) Validate() error {
	switch m.Mode {
	case Trajectory:
		if m.TrajTime <= 0 {
			return fmt.Errorf("trajectory time must be positive, got %v", m.TrajTime)
		}
	case Tracking:
	default:
		return fmt.Errorf("unknown motion mode %q (want %q or %q)", m.Mode, Trajectory, Tracking)
	}
	return nil
}
