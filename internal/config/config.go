// Package config provides configuration for the arm control commands.
//
// Values are layered: per-command defaults, then an optional YAML file,
// then environment variables, then command-line flags set by the caller.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/control"
	"github.com/brillian32/icub-arm-imitator/pkg/posesource"
	"github.com/brillian32/icub-arm-imitator/pkg/session"
)

// Environment variables read by ApplyEnv.
const (
	EnvNetwork  = "ICUB_NETWORK"
	EnvRemote   = "ICUB_REMOTE"
	EnvLocal    = "ICUB_LOCAL"
	EnvTopic    = "ICUB_TOPIC"
	EnvLogLevel = "LOG_LEVEL"
)

// DefaultTopic is the human hand pose topic.
const DefaultTopic = "/icub/jointPose"

// SourceConfig describes where targets come from.
type SourceConfig struct {
	// Target is the fixed position in meters (follower).
	Target [3]float64 `yaml:"target" json:"target"`

	// Topic is the human pose topic (imitator).
	Topic string `yaml:"topic" json:"topic"`

	// Node names this process on the pose stream.
	Node string `yaml:"node" json:"node"`

	// TransferFactor scales human displacement into robot meters.
	TransferFactor float64 `yaml:"transfer_factor" json:"transfer_factor"`

	// Orientation is "hold", "zero" or "map".
	Orientation string `yaml:"orientation" json:"orientation"`

	// MonitorTopic is an extra topic that is only logged. Empty disables it.
	MonitorTopic string `yaml:"monitor_topic" json:"monitor_topic"`
}

// Config is the full configuration of one control command.
type Config struct {
	Name string `yaml:"name" json:"name"`

	// Network is the base URL of the robot middleware.
	Network string `yaml:"network" json:"network"`

	Device cartesian.Config     `yaml:"device" json:"device"`
	Torso  session.TorsoConfig  `yaml:"torso" json:"torso"`
	Motion session.MotionConfig `yaml:"motion" json:"motion"`

	Period   time.Duration `yaml:"period" json:"period"`
	Duration time.Duration `yaml:"duration" json:"duration"`

	Source SourceConfig `yaml:"source" json:"source"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultFollower returns the fixed-target follower configuration.
func DefaultFollower() Config {
	return Config{
		Name:    "joint-follower",
		Network: cartesian.DefaultNetwork,
		Device:  cartesian.DefaultConfig(),
		Torso:   session.DefaultTorso(),
		Motion: session.MotionConfig{
			Mode:     session.Trajectory,
			TrajTime: session.DefaultTrajTime,
		},
		Period:   40 * time.Millisecond,
		Duration: 4 * time.Second,
		Source: SourceConfig{
			Target:         [3]float64{-0.1, 0.1, 0.1},
			Node:           "/icub_joint_follower",
			TransferFactor: posesource.DefaultTransferFactor,
			Orientation:    posesource.HoldCurrent.String(),
			MonitorTopic:   DefaultTopic,
		},
		LogLevel: "info",
	}
}

// DefaultImitator returns the human pose imitator configuration.
func DefaultImitator() Config {
	return Config{
		Name:    "arm-imitator",
		Network: cartesian.DefaultNetwork,
		Device:  cartesian.DefaultConfig(),
		Torso:   session.DefaultTorso(),
		Motion: session.MotionConfig{
			Mode: session.Tracking,
		},
		Period:   20 * time.Millisecond,
		Duration: time.Hour,
		Source: SourceConfig{
			Topic:          DefaultTopic,
			Node:           "/icub_arm_imitator/arm_poses",
			TransferFactor: posesource.DefaultTransferFactor,
			Orientation:    posesource.ZeroOut.String(),
		},
		LogLevel: "info",
	}
}

// Load reads a YAML file over base. Keys missing from the file keep their base value.
// An empty path returns base unchanged.
func Load(path string, base Config) (Config, error) {
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides endpoints, topic and log level from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvNetwork); v != "" {
		c.Network = v
	}
	if v := os.Getenv(EnvRemote); v != "" {
		c.Device.Remote = v
	}
	if v := os.Getenv(EnvLocal); v != "" {
		c.Device.Local = v
	}
	if v := os.Getenv(EnvTopic); v != "" {
		c.Source.Topic = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Network, "http://") && !strings.HasPrefix(c.Network, "https://") {
		return fmt.Errorf("network must be an http(s) URL, got %q", c.Network)
	}
	dev := c.DeviceConfig()
	if err := dev.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if err := c.Motion.Validate(); err != nil {
		return fmt.Errorf("motion: %w", err)
	}
	if c.Period <= 0 {
		return fmt.Errorf("period must be positive, got %v", c.Period)
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %v", c.Duration)
	}
	if c.Source.TransferFactor <= 0 {
		return fmt.Errorf("transfer factor must be positive, got %v", c.Source.TransferFactor)
	}
	if _, err := posesource.ParsePolicy(c.Source.Orientation); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// DeviceConfig returns the device configuration with the network filled in.
func (c *Config) DeviceConfig() cartesian.Config {
	dev := c.Device
	dev.Network = c.Network
	return dev
}

// OrientationPolicy returns the parsed orientation policy. Call after Validate.
func (c *Config) OrientationPolicy() posesource.OrientationPolicy {
	p, _ := posesource.ParsePolicy(c.Source.Orientation)
	return p
}

// ControlConfig returns the settings of the control task.
func (c *Config) ControlConfig() control.Config {
	return control.Config{
		Name:   c.Name,
		Period: c.Period,
		Device: c.DeviceConfig(),
		Torso:  c.Torso,
		Motion: c.Motion,
	}
}
