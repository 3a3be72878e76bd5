package cartesian

import (
	"fmt"
	"strings"
)

// Defaults for the simulated iCub right arm.
const (
	DefaultKind    = "cartesiancontrollerclient"
	DefaultRemote  = "/icubSim/cartesianController/right_arm"
	DefaultLocal   = "/cartesian_client/right_arm"
	DefaultNetwork = "http://localhost:10000"

	// InterfaceName is the capability a device must advertise to be usable.
	InterfaceName = "cartesian"
)

// Torso axes in the device's DOF mask and limit numbering.
const (
	AxisTorsoPitch = 0
	AxisTorsoRoll  = 1
	AxisTorsoYaw   = 2
)

// Config describes which controller to open.
// Kind, Local and Remote are passed through to the controller server unchanged.
type Config struct {
	Kind   string `yaml:"kind" json:"kind"`
	Local  string `yaml:"local" json:"local"`
	Remote string `yaml:"remote" json:"remote"`

	// Network is the base URL of the controller server, e.g. "http://localhost:10000".
	Network string `yaml:"-" json:"-"`
}

// DefaultConfig returns the right-arm client configuration.
func DefaultConfig() Config {
	return Config{
		Kind:    DefaultKind,
		Local:   DefaultLocal,
		Remote:  DefaultRemote,
		Network: DefaultNetwork,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Kind == "" {
		return fmt.Errorf("device kind is required")
	}
	if c.Remote == "" {
		return fmt.Errorf("remote endpoint is required")
	}
	if c.Local == "" {
		return fmt.Errorf("local endpoint is required")
	}
	if !strings.HasPrefix(c.Network, "http://") && !strings.HasPrefix(c.Network, "https://") {
		return fmt.Errorf("network must be an http(s) URL, got %q", c.Network)
	}
	return nil
}
