// Package pose defines the end-effector pose types shared by the control loops,
// the device client and the pose stream.
package pose

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"
)

// Orientation is a 4-component orientation in device order.
// The cartesian controller uses axis-angle: x, y, z of the axis, then the angle in radians.
type Orientation [4]float64

// Pose is an end-effector position (meters) and orientation.
type Pose struct {
	Position    r3.Vector
	Orientation Orientation
}

// New builds a Pose from raw components.
func New(x, y, z float64, o Orientation) Pose {
	return Pose{Position: r3.Vector{X: x, Y: y, Z: z}, Orientation: o}
}

// String formats the pose the way the controller prints vectors: space separated.
func (p Pose) String() string {
	return FormatVector(p.Position.X, p.Position.Y, p.Position.Z) + " | " + FormatVector(p.Orientation[:]...)
}

// FormatVector joins values with single spaces using 6 decimal places.
func FormatVector(vals ...float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', 6, 64)
	}
	return strings.Join(parts, " ")
}

// Wire is the JSON form of a Pose exchanged with the controller server.
type Wire struct {
	Position    [3]float64 `json:"position"`
	Orientation [4]float64 `json:"orientation"`
}

// ToWire converts a Pose into its JSON representation.
func (p Pose) ToWire() Wire {
	return Wire{
		Position:    [3]float64{p.Position.X, p.Position.Y, p.Position.Z},
		Orientation: p.Orientation,
	}
}

// FromWire converts the JSON representation back into a Pose.
func FromWire(w Wire) Pose {
	return New(w.Position[0], w.Position[1], w.Position[2], w.Orientation)
}

// Point is a named 3D point as carried by geometry_msgs/Pose.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Quaternion is a unit quaternion as carried by geometry_msgs/Pose.
type Quaternion struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
	W float64 `json:"w" yaml:"w"`
}

// Sample is one human hand pose published on the pose stream.
type Sample struct {
	Position    Point      `json:"position" yaml:"position"`
	Orientation Quaternion `json:"orientation" yaml:"orientation"`

	// Seq and Stamp (unix milliseconds) are set by the publisher; both are optional.
	Seq   uint64 `json:"seq,omitempty" yaml:"seq,omitempty"`
	Stamp int64  `json:"stamp,omitempty" yaml:"stamp,omitempty"`
}

// String formats the sample for console diagnostics.
func (s Sample) String() string {
	return fmt.Sprintf("%s | %s",
		FormatVector(s.Position.X, s.Position.Y, s.Position.Z),
		FormatVector(s.Orientation.X, s.Orientation.Y, s.Orientation.Z, s.Orientation.W))
}
