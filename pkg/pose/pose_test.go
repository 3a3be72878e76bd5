package pose

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatVector(t *testing.T) {
	assert.Equal(t, "-0.100000 0.100000 0.100000", FormatVector(-0.1, 0.1, 0.1))
	assert.Equal(t, "", FormatVector())
}

func TestPoseString(t *testing.T) {
	p := New(1, 2, 3, Orientation{0, 0, 1, 3.5})
	assert.Equal(t, "1.000000 2.000000 3.000000 | 0.000000 0.000000 1.000000 3.500000", p.String())
}

func TestWireConversion(t *testing.T) {
	p := New(-0.3, 0.2, 0.05, Orientation{0.1, 0.2, 0.3, 0.4})

	w := p.ToWire()
	assert.Equal(t, [3]float64{-0.3, 0.2, 0.05}, w.Position)
	assert.Equal(t, [4]float64{0.1, 0.2, 0.3, 0.4}, w.Orientation)
	assert.Equal(t, p, FromWire(w))
}

func TestSampleString(t *testing.T) {
	s := Sample{
		Position:    Point{X: 1, Y: 2, Z: 3},
		Orientation: Quaternion{W: 1},
	}
	assert.Equal(t, "1.000000 2.000000 3.000000 | 0.000000 0.000000 0.000000 1.000000", s.String())
}
