package posesource

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang/geo/r3"

	"github.com/brillian32/icub-arm-imitator/pkg/pose"
	"github.com/brillian32/icub-arm-imitator/pkg/posebus"
)

// DefaultTransferFactor scales human hand displacement into robot frame meters.
const DefaultTransferFactor = 0.60

// Reader is a non-blocking poll of a pose stream.
// Read returns the newest unread sample, or ok false when none is pending.
type Reader interface {
	Read() (sample pose.Sample, ok bool)
}

// subscription is a Reader that must attach before reading.
type subscription interface {
	Subscribe(ctx context.Context) error
	Close() error
}

// Imitation maps human hand samples into robot frame targets.
//
// Source axes are permuted into the robot frame: robot X is the source z,
// robot Y is the source x, robot Z is the source y, each scaled by TransferFactor.
type Imitation struct {
	Reader         Reader
	TransferFactor float64
	Policy         OrientationPolicy
}

// NewImitation returns an imitation source with the orientation zeroed.
func NewImitation(r Reader, transferFactor float64) *Imitation {
	return &Imitation{Reader: r, TransferFactor: transferFactor, Policy: ZeroOut}
}

// Open attaches the reader to its stream when it needs to.
// Failures match posebus.ErrSubscriptionFailed.
func (m *Imitation) Open(ctx context.Context) error {
	sub, ok := m.Reader.(subscription)
	if !ok {
		return nil
	}
	if err := sub.Subscribe(ctx); err != nil {
		if errors.Is(err, posebus.ErrSubscriptionFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", posebus.ErrSubscriptionFailed, err)
	}
	return nil
}

// Close releases the reader's subscription, if any.
func (m *Imitation) Close() error {
	if sub, ok := m.Reader.(subscription); ok {
		return sub.Close()
	}
	return nil
}

// NextTarget polls the reader once. Without a pending sample there is no target.
func (m *Imitation) NextTarget(current pose.Pose) (pose.Pose, bool) {
	s, ok := m.Reader.Read()
	if !ok {
		return pose.Pose{}, false
	}
	return m.Map(s, current), true
}

// NeedsCurrent reports whether targets carry the current orientation.
func (m *Imitation) NeedsCurrent() bool {
	return m.Policy == HoldCurrent
}

// Map converts one sample into a robot frame target.
func (m *Imitation) Map(s pose.Sample, current pose.Pose) pose.Pose {
	tf := m.TransferFactor
	target := pose.Pose{
		Position: r3.Vector{
			X: tf * s.Position.Z,
			Y: tf * s.Position.X,
			Z: tf * s.Position.Y,
		},
	}

	switch m.Policy {
	case HoldCurrent:
		target.Orientation = current.Orientation
	case MapFromSource:
		q := s.Orientation
		target.Orientation = pose.Orientation{q.Z, q.X, q.Y, q.W}
	}
	return target
}

var (
	_ Source    = (*Fixed)(nil)
	_ Source    = (*Imitation)(nil)
	_ Lifecycle = (*Imitation)(nil)
	_ Reader    = (*posebus.Subscriber)(nil)

	_ PoseDependent = (*Fixed)(nil)
	_ PoseDependent = (*Imitation)(nil)
)
