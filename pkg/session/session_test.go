package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian/cartesiantest"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

func openSpy(t *testing.T, spy *cartesiantest.Spy, torso TorsoConfig) *Session {
	t.Helper()
	s, err := Open(context.Background(), spy.Opener(nil), cartesian.DefaultConfig(), torso)
	require.NoError(t, err)
	return s
}

func TestOpenPropagatesConnectError(t *testing.T) {
	spy := cartesiantest.NewSpy()
	cause := &cartesian.ConnectError{Remote: cartesian.DefaultRemote, Kind: cartesian.ErrInterfaceUnavailable}

	_, err := Open(context.Background(), spy.Opener(cause), cartesian.DefaultConfig(), DefaultTorso())
	require.Error(t, err)
	assert.ErrorIs(t, err, cartesian.ErrInterfaceUnavailable)
}

func TestConfigureClampsTorsoPitch(t *testing.T) {
	spy := cartesiantest.NewSpy()
	spy.SetLimitsOf(cartesian.AxisTorsoPitch, -50, 80)
	s := openSpy(t, spy, DefaultTorso())

	require.NoError(t, s.ConfigureDOFAndLimits(context.Background()))

	min, max := spy.LimitsOf(cartesian.AxisTorsoPitch)
	assert.Equal(t, -50.0, min, "lower bound preserved")
	assert.Equal(t, 30.0, max, "upper bound clamped")
	assert.True(t, s.Configured())
}

func TestConfigureDisablesTorsoByDefault(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, DefaultTorso())

	require.NoError(t, s.ConfigureDOFAndLimits(context.Background()))

	mask := spy.DOFMask()
	assert.Equal(t, []float64{0, 0, 0}, mask[:3])
	for i, v := range mask[3:] {
		assert.Equal(t, 1.0, v, "arm joint %d untouched", i+3)
	}
}

func TestConfigureTorsoPolicy(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, TorsoConfig{Pitch: true, Yaw: true, MaxPitch: 25})

	require.NoError(t, s.ConfigureDOFAndLimits(context.Background()))

	assert.Equal(t, []float64{1, 0, 1}, spy.DOFMask()[:3])
	_, max := spy.LimitsOf(cartesian.AxisTorsoPitch)
	assert.Equal(t, 25.0, max)
}

func TestConfigureCallOrder(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, DefaultTorso())

	require.NoError(t, s.ConfigureDOFAndLimits(context.Background()))

	assert.Equal(t, []string{
		cartesiantest.CallOpen,
		cartesiantest.CallDOF,
		cartesiantest.CallSetDOF,
		cartesiantest.CallLimits,
		cartesiantest.CallSetLimits,
	}, spy.Calls())
}

func TestConfigureFailure(t *testing.T) {
	spy := cartesiantest.NewSpy()
	spy.Fail[cartesiantest.CallLimits] = cartesiantest.ErrInjected
	s := openSpy(t, spy, DefaultTorso())

	err := s.ConfigureDOFAndLimits(context.Background())
	assert.ErrorIs(t, err, cartesiantest.ErrInjected)
	assert.False(t, s.Configured())
	assert.ErrorIs(t, s.CommandPose(context.Background(), pose.Pose{}), ErrNotConfigured)
}

func TestConfigureShortMask(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, DefaultTorso())
	_, err := spy.SetDOF(context.Background(), []float64{1, 1})
	require.NoError(t, err)

	assert.Error(t, s.ConfigureDOFAndLimits(context.Background()))
}

func TestCommandPoseRequiresConfiguration(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, DefaultTorso())
	ctx := context.Background()

	assert.ErrorIs(t, s.CommandPose(ctx, pose.Pose{}), ErrNotConfigured)
	assert.Equal(t, 0, spy.Count(cartesiantest.CallGoToPose))

	require.NoError(t, s.ConfigureDOFAndLimits(ctx))
	target := pose.New(-0.1, 0.1, 0.1, pose.Orientation{0, 0, 1, 3})
	require.NoError(t, s.CommandPose(ctx, target))
	assert.Equal(t, []pose.Pose{target}, spy.Commands())
}

func TestApplyMotion(t *testing.T) {
	ctx := context.Background()

	t.Run("trajectory", func(t *testing.T) {
		spy := cartesiantest.NewSpy()
		s := openSpy(t, spy, DefaultTorso())
		require.NoError(t, s.ApplyMotion(ctx, MotionConfig{Mode: Trajectory, TrajTime: time.Second}))

		trajTime, tracking := spy.Motion()
		assert.Equal(t, time.Second, trajTime)
		assert.False(t, tracking)
		assert.Equal(t, 0, spy.Count(cartesiantest.CallSetTracking))
	})

	t.Run("tracking", func(t *testing.T) {
		spy := cartesiantest.NewSpy()
		s := openSpy(t, spy, DefaultTorso())
		require.NoError(t, s.ApplyMotion(ctx, MotionConfig{Mode: Tracking}))

		_, tracking := spy.Motion()
		assert.True(t, tracking)
		assert.Equal(t, 0, spy.Count(cartesiantest.CallSetTrajTime))
	})

	t.Run("invalid", func(t *testing.T) {
		spy := cartesiantest.NewSpy()
		s := openSpy(t, spy, DefaultTorso())
		assert.Error(t, s.ApplyMotion(ctx, MotionConfig{Mode: "teleport"}))
		assert.Error(t, s.ApplyMotion(ctx, MotionConfig{Mode: Trajectory}))
	})
}

func TestCloseIsIdempotent(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, DefaultTorso())
	ctx := context.Background()
	require.NoError(t, s.ConfigureDOFAndLimits(ctx))

	require.NoError(t, s.Close(ctx))
	require.NoError(t, s.Close(ctx))

	assert.Equal(t, 1, spy.Count(cartesiantest.CallStopControl))
	assert.Equal(t, 1, spy.Count(cartesiantest.CallClose))

	calls := spy.Calls()
	assert.Equal(t, cartesiantest.CallStopControl, calls[len(calls)-2], "stop before release")
	assert.Equal(t, cartesiantest.CallClose, calls[len(calls)-1])
}

func TestCloseUnconfiguredSkipsStop(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, DefaultTorso())

	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, 0, spy.Count(cartesiantest.CallStopControl))
	assert.Equal(t, 1, spy.Count(cartesiantest.CallClose))
}

func TestCloseReportsStopFailureAndStillReleases(t *testing.T) {
	spy := cartesiantest.NewSpy()
	spy.Fail[cartesiantest.CallStopControl] = errors.New("controller gone")
	s := openSpy(t, spy, DefaultTorso())
	ctx := context.Background()
	require.NoError(t, s.ConfigureDOFAndLimits(ctx))

	assert.Error(t, s.Close(ctx))
	assert.Equal(t, 1, spy.Count(cartesiantest.CallClose))
}

func TestOperationsAfterClose(t *testing.T) {
	spy := cartesiantest.NewSpy()
	s := openSpy(t, spy, DefaultTorso())
	ctx := context.Background()
	require.NoError(t, s.ConfigureDOFAndLimits(ctx))
	require.NoError(t, s.Close(ctx))

	assert.ErrorIs(t, s.CommandPose(ctx, pose.Pose{}), ErrClosed)
	_, err := s.CurrentPose(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.ConfigureDOFAndLimits(ctx), ErrClosed)
	assert.ErrorIs(t, s.SetTrackingMode(ctx, true), ErrClosed)
}
