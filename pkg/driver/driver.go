// Package driver runs a control task for a fixed wall-clock duration.
package driver

import (
	"context"
	"time"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/network"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Task is what the driver starts and stops.
type Task interface {
	Start(ctx context.Context) error
	Stop()
}

// Options configures a run.
type Options struct {
	// Network is the middleware base URL checked before the task is built.
	Network string
	// Duration is how long the task runs. Zero runs until ctx is cancelled.
	Duration time.Duration
}

// Run checks the network, builds the task with newTask, runs it for opts.Duration
// or until ctx is cancelled, stops it, and returns the process exit code.
// newTask is not called when the network is unavailable.
func Run(ctx context.Context, opts Options, newTask func() Task) int {
	if _, err := network.Check(ctx, opts.Network); err != nil {
		log.Error("network unavailable", "network", opts.Network, "error", err)
		return ExitFailure
	}

	task := newTask()
	if err := task.Start(ctx); err != nil {
		log.Error("task failed to start", "error", err)
		return ExitFailure
	}

	var deadline <-chan time.Time
	if opts.Duration > 0 {
		timer := time.NewTimer(opts.Duration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-deadline:
		log.Info("run time elapsed", "duration", opts.Duration)
	case <-ctx.Done():
		log.Info("interrupted", "reason", context.Cause(ctx))
	}

	task.Stop()
	return ExitOK
}
