// Package control runs the periodic pose control loop against one cartesian device.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
	"github.com/brillian32/icub-arm-imitator/pkg/posesource"
	"github.com/brillian32/icub-arm-imitator/pkg/session"
)

// ErrAlreadyStarted is returned by Start on a task that was started before.
var ErrAlreadyStarted = errors.New("control: task already started")

// teardownTimeout bounds stopping and releasing the device.
const teardownTimeout = 3 * time.Second

// State is the lifecycle state of a Task.
type State int32

const (
	Created State = iota
	Initializing
	Running
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Created:
		return "created"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Config holds everything a task needs to set up its device.
type Config struct {
	// Name labels the task in logs.
	Name   string
	Period time.Duration

	Device cartesian.Config
	Torso  session.TorsoConfig
	Motion session.MotionConfig
}

// Monitor is an extra pose stream that is only logged, never acted on.
type Monitor interface {
	Read() (sample pose.Sample, ok bool)
}

// subscription is implemented by monitors that attach to a stream.
type subscription interface {
	Subscribe(ctx context.Context) error
	Close() error
}

// Stats are the tick counters of a task.
type Stats struct {
	Ticks      uint64 `json:"ticks"`
	Commands   uint64 `json:"commands"`
	Skipped    uint64 `json:"skipped"`
	ReadErrors uint64 `json:"read_errors"`
	Monitored  uint64 `json:"monitored"`
}

// Task drives one device at a fixed period.
// The device session is owned by the task goroutine; other goroutines only call Start and Stop.
type Task struct {
	cfg     Config
	opener  cartesian.Opener
	source  posesource.Source
	monitor Monitor
	log     *slog.Logger

	state atomic.Int32

	sess        *session.Session
	sourceOpen  bool
	monitorOpen bool
	lastPose    pose.Pose
	havePose    bool
	err         error

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	ticks      atomic.Uint64
	commands   atomic.Uint64
	skipped    atomic.Uint64
	readErrors atomic.Uint64
	monitored  atomic.Uint64
}

// New creates a task. Nothing is opened until Start.
func New(cfg Config, opener cartesian.Opener, source posesource.Source) *Task {
	name := cfg.Name
	if name == "" {
		name = "control"
	}
	return &Task{
		cfg:    cfg,
		opener: opener,
		source: source,
		log:    log.With("task", name),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// SetMonitor attaches a stream whose samples are logged each tick. Call before Start.
// A monitor that fails to subscribe is dropped with a warning.
func (t *Task) SetMonitor(m Monitor) {
	t.monitor = m
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// Stats returns a snapshot of the tick counters.
func (t *Task) Stats() Stats {
	return Stats{
		Ticks:      t.ticks.Load(),
		Commands:   t.commands.Load(),
		Skipped:    t.skipped.Load(),
		ReadErrors: t.readErrors.Load(),
		Monitored:  t.monitored.Load(),
	}
}

// Done is closed once the task has terminated.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Start opens and configures the device, attaches the pose source, and starts ticking.
// If any step fails everything opened so far is released, the task terminates, and
// the error is returned.
func (t *Task) Start(ctx context.Context) error {
	if !t.state.CompareAndSwap(int32(Created), int32(Initializing)) {
		return ErrAlreadyStarted
	}
	t.log.Info("initializing", "remote", t.cfg.Device.Remote, "period", t.cfg.Period)

	if err := t.init(ctx); err != nil {
		t.log.Error("initialization failed", "error", err)
		t.teardown()
		t.err = errors.Join(err, t.err)
		t.state.Store(int32(Terminated))
		close(t.done)
		return err
	}

	t.state.Store(int32(Running))
	t.log.Info("running", "motion", t.cfg.Motion.Mode)
	go t.run()
	return nil
}

func (t *Task) init(ctx context.Context) error {
	if t.cfg.Period <= 0 {
		return fmt.Errorf("period must be positive, got %v", t.cfg.Period)
	}

	sess, err := session.Open(ctx, t.opener, t.cfg.Device, t.cfg.Torso)
	if err != nil {
		return err
	}
	t.sess = sess

	if err := sess.ConfigureDOFAndLimits(ctx); err != nil {
		return fmt.Errorf("configure %s: %w", sess.Remote(), err)
	}
	if err := sess.ApplyMotion(ctx, t.cfg.Motion); err != nil {
		return fmt.Errorf("motion policy: %w", err)
	}

	if lc, ok := t.source.(posesource.Lifecycle); ok {
		if err := lc.Open(ctx); err != nil {
			return err
		}
		t.sourceOpen = true
	}

	if sub, ok := t.monitor.(subscription); ok {
		if err := sub.Subscribe(ctx); err != nil {
			t.log.Warn("monitor stream unavailable", "error", err)
			t.monitor = nil
		} else {
			t.monitorOpen = true
		}
	}
	return nil
}

// Stop asks the task to finish its current tick and tear down, and waits for it.
// It is safe to call more than once and from any goroutine.
func (t *Task) Stop() {
	if t.state.CompareAndSwap(int32(Created), int32(Terminated)) {
		close(t.done)
		return
	}
	t.stopOnce.Do(func() { close(t.stop) })
	<-t.done
}

// Err returns the initialization or teardown error, if any, once the task has terminated.
func (t *Task) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// run ticks until Stop. It owns the session for its whole life.
func (t *Task) run() {
	defer close(t.done)

	ticker := time.NewTicker(t.cfg.Period)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			t.state.Store(int32(Stopping))
			t.log.Info("stopping", "ticks", t.ticks.Load(), "commands", t.commands.Load())
			t.teardown()
			t.state.Store(int32(Terminated))
			t.log.Info("terminated")
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

// tick executes one control cycle: read the pose, ask the source for a target,
// and command it without waiting for the motion.
func (t *Task) tick() {
	t.ticks.Add(1)
	ctx := context.Background()

	current, err := t.sess.CurrentPose(ctx)
	known := true
	switch {
	case err == nil:
		t.lastPose, t.havePose = current, true
	case t.havePose:
		t.readErrors.Add(1)
		t.log.Warn("pose read failed, using last known pose", "error", err)
		current = t.lastPose
	case !needsCurrent(t.source):
		t.readErrors.Add(1)
		t.log.Warn("pose read failed", "error", err)
		current, known = pose.Pose{}, false
	default:
		t.readErrors.Add(1)
		t.skipped.Add(1)
		t.log.Warn("pose read failed, no pose to hold", "error", err)
		return
	}

	if t.monitor != nil {
		if s, ok := t.monitor.Read(); ok {
			t.monitored.Add(1)
			t.log.Info("monitor sample", "got", s.String())
		} else {
			t.log.Debug("monitor sample", "got", "none")
		}
	}

	target, ok := t.source.NextTarget(current)
	if !ok {
		t.skipped.Add(1)
		t.log.Debug("no target this tick")
		return
	}

	if err := t.sess.CommandPose(ctx, target); err != nil {
		t.log.Warn("pose command failed", "error", err)
		return
	}
	t.commands.Add(1)
	if known {
		t.log.Info("pose", "current", current.String(), "desired", target.String())
	} else {
		t.log.Info("pose", "current", "unknown", "desired", target.String())
	}
}

// needsCurrent reports whether the source's targets depend on the current pose.
// Sources that do not say are assumed to.
func needsCurrent(s posesource.Source) bool {
	if d, ok := s.(posesource.PoseDependent); ok {
		return d.NeedsCurrent()
	}
	return true
}

// teardown releases the source, the monitor and the session, in that order.
func (t *Task) teardown() {
	var errs []error

	if t.sourceOpen {
		if lc, ok := t.source.(posesource.Lifecycle); ok {
			if err := lc.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close pose source: %w", err))
			}
		}
		t.sourceOpen = false
	}

	if t.monitorOpen {
		if err := t.monitor.(subscription).Close(); err != nil {
			errs = append(errs, fmt.Errorf("close monitor: %w", err))
		}
		t.monitorOpen = false
	}

	if t.sess != nil {
		ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
		defer cancel()
		if err := t.sess.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	t.err = errors.Join(errs...)
	if t.err != nil {
		t.log.Warn("teardown incomplete", "error", t.err)
	}
}
