package cartesian

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/brillian32/icub-arm-imitator/internal/httpc"
	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// commandTimeout bounds a single background pose POST.
const commandTimeout = 500 * time.Millisecond

// command is a queued pose target tagged with the stop generation it was issued in.
type command struct {
	pose pose.Pose
	gen  uint64
}

// Client implements Device against a controller server over HTTP,
// with pose feedback on a websocket telemetry stream.
//
// GoToPose only stores the target in a one-slot mailbox; a sender goroutine
// delivers the newest target. Pose returns the last telemetry frame.
type Client struct {
	base      string
	remote    string
	sessionID string
	dofCount  int
	http      *http.Client
	ws        *websocket.Conn

	mu     sync.RWMutex
	last   pose.Pose
	moving bool
	closed bool

	// sendMu serializes pose delivery against StopControl.
	// gen is bumped by every stop so older queued targets are discarded.
	sendMu sync.Mutex
	gen    atomic.Uint64

	outbox    chan command
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// HTTPOpener opens Clients. It is the Opener used by the executables.
type HTTPOpener struct{}

// Open dials the controller described by cfg.
func (HTTPOpener) Open(ctx context.Context, cfg Config) (Device, error) {
	c, err := Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Dial attaches to the controller at cfg.Network and starts the telemetry and sender goroutines.
// Failures are *ConnectError values wrapping ErrDeviceOpenFailed or ErrInterfaceUnavailable.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, openFailed(cfg.Remote, err)
	}

	c := &Client{
		base:   strings.TrimRight(cfg.Network, "/"),
		remote: cfg.Remote,
		http:   httpc.Client,
		outbox: make(chan command, 1),
		done:   make(chan struct{}),
	}

	var resp OpenResponse
	req := OpenRequest{Kind: cfg.Kind, Local: cfg.Local, Remote: cfg.Remote}
	if err := httpc.DoJSON(ctx, c.http, http.MethodPost, c.base+PathSessions, req, &resp); err != nil {
		var se *httpc.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusNotFound || se.StatusCode == http.StatusBadRequest) {
			return nil, interfaceUnavailable(cfg.Remote, err)
		}
		return nil, openFailed(cfg.Remote, err)
	}
	c.sessionID = resp.SessionID
	c.dofCount = resp.DOF

	if !slices.Contains(resp.Interfaces, InterfaceName) {
		c.release()
		return nil, interfaceUnavailable(cfg.Remote, fmt.Errorf("device %q offers %v", resp.Device, resp.Interfaces))
	}

	var w pose.Wire
	if err := httpc.DoJSON(ctx, c.http, http.MethodGet, c.sessionURL("/pose"), nil, &w); err != nil {
		c.release()
		return nil, openFailed(cfg.Remote, fmt.Errorf("read initial pose: %w", err))
	}
	c.last = pose.FromWire(w)

	wsURL := "ws" + strings.TrimPrefix(c.base, "http") + StatePath(c.sessionID)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		c.release()
		return nil, openFailed(cfg.Remote, fmt.Errorf("state stream: %w", err))
	}
	c.ws = conn

	c.wg.Add(2)
	go c.readState()
	go c.sendLoop()

	log.Info("cartesian device opened", "remote", cfg.Remote, "local", cfg.Local, "session", c.sessionID, "dof", c.dofCount)
	return c, nil
}

// SessionID returns the server-assigned session identifier.
func (c *Client) SessionID() string {
	return c.sessionID
}

func (c *Client) sessionURL(suffix string) string {
	return c.base + SessionPath(c.sessionID) + suffix
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// DOF returns the current DOF mask.
func (c *Client) DOF(ctx context.Context) ([]float64, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	var msg DOFMessage
	if err := httpc.DoJSON(ctx, c.http, http.MethodGet, c.sessionURL("/dof"), nil, &msg); err != nil {
		return nil, fmt.Errorf("get dof: %w", err)
	}
	return msg.DOF, nil
}

// SetDOF requests a new DOF mask and returns the applied one.
func (c *Client) SetDOF(ctx context.Context, dof []float64) ([]float64, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	var msg DOFMessage
	if err := httpc.DoJSON(ctx, c.http, http.MethodPut, c.sessionURL("/dof"), DOFMessage{DOF: dof}, &msg); err != nil {
		return nil, fmt.Errorf("set dof: %w", err)
	}
	return msg.DOF, nil
}

// Limits returns the limits of axis in degrees.
func (c *Client) Limits(ctx context.Context, axis int) (float64, float64, error) {
	if c.isClosed() {
		return 0, 0, ErrClosed
	}
	var msg LimitsMessage
	if err := httpc.DoJSON(ctx, c.http, http.MethodGet, c.sessionURL("/limits/"+strconv.Itoa(axis)), nil, &msg); err != nil {
		return 0, 0, fmt.Errorf("get limits of axis %d: %w", axis, err)
	}
	return msg.Min, msg.Max, nil
}

// SetLimits writes the limits of axis in degrees.
func (c *Client) SetLimits(ctx context.Context, axis int, min, max float64) error {
	if c.isClosed() {
		return ErrClosed
	}
	body := LimitsMessage{Axis: axis, Min: min, Max: max}
	if err := httpc.DoJSON(ctx, c.http, http.MethodPut, c.sessionURL("/limits/"+strconv.Itoa(axis)), body, nil); err != nil {
		return fmt.Errorf("set limits of axis %d: %w", axis, err)
	}
	return nil
}

// SetTrajTime sets the point-to-point transit time.
func (c *Client) SetTrajTime(ctx context.Context, d time.Duration) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := httpc.DoJSON(ctx, c.http, http.MethodPut, c.sessionURL("/traj_time"), TrajTimeMessage{Seconds: d.Seconds()}, nil); err != nil {
		return fmt.Errorf("set trajectory time: %w", err)
	}
	return nil
}

// SetTrackingMode toggles continuous tracking.
func (c *Client) SetTrackingMode(ctx context.Context, enabled bool) error {
	if c.isClosed() {
		return ErrClosed
	}
	if err := httpc.DoJSON(ctx, c.http, http.MethodPut, c.sessionURL("/tracking"), TrackingMessage{Enabled: enabled}, nil); err != nil {
		return fmt.Errorf("set tracking mode: %w", err)
	}
	return nil
}

// GoToPose queues p as the newest target. An older queued target is dropped.
func (c *Client) GoToPose(ctx context.Context, p pose.Pose) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}

	cmd := command{pose: p, gen: c.gen.Load()}
	select {
	case c.outbox <- cmd:
	default:
		// Replace the stale target with the new one
		select {
		case <-c.outbox:
		default:
		}
		select {
		case c.outbox <- cmd:
		default:
		}
	}
	return nil
}

// Pose returns the last reported pose.
func (c *Client) Pose(ctx context.Context) (pose.Pose, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return pose.Pose{}, ErrClosed
	}
	return c.last, nil
}

// Moving reports whether the last telemetry frame showed the arm in motion.
func (c *Client) Moving() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.moving
}

// StopControl discards any queued target and stops the arm.
// A target already being delivered finishes before the stop is sent.
func (c *Client) StopControl(ctx context.Context) error {
	if c.isClosed() {
		return ErrClosed
	}

	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	c.gen.Add(1)
	select {
	case <-c.outbox:
	default:
	}

	if err := httpc.DoJSON(ctx, c.http, http.MethodPost, c.sessionURL("/stop"), nil, nil); err != nil {
		return fmt.Errorf("stop control: %w", err)
	}
	return nil
}

// Close stops the background goroutines and detaches from the server.
// It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
		c.wg.Wait()
		err = c.release()
		log.Info("cartesian device closed", "remote", c.remote, "session", c.sessionID)
	})
	return err
}

// release deletes the server-side session.
func (c *Client) release() error {
	ctx, cancel := context.WithTimeout(context.Background(), httpc.DefaultTimeout)
	defer cancel()
	if err := httpc.DoJSON(ctx, c.http, http.MethodDelete, c.sessionURL(""), nil, nil); err != nil {
		return fmt.Errorf("release session %s: %w", c.sessionID, err)
	}
	return nil
}

// sendLoop delivers queued targets; delivery errors are logged and dropped.
func (c *Client) sendLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case cmd := <-c.outbox:
			c.deliver(cmd)
		}
	}
}

func (c *Client) deliver(cmd command) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if cmd.gen != c.gen.Load() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := httpc.DoJSON(ctx, c.http, http.MethodPost, c.sessionURL("/pose"), cmd.pose.ToWire(), nil); err != nil {
		log.Warn("pose command not delivered", "remote", c.remote, "error", err)
	}
}

// readState caches telemetry frames until the stream closes.
func (c *Client) readState() {
	defer c.wg.Done()
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn("state stream ended", "remote", c.remote, "error", err)
			}
			return
		}

		var frame StateFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			log.Debug("bad state frame", "error", err)
			continue
		}

		c.mu.Lock()
		c.last = pose.FromWire(frame.Wire)
		c.moving = frame.Moving
		c.mu.Unlock()
	}
}
