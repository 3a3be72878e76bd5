package cartsim

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"

	"github.com/brillian32/icub-arm-imitator/internal/log"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/hub"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

// DefaultStep is the simulation period.
const DefaultStep = 10 * time.Millisecond

// session is one attached client.
type session struct {
	id     string
	local  string
	arm    *Arm
	opened time.Time
}

// Server exposes simulated arms over the cartesian controller HTTP API.
type Server struct {
	app  *fiber.App
	step time.Duration

	mu       sync.RWMutex
	arms     map[string]*Arm
	sessions map[string]*session

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewServer creates a server hosting one arm per remote name and starts the simulation loop.
func NewServer(step time.Duration, remotes ...string) *Server {
	if step <= 0 {
		step = DefaultStep
	}

	s := &Server{
		step:     step,
		arms:     make(map[string]*Arm),
		sessions: make(map[string]*session),
		done:     make(chan struct{}),
	}
	for _, r := range remotes {
		s.AddArm(NewArm(r))
	}

	app := fiber.New(fiber.Config{
		AppName:               "icubsim",
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	app.Get(cartesian.PathHealth, s.handleHealth)
	app.Post(cartesian.PathSessions, s.handleOpen)

	sess := app.Group(cartesian.PathSessions+"/:id", s.requireSession)
	sess.Delete("/", s.handleClose)
	sess.Get("/dof", s.handleGetDOF)
	sess.Put("/dof", s.handleSetDOF)
	sess.Get("/limits/:axis", s.handleGetLimits)
	sess.Put("/limits/:axis", s.handleSetLimits)
	sess.Put("/traj_time", s.handleTrajTime)
	sess.Put("/tracking", s.handleTracking)
	sess.Get("/pose", s.handleGetPose)
	sess.Post("/pose", s.handleGoToPose)
	sess.Post("/stop", s.handleStop)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/cartesian/:id/state", websocket.New(s.handleState))

	s.app = app

	s.wg.Add(1)
	go s.simulate()
	return s
}

// App returns the fiber app so other routes (e.g. the pose broker) can share the listener.
func (s *Server) App() *fiber.App {
	return s.app
}

// AddArm registers an arm under its name and starts its telemetry hub.
func (s *Server) AddArm(a *Arm) {
	s.mu.Lock()
	s.arms[a.name] = a
	s.mu.Unlock()
	go a.telemetry.Run()
}

// AddDevice registers a device that only offers the given interfaces.
func (s *Server) AddDevice(name string, interfaces ...string) *Arm {
	a := newDevice(name, interfaces)
	s.AddArm(a)
	return a
}

// Arm returns the arm registered under name, or nil.
func (s *Server) Arm(name string) *Arm {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.arms[name]
}

// SessionCount returns the number of attached clients.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Listener serves on ln until Shutdown.
func (s *Server) Listener(ln net.Listener) error {
	return s.app.Listener(ln)
}

// Shutdown stops the simulation, the telemetry hubs and the HTTP server.
func (s *Server) Shutdown() error {
	s.stopOnce.Do(func() { close(s.done) })
	s.wg.Wait()

	s.mu.RLock()
	for _, a := range s.arms {
		a.telemetry.Stop()
	}
	s.mu.RUnlock()

	return s.app.Shutdown()
}

// simulate steps every arm and publishes its state.
func (s *Server) simulate() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.step)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, a := range s.arms {
				frame := a.Step(s.step)
				if a.telemetry.ClientCount() > 0 {
					if err := a.telemetry.BroadcastJSON(frame); err != nil {
						log.Warn("encode state frame", "arm", a.name, "error", err)
					}
				}
			}
			s.mu.RUnlock()
		}
	}
}

func apiError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{"error": err.Error()})
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return c.JSON(fiber.Map{
		"status":   "ok",
		"devices":  len(s.arms),
		"sessions": len(s.sessions),
	})
}

func (s *Server) handleOpen(c *fiber.Ctx) error {
	var req cartesian.OpenRequest
	if err := c.BodyParser(&req); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	if req.Kind != cartesian.DefaultKind {
		return apiError(c, fiber.StatusBadRequest, errors.New("unsupported device kind "+strconv.Quote(req.Kind)))
	}

	arm := s.Arm(req.Remote)
	if arm == nil {
		return apiError(c, fiber.StatusNotFound, errors.New("no device at "+req.Remote))
	}

	sess := &session{
		id:     uuid.NewString(),
		local:  req.Local,
		arm:    arm,
		opened: time.Now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	log.Info("session opened", "remote", req.Remote, "local", req.Local, "session", sess.id)

	return c.Status(fiber.StatusCreated).JSON(cartesian.OpenResponse{
		SessionID:  sess.id,
		Device:     arm.name,
		Interfaces: arm.interfaces,
		DOF:        len(arm.DOF()),
	})
}

func (s *Server) lookup(id string) *session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[id]
}

// requireSession resolves :id and rejects sessions on devices without cartesian control.
func (s *Server) requireSession(c *fiber.Ctx) error {
	sess := s.lookup(c.Params("id"))
	if sess == nil {
		return apiError(c, fiber.StatusNotFound, errors.New("unknown session"))
	}
	if c.Method() != fiber.MethodDelete && !sess.arm.HasCartesian() {
		return apiError(c, fiber.StatusConflict, errors.New("device has no cartesian interface"))
	}
	c.Locals("session", sess)
	return c.Next()
}

func sessionOf(c *fiber.Ctx) *session {
	return c.Locals("session").(*session)
}

func (s *Server) handleClose(c *fiber.Ctx) error {
	sess := sessionOf(c)
	s.mu.Lock()
	delete(s.sessions, sess.id)
	s.mu.Unlock()
	log.Info("session closed", "remote", sess.arm.name, "local", sess.local, "session", sess.id)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetDOF(c *fiber.Ctx) error {
	return c.JSON(cartesian.DOFMessage{DOF: sessionOf(c).arm.DOF()})
}

func (s *Server) handleSetDOF(c *fiber.Ctx) error {
	var msg cartesian.DOFMessage
	if err := c.BodyParser(&msg); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	applied, err := sessionOf(c).arm.SetDOF(msg.DOF)
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(cartesian.DOFMessage{DOF: applied})
}

func (s *Server) handleGetLimits(c *fiber.Ctx) error {
	axis, err := c.ParamsInt("axis")
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	min, max, err := sessionOf(c).arm.Limits(axis)
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(cartesian.LimitsMessage{Axis: axis, Min: min, Max: max})
}

func (s *Server) handleSetLimits(c *fiber.Ctx) error {
	axis, err := c.ParamsInt("axis")
	if err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	var msg cartesian.LimitsMessage
	if err := c.BodyParser(&msg); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	if err := sessionOf(c).arm.SetLimits(axis, msg.Min, msg.Max); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	return c.JSON(cartesian.LimitsMessage{Axis: axis, Min: msg.Min, Max: msg.Max})
}

func (s *Server) handleTrajTime(c *fiber.Ctx) error {
	var msg cartesian.TrajTimeMessage
	if err := c.BodyParser(&msg); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	d := time.Duration(msg.Seconds * float64(time.Second))
	if err := sessionOf(c).arm.SetTrajTime(d); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleTracking(c *fiber.Ctx) error {
	var msg cartesian.TrackingMessage
	if err := c.BodyParser(&msg); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	sessionOf(c).arm.SetTracking(msg.Enabled)
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleGetPose(c *fiber.Ctx) error {
	return c.JSON(sessionOf(c).arm.Pose().ToWire())
}

func (s *Server) handleGoToPose(c *fiber.Ctx) error {
	var w pose.Wire
	if err := c.BodyParser(&w); err != nil {
		return apiError(c, fiber.StatusBadRequest, err)
	}
	sessionOf(c).arm.GoToPose(pose.FromWire(w))
	return c.SendStatus(fiber.StatusAccepted)
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	sessionOf(c).arm.Stop()
	return c.SendStatus(fiber.StatusNoContent)
}

// handleState streams the session's arm state until the client goes away.
func (s *Server) handleState(c *websocket.Conn) {
	sess := s.lookup(c.Params("id"))
	if sess == nil {
		c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unknown session"))
		c.Close()
		return
	}
	hub.Serve(sess.arm.telemetry, c)
}
