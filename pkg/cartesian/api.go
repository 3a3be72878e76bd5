package cartesian

import "github.com/brillian32/icub-arm-imitator/pkg/pose"

// HTTP API paths served by a controller server.
const (
	PathSessions = "/api/cartesian/sessions"
	PathHealth   = "/api/health"
)

// SessionPath returns the base path of one open session.
func SessionPath(id string) string {
	return PathSessions + "/" + id
}

// StatePath returns the websocket telemetry path of one open session.
func StatePath(id string) string {
	return "/ws/cartesian/" + id + "/state"
}

// OpenRequest asks the server to attach a client to a controller.
type OpenRequest struct {
	Kind   string `json:"kind"`
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// OpenResponse describes the attached controller.
type OpenResponse struct {
	SessionID  string   `json:"session_id"`
	Device     string   `json:"device"`
	Interfaces []string `json:"interfaces"`
	DOF        int      `json:"dof"`
}

// DOFMessage carries a DOF mask.
type DOFMessage struct {
	DOF []float64 `json:"dof"`
}

// LimitsMessage carries the limits of one axis in degrees.
type LimitsMessage struct {
	Axis int     `json:"axis"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// TrajTimeMessage carries a point-to-point transit time.
type TrajTimeMessage struct {
	Seconds float64 `json:"seconds"`
}

// TrackingMessage toggles tracking mode.
type TrackingMessage struct {
	Enabled bool `json:"enabled"`
}

// StateFrame is one telemetry frame pushed on the state stream.
type StateFrame struct {
	pose.Wire
	Moving bool  `json:"moving"`
	Stamp  int64 `json:"stamp"`
}
