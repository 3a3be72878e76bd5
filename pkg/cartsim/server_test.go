package cartsim

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
	"github.com/brillian32/icub-arm-imitator/pkg/pose"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s := NewServer(DefaultStep, cartesian.DefaultRemote)
	t.Cleanup(func() { s.Shutdown() })
	return s
}

func call(t *testing.T, s *Server, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func openSession(t *testing.T, s *Server, remote string) cartesian.OpenResponse {
	t.Helper()
	resp := call(t, s, http.MethodPost, cartesian.PathSessions, cartesian.OpenRequest{
		Kind:   cartesian.DefaultKind,
		Local:  cartesian.DefaultLocal,
		Remote: remote,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var out cartesian.OpenResponse
	decode(t, resp, &out)
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, http.MethodGet, cartesian.PathHealth, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	decode(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["devices"])
}

func TestOpenSession(t *testing.T) {
	s := newTestServer(t)

	out := openSession(t, s, cartesian.DefaultRemote)
	assert.NotEmpty(t, out.SessionID)
	assert.Equal(t, cartesian.DefaultRemote, out.Device)
	assert.Contains(t, out.Interfaces, cartesian.InterfaceName)
	assert.Equal(t, 10, out.DOF)
	assert.Equal(t, 1, s.SessionCount())
}

func TestOpenUnknownRemote(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, http.MethodPost, cartesian.PathSessions, cartesian.OpenRequest{
		Kind: cartesian.DefaultKind, Local: "l", Remote: "/nowhere",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOpenUnsupportedKind(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, http.MethodPost, cartesian.PathSessions, cartesian.OpenRequest{
		Kind: "remote_controlboard", Local: "l", Remote: cartesian.DefaultRemote,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSessionOnDeviceWithoutCartesian(t *testing.T) {
	s := newTestServer(t)
	s.AddDevice("/icubSim/head", "position")

	out := openSession(t, s, "/icubSim/head")
	assert.NotContains(t, out.Interfaces, cartesian.InterfaceName)

	resp := call(t, s, http.MethodGet, cartesian.SessionPath(out.SessionID)+"/dof", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = call(t, s, http.MethodDelete, cartesian.SessionPath(out.SessionID), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestUnknownSession(t *testing.T) {
	s := newTestServer(t)

	resp := call(t, s, http.MethodGet, cartesian.SessionPath("missing")+"/pose", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDOFAndLimitsRoundTrip(t *testing.T) {
	s := newTestServer(t)
	id := openSession(t, s, cartesian.DefaultRemote).SessionID
	base := cartesian.SessionPath(id)

	mask := []float64{0, 0, 0, 1, 1, 1, 1, 1, 1, 1}
	resp := call(t, s, http.MethodPut, base+"/dof", cartesian.DOFMessage{DOF: mask})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var dof cartesian.DOFMessage
	decode(t, resp, &dof)
	assert.Equal(t, mask, dof.DOF)

	resp = call(t, s, http.MethodPut, base+"/limits/0", cartesian.LimitsMessage{Min: -22, Max: 30})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = call(t, s, http.MethodGet, base+"/limits/0", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var lim cartesian.LimitsMessage
	decode(t, resp, &lim)
	assert.Equal(t, cartesian.LimitsMessage{Axis: 0, Min: -22, Max: 30}, lim)

	resp = call(t, s, http.MethodGet, base+"/limits/abc", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestMotionPolicyRoutes(t *testing.T) {
	s := newTestServer(t)
	id := openSession(t, s, cartesian.DefaultRemote).SessionID
	base := cartesian.SessionPath(id)

	resp := call(t, s, http.MethodPut, base+"/tracking", cartesian.TrackingMessage{Enabled: true})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.True(t, s.Arm(cartesian.DefaultRemote).Tracking())

	resp = call(t, s, http.MethodPut, base+"/traj_time", cartesian.TrajTimeMessage{Seconds: 1})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = call(t, s, http.MethodPut, base+"/traj_time", cartesian.TrajTimeMessage{Seconds: 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPoseCommandAndStop(t *testing.T) {
	s := newTestServer(t)
	id := openSession(t, s, cartesian.DefaultRemote).SessionID
	base := cartesian.SessionPath(id)

	resp := call(t, s, http.MethodGet, base+"/pose", nil)
	var w pose.Wire
	decode(t, resp, &w)
	assert.Equal(t, HomePose.ToWire(), w)

	target := pose.New(-0.1, 0.1, 0.1, HomePose.Orientation)
	resp = call(t, s, http.MethodPost, base+"/pose", target.ToWire())
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	resp = call(t, s, http.MethodPost, base+"/stop", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	cmds, stops := s.Arm(cartesian.DefaultRemote).Counters()
	assert.Equal(t, uint64(1), cmds)
	assert.Equal(t, uint64(1), stops)
}

func TestCloseSession(t *testing.T) {
	s := newTestServer(t)
	id := openSession(t, s, cartesian.DefaultRemote).SessionID

	resp := call(t, s, http.MethodDelete, cartesian.SessionPath(id), nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, 0, s.SessionCount())

	resp = call(t, s, http.MethodDelete, cartesian.SessionPath(id), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStateRequiresUpgrade(t *testing.T) {
	s := newTestServer(t)
	id := openSession(t, s, cartesian.DefaultRemote).SessionID

	resp := call(t, s, http.MethodGet, cartesian.StatePath(id), nil)
	assert.Equal(t, http.StatusUpgradeRequired, resp.StatusCode)
}
