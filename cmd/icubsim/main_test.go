package main

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
	"github.com/brillian32/icub-arm-imitator/pkg/cartsim"
	"github.com/brillian32/icub-arm-imitator/pkg/posebus"
)

func metrics(t *testing.T, srv *cartsim.Server) string {
	t.Helper()
	resp, err := srv.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	srv := cartsim.NewServer(cartsim.DefaultStep, cartesian.DefaultRemote)
	t.Cleanup(func() { srv.Shutdown() })
	registerMetrics(srv.App(), srv, posebus.NewBroker())

	body := metrics(t, srv)
	assert.Contains(t, body, "# TYPE icubsim_sessions gauge")
	assert.Contains(t, body, "icubsim_sessions 0\n")
	assert.Contains(t, body, "icubsim_samples_received 0\n")
	assert.Contains(t, body, "icubsim_samples_rejected 0\n")

	data, err := json.Marshal(cartesian.OpenRequest{
		Kind:   cartesian.DefaultKind,
		Local:  cartesian.DefaultLocal,
		Remote: cartesian.DefaultRemote,
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, cartesian.PathSessions, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App().Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Contains(t, metrics(t, srv), "icubsim_sessions 1\n")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"/a", "/b"}, splitList(" /a, ,/b ,"))
	assert.Nil(t, splitList(""))
}
