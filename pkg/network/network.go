// Package network checks that the robot middleware is reachable before anything is opened.
package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/brillian32/icub-arm-imitator/internal/httpc"
	"github.com/brillian32/icub-arm-imitator/pkg/cartesian"
)

// ErrUnavailable means the middleware did not answer its health check.
var ErrUnavailable = errors.New("network: unavailable")

// CheckTimeout bounds one health check.
const CheckTimeout = time.Second

// Health is the body of a health response.
type Health struct {
	Status   string `json:"status"`
	Devices  int    `json:"devices"`
	Sessions int    `json:"sessions"`
}

// Check asks the middleware at baseURL whether it is up.
func Check(ctx context.Context, baseURL string) (Health, error) {
	ctx, cancel := context.WithTimeout(ctx, CheckTimeout)
	defer cancel()

	var h Health
	url := strings.TrimRight(baseURL, "/") + cartesian.PathHealth
	if err := httpc.DoJSON(ctx, httpc.Client, http.MethodGet, url, nil, &h); err != nil {
		return Health{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, baseURL, err)
	}
	if h.Status != "ok" {
		return h, fmt.Errorf("%w: %s reports status %q", ErrUnavailable, baseURL, h.Status)
	}
	return h, nil
}
