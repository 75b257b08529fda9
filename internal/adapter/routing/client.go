// Package routing talks to an OSRM-compatible routing engine for road
// distances and ETAs. Callers must treat it as best-effort: the nearby
// service falls back to straight-line estimates when it is down.
package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Temutjin2k/dispatch-core/internal/domain/models"
	"github.com/Temutjin2k/dispatch-core/internal/domain/types"
	wrap "github.com/Temutjin2k/dispatch-core/pkg/logger/wrapper"
)

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

type routePayload struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"` // seconds
		Distance float64 `json:"distance"` // meters
	} `json:"routes"`
}

// Route returns the driving route between two points. Any failure maps
// to types.ErrRoutingUnavailable so callers can fall back uniformly.
func (c *Client) Route(ctx context.Context, from, to models.GeoPoint) (models.Route, error) {
	const op = "routing.Client.Route"

	url := fmt.Sprintf("%s/route/v1/driving/%f,%f;%f,%f?overview=false",
		c.baseURL, from.Lng, from.Lat, to.Lng, to.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Route{}, fmt.Errorf("%s: %w", op, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: %s: %w", op, err, types.ErrRoutingUnavailable))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		ctx = wrap.WithAction(ctx, types.ActionExternalServiceFailed)
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: unexpected response status %d: %w", op, resp.StatusCode, types.ErrRoutingUnavailable))
	}

	var payload routePayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		ctx = wrap.WithAction(ctx, "decode_route_payload")
		return models.Route{}, wrap.Error(ctx, fmt.Errorf("%s: %s: %w", op, err, types.ErrRoutingUnavailable))
	}

	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return models.Route{}, fmt.Errorf("%s: no route: %w", op, types.ErrRoutingUnavailable)
	}

	return models.Route{
		DurationSec:    payload.Routes[0].Duration,
		DistanceMeters: payload.Routes[0].Distance,
	}, nil
}
