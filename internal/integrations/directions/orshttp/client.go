package orshttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/pkg/errors"
)

// Client вызывает OpenRouteService directions API (/v2/directions/{profile}/json).
type Client struct {
	baseURL string
	apiKey  string
	profile string
	httpc   *http.Client
}

func New(baseURL, apiKey, profile string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://api.openrouteservice.org"
	}
	if profile == "" {
		profile = "driving-hgv"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		profile: profile,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type orsRequest struct {
	Coordinates [][2]float64 `json:"coordinates"`
	ExtraInfo   []string     `json:"extra_info,omitempty"`
	Elevation   bool         `json:"elevation,omitempty"`
	// Пошаговые инструкции не нужны, упрощение геометрии ломает extras-диапазоны.
	Instructions     bool        `json:"instructions"`
	GeometrySimplify bool        `json:"geometry_simplify"`
	Options          *orsOptions `json:"options,omitempty"`
}

type orsOptions struct {
	AvoidPolygons *orsMultiPolygon `json:"avoid_polygons,omitempty"`
}

type orsMultiPolygon struct {
	Type        string           `json:"type"`
	Coordinates [][][][2]float64 `json:"coordinates"`
}

type orsResponse struct {
	Routes []struct {
		Geometry string `json:"geometry"`
		Summary  struct {
			Distance float64 `json:"distance"`
			Duration float64 `json:"duration"`
		} `json:"summary"`
		Extras json.RawMessage `json:"extras"`
	} `json:"routes"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) GetRoute(ctx context.Context, req directions.Request) (directions.RouteResult, error) {
	body := orsRequest{
		Coordinates: req.Coordinates,
		ExtraInfo:   req.ExtraInfo,
		Elevation:   req.Elevation,
	}
	if len(req.AvoidPolygons) > 0 {
		body.Options = &orsOptions{
			AvoidPolygons: &orsMultiPolygon{
				Type:        "MultiPolygon",
				Coordinates: req.AvoidPolygons,
			},
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return directions.RouteResult{}, errors.Wrap(err, "marshal request")
	}

	u := fmt.Sprintf("%s/v2/directions/%s/json", c.baseURL, c.profile)

	resp, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
		if err != nil {
			return nil, errors.Wrap(err, "new request")
		}
		r.Header.Set("Authorization", c.apiKey)
		r.Header.Set("Content-Type", "application/json")
		r.Header.Set("Accept", "application/json")
		return r, nil
	})
	if err != nil {
		return directions.RouteResult{}, err
	}
	defer resp.Body.Close()

	var r orsResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return directions.RouteResult{}, errors.Wrap(err, "decode response")
	}
	if len(r.Routes) == 0 {
		return directions.RouteResult{}, &directions.ProviderError{
			StatusCode: resp.StatusCode,
			Body:       fmt.Sprintf("no routes in response (code=%d %s)", r.Error.Code, r.Error.Message),
		}
	}

	route := r.Routes[0]

	var extras *string
	if len(route.Extras) > 0 && string(route.Extras) != "null" {
		s := string(route.Extras)
		extras = &s
	}

	return directions.RouteResult{
		Geometry:   route.Geometry,
		ExtrasJSON: extras,
		DistanceM:  route.Summary.Distance,
		DurationS:  route.Summary.Duration,
	}, nil
}

// doWithRetry повторяет транзиентный сбой (сетевая ошибка, 429, 5xx) один
// раз с backoff, уважая отмену контекста. Бюджет — ровно две попытки.
func (c *Client) doWithRetry(ctx context.Context, makeReq func() (*http.Request, error)) (*http.Response, error) {
	const maxAttempts = 2
	backoff := 200 * time.Millisecond

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		req, err := makeReq()
		if err != nil {
			return nil, err
		}

		resp, err := c.httpc.Do(req)
		if err == nil && resp.StatusCode/100 == 2 {
			return resp, nil
		}

		retry := false
		if err != nil {
			lastErr = errors.Wrap(err, "do request")
			var netErr net.Error
			if errors.As(err, &netErr) {
				retry = true
			}
		} else {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			lastErr = &directions.ProviderError{
				StatusCode: resp.StatusCode,
				Body:       strings.TrimSpace(string(b)),
			}
			switch resp.StatusCode {
			case http.StatusTooManyRequests,
				http.StatusInternalServerError,
				http.StatusBadGateway,
				http.StatusServiceUnavailable,
				http.StatusGatewayTimeout:
				retry = true
			}
		}

		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}

	return nil, lastErr
}
