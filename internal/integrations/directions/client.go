package directions

import (
	"context"
	"fmt"
)

// Request — запрос маршрута к провайдеру навигации.
// Coordinates and avoid polygons are [lng, lat] pairs, provider order.
type Request struct {
	Coordinates [][2]float64
	// AvoidPolygons is a MultiPolygon: polygons -> rings -> [lng, lat] points.
	// Rings must be closed (first point repeated last).
	AvoidPolygons [][][][2]float64
	ExtraInfo     []string
	Elevation     bool
}

// RouteResult is the provider response reduced to what we persist: the
// encoded geometry, the raw extras object and the route summary.
type RouteResult struct {
	Geometry   string
	ExtrasJSON *string
	DistanceM  float64
	DurationS  float64
}

type Client interface {
	GetRoute(ctx context.Context, req Request) (RouteResult, error)
}

// ProviderError — невосстановимый ответ провайдера (после ретраев).
type ProviderError struct {
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("directions provider http %d: %s", e.StatusCode, e.Body)
}
