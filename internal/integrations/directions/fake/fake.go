package fake

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"

	"github.com/BearBump/RouteBox/internal/integrations/directions"
)

// FakeClient — заглушка провайдера навигации для локальной разработки без
// API-ключа. Строит "маршрут" прямыми отрезками через запрошенные точки и
// кодирует его в настоящий encoded polyline, чтобы декодер работал как на бою.
type FakeClient struct{}

func New() *FakeClient { return &FakeClient{} }

func (f *FakeClient) GetRoute(ctx context.Context, req directions.Request) (directions.RouteResult, error) {
	if len(req.Coordinates) < 2 {
		return directions.RouteResult{}, &directions.ProviderError{
			StatusCode: 400,
			Body:       "at least two coordinates required",
		}
	}

	geometry := encodePolyline(req.Coordinates, req.Elevation)

	// Детерминированный класс покрытия по набору точек.
	h := fnv.New32a()
	for _, c := range req.Coordinates {
		fmt.Fprintf(h, "%.5f|%.5f;", c[0], c[1])
	}
	surfaceClass := int(h.Sum32()%18) + 1

	extras := fmt.Sprintf(
		`{"surface":{"values":[[0,%d,%d]]},"waytype":{"values":[[0,%d,1]]},"tollways":{"values":[[0,%d,0]]}}`,
		len(req.Coordinates)-1, surfaceClass,
		len(req.Coordinates)-1,
		len(req.Coordinates)-1,
	)

	var dist float64
	for i := 1; i < len(req.Coordinates); i++ {
		dx := req.Coordinates[i][0] - req.Coordinates[i-1][0]
		dy := req.Coordinates[i][1] - req.Coordinates[i-1][1]
		dist += math.Hypot(dx, dy) * 111000 // грубое приближение, только для вида
	}

	return directions.RouteResult{
		Geometry:   geometry,
		ExtrasJSON: &extras,
		DistanceM:  dist,
		DurationS:  dist / 15,
	}, nil
}

// encodePolyline encodes [lng, lat] pairs with the 5-bit group scheme the
// real provider uses. Elevation channel is a flat zero profile.
func encodePolyline(coords [][2]float64, elevation bool) string {
	var out []byte
	prevLat, prevLng := 0, 0
	for _, c := range coords {
		lat := int(math.Round(c[1] * 1e5))
		lng := int(math.Round(c[0] * 1e5))
		out = appendValue(out, lat-prevLat)
		out = appendValue(out, lng-prevLng)
		if elevation {
			out = appendValue(out, 0)
		}
		prevLat, prevLng = lat, lng
	}
	return string(out)
}

func appendValue(out []byte, v int) []byte {
	v <<= 1
	if v < 0 {
		v = ^v
	}
	for v >= 0x20 {
		out = append(out, byte((0x20|(v&0x1f))+63))
		v >>= 5
	}
	return append(out, byte(v+63))
}
