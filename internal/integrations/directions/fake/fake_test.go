package fake

import (
	"context"
	"testing"

	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/stretchr/testify/require"
)

func TestFakeClient_GetRoute(t *testing.T) {
	c := New()
	res, err := c.GetRoute(context.Background(), directions.Request{
		Coordinates: [][2]float64{{37.6173, 55.7558}, {44.0059, 56.3269}},
		Elevation:   true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.Geometry)
	require.NotNil(t, res.ExtrasJSON)

	// Геометрия должна декодироваться обратно в исходные точки.
	coords, err := geo.DecodePolyline(res.Geometry, true)
	require.NoError(t, err)
	require.Len(t, coords, 2)
	require.InDelta(t, 55.7558, coords[0].Lat, 1e-5)
	require.InDelta(t, 37.6173, coords[0].Lon, 1e-5)
	require.NotNil(t, coords[0].Elevation)
}

func TestFakeClient_GetRoute_TooFewPoints(t *testing.T) {
	c := New()
	_, err := c.GetRoute(context.Background(), directions.Request{
		Coordinates: [][2]float64{{0, 0}},
	})
	require.Error(t, err)
}
