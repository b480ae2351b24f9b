package orshttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/stretchr/testify/require"
)

func TestClient_GetRoute_OK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/directions/driving-hgv/json", r.URL.Path)
		require.Equal(t, "demo-key", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Len(t, body["coordinates"], 2)
		require.Equal(t, true, body["elevation"])

		opts, ok := body["options"].(map[string]any)
		require.True(t, ok)
		avoid, ok := opts["avoid_polygons"].(map[string]any)
		require.True(t, ok)
		require.Equal(t, "MultiPolygon", avoid["type"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
  "routes": [
    {
      "geometry": "_p~iF~ps|U_ulLnnqC",
      "summary": {"distance": 12345.6, "duration": 789.0},
      "extras": {"surface": {"values": [[0, 1, 3]]}}
    }
  ]
}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "demo-key", "driving-hgv", 5*time.Second)
	res, err := c.GetRoute(context.Background(), directions.Request{
		Coordinates: [][2]float64{{37.6173, 55.7558}, {30.3351, 59.9343}},
		ExtraInfo:   []string{"surface", "waycategory", "waytype", "tollways"},
		Elevation:   true,
		AvoidPolygons: [][][][2]float64{
			{{{37.0, 55.0}, {37.1, 55.0}, {37.1, 55.1}, {37.0, 55.0}}},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "_p~iF~ps|U_ulLnnqC", res.Geometry)
	require.InDelta(t, 12345.6, res.DistanceM, 1e-9)
	require.InDelta(t, 789.0, res.DurationS, 1e-9)
	require.NotNil(t, res.ExtrasJSON)
	require.JSONEq(t, `{"surface": {"values": [[0, 1, 3]]}}`, *res.ExtrasJSON)
}

func TestClient_GetRoute_RetriesOn503(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"routes":[{"geometry":"_p~iF~ps|U","summary":{"distance":1,"duration":1}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", time.Second)
	res, err := c.GetRoute(context.Background(), directions.Request{
		Coordinates: [][2]float64{{0, 0}, {1, 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "_p~iF~ps|U", res.Geometry)
	require.EqualValues(t, 2, calls.Load())
	require.Nil(t, res.ExtrasJSON)
}

func TestClient_GetRoute_SingleRetryBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "", time.Second)
	_, err := c.GetRoute(context.Background(), directions.Request{
		Coordinates: [][2]float64{{0, 0}, {1, 1}},
	})
	require.Error(t, err)

	var pe *directions.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusServiceUnavailable, pe.StatusCode)

	// Один повтор и не больше: две попытки суммарно.
	require.EqualValues(t, 2, calls.Load())
}

func TestClient_GetRoute_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":2009,"message":"route could not be found"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "k", "driving-car", time.Second)
	_, err := c.GetRoute(context.Background(), directions.Request{
		Coordinates: [][2]float64{{0, 0}, {1, 1}},
	})
	require.Error(t, err)

	var pe *directions.ProviderError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, http.StatusNotFound, pe.StatusCode)
}
