package routeplans

import (
	"context"
	"testing"

	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/stretchr/testify/require"
)

func TestService_MaterializedRoute(t *testing.T) {
	s, _, _, _, c := newTestService(t)
	ctx := context.Background()
	plan := createTestPlan(t, s, 1)

	m, err := s.MaterializedRoute(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, plan.ID, m.RoutePlanID)
	require.Len(t, m.Points, 2)
	require.InDelta(t, 38.5, m.Points[0].Lat, 1e-9)
	require.InDelta(t, -120.2, m.Points[0].Lng, 1e-9)

	// Сегменты покрытия с человекочитаемой меткой.
	require.Len(t, m.Surface, 1)
	require.Equal(t, 3, m.Surface[0].Class)
	require.Equal(t, "Asphalt", m.Surface[0].Label)
	require.Len(t, m.Waytype, 1)
	require.Empty(t, m.Waytype[0].Label)

	// Второй вызов идёт из кэша.
	require.Contains(t, c.m, materializedKey(plan.ID, plan.GeometryVersion))
	m2, err := s.MaterializedRoute(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, m.Points, m2.Points)
}

func TestService_MaterializedRoute_BadGeometry(t *testing.T) {
	s, _, dir, _, _ := newTestService(t)
	ctx := context.Background()

	dir.mu.Lock()
	dir.res = routeResult("_p~iF", nil)
	dir.mu.Unlock()

	plan := createTestPlan(t, s, 1)
	_, err := s.MaterializedRoute(ctx, plan.ID)
	require.Error(t, err)
}

func TestService_ApplyDriverLocation_Progress(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	plan := createTestPlan(t, s, 5)
	_, err := s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusActive)
	require.NoError(t, err)

	// Позиция у первой точки: прогресс 0%, точка достигнута.
	p, err := s.ApplyDriverLocation(ctx, messages.DriverLocation{
		DriverID: 5, Latitude: 55.7558, Longitude: 37.6173,
	})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, 0, p.ReachedIdx)
	require.InDelta(t, 0, p.Percent, 1e-9)

	// Отъехали от точки: достигнутый индекс не откатывается.
	p, err = s.ApplyDriverLocation(ctx, messages.DriverLocation{
		DriverID: 5, Latitude: 55.9, Longitude: 38.0,
	})
	require.NoError(t, err)
	require.Equal(t, 0, p.ReachedIdx)

	// Пришли на последнюю точку: 100% и план завершён.
	p, err = s.ApplyDriverLocation(ctx, messages.DriverLocation{
		DriverID: 5, Latitude: 56.3269, Longitude: 44.0059,
	})
	require.NoError(t, err)
	require.Equal(t, 1, p.ReachedIdx)
	require.InDelta(t, 100, p.Percent, 1e-9)

	got, err := s.GetRoutePlan(ctx, plan.ID)
	require.NoError(t, err)
	require.Equal(t, models.RoutePlanStatusCompleted, got.Status)

	// Прогресс читается обратно.
	stored, ok, err := s.Progress(ctx, plan.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.InDelta(t, 100, stored.Percent, 1e-9)
}

func TestService_ApplyDriverLocation_NoActivePlan(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	createTestPlan(t, s, 5) // planned, не active

	p, err := s.ApplyDriverLocation(ctx, messages.DriverLocation{
		DriverID: 5, Latitude: 55.7558, Longitude: 37.6173,
	})
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = s.ApplyDriverLocation(ctx, messages.DriverLocation{})
	requireValidationError(t, err)
}
