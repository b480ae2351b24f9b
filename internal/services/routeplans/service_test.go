package routeplans

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/RouteBox/internal/models"
	"github.com/stretchr/testify/require"
)

const testTopic = "routeplan.updated"

func newTestService(t *testing.T) (*Service, *fakeRepo, *fakeDirections, *fakeProducer, *fakeCache) {
	t.Helper()
	repo := newFakeRepo()
	extras := `{"surface":{"values":[[0,1,3]]},"waytype":{"values":[[0,1,1]]}}`
	dir := &fakeDirections{
		res: routeResult("_p~iF~ps|U_ulLnnqC", &extras),
	}
	prod := &fakeProducer{}
	c := newFakeCache()
	s := New(repo, dir, c, prod, testTopic, 10*time.Minute, 50, time.Minute)
	return s, repo, dir, prod, c
}

func twoWaypoints() []models.WaypointInput {
	return []models.WaypointInput{
		{Latitude: 55.7558, Longitude: 37.6173, Order: 0},
		{Latitude: 56.3269, Longitude: 44.0059, Order: 1},
	}
}

func TestService_CreateRoutePlan_Validate(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := s.CreateRoutePlan(ctx, models.RoutePlanCreateInput{TruckID: 1, PlannerID: 1, Waypoints: twoWaypoints()})
	requireValidationError(t, err)

	_, err = s.CreateRoutePlan(ctx, models.RoutePlanCreateInput{
		DriverID: 1, TruckID: 1, PlannerID: 1,
		Waypoints: twoWaypoints()[:1],
	})
	requireValidationError(t, err)
}

func TestService_CreateRoutePlan_ComputesGeometry(t *testing.T) {
	s, _, dir, prod, _ := newTestService(t)
	ctx := context.Background()

	plan, err := s.CreateRoutePlan(ctx, models.RoutePlanCreateInput{
		DriverID: 1, TruckID: 2, PlannerID: 3,
		Waypoints: twoWaypoints(),
	})
	require.NoError(t, err)
	require.Equal(t, "_p~iF~ps|U_ulLnnqC", plan.RouteGeometry)
	require.Equal(t, models.RoutePlanStatusPlanned, plan.Status)

	// Провайдера звали с точками в порядке [lng, lat] и с запросом extras.
	require.Len(t, dir.reqs, 1)
	require.Equal(t, [2]float64{37.6173, 55.7558}, dir.reqs[0].Coordinates[0])
	require.True(t, dir.reqs[0].Elevation)
	require.Contains(t, dir.reqs[0].ExtraInfo, "surface")

	require.Len(t, prod.msgs, 1)
	require.Equal(t, testTopic, prod.msgs[0].topic)
}

func TestService_CreateRoutePlan_KeepsProvidedGeometry(t *testing.T) {
	s, _, dir, _, _ := newTestService(t)

	plan, err := s.CreateRoutePlan(context.Background(), models.RoutePlanCreateInput{
		DriverID: 1, TruckID: 2, PlannerID: 3,
		RouteGeometry: "custom",
		Waypoints:     twoWaypoints(),
	})
	require.NoError(t, err)
	require.Equal(t, "custom", plan.RouteGeometry)
	require.Empty(t, dir.reqs)
}

func TestService_UpdateStatus_Transitions(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	plan, err := s.CreateRoutePlan(ctx, models.RoutePlanCreateInput{
		DriverID: 1, TruckID: 2, PlannerID: 3, Waypoints: twoWaypoints(),
	})
	require.NoError(t, err)

	// planned -> completed запрещён.
	_, err = s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusCompleted)
	requireValidationError(t, err)

	got, err := s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusActive)
	require.NoError(t, err)
	require.Equal(t, models.RoutePlanStatusActive, got.Status)

	got, err = s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, models.RoutePlanStatusCompleted, got.Status)

	// Терминальный статус не покидаем.
	_, err = s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusActive)
	requireValidationError(t, err)
}

func TestService_UpdateStatus_PendingAreasBlockActivation(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	plan, err := s.CreateRoutePlan(ctx, models.RoutePlanCreateInput{
		DriverID: 1, TruckID: 2, PlannerID: 3, Waypoints: twoWaypoints(),
	})
	require.NoError(t, err)

	_, err = s.ProposeAvoidanceArea(ctx, plan.ID, triangleArea(10, false))
	require.NoError(t, err)

	_, err = s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusActive)
	requireValidationError(t, err)
}

func TestService_DeleteRoutePlan(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	plan, err := s.CreateRoutePlan(ctx, models.RoutePlanCreateInput{
		DriverID: 1, TruckID: 2, PlannerID: 3, Waypoints: twoWaypoints(),
	})
	require.NoError(t, err)

	_, err = s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusActive)
	require.NoError(t, err)

	// Активный план сначала отменяют.
	err = s.DeleteRoutePlan(ctx, plan.ID)
	requireValidationError(t, err)

	_, err = s.UpdateRoutePlanStatus(ctx, plan.ID, models.RoutePlanStatusCancelled)
	require.NoError(t, err)
	require.NoError(t, s.DeleteRoutePlan(ctx, plan.ID))

	_, err = s.GetRoutePlan(ctx, plan.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestService_ListByDriver(t *testing.T) {
	s, _, _, _, _ := newTestService(t)
	ctx := context.Background()

	for range 2 {
		_, err := s.CreateRoutePlan(ctx, models.RoutePlanCreateInput{
			DriverID: 7, TruckID: 2, PlannerID: 3, Waypoints: twoWaypoints(),
		})
		require.NoError(t, err)
	}

	plans, err := s.ListRoutePlansByDriver(ctx, 7, 10, 0)
	require.NoError(t, err)
	require.Len(t, plans, 2)

	_, err = s.ListRoutePlansByDriver(ctx, 0, 10, 0)
	requireValidationError(t, err)
}

func requireValidationError(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
}
