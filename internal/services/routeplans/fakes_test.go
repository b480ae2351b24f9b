package routeplans

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/storage/pgroute"
	"github.com/pkg/errors"
)

// Стейтфул-фейк репозитория: негоциация зон гоняет несколько вызовов подряд,
// с каноническими заглушками "вход-выход" тест не собрать.
type fakeRepo struct {
	mu    sync.Mutex
	plans map[uint64]*models.RoutePlan
	areas map[uint64]*models.AvoidanceArea

	nextPlan uint64
	nextArea uint64

	// Сколько ближайших ApplyGeometryUpdate вернут конфликт версий.
	applyConflicts int
	applyCalls     []pgroute.GeometryUpdate
	scheduled      []uint64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		plans: map[uint64]*models.RoutePlan{},
		areas: map[uint64]*models.AvoidanceArea{},
	}
}

func (f *fakeRepo) CreateRoutePlan(ctx context.Context, in models.RoutePlanCreateInput) (*models.RoutePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextPlan++
	now := time.Now().UTC()
	p := &models.RoutePlan{
		ID:            f.nextPlan,
		DriverID:      in.DriverID,
		TruckID:       in.TruckID,
		PlannerID:     in.PlannerID,
		RouteGeometry: in.RouteGeometry,
		ExtrasJSON:    in.ExtrasJSON,
		Status:        models.RoutePlanStatusPlanned,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for i, w := range in.Waypoints {
		p.Waypoints = append(p.Waypoints, &models.Waypoint{
			ID: uint64(i + 1), RoutePlanID: p.ID,
			Latitude: w.Latitude, Longitude: w.Longitude,
			Address: w.Address, Order: w.Order,
		})
	}
	f.plans[p.ID] = p
	return f.getPlanLocked(p.ID)
}

func (f *fakeRepo) GetRoutePlan(ctx context.Context, id uint64) (*models.RoutePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getPlanLocked(id)
}

func (f *fakeRepo) getPlanLocked(id uint64) (*models.RoutePlan, error) {
	p, ok := f.plans[id]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "route plan")
	}
	cp := *p
	cp.AvoidanceAreas = nil
	for _, a := range f.areas {
		if a.RoutePlanID == id {
			cp.AvoidanceAreas = append(cp.AvoidanceAreas, a)
		}
	}
	sort.Slice(cp.AvoidanceAreas, func(i, j int) bool {
		return cp.AvoidanceAreas[i].ID < cp.AvoidanceAreas[j].ID
	})
	return &cp, nil
}

func (f *fakeRepo) ListRoutePlansByDriver(ctx context.Context, driverID uint64, limit, offset int) ([]*models.RoutePlan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var ids []uint64
	for id, p := range f.plans {
		if p.DriverID == driverID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*models.RoutePlan
	for _, id := range ids {
		p, _ := f.getPlanLocked(id)
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeRepo) UpdateRoutePlanStatus(ctx context.Context, id uint64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[id]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	p.Status = status
	return nil
}

func (f *fakeRepo) DeleteRoutePlan(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.plans[id]; !ok {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	delete(f.plans, id)
	for aid, a := range f.areas {
		if a.RoutePlanID == id {
			delete(f.areas, aid)
		}
	}
	return nil
}

func (f *fakeRepo) AddAvoidanceArea(ctx context.Context, planID uint64, in models.AvoidanceAreaInput, status string) (*models.AvoidanceArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextArea++
	now := time.Now().UTC()
	a := &models.AvoidanceArea{
		ID: f.nextArea, RoutePlanID: planID,
		Reason: in.Reason, IsPermanent: in.IsPermanent,
		Status: status, RequesterID: in.RequesterID, PhotoKey: in.PhotoKey,
		CreatedAt: now, UpdatedAt: now,
	}
	for i, p := range in.Points {
		a.Points = append(a.Points, &models.AvoidancePoint{
			ID: uint64(i + 1), AvoidanceAreaID: a.ID,
			Latitude: p.Latitude, Longitude: p.Longitude, Order: p.Order,
		})
	}
	f.areas[a.ID] = a
	return a, nil
}

func (f *fakeRepo) GetAvoidanceArea(ctx context.Context, id uint64) (*models.AvoidanceArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.areas[id]
	if !ok {
		return nil, errors.Wrap(models.ErrNotFound, "avoidance area")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeRepo) UpdateAvoidanceAreaStatus(ctx context.Context, id uint64, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.areas[id]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "avoidance area")
	}
	a.Status = status
	return nil
}

func (f *fakeRepo) DeleteAvoidanceArea(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.areas[id]; !ok {
		return errors.Wrap(models.ErrNotFound, "avoidance area")
	}
	delete(f.areas, id)
	return nil
}

func (f *fakeRepo) ListPermanentApprovedAreas(ctx context.Context) ([]*models.AvoidanceArea, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*models.AvoidanceArea
	for _, a := range f.areas {
		if a.IsPermanent && a.Status == models.AvoidanceStatusApproved {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) ApplyGeometryUpdate(ctx context.Context, upd pgroute.GeometryUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.applyCalls = append(f.applyCalls, upd)
	if f.applyConflicts > 0 {
		f.applyConflicts--
		return errors.Wrap(models.ErrConcurrencyConflict, "fake")
	}

	p, ok := f.plans[upd.PlanID]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	if models.IsTerminalStatus(p.Status) {
		return nil
	}
	if p.GeometryVersion != upd.ExpectedVersion {
		return errors.Wrap(models.ErrConcurrencyConflict, "fake")
	}
	p.RouteGeometry = upd.Geometry
	p.ExtrasJSON = upd.ExtrasJSON
	p.GeometryVersion++
	p.RecomputeDueAt = nil
	p.RecomputeFailCount = 0
	p.LastError = nil
	return nil
}

func (f *fakeRepo) ScheduleRecompute(ctx context.Context, planID uint64, dueAt time.Time, cause string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.plans[planID]
	if !ok {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	due := dueAt
	p.RecomputeDueAt = &due
	p.RecomputeFailCount++
	p.LastError = &cause
	f.scheduled = append(f.scheduled, planID)
	return nil
}

func routeResult(geom string, extras *string) directions.RouteResult {
	return directions.RouteResult{Geometry: geom, ExtrasJSON: extras, DistanceM: 1000, DurationS: 100}
}

func triangleArea(requester uint64, permanent bool) models.AvoidanceAreaInput {
	return models.AvoidanceAreaInput{
		Reason:      "blocked road",
		IsPermanent: permanent,
		RequesterID: requester,
		Points: []models.AvoidancePointInput{
			{Latitude: 55.0, Longitude: 37.0, Order: 0},
			{Latitude: 55.1, Longitude: 37.0, Order: 1},
			{Latitude: 55.1, Longitude: 37.1, Order: 2},
		},
	}
}

type fakeDirections struct {
	mu   sync.Mutex
	reqs []directions.Request
	res  directions.RouteResult
	err  error
}

func (f *fakeDirections) GetRoute(ctx context.Context, req directions.Request) (directions.RouteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return directions.RouteResult{}, f.err
	}
	return f.res, nil
}

type publishedMsg struct {
	topic string
	key   string
	value []byte
}

type fakeProducer struct {
	mu   sync.Mutex
	msgs []publishedMsg
}

func (f *fakeProducer) Publish(ctx context.Context, topic string, key, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, publishedMsg{topic: topic, key: string(key), value: value})
	return nil
}

type fakeCache struct {
	mu sync.Mutex
	m  map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{m: map[string][]byte{}} }

func (c *fakeCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.m[key]
	return b, ok, nil
}

func (c *fakeCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = value
	return nil
}

func (c *fakeCache) Del(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
	return nil
}
