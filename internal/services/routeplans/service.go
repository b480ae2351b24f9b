package routeplans

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/cache"
	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/storage/pgroute"
)

type Repository interface {
	CreateRoutePlan(ctx context.Context, in models.RoutePlanCreateInput) (*models.RoutePlan, error)
	GetRoutePlan(ctx context.Context, id uint64) (*models.RoutePlan, error)
	ListRoutePlansByDriver(ctx context.Context, driverID uint64, limit, offset int) ([]*models.RoutePlan, error)
	UpdateRoutePlanStatus(ctx context.Context, id uint64, status string) error
	DeleteRoutePlan(ctx context.Context, id uint64) error

	AddAvoidanceArea(ctx context.Context, planID uint64, in models.AvoidanceAreaInput, status string) (*models.AvoidanceArea, error)
	GetAvoidanceArea(ctx context.Context, id uint64) (*models.AvoidanceArea, error)
	UpdateAvoidanceAreaStatus(ctx context.Context, id uint64, status string) error
	DeleteAvoidanceArea(ctx context.Context, id uint64) error
	ListPermanentApprovedAreas(ctx context.Context) ([]*models.AvoidanceArea, error)

	ApplyGeometryUpdate(ctx context.Context, upd pgroute.GeometryUpdate) error
	ScheduleRecompute(ctx context.Context, planID uint64, dueAt time.Time, cause string) error
}

type Producer interface {
	Publish(ctx context.Context, topic string, key, value []byte) error
}

// ValidationError — ошибка входных данных, на API маппится в 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

type Service struct {
	repo       Repository
	directions directions.Client
	cache      cache.BytesCache
	producer   Producer

	updatedTopic    string
	materializedTTL time.Duration
	reachedRadiusM  float64
	retryAfter      time.Duration

	// Пер-плановые мьютексы: решения по зонам одного плана сериализуются,
	// разные планы друг друга не ждут.
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func New(
	repo Repository,
	dir directions.Client,
	c cache.BytesCache,
	producer Producer,
	updatedTopic string,
	materializedTTL time.Duration,
	reachedRadiusM float64,
	retryAfter time.Duration,
) *Service {
	if reachedRadiusM <= 0 {
		reachedRadiusM = 50
	}
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	return &Service{
		repo:            repo,
		directions:      dir,
		cache:           c,
		producer:        producer,
		updatedTopic:    updatedTopic,
		materializedTTL: materializedTTL,
		reachedRadiusM:  reachedRadiusM,
		retryAfter:      retryAfter,
		locks:           map[uint64]*sync.Mutex{},
	}
}

func (s *Service) lockFor(planID uint64) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[planID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[planID] = l
	}
	return l
}

func (s *Service) CreateRoutePlan(ctx context.Context, in models.RoutePlanCreateInput) (*models.RoutePlan, error) {
	if in.DriverID == 0 || in.TruckID == 0 || in.PlannerID == 0 {
		return nil, validationErrorf("driverId, truckId and plannerId are required")
	}
	if len(in.Waypoints) < 2 {
		return nil, validationErrorf("at least two waypoints are required")
	}

	// Геометрию можно передать готовой (пересчитанной на клиенте планировщика),
	// иначе строим маршрут сами с учётом постоянных зон.
	if in.RouteGeometry == "" {
		obstacles, err := s.permanentObstacles(ctx)
		if err != nil {
			return nil, err
		}
		res, err := s.directions.GetRoute(ctx, directions.Request{
			Coordinates:   waypointInputCoords(in.Waypoints),
			AvoidPolygons: obstacles,
			ExtraInfo:     defaultExtraInfo(),
			Elevation:     true,
		})
		if err != nil {
			return nil, err
		}
		in.RouteGeometry = res.Geometry
		in.ExtrasJSON = res.ExtrasJSON
	}

	plan, err := s.repo.CreateRoutePlan(ctx, in)
	if err != nil {
		return nil, err
	}

	s.publishUpdated(ctx, plan, nil, nil, nil)
	return plan, nil
}

func (s *Service) GetRoutePlan(ctx context.Context, id uint64) (*models.RoutePlan, error) {
	if id == 0 {
		return nil, validationErrorf("routePlanId is required")
	}
	return s.repo.GetRoutePlan(ctx, id)
}

func (s *Service) ListRoutePlansByDriver(ctx context.Context, driverID uint64, limit, offset int) ([]*models.RoutePlan, error) {
	if driverID == 0 {
		return nil, validationErrorf("driverId is required")
	}
	return s.repo.ListRoutePlansByDriver(ctx, driverID, limit, offset)
}

func (s *Service) UpdateRoutePlanStatus(ctx context.Context, id uint64, status string) (*models.RoutePlan, error) {
	if !models.IsValidRoutePlanStatus(status) {
		return nil, validationErrorf("unknown status %q", status)
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	plan, err := s.repo.GetRoutePlan(ctx, id)
	if err != nil {
		return nil, err
	}
	if plan.Status == status {
		return plan, nil
	}
	if !models.CanTransition(plan.Status, status) {
		return nil, validationErrorf("cannot transition from %q to %q", plan.Status, status)
	}
	// План с нерассмотренными зонами нельзя активировать.
	if status == models.RoutePlanStatusActive && plan.HasPendingAreas() {
		return nil, validationErrorf("plan has pending avoidance areas")
	}

	if err := s.repo.UpdateRoutePlanStatus(ctx, id, status); err != nil {
		return nil, err
	}
	plan.Status = status

	s.publishUpdated(ctx, plan, nil, nil, nil)
	return plan, nil
}

func (s *Service) DeleteRoutePlan(ctx context.Context, id uint64) error {
	if id == 0 {
		return validationErrorf("routePlanId is required")
	}

	l := s.lockFor(id)
	l.Lock()
	defer l.Unlock()

	plan, err := s.repo.GetRoutePlan(ctx, id)
	if err != nil {
		return err
	}
	if plan.Status == models.RoutePlanStatusActive {
		return validationErrorf("active plan cannot be deleted, cancel it first")
	}

	if err := s.repo.DeleteRoutePlan(ctx, id); err != nil {
		return err
	}
	_ = s.invalidateMaterialized(ctx, plan)
	return nil
}

// publishUpdated — best effort: потеря нотификации не должна ронять операцию.
func (s *Service) publishUpdated(ctx context.Context, plan *models.RoutePlan, areaID *uint64, areaStatus *string, opErr *string) {
	if s.producer == nil || s.updatedTopic == "" {
		return
	}
	msg := messages.RoutePlanUpdated{
		RoutePlanID:     plan.ID,
		DriverID:        plan.DriverID,
		Status:          plan.Status,
		ChangedAt:       time.Now().UTC(),
		GeometryVersion: plan.GeometryVersion,
		AvoidanceAreaID: areaID,
		AvoidanceStatus: areaStatus,
		Error:           opErr,
	}
	b, _ := json.Marshal(msg)
	key := fmt.Sprintf("%d", plan.ID)
	if err := s.producer.Publish(ctx, s.updatedTopic, []byte(key), b); err != nil {
		slog.Warn("publish route plan update failed", "plan_id", plan.ID, "err", err)
	}
}

func waypointInputCoords(ws []models.WaypointInput) [][2]float64 {
	out := make([][2]float64, 0, len(ws))
	for _, w := range ws {
		out = append(out, [2]float64{w.Longitude, w.Latitude})
	}
	return out
}

func waypointCoords(ws []*models.Waypoint) [][2]float64 {
	out := make([][2]float64, 0, len(ws))
	for _, w := range ws {
		out = append(out, [2]float64{w.Longitude, w.Latitude})
	}
	return out
}

func defaultExtraInfo() []string {
	return []string{"surface", "waycategory", "waytype", "tollways"}
}
