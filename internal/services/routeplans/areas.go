package routeplans

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BearBump/RouteBox/internal/integrations/directions"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/BearBump/RouteBox/internal/storage/pgroute"
	"github.com/pkg/errors"
)

// ProposeAvoidanceArea регистрирует зону от водителя. План уходит в
// "on confirmation" до решения планировщика, маршрут не трогаем.
func (s *Service) ProposeAvoidanceArea(ctx context.Context, planID uint64, in models.AvoidanceAreaInput) (*models.AvoidanceArea, error) {
	if in.Reason == "" {
		return nil, validationErrorf("reason is required")
	}
	if in.RequesterID == 0 {
		return nil, validationErrorf("requesterId is required")
	}
	if len(in.Points) < 3 {
		return nil, validationErrorf("avoidance area needs at least 3 points")
	}

	l := s.lockFor(planID)
	l.Lock()
	defer l.Unlock()

	plan, err := s.repo.GetRoutePlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(plan.Status) {
		return nil, validationErrorf("plan %d is %s", planID, plan.Status)
	}

	area, err := s.repo.AddAvoidanceArea(ctx, planID, in, models.AvoidanceStatusPending)
	if err != nil {
		return nil, err
	}

	if plan.Status != models.RoutePlanStatusOnConfirmation {
		if err := s.repo.UpdateRoutePlanStatus(ctx, planID, models.RoutePlanStatusOnConfirmation); err != nil {
			return nil, err
		}
		plan.Status = models.RoutePlanStatusOnConfirmation
	}

	st := area.Status
	s.publishUpdated(ctx, plan, &area.ID, &st, nil)
	return area, nil
}

// ApproveAvoidanceArea подтверждает зону и пересчитывает маршрут плана.
// Если провайдер недоступен, зона остаётся подтверждённой, геометрия —
// старой, а план помечается на фоновый пересчёт.
func (s *Service) ApproveAvoidanceArea(ctx context.Context, areaID uint64) (*models.AvoidanceArea, error) {
	area, err := s.repo.GetAvoidanceArea(ctx, areaID)
	if err != nil {
		return nil, err
	}

	l := s.lockFor(area.RoutePlanID)
	l.Lock()
	defer l.Unlock()

	if area.Status != models.AvoidanceStatusPending {
		return nil, validationErrorf("area %d is already %s", areaID, area.Status)
	}

	if err := s.repo.UpdateAvoidanceAreaStatus(ctx, areaID, models.AvoidanceStatusApproved); err != nil {
		return nil, err
	}
	area.Status = models.AvoidanceStatusApproved

	plan, err := s.settlePlanAfterDecision(ctx, area.RoutePlanID)
	if err != nil {
		return nil, err
	}

	st := area.Status
	if err := s.recomputeLocked(ctx, plan); err != nil {
		// Решение планировщика зафиксировано, маршрут догонит его позже.
		cause := err.Error()
		due := time.Now().UTC().Add(s.retryAfter)
		if schedErr := s.repo.ScheduleRecompute(ctx, plan.ID, due, cause); schedErr != nil {
			slog.Error("schedule recompute failed", "plan_id", plan.ID, "err", schedErr)
		}
		slog.Warn("route recompute failed, geometry kept stale",
			"plan_id", plan.ID, "area_id", areaID, "err", err)
		s.publishUpdated(ctx, plan, &area.ID, &st, &cause)
		return area, err
	}

	s.publishUpdated(ctx, plan, &area.ID, &st, nil)
	return area, nil
}

// RejectAvoidanceArea отклоняет зону. Маршрут не меняется.
func (s *Service) RejectAvoidanceArea(ctx context.Context, areaID uint64) (*models.AvoidanceArea, error) {
	area, err := s.repo.GetAvoidanceArea(ctx, areaID)
	if err != nil {
		return nil, err
	}

	l := s.lockFor(area.RoutePlanID)
	l.Lock()
	defer l.Unlock()

	if area.Status != models.AvoidanceStatusPending {
		return nil, validationErrorf("area %d is already %s", areaID, area.Status)
	}

	if err := s.repo.UpdateAvoidanceAreaStatus(ctx, areaID, models.AvoidanceStatusRejected); err != nil {
		return nil, err
	}
	area.Status = models.AvoidanceStatusRejected

	plan, err := s.settlePlanAfterDecision(ctx, area.RoutePlanID)
	if err != nil {
		return nil, err
	}

	st := area.Status
	s.publishUpdated(ctx, plan, &area.ID, &st, nil)
	return area, nil
}

// DeleteAvoidanceArea удаляет зону. Если она была подтверждённой, маршрут
// пересчитывается заново — объезжать больше нечего.
func (s *Service) DeleteAvoidanceArea(ctx context.Context, areaID uint64) error {
	area, err := s.repo.GetAvoidanceArea(ctx, areaID)
	if err != nil {
		return err
	}

	l := s.lockFor(area.RoutePlanID)
	l.Lock()
	defer l.Unlock()

	wasApproved := area.Status == models.AvoidanceStatusApproved
	if err := s.repo.DeleteAvoidanceArea(ctx, areaID); err != nil {
		return err
	}

	plan, err := s.settlePlanAfterDecision(ctx, area.RoutePlanID)
	if err != nil {
		return err
	}

	if wasApproved && !models.IsTerminalStatus(plan.Status) {
		if err := s.recomputeLocked(ctx, plan); err != nil {
			cause := err.Error()
			due := time.Now().UTC().Add(s.retryAfter)
			if schedErr := s.repo.ScheduleRecompute(ctx, plan.ID, due, cause); schedErr != nil {
				slog.Error("schedule recompute failed", "plan_id", plan.ID, "err", schedErr)
			}
			return err
		}
	}

	s.publishUpdated(ctx, plan, nil, nil, nil)
	return nil
}

// ListPermanentAreas возвращает подтверждённые постоянные зоны всего парка.
func (s *Service) ListPermanentAreas(ctx context.Context) ([]*models.AvoidanceArea, error) {
	return s.repo.ListPermanentApprovedAreas(ctx)
}

// RecomputePlan пересчитывает маршрут плана по текущему набору препятствий.
// Используется фоновым воркером для догона отложенных пересчётов.
func (s *Service) RecomputePlan(ctx context.Context, planID uint64) error {
	l := s.lockFor(planID)
	l.Lock()
	defer l.Unlock()

	plan, err := s.repo.GetRoutePlan(ctx, planID)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(plan.Status) {
		return nil
	}
	return s.recomputeLocked(ctx, plan)
}

// settlePlanAfterDecision возвращает план из "on confirmation" в "planned",
// когда нерассмотренных зон не осталось.
func (s *Service) settlePlanAfterDecision(ctx context.Context, planID uint64) (*models.RoutePlan, error) {
	plan, err := s.repo.GetRoutePlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan.Status == models.RoutePlanStatusOnConfirmation && !plan.HasPendingAreas() {
		if err := s.repo.UpdateRoutePlanStatus(ctx, planID, models.RoutePlanStatusPlanned); err != nil {
			return nil, err
		}
		plan.Status = models.RoutePlanStatusPlanned
	}
	return plan, nil
}

// recomputeLocked строит маршрут через провайдера и атомарно применяет
// геометрию. Вызывается строго под пер-плановым мьютексом. Конфликт по
// geometry_version значит, что другой процесс успел поменять план, а с ним
// мог измениться и набор препятствий: старый ответ провайдера применять
// нельзя, весь пересчёт повторяется целиком, один раз.
func (s *Service) recomputeLocked(ctx context.Context, plan *models.RoutePlan) error {
	err := s.recomputeOnce(ctx, plan)
	if !errors.Is(err, models.ErrConcurrencyConflict) {
		return err
	}

	fresh, gerr := s.repo.GetRoutePlan(ctx, plan.ID)
	if gerr != nil {
		return gerr
	}
	if err := s.recomputeOnce(ctx, fresh); err != nil {
		return err
	}
	plan.RouteGeometry = fresh.RouteGeometry
	plan.ExtrasJSON = fresh.ExtrasJSON
	plan.GeometryVersion = fresh.GeometryVersion
	return nil
}

func (s *Service) recomputeOnce(ctx context.Context, plan *models.RoutePlan) error {
	if len(plan.Waypoints) < 2 {
		return validationErrorf("plan %d has fewer than two waypoints", plan.ID)
	}

	obstacles, err := s.planObstacles(ctx, plan)
	if err != nil {
		return err
	}

	res, err := s.directions.GetRoute(ctx, directions.Request{
		Coordinates:   waypointCoords(plan.Waypoints),
		AvoidPolygons: obstacles,
		ExtraInfo:     defaultExtraInfo(),
		Elevation:     true,
	})
	if err != nil {
		return err
	}

	err = s.repo.ApplyGeometryUpdate(ctx, pgroute.GeometryUpdate{
		PlanID:          plan.ID,
		Geometry:        res.Geometry,
		ExtrasJSON:      res.ExtrasJSON,
		ExpectedVersion: plan.GeometryVersion,
	})
	if err != nil {
		return err
	}

	_ = s.invalidateMaterialized(ctx, plan)
	plan.RouteGeometry = res.Geometry
	plan.ExtrasJSON = res.ExtrasJSON
	plan.GeometryVersion++
	return nil
}

// planObstacles собирает MultiPolygon препятствий: подтверждённые зоны самого
// плана плюс постоянные зоны всех планов, без дублей.
func (s *Service) planObstacles(ctx context.Context, plan *models.RoutePlan) ([][][][2]float64, error) {
	permanent, err := s.repo.ListPermanentApprovedAreas(ctx)
	if err != nil {
		return nil, err
	}

	seen := map[uint64]struct{}{}
	var polygons [][][][2]float64

	add := func(a *models.AvoidanceArea) {
		if _, ok := seen[a.ID]; ok {
			return
		}
		seen[a.ID] = struct{}{}
		if ring := areaRing(a); ring != nil {
			polygons = append(polygons, [][][2]float64{ring})
		}
	}

	for _, a := range plan.AvoidanceAreas {
		if a.Status == models.AvoidanceStatusApproved {
			add(a)
		}
	}
	for _, a := range permanent {
		add(a)
	}
	return polygons, nil
}

// permanentObstacles — набор препятствий для нового плана, у которого своих
// зон ещё нет.
func (s *Service) permanentObstacles(ctx context.Context) ([][][][2]float64, error) {
	permanent, err := s.repo.ListPermanentApprovedAreas(ctx)
	if err != nil {
		return nil, err
	}
	var polygons [][][][2]float64
	for _, a := range permanent {
		if ring := areaRing(a); ring != nil {
			polygons = append(polygons, [][][2]float64{ring})
		}
	}
	return polygons, nil
}

// areaRing строит замкнутое кольцо [lng, lat] из точек зоны.
func areaRing(a *models.AvoidanceArea) [][2]float64 {
	if len(a.Points) < 3 {
		slog.Warn("avoidance area has fewer than 3 points, ignored", "area_id", a.ID)
		return nil
	}
	ring := make([][2]float64, 0, len(a.Points)+1)
	for _, p := range a.Points {
		ring = append(ring, [2]float64{p.Longitude, p.Latitude})
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

func (s *Service) invalidateMaterialized(ctx context.Context, plan *models.RoutePlan) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, materializedKey(plan.ID, plan.GeometryVersion))
}

func materializedKey(planID uint64, version int64) string {
	return fmt.Sprintf("route:%d:v%d", planID, version)
}
