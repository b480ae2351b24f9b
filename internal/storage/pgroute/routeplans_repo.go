package pgroute

import (
	"context"
	"time"

	"github.com/BearBump/RouteBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateRoutePlan(ctx context.Context, in models.RoutePlanCreateInput) (*models.RoutePlan, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uint64
	err = tx.QueryRow(ctx, `
INSERT INTO route_plans (
  driver_id, truck_id, planner_id, route_geometry, extras, status, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
RETURNING id
`, in.DriverID, in.TruckID, in.PlannerID, in.RouteGeometry, in.ExtrasJSON, models.RoutePlanStatusPlanned, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert route plan")
	}

	for _, w := range in.Waypoints {
		_, err := tx.Exec(ctx, `
INSERT INTO waypoints (route_plan_id, latitude, longitude, address, ord)
VALUES ($1,$2,$3,$4,$5)
`, id, w.Latitude, w.Longitude, w.Address, w.Order)
		if err != nil {
			return nil, errors.Wrap(err, "insert waypoint")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetRoutePlan(ctx, id)
}

func (s *Storage) GetRoutePlan(ctx context.Context, id uint64) (*models.RoutePlan, error) {
	plans, err := s.selectPlans(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(plans) == 0 {
		return nil, errors.Wrap(models.ErrNotFound, "route plan")
	}
	if err := s.loadPlanChildren(ctx, plans); err != nil {
		return nil, err
	}
	return plans[0], nil
}

func (s *Storage) ListRoutePlansByDriver(ctx context.Context, driverID uint64, limit, offset int) ([]*models.RoutePlan, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	plans, err := s.selectPlans(ctx, `WHERE driver_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`, driverID, limit, offset)
	if err != nil {
		return nil, err
	}
	if err := s.loadPlanChildren(ctx, plans); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Storage) UpdateRoutePlanStatus(ctx context.Context, id uint64, status string) error {
	tag, err := s.db.Exec(ctx, `UPDATE route_plans SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return errors.Wrap(err, "update status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	return nil
}

// DeleteRoutePlan удаляет план вместе с waypoint'ами и зонами (ON DELETE CASCADE).
func (s *Storage) DeleteRoutePlan(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM route_plans WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete route plan")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	return nil
}

func (s *Storage) selectPlans(ctx context.Context, where string, args ...any) ([]*models.RoutePlan, error) {
	rows, err := s.db.Query(ctx, `
SELECT
  id, driver_id, truck_id, planner_id,
  route_geometry, extras::text, status, geometry_version,
  recompute_due_at, recompute_fail_count, last_error,
  created_at, updated_at
FROM route_plans
`+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select route plans")
	}
	defer rows.Close()

	var out []*models.RoutePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}
	return out, nil
}

func scanPlan(row pgx.Row) (*models.RoutePlan, error) {
	var p models.RoutePlan
	var extras *string
	var recomputeDueAt *time.Time
	var lastError *string
	if err := row.Scan(
		&p.ID, &p.DriverID, &p.TruckID, &p.PlannerID,
		&p.RouteGeometry, &extras, &p.Status, &p.GeometryVersion,
		&recomputeDueAt, &p.RecomputeFailCount, &lastError,
		&p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, errors.Wrap(err, "scan route plan")
	}
	p.ExtrasJSON = extras
	p.RecomputeDueAt = recomputeDueAt
	p.LastError = lastError
	return &p, nil
}

// loadPlanChildren догружает waypoint'ы и зоны объезда для пачки планов.
func (s *Storage) loadPlanChildren(ctx context.Context, plans []*models.RoutePlan) error {
	if len(plans) == 0 {
		return nil
	}

	byID := make(map[uint64]*models.RoutePlan, len(plans))
	ids := make([]uint64, 0, len(plans))
	for _, p := range plans {
		byID[p.ID] = p
		ids = append(ids, p.ID)
	}

	rows, err := s.db.Query(ctx, `
SELECT id, route_plan_id, latitude, longitude, address, ord
FROM waypoints
WHERE route_plan_id = ANY($1)
ORDER BY route_plan_id, ord
`, ids)
	if err != nil {
		return errors.Wrap(err, "select waypoints")
	}
	defer rows.Close()

	for rows.Next() {
		var w models.Waypoint
		var address *string
		if err := rows.Scan(&w.ID, &w.RoutePlanID, &w.Latitude, &w.Longitude, &address, &w.Order); err != nil {
			return errors.Wrap(err, "scan waypoint")
		}
		w.Address = address
		byID[w.RoutePlanID].Waypoints = append(byID[w.RoutePlanID].Waypoints, &w)
	}
	if rows.Err() != nil {
		return errors.Wrap(rows.Err(), "rows")
	}

	areas, err := s.selectAreas(ctx, `WHERE route_plan_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	for _, a := range areas {
		byID[a.RoutePlanID].AvoidanceAreas = append(byID[a.RoutePlanID].AvoidanceAreas, a)
	}
	return nil
}
