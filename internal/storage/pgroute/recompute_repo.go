package pgroute

import (
	"context"
	"time"

	"github.com/BearBump/RouteBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// GeometryUpdate — результат пересчёта маршрута, применяемый к плану.
type GeometryUpdate struct {
	PlanID uint64

	Geometry   string
	ExtrasJSON *string

	// ExpectedVersion is the geometry_version the recompute started from.
	// A mismatch means someone replaced the geometry in the meantime.
	ExpectedVersion int64
}

// ApplyGeometryUpdate atomically replaces the plan geometry. Terminal plans
// are left untouched: a slow recompute must not resurrect a cancelled plan.
func (s *Storage) ApplyGeometryUpdate(ctx context.Context, upd GeometryUpdate) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status string
	var version int64
	err = tx.QueryRow(ctx, `
SELECT status, geometry_version FROM route_plans WHERE id = $1 FOR UPDATE
`, upd.PlanID).Scan(&status, &version)
	if errors.Is(err, pgx.ErrNoRows) {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	if err != nil {
		return errors.Wrap(err, "lock route plan")
	}

	if models.IsTerminalStatus(status) {
		return tx.Commit(ctx)
	}
	if version != upd.ExpectedVersion {
		return errors.Wrapf(models.ErrConcurrencyConflict, "have %d, expected %d", version, upd.ExpectedVersion)
	}

	_, err = tx.Exec(ctx, `
UPDATE route_plans
SET
  route_geometry = $2,
  extras = $3,
  geometry_version = geometry_version + 1,
  recompute_due_at = NULL,
  recompute_fail_count = 0,
  last_error = NULL,
  updated_at = now()
WHERE id = $1
`, upd.PlanID, upd.Geometry, upd.ExtrasJSON)
	if err != nil {
		return errors.Wrap(err, "update geometry")
	}

	return errors.Wrap(tx.Commit(ctx), "commit tx")
}

// ScheduleRecompute помечает план на фоновый пересчёт после сбоя провайдера.
func (s *Storage) ScheduleRecompute(ctx context.Context, planID uint64, dueAt time.Time, cause string) error {
	tag, err := s.db.Exec(ctx, `
UPDATE route_plans
SET
  recompute_due_at = $2,
  recompute_fail_count = recompute_fail_count + 1,
  last_error = $3,
  updated_at = now()
WHERE id = $1
`, planID, dueAt.UTC(), cause)
	if err != nil {
		return errors.Wrap(err, "schedule recompute")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "route plan")
	}
	return nil
}

// ClaimDueRecomputes выбирает пачку планов с подошедшим пересчётом и "бронирует"
// их, сдвигая recompute_due_at на lease вперёд. SELECT ... FOR UPDATE SKIP LOCKED
// позволяет гонять несколько воркеров над одной таблицей.
func (s *Storage) ClaimDueRecomputes(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*models.RoutePlan, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT
  id, driver_id, truck_id, planner_id,
  route_geometry, extras::text, status, geometry_version,
  recompute_due_at, recompute_fail_count, last_error,
  created_at, updated_at
FROM route_plans
WHERE recompute_due_at IS NOT NULL
  AND recompute_due_at <= $1
  AND status NOT IN ($2, $3)
ORDER BY recompute_due_at ASC
LIMIT $4
FOR UPDATE SKIP LOCKED
`, now.UTC(), models.RoutePlanStatusCompleted, models.RoutePlanStatusCancelled, limit)
	if err != nil {
		return nil, errors.Wrap(err, "select due recomputes")
	}
	defer rows.Close()

	var picked []*models.RoutePlan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		picked = append(picked, p)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	leaseUntil := now.UTC().Add(lease)
	for _, p := range picked {
		_, err := tx.Exec(ctx, `UPDATE route_plans SET recompute_due_at = $2, updated_at = now() WHERE id = $1`, p.ID, leaseUntil)
		if err != nil {
			return nil, errors.Wrap(err, "lease route plan")
		}
		p.RecomputeDueAt = &leaseUntil
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	if err := s.loadPlanChildren(ctx, picked); err != nil {
		return nil, err
	}
	return picked, nil
}
