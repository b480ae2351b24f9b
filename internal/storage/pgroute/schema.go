package pgroute

import (
	"context"

	"github.com/pkg/errors"
)

func (s *Storage) initSchema(ctx context.Context) error {
	stmts := []string{
		`
CREATE TABLE IF NOT EXISTS route_plans (
  id BIGSERIAL PRIMARY KEY,
  driver_id BIGINT NOT NULL,
  truck_id BIGINT NOT NULL,
  planner_id BIGINT NOT NULL,
  route_geometry TEXT NOT NULL,
  extras JSONB NULL,
  status TEXT NOT NULL,
  geometry_version BIGINT NOT NULL DEFAULT 0,
  recompute_due_at TIMESTAMPTZ NULL,
  recompute_fail_count INT NOT NULL DEFAULT 0,
  last_error TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_route_plans_driver_id ON route_plans(driver_id)`,
		`CREATE INDEX IF NOT EXISTS idx_route_plans_recompute_due_at ON route_plans(recompute_due_at) WHERE recompute_due_at IS NOT NULL`,
		`
CREATE TABLE IF NOT EXISTS waypoints (
  id BIGSERIAL PRIMARY KEY,
  route_plan_id BIGINT NOT NULL REFERENCES route_plans(id) ON DELETE CASCADE,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  address TEXT NULL,
  ord INT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_waypoints_route_plan_id_ord ON waypoints(route_plan_id, ord)`,
		`
CREATE TABLE IF NOT EXISTS avoidance_areas (
  id BIGSERIAL PRIMARY KEY,
  route_plan_id BIGINT NOT NULL REFERENCES route_plans(id) ON DELETE CASCADE,
  reason TEXT NOT NULL,
  is_permanent BOOLEAN NOT NULL DEFAULT FALSE,
  status TEXT NOT NULL,
  requester_id BIGINT NOT NULL,
  photo_key TEXT NULL,
  created_at TIMESTAMPTZ NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_avoidance_areas_route_plan_id ON avoidance_areas(route_plan_id)`,
		// Постоянные подтверждённые зоны читаются при каждом пересчёте любого плана.
		`CREATE INDEX IF NOT EXISTS idx_avoidance_areas_permanent ON avoidance_areas(status) WHERE is_permanent`,
		`
CREATE TABLE IF NOT EXISTS avoidance_points (
  id BIGSERIAL PRIMARY KEY,
  avoidance_area_id BIGINT NOT NULL REFERENCES avoidance_areas(id) ON DELETE CASCADE,
  latitude DOUBLE PRECISION NOT NULL,
  longitude DOUBLE PRECISION NOT NULL,
  ord INT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_avoidance_points_area_id_ord ON avoidance_points(avoidance_area_id, ord)`,
	}

	for _, q := range stmts {
		if _, err := s.db.Exec(ctx, q); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}
