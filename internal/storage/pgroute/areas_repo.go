package pgroute

import (
	"context"
	"time"

	"github.com/BearBump/RouteBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) AddAvoidanceArea(ctx context.Context, planID uint64, in models.AvoidanceAreaInput, status string) (*models.AvoidanceArea, error) {
	now := time.Now().UTC()

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, errors.Wrap(err, "begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id uint64
	err = tx.QueryRow(ctx, `
INSERT INTO avoidance_areas (
  route_plan_id, reason, is_permanent, status, requester_id, photo_key, created_at, updated_at
)
VALUES ($1,$2,$3,$4,$5,$6,$7,$7)
RETURNING id
`, planID, in.Reason, in.IsPermanent, status, in.RequesterID, in.PhotoKey, now).Scan(&id)
	if err != nil {
		return nil, errors.Wrap(err, "insert avoidance area")
	}

	for _, p := range in.Points {
		_, err := tx.Exec(ctx, `
INSERT INTO avoidance_points (avoidance_area_id, latitude, longitude, ord)
VALUES ($1,$2,$3,$4)
`, id, p.Latitude, p.Longitude, p.Order)
		if err != nil {
			return nil, errors.Wrap(err, "insert avoidance point")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit tx")
	}

	return s.GetAvoidanceArea(ctx, id)
}

func (s *Storage) GetAvoidanceArea(ctx context.Context, id uint64) (*models.AvoidanceArea, error) {
	areas, err := s.selectAreas(ctx, `WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(areas) == 0 {
		return nil, errors.Wrap(models.ErrNotFound, "avoidance area")
	}
	return areas[0], nil
}

func (s *Storage) UpdateAvoidanceAreaStatus(ctx context.Context, id uint64, status string) error {
	tag, err := s.db.Exec(ctx, `UPDATE avoidance_areas SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return errors.Wrap(err, "update area status")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "avoidance area")
	}
	return nil
}

func (s *Storage) DeleteAvoidanceArea(ctx context.Context, id uint64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM avoidance_areas WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "delete avoidance area")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(models.ErrNotFound, "avoidance area")
	}
	return nil
}

// ListPermanentApprovedAreas возвращает подтверждённые постоянные зоны всех
// планов: они входят в набор препятствий любого пересчёта маршрута.
func (s *Storage) ListPermanentApprovedAreas(ctx context.Context) ([]*models.AvoidanceArea, error) {
	return s.selectAreas(ctx, `WHERE is_permanent AND status = $1 ORDER BY id`, models.AvoidanceStatusApproved)
}

func (s *Storage) selectAreas(ctx context.Context, where string, args ...any) ([]*models.AvoidanceArea, error) {
	rows, err := s.db.Query(ctx, `
SELECT id, route_plan_id, reason, is_permanent, status, requester_id, photo_key, created_at, updated_at
FROM avoidance_areas
`+where, args...)
	if err != nil {
		return nil, errors.Wrap(err, "select avoidance areas")
	}
	defer rows.Close()

	var out []*models.AvoidanceArea
	byID := map[uint64]*models.AvoidanceArea{}
	var ids []uint64
	for rows.Next() {
		var a models.AvoidanceArea
		var photoKey *string
		if err := rows.Scan(
			&a.ID, &a.RoutePlanID, &a.Reason, &a.IsPermanent, &a.Status,
			&a.RequesterID, &photoKey, &a.CreatedAt, &a.UpdatedAt,
		); err != nil {
			return nil, errors.Wrap(err, "scan avoidance area")
		}
		a.PhotoKey = photoKey
		out = append(out, &a)
		byID[a.ID] = &a
		ids = append(ids, a.ID)
	}
	if rows.Err() != nil {
		return nil, errors.Wrap(rows.Err(), "rows")
	}

	if len(ids) == 0 {
		return out, nil
	}

	prows, err := s.db.Query(ctx, `
SELECT id, avoidance_area_id, latitude, longitude, ord
FROM avoidance_points
WHERE avoidance_area_id = ANY($1)
ORDER BY avoidance_area_id, ord
`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "select avoidance points")
	}
	defer prows.Close()

	for prows.Next() {
		var p models.AvoidancePoint
		if err := prows.Scan(&p.ID, &p.AvoidanceAreaID, &p.Latitude, &p.Longitude, &p.Order); err != nil {
			return nil, errors.Wrap(err, "scan avoidance point")
		}
		byID[p.AvoidanceAreaID].Points = append(byID[p.AvoidanceAreaID].Points, &p)
	}
	if prows.Err() != nil {
		return nil, errors.Wrap(prows.Err(), "rows")
	}

	return out, nil
}
