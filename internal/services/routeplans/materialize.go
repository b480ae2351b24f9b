package routeplans

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BearBump/RouteBox/internal/broker/messages"
	"github.com/BearBump/RouteBox/internal/geo"
	"github.com/BearBump/RouteBox/internal/models"
	"github.com/pkg/errors"
)

type RoutePoint struct {
	Lat       float64  `json:"lat"`
	Lng       float64  `json:"lng"`
	Elevation *float64 `json:"elevation,omitempty"`
}

type RouteSegment struct {
	Class  int          `json:"class"`
	Label  string       `json:"label,omitempty"`
	Points []RoutePoint `json:"points"`
}

// MaterializedRoute — декодированная геометрия плана, готовая для карты.
type MaterializedRoute struct {
	RoutePlanID     uint64 `json:"route_plan_id"`
	GeometryVersion int64  `json:"geometry_version"`

	Points []RoutePoint `json:"points"`

	Surface  []RouteSegment `json:"surface,omitempty"`
	Waytype  []RouteSegment `json:"waytype,omitempty"`
	Tollways []RouteSegment `json:"tollways,omitempty"`
}

// MaterializedRoute декодирует polyline и extras плана. Результат кэшируется
// по ключу с geometry_version, так что смена геометрии означает новый ключ.
func (s *Service) MaterializedRoute(ctx context.Context, planID uint64) (*MaterializedRoute, error) {
	plan, err := s.repo.GetRoutePlan(ctx, planID)
	if err != nil {
		return nil, err
	}

	key := materializedKey(plan.ID, plan.GeometryVersion)
	if s.cache != nil && s.materializedTTL > 0 {
		if b, ok, err := s.cache.Get(ctx, key); err == nil && ok {
			var m MaterializedRoute
			if json.Unmarshal(b, &m) == nil {
				return &m, nil
			}
		}
	}

	m, err := materialize(plan)
	if err != nil {
		return nil, err
	}

	if s.cache != nil && s.materializedTTL > 0 {
		b, _ := json.Marshal(m)
		_ = s.cache.Set(ctx, key, b, s.materializedTTL)
	}
	return m, nil
}

func materialize(plan *models.RoutePlan) (*MaterializedRoute, error) {
	// Маршруты запрашиваются с elevation, но геометрия, переданная при
	// создании плана извне, может быть двухканальной.
	coords, err := geo.DecodePolyline(plan.RouteGeometry, true)
	if err != nil {
		coords, err = geo.DecodePolyline(plan.RouteGeometry, false)
	}
	if err != nil {
		return nil, errors.Wrap(err, "decode route geometry")
	}

	m := &MaterializedRoute{
		RoutePlanID:     plan.ID,
		GeometryVersion: plan.GeometryVersion,
		Points:          toRoutePoints(coords),
	}

	if plan.ExtrasJSON != nil && *plan.ExtrasJSON != "" {
		var raw map[string]struct {
			Values [][3]int `json:"values"`
		}
		if err := json.Unmarshal([]byte(*plan.ExtrasJSON), &raw); err != nil {
			return nil, errors.Wrap(err, "decode extras")
		}

		for kind, band := range raw {
			segs := geo.SegmentExtras(coords, geo.ExtrasBand{Kind: kind, Values: band.Values})
			switch kind {
			case geo.BandSurface:
				m.Surface = toRouteSegments(segs, true)
			case geo.BandWaytype:
				m.Waytype = toRouteSegments(segs, false)
			case geo.BandTollways:
				m.Tollways = toRouteSegments(segs, false)
			}
		}
	}

	return m, nil
}

func toRoutePoints(coords []geo.Coordinate) []RoutePoint {
	out := make([]RoutePoint, 0, len(coords))
	for _, c := range coords {
		out = append(out, RoutePoint{Lat: c.Lat, Lng: c.Lon, Elevation: c.Elevation})
	}
	return out
}

func toRouteSegments(segs []geo.ExtrasSegment, surface bool) []RouteSegment {
	out := make([]RouteSegment, 0, len(segs))
	for _, seg := range segs {
		rs := RouteSegment{
			Class:  seg.Class,
			Points: toRoutePoints(seg.Coords),
		}
		if surface {
			rs.Label = geo.SurfaceName(seg.Class)
		}
		out = append(out, rs)
	}
	return out
}

// DriverProgress — прогресс водителя по активному плану.
type DriverProgress struct {
	RoutePlanID uint64  `json:"route_plan_id"`
	DriverID    uint64  `json:"driver_id"`
	NearestIdx  int     `json:"nearest_waypoint"`
	DistanceM   float64 `json:"distance_m"`
	ReachedIdx  int     `json:"reached_waypoint"`
	Percent     float64 `json:"percent"`

	UpdatedAt time.Time `json:"updated_at"`
}

// ApplyDriverLocation обрабатывает позицию из телематики: обновляет прогресс
// активного плана водителя и завершает план, когда достигнута последняя точка.
func (s *Service) ApplyDriverLocation(ctx context.Context, msg messages.DriverLocation) (*DriverProgress, error) {
	if msg.DriverID == 0 {
		return nil, validationErrorf("driver_id is required")
	}

	plans, err := s.repo.ListRoutePlansByDriver(ctx, msg.DriverID, 50, 0)
	if err != nil {
		return nil, err
	}

	var active *models.RoutePlan
	for _, p := range plans {
		if p.Status == models.RoutePlanStatusActive {
			active = p
			break
		}
	}
	if active == nil {
		return nil, nil
	}

	waypoints := make([]geo.LatLng, 0, len(active.Waypoints))
	for _, w := range active.Waypoints {
		waypoints = append(waypoints, geo.LatLng{Lat: w.Latitude, Lng: w.Longitude})
	}

	nearest, dist, reached := geo.NearestWaypoint(msg.Latitude, msg.Longitude, waypoints, s.reachedRadiusM)
	if nearest == -1 {
		return nil, nil
	}

	// Достигнутый индекс не откатывается назад: водитель мог отъехать от точки.
	reachedIdx := -1
	if prev, ok, _ := s.progress(ctx, active.ID); ok {
		reachedIdx = prev.ReachedIdx
	}
	if reached && nearest > reachedIdx {
		reachedIdx = nearest
	}

	progress := &DriverProgress{
		RoutePlanID: active.ID,
		DriverID:    msg.DriverID,
		NearestIdx:  nearest,
		DistanceM:   dist,
		ReachedIdx:  reachedIdx,
		Percent:     geo.RouteProgress(reachedIdx, len(waypoints)),
		UpdatedAt:   time.Now().UTC(),
	}

	if s.cache != nil {
		b, _ := json.Marshal(progress)
		_ = s.cache.Set(ctx, progressKey(active.ID), b, 24*time.Hour)
	}

	if reachedIdx == len(waypoints)-1 {
		if err := s.repo.UpdateRoutePlanStatus(ctx, active.ID, models.RoutePlanStatusCompleted); err != nil {
			return progress, err
		}
		active.Status = models.RoutePlanStatusCompleted
		s.publishUpdated(ctx, active, nil, nil, nil)
	}

	return progress, nil
}

// Progress возвращает последний посчитанный прогресс по плану.
func (s *Service) Progress(ctx context.Context, planID uint64) (*DriverProgress, bool, error) {
	if planID == 0 {
		return nil, false, validationErrorf("routePlanId is required")
	}
	return s.progress(ctx, planID)
}

func (s *Service) progress(ctx context.Context, planID uint64) (*DriverProgress, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	b, ok, err := s.cache.Get(ctx, progressKey(planID))
	if err != nil || !ok {
		return nil, false, err
	}
	var p DriverProgress
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, false, nil
	}
	return &p, true, nil
}

func progressKey(planID uint64) string {
	return fmt.Sprintf("plan:%d:progress", planID)
}
