package routeplans_api

import (
	"time"

	"github.com/BearBump/RouteBox/internal/models"
)

type createRoutePlanRequest struct {
	DriverID      uint64            `json:"driverId"`
	TruckID       uint64            `json:"truckId"`
	PlannerID     uint64            `json:"plannerId"`
	RouteGeometry string            `json:"routeGeometry,omitempty"`
	ExtrasJSON    *string           `json:"extras,omitempty"`
	Waypoints     []waypointRequest `json:"waypoints"`
}

type waypointRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Address   *string `json:"address,omitempty"`
}

func (r createRoutePlanRequest) toInput() models.RoutePlanCreateInput {
	in := models.RoutePlanCreateInput{
		DriverID:      r.DriverID,
		TruckID:       r.TruckID,
		PlannerID:     r.PlannerID,
		RouteGeometry: r.RouteGeometry,
		ExtrasJSON:    r.ExtrasJSON,
	}
	for i, wp := range r.Waypoints {
		in.Waypoints = append(in.Waypoints, models.WaypointInput{
			Latitude:  wp.Latitude,
			Longitude: wp.Longitude,
			Address:   wp.Address,
			Order:     i,
		})
	}
	return in
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type proposeAreaRequest struct {
	Reason      string             `json:"reason"`
	IsPermanent bool               `json:"isPermanent"`
	RequesterID uint64             `json:"requesterId"`
	PhotoKey    *string            `json:"photoKey,omitempty"`
	Points      []areaPointRequest `json:"points"`
}

type areaPointRequest struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
}

func (r proposeAreaRequest) toInput() models.AvoidanceAreaInput {
	in := models.AvoidanceAreaInput{
		Reason:      r.Reason,
		IsPermanent: r.IsPermanent,
		RequesterID: r.RequesterID,
		PhotoKey:    r.PhotoKey,
	}
	for i, p := range r.Points {
		in.Points = append(in.Points, models.AvoidancePointInput{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Order:     i,
		})
	}
	return in
}

type routePlanDTO struct {
	ID              uint64             `json:"id"`
	DriverID        uint64             `json:"driverId"`
	TruckID         uint64             `json:"truckId"`
	PlannerID       uint64             `json:"plannerId"`
	RouteGeometry   string             `json:"routeGeometry"`
	ExtrasJSON      *string            `json:"extras,omitempty"`
	Status          string             `json:"status"`
	GeometryVersion int64              `json:"geometryVersion"`
	RecomputeDueAt  *time.Time         `json:"recomputeDueAt,omitempty"`
	LastError       *string            `json:"lastError,omitempty"`
	Waypoints       []waypointDTO      `json:"waypoints"`
	AvoidanceAreas  []avoidanceAreaDTO `json:"avoidanceAreas"`
	CreatedAt       time.Time          `json:"createdAt"`
	UpdatedAt       time.Time          `json:"updatedAt"`
}

type waypointDTO struct {
	ID        uint64  `json:"id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Address   *string `json:"address,omitempty"`
	Order     int     `json:"order"`
}

type avoidanceAreaDTO struct {
	ID          uint64         `json:"id"`
	RoutePlanID uint64         `json:"routePlanId"`
	Reason      string         `json:"reason"`
	IsPermanent bool           `json:"isPermanent"`
	Status      string         `json:"status"`
	RequesterID uint64         `json:"requesterId"`
	PhotoKey    *string        `json:"photoKey,omitempty"`
	Points      []areaPointDTO `json:"points"`
	CreatedAt   time.Time      `json:"createdAt"`
}

type areaPointDTO struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lng"`
	Order     int     `json:"order"`
}

type listRoutePlansResponse struct {
	RoutePlans []routePlanDTO `json:"routePlans"`
}

type listAreasResponse struct {
	Areas []avoidanceAreaDTO `json:"areas"`
}

type approveAreaDegradedResponse struct {
	Area  avoidanceAreaDTO `json:"area"`
	Error string           `json:"error"`
}

func toRoutePlanDTO(p *models.RoutePlan) routePlanDTO {
	dto := routePlanDTO{
		ID:              p.ID,
		DriverID:        p.DriverID,
		TruckID:         p.TruckID,
		PlannerID:       p.PlannerID,
		RouteGeometry:   p.RouteGeometry,
		ExtrasJSON:      p.ExtrasJSON,
		Status:          p.Status,
		GeometryVersion: p.GeometryVersion,
		RecomputeDueAt:  p.RecomputeDueAt,
		LastError:       p.LastError,
		Waypoints:       make([]waypointDTO, 0, len(p.Waypoints)),
		AvoidanceAreas:  make([]avoidanceAreaDTO, 0, len(p.AvoidanceAreas)),
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
	for _, wp := range p.Waypoints {
		dto.Waypoints = append(dto.Waypoints, waypointDTO{
			ID:        wp.ID,
			Latitude:  wp.Latitude,
			Longitude: wp.Longitude,
			Address:   wp.Address,
			Order:     wp.Order,
		})
	}
	for _, area := range p.AvoidanceAreas {
		dto.AvoidanceAreas = append(dto.AvoidanceAreas, toAreaDTO(area))
	}
	return dto
}

func toAreaDTO(a *models.AvoidanceArea) avoidanceAreaDTO {
	dto := avoidanceAreaDTO{
		ID:          a.ID,
		RoutePlanID: a.RoutePlanID,
		Reason:      a.Reason,
		IsPermanent: a.IsPermanent,
		Status:      a.Status,
		RequesterID: a.RequesterID,
		PhotoKey:    a.PhotoKey,
		Points:      make([]areaPointDTO, 0, len(a.Points)),
		CreatedAt:   a.CreatedAt,
	}
	for _, p := range a.Points {
		dto.Points = append(dto.Points, areaPointDTO{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Order:     p.Order,
		})
	}
	return dto
}
