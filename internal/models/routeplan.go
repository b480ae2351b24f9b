package models

import "time"

// Статусы плана маршрута.
const (
	RoutePlanStatusPlanned        = "planned"
	RoutePlanStatusActive         = "active"
	RoutePlanStatusOnConfirmation = "on confirmation"
	RoutePlanStatusCompleted      = "completed"
	RoutePlanStatusCancelled      = "cancelled"
)

// Статусы зоны объезда.
const (
	AvoidanceStatusPending  = "pending"
	AvoidanceStatusApproved = "approved"
	AvoidanceStatusRejected = "rejected"
)

type RoutePlan struct {
	ID        uint64
	DriverID  uint64
	TruckID   uint64
	PlannerID uint64

	// Encoded polyline (lat/lng/elevation) as returned by the directions provider.
	RouteGeometry string
	// Raw extras object from the provider response (waytype/tollways/surface ranges).
	ExtrasJSON *string

	Status          string
	GeometryVersion int64

	RecomputeDueAt     *time.Time
	RecomputeFailCount int32
	LastError          *string

	Waypoints      []*Waypoint
	AvoidanceAreas []*AvoidanceArea

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Waypoint struct {
	ID          uint64
	RoutePlanID uint64
	Latitude    float64
	Longitude   float64
	Address     *string
	Order       int
}

type AvoidanceArea struct {
	ID          uint64
	RoutePlanID uint64
	Reason      string
	IsPermanent bool
	Status      string
	RequesterID uint64
	PhotoKey    *string
	Points      []*AvoidancePoint
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type AvoidancePoint struct {
	ID              uint64
	AvoidanceAreaID uint64
	Latitude        float64
	Longitude       float64
	Order           int
}

type RoutePlanCreateInput struct {
	DriverID      uint64
	TruckID       uint64
	PlannerID     uint64
	RouteGeometry string
	ExtrasJSON    *string
	Waypoints     []WaypointInput
}

type WaypointInput struct {
	Latitude  float64
	Longitude float64
	Address   *string
	Order     int
}

type AvoidanceAreaInput struct {
	Reason      string
	IsPermanent bool
	RequesterID uint64
	PhotoKey    *string
	Points      []AvoidancePointInput
}

type AvoidancePointInput struct {
	Latitude  float64
	Longitude float64
	Order     int
}

// HasPendingAreas reports whether any attached avoidance area still awaits review.
func (p *RoutePlan) HasPendingAreas() bool {
	for _, a := range p.AvoidanceAreas {
		if a.Status == AvoidanceStatusPending {
			return true
		}
	}
	return false
}
