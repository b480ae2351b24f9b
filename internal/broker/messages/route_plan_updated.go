package messages

import "time"

// RoutePlanUpdated публикуется при каждом значимом изменении плана:
// смена статуса, новая геометрия, решение по зоне объезда.
type RoutePlanUpdated struct {
	RoutePlanID uint64    `json:"route_plan_id"`
	DriverID    uint64    `json:"driver_id"`
	Status      string    `json:"status"`
	ChangedAt   time.Time `json:"changed_at"`

	GeometryVersion int64 `json:"geometry_version"`

	// Set when the update was caused by an avoidance area decision.
	AvoidanceAreaID *uint64 `json:"avoidance_area_id,omitempty"`
	AvoidanceStatus *string `json:"avoidance_status,omitempty"`

	// Set when a recompute failed and the plan keeps stale geometry.
	Error *string `json:"error,omitempty"`
}
