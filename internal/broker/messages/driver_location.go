package messages

import "time"

// DriverLocation — позиция водителя из телематики. Ключ сообщения — driver_id.
type DriverLocation struct {
	DriverID   uint64    `json:"driver_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	RecordedAt time.Time `json:"recorded_at"`
}
