package route

import (
	"time"

	"backend-sessionmaps/internal/shared/geo"
)

// RoutingModeRecorded marks routes archived from a live session path, as
// opposed to routes planned through the routing engine.
const RoutingModeRecorded = "recorded"

type Route struct {
	ID          string      `json:"id"`
	OwnerID     string      `json:"owner_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Path        []geo.Point `json:"path"`
	DistanceM   float64     `json:"distance_m"`
	RoutingMode string      `json:"routing_mode"`
	CreatedAt   time.Time   `json:"created_at"`
}
