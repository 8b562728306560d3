package poi

import "time"

// Delete policies. Under "any" every member may delete any POI; "creator"
// restricts deletion to the POI's creator.
const (
	DeletePolicyAny     = "any"
	DeletePolicyCreator = "creator"
)

type Poi struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	CreatorID string    `json:"creator_id"`
	Name      string    `json:"name"`
	Note      string    `json:"note,omitempty"`
	Lat       float64   `json:"lat" validate:"latitude"`
	Lng       float64   `json:"lng" validate:"longitude"`
	CreatedAt time.Time `json:"created_at"`
}
