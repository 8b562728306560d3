package client

import (
	"sync"

	"backend-sessionmaps/internal/shared/geo"
)

// Reconstructor turns the raw location-update stream into per-member
// polyline paths, dropping fixes within the jitter threshold of the last
// recorded point. It runs the same accumulation the server uses for
// archival, so every observer converges on the same path.
type Reconstructor struct {
	mu    sync.Mutex
	paths map[string][]geo.Point
}

func NewReconstructor() *Reconstructor {
	return &Reconstructor{paths: map[string][]geo.Point{}}
}

// Observe feeds one fix for a member and reports whether it extended the
// member's path.
func (r *Reconstructor) Observe(userID string, lat, lng float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	next := geo.Point{Lng: lng, Lat: lat}
	path := r.paths[userID]
	if len(path) > 0 && !geo.Moved(path[len(path)-1], next) {
		return false
	}
	r.paths[userID] = append(path, next)
	return true
}

// Path returns a copy of the member's accumulated path.
func (r *Reconstructor) Path(userID string) []geo.Point {
	r.mu.Lock()
	defer r.mu.Unlock()
	path := r.paths[userID]
	out := make([]geo.Point, len(path))
	copy(out, path)
	return out
}

// DistanceM is the haversine length of the member's path so far.
func (r *Reconstructor) DistanceM(userID string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return geo.PathDistanceM(r.paths[userID])
}

// Forget drops a member's path, e.g. after member:left.
func (r *Reconstructor) Forget(userID string) {
	r.mu.Lock()
	delete(r.paths, userID)
	r.mu.Unlock()
}
