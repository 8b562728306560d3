package geo

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// EarthRadiusM matches the constant used by the route distance math so
// recorded paths and uploaded routes report comparable distances.
const EarthRadiusM = 6371000.0

// JitterThresholdDeg is the minimum per-axis delta between two fixes before
// the second one counts as movement (~5 m at mid-latitudes). Smaller deltas
// are treated as GPS jitter and dropped from paths.
const JitterThresholdDeg = 5e-5

// Point is a single path coordinate, longitude first like GeoJSON.
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

func HaversineM(lat1, lng1, lat2, lng2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusM * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return HaversineM(lat1, lng1, lat2, lng2) / 1000
}

// Moved reports whether next is far enough from last to count as movement.
func Moved(last, next Point) bool {
	return math.Abs(next.Lat-last.Lat) > JitterThresholdDeg ||
		math.Abs(next.Lng-last.Lng) > JitterThresholdDeg
}

// PathDistanceM sums the haversine length of consecutive segments.
func PathDistanceM(points []Point) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += HaversineM(points[i-1].Lat, points[i-1].Lng, points[i].Lat, points[i].Lng)
	}
	return total
}

// LineStringWKT serializes a path for a PostGIS geography column.
func LineStringWKT(points []Point) string {
	if len(points) < 2 {
		return ""
	}
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%g %g", p.Lng, p.Lat)
	}
	return "LINESTRING(" + strings.Join(parts, ",") + ")"
}

// ParseLineStringWKT is the inverse of LineStringWKT.
func ParseLineStringWKT(wkt string) ([]Point, error) {
	s := strings.TrimSpace(wkt)
	if !strings.HasPrefix(s, "LINESTRING(") || !strings.HasSuffix(s, ")") {
		return nil, fmt.Errorf("not a linestring: %q", wkt)
	}
	body := s[len("LINESTRING(") : len(s)-1]
	pairs := strings.Split(body, ",")
	points := make([]Point, 0, len(pairs))
	for _, pair := range pairs {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) != 2 {
			return nil, fmt.Errorf("bad coordinate %q", pair)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, err
		}
		points = append(points, Point{Lng: lng, Lat: lat})
	}
	return points, nil
}
