// Package geo contains pure geographic computation helpers.
package geo

import (
	"fmt"
	"math"
	"time"

	"beam/internal/types"
)

const earthRadiusKm = 6371.0

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees.
func DistanceKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := degreesToRadians(lat2 - lat1)
	dLng := degreesToRadians(lng2 - lng1)

	rLat1 := degreesToRadians(lat1)
	rLat2 := degreesToRadians(lat2)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusKm * c
}

// DistanceMeters is DistanceKm between two Points, in metres. The matching
// engine ranks candidates with this.
func DistanceMeters(a, b types.Point) float64 {
	return DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng) * 1000
}

// ETA returns a constant-speed travel time estimate. speedKmh must be
// positive; callers pass a configured default when no road estimate is
// available.
func ETA(distanceKm, speedKmh float64) time.Duration {
	if speedKmh <= 0 || distanceKm <= 0 {
		return 0
	}
	hours := distanceKm / speedKmh
	return time.Duration(hours * float64(time.Hour))
}

// FormatETA renders a duration the way the client apps show it ("3 min",
// "1 hr 12 min"). Sub-minute estimates round up to one minute.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return "now"
	}
	mins := int(math.Ceil(d.Minutes()))
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	return fmt.Sprintf("%d hr %d min", mins/60, mins%60)
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
