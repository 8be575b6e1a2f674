// Package geo contains pure geographic computation helpers.
package geo

import (
	"fmt"
	"math"

	"fieldops/internal/types"
)

const earthRadiusKm = 6371.0

// avgSpeedKmh is the assumed average urban travel speed for ETA estimates.
const avgSpeedKmh = 30.0

// DistanceKm returns the great-circle distance in kilometres between two
// points specified in decimal degrees (Haversine).
func DistanceKm(a, b types.Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	rLat1 := degreesToRadians(a.Lat)
	rLat2 := degreesToRadians(b.Lat)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}

// ETA is a travel-time estimate derived from distance at avgSpeedKmh.
type ETA struct {
	Minutes int
	Text    string
}

// EstimateETA converts a distance into whole minutes, rounding up, and a
// human-readable label ("45 mins", "1h 10m").
func EstimateETA(distanceKm float64) ETA {
	minutes := int(math.Ceil(distanceKm / avgSpeedKmh * 60))
	if minutes < 0 {
		minutes = 0
	}
	return ETA{Minutes: minutes, Text: FormatMinutes(minutes)}
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// FormatMinutes renders a minute count the way ETA text does.
func FormatMinutes(m int) string {
	if m < 60 {
		return fmt.Sprintf("%d mins", m)
	}
	return fmt.Sprintf("%dh %dm", m/60, m%60)
}
