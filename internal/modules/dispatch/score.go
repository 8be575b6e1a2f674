// README: Ranking score for one (technician, job) pair.
package dispatch

import (
	"math"

	"fieldops/internal/modules/technician"
)

// Scoring weights. The sum of the positive terms tops out around 115; the
// complaint and distance terms pull it back down. The total never goes below
// zero.
const (
	ratingWeight       = 10.0 // rating 0..5 -> 0..50
	skillMatchWeight   = 30.0 // full match -> 30
	experienceDivisor  = 10.0
	experienceCap      = 20.0
	availabilityBonus  = 5.0
	responseRateWeight = 10.0
)

// Score ranks a technician for a job. distanceKm is nil when either side
// lacks coordinates, in which case no distance penalty applies.
func Score(t technician.Technician, distanceKm *float64, requiredSkills []string) float64 {
	s := t.Rating * ratingWeight
	s += skillMatchRatio(t.Skills, requiredSkills) * skillMatchWeight
	s += math.Min(float64(t.CompletedJobs)/experienceDivisor, experienceCap)
	s -= float64(t.Complaints)
	if t.Available && t.Online {
		s += availabilityBonus
	}
	s += t.ResponseRate * responseRateWeight
	if distanceKm != nil {
		s -= *distanceKm
	}
	return math.Max(0, s)
}
