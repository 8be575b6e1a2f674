// README: Technician profile and live presence models.
package technician

import (
	"time"

	"fieldops/internal/types"
)

// Technician is the directory view the dispatch engine reads. The engine's
// only writes are the two counters and the live presence fields.
type Technician struct {
	ID       types.ID
	Name     string
	Phone    string
	PhotoURL string

	Skills        []string
	Rating        float64 // 0..5
	CompletedJobs int
	Complaints    int
	ResponseRate  float64 // 0..1

	Available bool
	Active    bool

	// Current is the live position (from presence), Working the registered
	// fallback; either may be absent.
	Current     *types.Point
	Working     *types.Point
	WorkingCity string

	Online bool

	ActiveJobs int
	Rejections int
}

// Position returns the best known coordinates: live position when present,
// registered working location otherwise.
func (t Technician) Position() *types.Point {
	if t.Current != nil {
		return t.Current
	}
	return t.Working
}

// Presence is one technician's live location entry.
type Presence struct {
	Position  types.Point
	Online    bool
	UpdatedAt time.Time
}
