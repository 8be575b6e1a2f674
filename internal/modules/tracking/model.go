// README: Read-side views served to job stakeholders.
package tracking

import (
	"time"

	"fieldops/internal/modules/job"
	"fieldops/internal/types"
)

// TechnicianProfile is the public slice of the assigned technician.
type TechnicianProfile struct {
	ID       types.ID
	Name     string
	Phone    string
	PhotoURL string
	Rating   float64
	Skills   []string
	Online   bool
}

// TrackingInfo combines job state with the technician's live position. The
// tracking fields stay nil, without error, whenever either endpoint is
// unknown.
type TrackingInfo struct {
	JobID              types.ID
	Status             job.Status
	DestinationAddress string

	Technician         *TechnicianProfile
	TechnicianLocation *types.Point

	DistanceKm *float64
	ETAMinutes *int
	ETAText    string
	UpdatedAt  *time.Time
}
