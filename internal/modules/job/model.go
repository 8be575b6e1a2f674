// README: Job aggregate, candidate pool, and status definitions.
package job

import (
	"strings"
	"time"

	"fieldops/internal/types"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusPending    Status = "pending"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusDiagnosed  Status = "diagnosed"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidateAccepted CandidateStatus = "accepted"
	CandidateRejected CandidateStatus = "rejected"
	CandidateRemoved  CandidateStatus = "removed"
)

// Address holds the destination sub-fields; City doubles as the fallback
// match key for jobs without coordinates.
type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
}

// String joins the non-empty sub-fields with commas, best effort.
func (a Address) String() string {
	parts := make([]string, 0, 5)
	for _, p := range []string{a.Line1, a.Line2, a.City, a.State, a.PostalCode} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// TrackingSnapshot is the live view stakeholders poll while a technician is
// en route. Overwritten on every location ping for the assigned technician.
type TrackingSnapshot struct {
	Technician types.Point
	DistanceKm float64
	ETAMinutes int
	ETAText    string
	UpdatedAt  time.Time
}

type Job struct {
	ID            types.ID
	CustomerID    types.ID
	TechnicianID  *types.ID
	Status        Status
	StatusVersion int
	Category      string
	Location      *types.Point
	Address       Address

	// Candidate search state. CurrentRadiusKm never decreases for a job.
	CurrentRadiusKm  float64
	RadiusExpandedAt *time.Time

	Tracking *TrackingSnapshot

	CreatedAt    time.Time
	AcceptedAt   *time.Time
	CompletedAt  *time.Time
	CancelledAt  *time.Time
	CancelReason *string
}

// Candidate is one entry of a job's candidate pool. Entries are appended and
// retired, never deleted, so the pool keeps the full notify history.
type Candidate struct {
	JobID        types.ID
	TechnicianID types.ID
	Status       CandidateStatus
	Score        float64
	DistanceKm   *float64
	ETAMinutes   *int
	NotifiedAt   time.Time
	RespondedAt  *time.Time
}

type Event struct {
	ID         int64
	JobID      types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// AllowedTransitions represents the job state flow as code.
var AllowedTransitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDiagnosed, StatusCompleted},
	StatusDiagnosed:  {StatusCompleted},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// TrackedStatuses are the states in which location pings update the job's
// tracking snapshot.
var TrackedStatuses = []Status{StatusAccepted, StatusInProgress}

func IsTracked(s Status) bool {
	for _, t := range TrackedStatuses {
		if s == t {
			return true
		}
	}
	return false
}
