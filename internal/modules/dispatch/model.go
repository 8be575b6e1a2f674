// README: Dispatch constants, candidate view, and engine error taxonomy.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldops/internal/modules/job"
	"fieldops/internal/modules/technician"
	"fieldops/internal/types"
)

const (
	// InitialRadiusKm is the search radius for a fresh job.
	InitialRadiusKm = 5.0
	// RadiusStepKm is added on every expansion.
	RadiusStepKm = 5.0
	// MaxRadiusKm is the ceiling; beyond it dispatch needs an operator.
	MaxRadiusKm = 50.0
	// ResponseTimeout gates expansion: candidates get this long to respond.
	ResponseTimeout = 30 * time.Minute
	// MaxCandidates bounds the pool notified per search round.
	MaxCandidates = 10
)

var (
	// ErrNoCapacity: no technicians found up to the maximum radius, or the
	// maximum radius is already in effect. Terminal for auto-search.
	ErrNoCapacity = errors.New("no technicians available")
	// ErrNotYetDue: expansion requested before the response timeout elapsed.
	ErrNotYetDue = errors.New("radius expansion not yet due")
)

// NotYetDueError carries the remaining wait so callers can report it.
type NotYetDueError struct {
	Remaining time.Duration
	Reason    string
}

func (e *NotYetDueError) Error() string {
	if e.Reason != "" {
		return "radius expansion not yet due: " + e.Reason
	}
	return fmt.Sprintf("radius expansion not yet due, %s remaining", e.Remaining.Round(time.Second))
}

func (e *NotYetDueError) Is(target error) bool { return target == ErrNotYetDue }

// RankedCandidate is the public projection of a scored technician. Internal
// directory fields stay behind; only what a customer-facing caller may see
// is exposed here.
type RankedCandidate struct {
	TechnicianID types.ID
	Name         string
	Phone        string
	PhotoURL     string
	Rating       float64
	Skills       []string
	DistanceKm   *float64
	ETAMinutes   *int
	ETAText      string
	Score        float64
	Location     *types.Point
	Online       bool
}

// JobStore is the slice of the job store the controller needs.
type JobStore interface {
	Get(ctx context.Context, id types.ID) (*job.Job, error)
	Candidates(ctx context.Context, jobID types.ID) ([]job.Candidate, error)
	ReplaceCandidatePool(ctx context.Context, jobID types.ID, radiusKm float64, now time.Time, cands []job.Candidate) (bool, error)
	AcceptCandidate(ctx context.Context, jobID, techID types.ID, now time.Time) error
	RejectCandidate(ctx context.Context, jobID, techID types.ID, now time.Time) (int, error)
	AppendEvent(ctx context.Context, e *job.Event) error
}

// Directory is the technician directory contract: reads plus the two
// counters this engine is allowed to bump.
type Directory interface {
	ListActive(ctx context.Context) ([]technician.Technician, error)
	ListAvailableByCity(ctx context.Context, city string) ([]technician.Technician, error)
	IncrementActiveJobs(ctx context.Context, id types.ID) error
	IncrementRejections(ctx context.Context, id types.ID) error
}

// ExpandLocker serializes concurrent expansion attempts on one job.
type ExpandLocker interface {
	TryLockExpand(ctx context.Context, jobID types.ID) (bool, error)
	UnlockExpand(ctx context.Context, jobID types.ID) error
}
