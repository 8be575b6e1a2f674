// README: Location ingest with ETA fan-out to the technician's active jobs.
package tracking

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"fieldops/internal/geo"
	"fieldops/internal/metrics"
	"fieldops/internal/modules/job"
	"fieldops/internal/modules/technician"
	"fieldops/internal/types"
)

// JobStore is the slice of the job store the tracker needs.
type JobStore interface {
	Get(ctx context.Context, id types.ID) (*job.Job, error)
	ListActiveByTechnician(ctx context.Context, techID types.ID) ([]*job.Job, error)
	UpdateTrackingSnapshot(ctx context.Context, jobID types.ID, snap job.TrackingSnapshot) (bool, error)
}

// PresenceStore persists live technician positions.
type PresenceStore interface {
	SetLocation(ctx context.Context, id types.ID, pos types.Point, now time.Time) error
	Get(ctx context.Context, id types.ID) (*technician.Presence, error)
}

// Directory resolves technician public profiles.
type Directory interface {
	Get(ctx context.Context, id types.ID) (*technician.Technician, error)
}

// TravelEstimator refines the fixed-speed ETA with real routing; optional.
type TravelEstimator interface {
	TravelEstimate(ctx context.Context, origin, destination types.Point) (time.Duration, float64, error)
}

type Service struct {
	jobs     JobStore
	presence PresenceStore
	dir      Directory
	routes   TravelEstimator
	log      zerolog.Logger
}

func NewService(jobs JobStore, presence PresenceStore, dir Directory, routes TravelEstimator, log zerolog.Logger) *Service {
	return &Service{jobs: jobs, presence: presence, dir: dir, routes: routes, log: log}
}

// UpdateTechnicianLocation stores the new position and refreshes the
// tracking snapshot of every job the technician is currently working. One
// ping can touch several jobs; a snapshot write is skipped when the job has
// meanwhile left the tracked states.
func (s *Service) UpdateTechnicianLocation(ctx context.Context, techID types.ID, pos types.Point) error {
	now := time.Now()
	if err := s.presence.SetLocation(ctx, techID, pos, now); err != nil {
		return err
	}

	active, err := s.jobs.ListActiveByTechnician(ctx, techID)
	if err != nil {
		return err
	}

	updated := 0
	for _, j := range active {
		if j.Location == nil {
			continue
		}
		distKm, minutes, text := s.estimate(ctx, pos, *j.Location)
		ok, err := s.jobs.UpdateTrackingSnapshot(ctx, j.ID, job.TrackingSnapshot{
			Technician: pos,
			DistanceKm: distKm,
			ETAMinutes: minutes,
			ETAText:    text,
			UpdatedAt:  now,
		})
		if err != nil {
			return err
		}
		if ok {
			metrics.TrackingUpdates.Inc()
			updated++
		}
	}

	s.log.Debug().
		Str("technician_id", string(techID)).
		Int("jobs_updated", updated).
		Msg("location update fanned out")
	return nil
}

// GetJobTrackingInfo assembles the stakeholder view: job status, assigned
// technician's public profile, destination, live position, and a fresh
// distance/ETA when both points are known.
func (s *Service) GetJobTrackingInfo(ctx context.Context, jobID types.ID) (*TrackingInfo, error) {
	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	info := &TrackingInfo{
		JobID:              j.ID,
		Status:             j.Status,
		DestinationAddress: j.Address.String(),
	}
	if j.TechnicianID == nil {
		return info, nil
	}

	t, err := s.dir.Get(ctx, *j.TechnicianID)
	if err != nil {
		return nil, err
	}
	info.Technician = &TechnicianProfile{
		ID:       t.ID,
		Name:     t.Name,
		Phone:    t.Phone,
		PhotoURL: t.PhotoURL,
		Rating:   t.Rating,
		Skills:   t.Skills,
		Online:   t.Online,
	}

	p, err := s.presence.Get(ctx, *j.TechnicianID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return info, nil
	}

	loc := p.Position
	info.TechnicianLocation = &loc
	ts := p.UpdatedAt
	info.UpdatedAt = &ts

	if j.Location != nil {
		distKm, minutes, text := s.estimate(ctx, loc, *j.Location)
		info.DistanceKm = &distKm
		info.ETAMinutes = &minutes
		info.ETAText = text
	}
	return info, nil
}

// estimate prefers routed travel time when a route service is configured and
// reachable, falling back to straight-line distance at the fixed speed.
func (s *Service) estimate(ctx context.Context, from, to types.Point) (float64, int, string) {
	if s.routes != nil {
		if dur, km, err := s.routes.TravelEstimate(ctx, from, to); err == nil {
			minutes := int(math.Ceil(dur.Minutes()))
			return km, minutes, geo.FormatMinutes(minutes)
		}
	}
	d := geo.DistanceKm(from, to)
	eta := geo.EstimateETA(d)
	return d, eta.Minutes, eta.Text
}
