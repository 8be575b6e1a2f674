// README: Dispatch controller: radius-expansion search loop and accept/reject handling.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"fieldops/internal/metrics"
	"fieldops/internal/modules/job"
	"fieldops/internal/types"
)

type Service struct {
	jobs  JobStore
	dir   Directory
	locks ExpandLocker
	log   zerolog.Logger
}

func NewService(jobs JobStore, dir Directory, locks ExpandLocker, log zerolog.Logger) *Service {
	return &Service{jobs: jobs, dir: dir, locks: locks, log: log}
}

// AssignResult reports a successful candidate search.
type AssignResult struct {
	RadiusKm   float64
	Candidates []RankedCandidate
}

// ExpandResult reports a successful radius expansion.
type ExpandResult struct {
	RadiusKm float64
	Added    int
}

// RejectOutcome reports a rejection plus the expansion attempt it may have
// auto-triggered.
type RejectOutcome struct {
	RemainingPending int
	Expansion        *ExpandResult
	ExpansionErr     error
}

// AssignJob runs the initial candidate search for a pending job, widening
// the radius until a non-empty pool is found or the ceiling is hit. On
// success the pool is persisted with every entry pending.
func (s *Service) AssignJob(ctx context.Context, jobID types.ID) (*AssignResult, error) {
	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusPending {
		return nil, fmt.Errorf("%w: job is %s", job.ErrInvalidState, j.Status)
	}

	radius := j.CurrentRadiusKm
	if radius < InitialRadiusKm {
		radius = InitialRadiusKm
	}

	var ranked []RankedCandidate
	for {
		ranked, err = s.rank(ctx, j, radius, nil)
		if err != nil {
			return nil, err
		}
		if len(ranked) > 0 {
			break
		}
		radius += RadiusStepKm
		if radius > MaxRadiusKm {
			metrics.DispatchExhausted.Inc()
			s.log.Warn().Str("job_id", string(jobID)).Msg("dispatch exhausted: no technicians up to maximum radius")
			return nil, fmt.Errorf("%w: searched up to %.0f km", ErrNoCapacity, MaxRadiusKm)
		}
	}

	now := time.Now()
	ok, err := s.jobs.ReplaceCandidatePool(ctx, jobID, radius, now, toPoolEntries(jobID, ranked, now))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, job.ErrConflict
	}

	metrics.JobsAssigned.Inc()
	s.log.Info().
		Str("job_id", string(jobID)).
		Float64("radius_km", radius).
		Int("candidates", len(ranked)).
		Msg("candidate pool assigned")
	return &AssignResult{RadiusKm: radius, Candidates: ranked}, nil
}

// ExpandRadius widens a pending job's search by one step once the response
// timeout has elapsed. Safe to call redundantly: the status check, the
// elapsed-time check, and the per-job lock make concurrent or premature
// attempts converge to a NotYetDue report instead of double-expanding.
func (s *Service) ExpandRadius(ctx context.Context, jobID types.ID) (*ExpandResult, error) {
	if s.locks != nil {
		ok, err := s.locks.TryLockExpand(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &NotYetDueError{Reason: "another expansion attempt is in progress"}
		}
		defer func() { _ = s.locks.UnlockExpand(ctx, jobID) }()
	}

	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.Status != job.StatusPending {
		return nil, fmt.Errorf("%w: job is %s, not awaiting candidates", job.ErrInvalidState, j.Status)
	}

	since := j.CreatedAt
	if j.RadiusExpandedAt != nil {
		since = *j.RadiusExpandedAt
	}
	if elapsed := time.Since(since); elapsed < ResponseTimeout {
		return nil, &NotYetDueError{Remaining: ResponseTimeout - elapsed}
	}

	newRadius := j.CurrentRadiusKm + RadiusStepKm
	if newRadius > MaxRadiusKm {
		metrics.DispatchExhausted.Inc()
		return nil, fmt.Errorf("%w: maximum radius reached", ErrNoCapacity)
	}

	// Technicians who already rejected this job never come back into the pool.
	existing, err := s.jobs.Candidates(ctx, jobID)
	if err != nil {
		return nil, err
	}
	exclude := make(map[types.ID]bool)
	for _, c := range existing {
		if c.Status == job.CandidateRejected {
			exclude[c.TechnicianID] = true
		}
	}

	ranked, err := s.rank(ctx, j, newRadius, exclude)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ok, err := s.jobs.ReplaceCandidatePool(ctx, jobID, newRadius, now, toPoolEntries(jobID, ranked, now))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, job.ErrConflict
	}

	metrics.RadiusExpansions.Inc()
	s.log.Info().
		Str("job_id", string(jobID)).
		Float64("radius_km", newRadius).
		Int("added", len(ranked)).
		Msg("search radius expanded")
	return &ExpandResult{RadiusKm: newRadius, Added: len(ranked)}, nil
}

// Accept records a technician taking the job. The store guarantees only the
// first accept on a pending job wins; everyone else gets ErrConflict.
func (s *Service) Accept(ctx context.Context, jobID, techID types.ID) error {
	now := time.Now()
	if err := s.jobs.AcceptCandidate(ctx, jobID, techID, now); err != nil {
		if errors.Is(err, job.ErrConflict) {
			metrics.AcceptConflicts.Inc()
			s.log.Info().
				Str("job_id", string(jobID)).
				Str("technician_id", string(techID)).
				Msg("accept lost the race: job no longer available")
		}
		return err
	}

	if err := s.dir.IncrementActiveJobs(ctx, techID); err != nil {
		s.log.Warn().Err(err).Str("technician_id", string(techID)).Msg("failed to bump active job count")
	}
	_ = s.jobs.AppendEvent(ctx, &job.Event{
		JobID:      jobID,
		FromStatus: job.StatusPending,
		ToStatus:   job.StatusAccepted,
		ActorType:  "technician",
		ActorID:    &techID,
		CreatedAt:  now,
	})

	s.log.Info().
		Str("job_id", string(jobID)).
		Str("technician_id", string(techID)).
		Msg("job accepted")
	return nil
}

// Reject marks the technician's candidacy rejected. When that empties the
// pending pool, one expansion attempt runs immediately and its outcome is
// surfaced on the result rather than failing the rejection itself.
func (s *Service) Reject(ctx context.Context, jobID, techID types.ID) (*RejectOutcome, error) {
	now := time.Now()
	remaining, err := s.jobs.RejectCandidate(ctx, jobID, techID, now)
	if err != nil {
		return nil, err
	}

	if err := s.dir.IncrementRejections(ctx, techID); err != nil {
		s.log.Warn().Err(err).Str("technician_id", string(techID)).Msg("failed to bump rejection count")
	}

	s.log.Info().
		Str("job_id", string(jobID)).
		Str("technician_id", string(techID)).
		Int("remaining_pending", remaining).
		Msg("job rejected by technician")

	out := &RejectOutcome{RemainingPending: remaining}
	if remaining == 0 {
		out.Expansion, out.ExpansionErr = s.ExpandRadius(ctx, jobID)
	}
	return out, nil
}

func toPoolEntries(jobID types.ID, ranked []RankedCandidate, now time.Time) []job.Candidate {
	entries := make([]job.Candidate, len(ranked))
	for i, c := range ranked {
		entries[i] = job.Candidate{
			JobID:        jobID,
			TechnicianID: c.TechnicianID,
			Status:       job.CandidatePending,
			Score:        c.Score,
			DistanceKm:   c.DistanceKm,
			ETAMinutes:   c.ETAMinutes,
			NotifiedAt:   now,
		}
	}
	return entries
}
