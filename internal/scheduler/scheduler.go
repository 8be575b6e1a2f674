// README: Cron sweep that re-invokes radius expansion for stale pending jobs.
//
// The engine itself has no timers: the response timeout is evaluated lazily
// inside ExpandRadius. This sweeper is the periodic caller that obligation
// falls to; on-demand admin triggers go through the same code path.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/job"
	"fieldops/internal/types"
)

type JobLister interface {
	ListDueForExpansion(ctx context.Context, cutoff time.Time, maxRadiusKm float64) ([]types.ID, error)
}

type Expander interface {
	ExpandRadius(ctx context.Context, jobID types.ID) (*dispatch.ExpandResult, error)
}

// Sweeper wraps robfig/cron and drives the expansion sweep.
type Sweeper struct {
	cron     *cron.Cron
	jobs     JobLister
	dispatch Expander
	spec     string
	log      zerolog.Logger
}

func New(jobs JobLister, disp Expander, interval time.Duration, log zerolog.Logger) *Sweeper {
	return &Sweeper{
		cron:     cron.New(),
		jobs:     jobs,
		dispatch: disp,
		spec:     fmt.Sprintf("@every %s", interval),
		log:      log,
	}
}

// Start registers the sweep and starts the scheduler.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.RunSweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}
	s.cron.Start()
	s.log.Info().Str("spec", s.spec).Msg("expansion sweeper started")
	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Sweeper) Stop() {
	s.cron.Stop()
	s.log.Info().Msg("expansion sweeper stopped")
}

// RunSweep expands every pending job whose candidates have had the full
// response window. Terminal and not-yet-due outcomes are logged and skipped;
// the job stays inspectable either way.
func (s *Sweeper) RunSweep(ctx context.Context) {
	cutoff := time.Now().Add(-dispatch.ResponseTimeout)
	ids, err := s.jobs.ListDueForExpansion(ctx, cutoff, dispatch.MaxRadiusKm)
	if err != nil {
		s.log.Error().Err(err).Msg("sweep: listing due jobs failed")
		return
	}

	for _, id := range ids {
		res, err := s.dispatch.ExpandRadius(ctx, id)
		switch {
		case err == nil:
			s.log.Info().Str("job_id", string(id)).Float64("radius_km", res.RadiusKm).Int("added", res.Added).Msg("sweep: expanded")
		case errors.Is(err, dispatch.ErrNotYetDue), errors.Is(err, job.ErrInvalidState):
			s.log.Debug().Str("job_id", string(id)).Err(err).Msg("sweep: skipped")
		case errors.Is(err, dispatch.ErrNoCapacity):
			s.log.Warn().Str("job_id", string(id)).Msg("sweep: job needs operator attention")
		default:
			s.log.Error().Err(err).Str("job_id", string(id)).Msg("sweep: expansion failed")
		}
	}
}
