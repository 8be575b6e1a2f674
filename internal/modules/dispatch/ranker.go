// README: Candidate ranking: filter by radius (or city fallback), score, sort, truncate.
package dispatch

import (
	"context"
	"sort"

	"fieldops/internal/geo"
	"fieldops/internal/modules/job"
	"fieldops/internal/modules/technician"
	"fieldops/internal/types"
)

// Rank returns up to MaxCandidates technicians for the job at the given
// radius, best score first. Ties break on technician ID so the order is
// stable across runs regardless of store fetch order.
func (s *Service) Rank(ctx context.Context, j *job.Job, radiusKm float64) ([]RankedCandidate, error) {
	return s.rank(ctx, j, radiusKm, nil)
}

func (s *Service) rank(ctx context.Context, j *job.Job, radiusKm float64, exclude map[types.ID]bool) ([]RankedCandidate, error) {
	required := RequiredSkills(j.Category)

	var techs []technician.Technician
	var err error
	if j.Location == nil {
		// No coordinates: match available technicians in the same city and
		// skip radius filtering entirely.
		techs, err = s.dir.ListAvailableByCity(ctx, j.Address.City)
	} else {
		techs, err = s.dir.ListActive(ctx)
	}
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedCandidate, 0, len(techs))
	for _, t := range techs {
		if exclude[t.ID] {
			continue
		}

		var dist *float64
		var etaMin *int
		etaText := ""
		if j.Location != nil {
			pos := t.Position()
			if pos == nil {
				continue
			}
			d := geo.DistanceKm(*j.Location, *pos)
			if d > radiusKm {
				continue
			}
			eta := geo.EstimateETA(d)
			dist, etaMin, etaText = &d, &eta.Minutes, eta.Text
		}

		ranked = append(ranked, RankedCandidate{
			TechnicianID: t.ID,
			Name:         t.Name,
			Phone:        t.Phone,
			PhotoURL:     t.PhotoURL,
			Rating:       t.Rating,
			Skills:       t.Skills,
			DistanceKm:   dist,
			ETAMinutes:   etaMin,
			ETAText:      etaText,
			Score:        Score(t, dist, required),
			Location:     t.Current,
			Online:       t.Online,
		})
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		if ranked[a].Score != ranked[b].Score {
			return ranked[a].Score > ranked[b].Score
		}
		return ranked[a].TechnicianID < ranked[b].TechnicianID
	})

	if len(ranked) > MaxCandidates {
		ranked = ranked[:MaxCandidates]
	}
	return ranked, nil
}
