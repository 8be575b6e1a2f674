// README: Job store backed by PostgreSQL; owns the status-guarded conditional updates.
package job

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldops/internal/types"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrInvalidState = errors.New("job is in the wrong state for this operation")
	ErrConflict     = errors.New("job state conflict")
	ErrNotCandidate = errors.New("technician is not a pending candidate for this job")
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, j *Job) error {
	var lat, lng *float64
	if j.Location != nil {
		lat, lng = &j.Location.Lat, &j.Location.Lng
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO jobs (
			id, customer_id, technician_id, status, status_version, category,
			lat, lng, addr_line1, addr_line2, city, state, postal_code,
			current_radius_km, radius_expanded_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16
		)`,
		string(j.ID),
		string(j.CustomerID),
		toStringPtr(j.TechnicianID),
		string(j.Status),
		j.StatusVersion,
		j.Category,
		lat, lng,
		j.Address.Line1, j.Address.Line2, j.Address.City, j.Address.State, j.Address.PostalCode,
		j.CurrentRadiusKm,
		j.RadiusExpandedAt,
		j.CreatedAt,
	)
	return err
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Job, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, customer_id, technician_id, status, status_version, category,
		       lat, lng, addr_line1, addr_line2, city, state, postal_code,
		       current_radius_km, radius_expanded_at,
		       track_lat, track_lng, track_distance_km, track_eta_minutes, track_eta_text, track_updated_at,
		       created_at, accepted_at, completed_at, cancelled_at, cancel_reason
		FROM jobs
		WHERE id = $1`, string(id),
	)
	return scanJob(row)
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var techID sql.NullString
	var lat, lng sql.NullFloat64
	var trackLat, trackLng, trackDist sql.NullFloat64
	var trackETA sql.NullInt64
	var trackText sql.NullString
	var radiusExpandedAt, trackUpdatedAt, acceptedAt, completedAt, cancelledAt sql.NullTime
	var cancelReason sql.NullString

	err := row.Scan(
		&j.ID, &j.CustomerID, &techID, &j.Status, &j.StatusVersion, &j.Category,
		&lat, &lng, &j.Address.Line1, &j.Address.Line2, &j.Address.City, &j.Address.State, &j.Address.PostalCode,
		&j.CurrentRadiusKm, &radiusExpandedAt,
		&trackLat, &trackLng, &trackDist, &trackETA, &trackText, &trackUpdatedAt,
		&j.CreatedAt, &acceptedAt, &completedAt, &cancelledAt, &cancelReason,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if techID.Valid {
		t := types.ID(techID.String)
		j.TechnicianID = &t
	}
	if lat.Valid && lng.Valid {
		j.Location = &types.Point{Lat: lat.Float64, Lng: lng.Float64}
	}
	if trackLat.Valid && trackLng.Valid && trackUpdatedAt.Valid {
		j.Tracking = &TrackingSnapshot{
			Technician: types.Point{Lat: trackLat.Float64, Lng: trackLng.Float64},
			DistanceKm: trackDist.Float64,
			ETAMinutes: int(trackETA.Int64),
			ETAText:    trackText.String,
			UpdatedAt:  trackUpdatedAt.Time,
		}
	}
	j.RadiusExpandedAt = toTimePtr(radiusExpandedAt)
	j.AcceptedAt = toTimePtr(acceptedAt)
	j.CompletedAt = toTimePtr(completedAt)
	j.CancelledAt = toTimePtr(cancelledAt)
	if cancelReason.Valid {
		j.CancelReason = &cancelReason.String
	}
	return &j, nil
}

// UpdateStatus performs the conditional status transition. It only succeeds
// when the row still carries the expected (status, status_version) pair, so
// concurrent writers lose cleanly instead of overwriting each other.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, techID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET status = $1,
		    status_version = status_version + 1,
		    technician_id = COALESCE($2, technician_id),
		    accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
		    completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
		    cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
		WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		toStringPtr(techID),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) Candidates(ctx context.Context, jobID types.ID) ([]Candidate, error) {
	rows, err := s.db.Query(ctx, `
		SELECT job_id, technician_id, status, score, distance_km, eta_minutes, notified_at, responded_at
		FROM job_candidates
		WHERE job_id = $1
		ORDER BY notified_at, score DESC, technician_id`, string(jobID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var dist sql.NullFloat64
		var eta sql.NullInt64
		var responded sql.NullTime
		if err := rows.Scan(&c.JobID, &c.TechnicianID, &c.Status, &c.Score, &dist, &eta, &c.NotifiedAt, &responded); err != nil {
			return nil, err
		}
		if dist.Valid {
			c.DistanceKm = &dist.Float64
		}
		if eta.Valid {
			n := int(eta.Int64)
			c.ETAMinutes = &n
		}
		c.RespondedAt = toTimePtr(responded)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ReplaceCandidatePool retires the job's pending entries and appends the
// freshly ranked set, bumping the search radius, all in one transaction. The
// job must still be pending; returns false when it is not (a concurrent
// accept or cancel won).
func (s *Store) ReplaceCandidatePool(ctx context.Context, jobID types.ID, radiusKm float64, now time.Time, cands []Candidate) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET current_radius_km = $1,
		    radius_expanded_at = $2,
		    status_version = status_version + 1
		WHERE id = $3 AND status = 'pending'`,
		radiusKm, now, string(jobID),
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if _, err := tx.Exec(ctx, `
		UPDATE job_candidates
		SET status = 'removed'
		WHERE job_id = $1 AND status = 'pending'`, string(jobID),
	); err != nil {
		return false, err
	}

	for _, c := range cands {
		if _, err := tx.Exec(ctx, `
			INSERT INTO job_candidates (job_id, technician_id, status, score, distance_km, eta_minutes, notified_at)
			VALUES ($1, $2, 'pending', $3, $4, $5, $6)`,
			string(jobID), string(c.TechnicianID), c.Score, c.DistanceKm, c.ETAMinutes, now,
		); err != nil {
			return false, err
		}
	}

	return true, tx.Commit(ctx)
}

// AcceptCandidate is the acceptance race: exactly one caller transitions the
// job out of pending. The status guard on the jobs row serializes concurrent
// accepts; losers get ErrConflict. The winner's candidate entry becomes
// accepted and every other pending entry becomes removed.
func (s *Store) AcceptCandidate(ctx context.Context, jobID, techID types.ID, now time.Time) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE jobs
		SET status = 'accepted',
		    status_version = status_version + 1,
		    technician_id = $1,
		    accepted_at = $2
		WHERE id = $3 AND status = 'pending'`,
		string(techID), now, string(jobID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		// Either the job does not exist or it already left pending.
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM jobs WHERE id = $1)`, string(jobID)).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrConflict
	}

	tag, err = tx.Exec(ctx, `
		UPDATE job_candidates
		SET status = 'accepted', responded_at = $1
		WHERE job_id = $2 AND technician_id = $3 AND status = 'pending'`,
		now, string(jobID), string(techID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotCandidate
	}

	if _, err := tx.Exec(ctx, `
		UPDATE job_candidates
		SET status = 'removed'
		WHERE job_id = $1 AND status = 'pending'`, string(jobID),
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RejectCandidate marks the technician's pending entry rejected and reports
// how many pending entries remain.
func (s *Store) RejectCandidate(ctx context.Context, jobID, techID types.ID, now time.Time) (int, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE job_candidates
		SET status = 'rejected', responded_at = $1
		WHERE job_id = $2 AND technician_id = $3 AND status = 'pending'`,
		now, string(jobID), string(techID),
	)
	if err != nil {
		return 0, err
	}
	if tag.RowsAffected() == 0 {
		return 0, ErrNotCandidate
	}

	var remaining int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM job_candidates
		WHERE job_id = $1 AND status = 'pending'`, string(jobID),
	).Scan(&remaining); err != nil {
		return 0, err
	}

	return remaining, tx.Commit(ctx)
}

// UpdateTrackingSnapshot writes the live tracking fields, re-checking that
// the job is still in a tracked state so a stale ping never lands on a
// finished job.
func (s *Store) UpdateTrackingSnapshot(ctx context.Context, jobID types.ID, snap TrackingSnapshot) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE jobs
		SET track_lat = $1, track_lng = $2, track_distance_km = $3,
		    track_eta_minutes = $4, track_eta_text = $5, track_updated_at = $6
		WHERE id = $7 AND status IN ('accepted', 'in_progress')`,
		snap.Technician.Lat, snap.Technician.Lng, snap.DistanceKm,
		snap.ETAMinutes, snap.ETAText, snap.UpdatedAt,
		string(jobID),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListActiveByTechnician returns jobs assigned to the technician that are
// still in a tracked state.
func (s *Store) ListActiveByTechnician(ctx context.Context, techID types.ID) ([]*Job, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, customer_id, technician_id, status, status_version, category,
		       lat, lng, addr_line1, addr_line2, city, state, postal_code,
		       current_radius_km, radius_expanded_at,
		       track_lat, track_lng, track_distance_km, track_eta_minutes, track_eta_text, track_updated_at,
		       created_at, accepted_at, completed_at, cancelled_at, cancel_reason
		FROM jobs
		WHERE technician_id = $1 AND status IN ('accepted', 'in_progress')`, string(techID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// ListDueForExpansion returns pending jobs whose last expansion (or creation)
// is older than cutoff and that have not hit the radius ceiling.
func (s *Store) ListDueForExpansion(ctx context.Context, cutoff time.Time, maxRadiusKm float64) ([]types.ID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM jobs
		WHERE status = 'pending'
		  AND COALESCE(radius_expanded_at, created_at) <= $1
		  AND current_radius_km < $2
		ORDER BY created_at`, cutoff, maxRadiusKm,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []types.ID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, types.ID(id))
	}
	return ids, rows.Err()
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO job_state_events (
			job_id, from_status, to_status, actor_type, actor_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.JobID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
