// README: Technician profile store backed by PostgreSQL.
package technician

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"fieldops/internal/types"
)

var ErrNotFound = errors.New("technician not found")

const profileColumns = `
	id, name, phone, photo_url, skills, rating, completed_jobs, complaints,
	response_rate, is_available, is_active, working_city, working_lat, working_lng,
	active_jobs, rejections`

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Technician, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+profileColumns+`
		FROM technicians
		WHERE id = $1`, string(id),
	)
	t, err := scanTechnician(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

// ListActive returns every technician whose account is active, in ID order so
// downstream ranking is reproducible.
func (s *Store) ListActive(ctx context.Context) ([]Technician, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM technicians
		WHERE is_active
		ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListAvailableByCity is the fallback for jobs without coordinates.
func (s *Store) ListAvailableByCity(ctx context.Context, city string) ([]Technician, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+profileColumns+`
		FROM technicians
		WHERE is_active AND is_available AND LOWER(working_city) = LOWER($1)
		ORDER BY id`, city,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func (s *Store) IncrementActiveJobs(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE technicians SET active_jobs = active_jobs + 1 WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) IncrementRejections(ctx context.Context, id types.ID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE technicians SET rejections = rejections + 1 WHERE id = $1`, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetAvailability(ctx context.Context, id types.ID, available bool) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE technicians SET is_available = $1 WHERE id = $2`, available, string(id))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collect(rows pgx.Rows) ([]Technician, error) {
	var out []Technician
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTechnician(row pgx.Row) (*Technician, error) {
	var t Technician
	var workingLat, workingLng sql.NullFloat64
	err := row.Scan(
		&t.ID, &t.Name, &t.Phone, &t.PhotoURL, &t.Skills, &t.Rating, &t.CompletedJobs, &t.Complaints,
		&t.ResponseRate, &t.Available, &t.Active, &t.WorkingCity, &workingLat, &workingLng,
		&t.ActiveJobs, &t.Rejections,
	)
	if err != nil {
		return nil, err
	}
	if workingLat.Valid && workingLng.Valid {
		t.Working = &types.Point{Lat: workingLat.Float64, Lng: workingLng.Float64}
	}
	return &t, nil
}
