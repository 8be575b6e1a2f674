package tracking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"fieldops/internal/modules/job"
	"fieldops/internal/modules/technician"
	"fieldops/internal/types"
)

type mockJobStore struct {
	jobs      map[types.ID]*job.Job
	snapshots map[types.ID]job.TrackingSnapshot
}

func newMockJobStore(jobs ...*job.Job) *mockJobStore {
	s := &mockJobStore{
		jobs:      make(map[types.ID]*job.Job),
		snapshots: make(map[types.ID]job.TrackingSnapshot),
	}
	for _, j := range jobs {
		s.jobs[j.ID] = j
	}
	return s
}

func (s *mockJobStore) Get(_ context.Context, id types.ID) (*job.Job, error) {
	j, ok := s.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	return j, nil
}

func (s *mockJobStore) ListActiveByTechnician(_ context.Context, techID types.ID) ([]*job.Job, error) {
	var out []*job.Job
	for _, j := range s.jobs {
		if j.TechnicianID != nil && *j.TechnicianID == techID && job.IsTracked(j.Status) {
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *mockJobStore) UpdateTrackingSnapshot(_ context.Context, jobID types.ID, snap job.TrackingSnapshot) (bool, error) {
	j, ok := s.jobs[jobID]
	if !ok || !job.IsTracked(j.Status) {
		return false, nil
	}
	s.snapshots[jobID] = snap
	return true, nil
}

type mockPresence struct {
	positions map[types.ID]*technician.Presence
}

func (p *mockPresence) SetLocation(_ context.Context, id types.ID, pos types.Point, now time.Time) error {
	if p.positions == nil {
		p.positions = make(map[types.ID]*technician.Presence)
	}
	p.positions[id] = &technician.Presence{Position: pos, Online: true, UpdatedAt: now}
	return nil
}

func (p *mockPresence) Get(_ context.Context, id types.ID) (*technician.Presence, error) {
	return p.positions[id], nil
}

type mockDirectory struct {
	techs map[types.ID]*technician.Technician
}

func (d *mockDirectory) Get(_ context.Context, id types.ID) (*technician.Technician, error) {
	t, ok := d.techs[id]
	if !ok {
		return nil, errors.New("technician not found")
	}
	return t, nil
}

type fixedEstimator struct {
	dur time.Duration
	km  float64
	err error
}

func (e *fixedEstimator) TravelEstimate(context.Context, types.Point, types.Point) (time.Duration, float64, error) {
	return e.dur, e.km, e.err
}

var (
	siteA = types.Point{Lat: 28.6139, Lng: 77.2090}
	siteB = types.Point{Lat: 28.7041, Lng: 77.1025}
)

func techID(s string) *types.ID {
	id := types.ID(s)
	return &id
}

func activeJob(id string, techID *types.ID, status job.Status, loc *types.Point) *job.Job {
	return &job.Job{
		ID:           types.ID(id),
		CustomerID:   "c1",
		TechnicianID: techID,
		Status:       status,
		Category:     "AC",
		Location:     loc,
	}
}

func TestUpdateTechnicianLocation_FansOutToTrackedJobs(t *testing.T) {
	dest := siteA
	store := newMockJobStore(
		activeJob("j-accepted", techID("t1"), job.StatusAccepted, &dest),
		activeJob("j-working", techID("t1"), job.StatusInProgress, &dest),
		activeJob("j-done", techID("t1"), job.StatusCompleted, &dest),
		activeJob("j-other", techID("t2"), job.StatusAccepted, &dest),
	)
	presence := &mockPresence{}
	svc := NewService(store, presence, &mockDirectory{}, nil, zerolog.Nop())

	if err := svc.UpdateTechnicianLocation(context.Background(), "t1", siteB); err != nil {
		t.Fatalf("UpdateTechnicianLocation() error: %v", err)
	}

	if len(store.snapshots) != 2 {
		t.Fatalf("snapshots written = %d, want 2", len(store.snapshots))
	}
	for _, id := range []types.ID{"j-accepted", "j-working"} {
		snap, ok := store.snapshots[id]
		if !ok {
			t.Fatalf("no snapshot for %s", id)
		}
		if snap.Technician != siteB {
			t.Errorf("%s snapshot position = %+v, want %+v", id, snap.Technician, siteB)
		}
		if snap.DistanceKm <= 0 || snap.ETAMinutes <= 0 || snap.ETAText == "" {
			t.Errorf("%s snapshot missing distance/ETA: %+v", id, snap)
		}
	}
	if _, ok := store.snapshots["j-done"]; ok {
		t.Error("completed job received a tracking snapshot")
	}
	if _, ok := store.snapshots["j-other"]; ok {
		t.Error("another technician's job received a tracking snapshot")
	}

	p, _ := presence.Get(context.Background(), "t1")
	if p == nil || p.Position != siteB {
		t.Errorf("presence = %+v, want position %+v", p, siteB)
	}
}

func TestUpdateTechnicianLocation_SkipsJobsWithoutCoordinates(t *testing.T) {
	store := newMockJobStore(activeJob("j1", techID("t1"), job.StatusAccepted, nil))
	svc := NewService(store, &mockPresence{}, &mockDirectory{}, nil, zerolog.Nop())

	if err := svc.UpdateTechnicianLocation(context.Background(), "t1", siteB); err != nil {
		t.Fatalf("UpdateTechnicianLocation() error: %v", err)
	}
	if len(store.snapshots) != 0 {
		t.Fatalf("snapshots written = %d, want 0", len(store.snapshots))
	}
}

func TestGetJobTrackingInfo_Unassigned(t *testing.T) {
	j := activeJob("j1", nil, job.StatusPending, &siteA)
	j.Address = job.Address{Line1: "12 MG Road", City: "Bengaluru"}
	svc := NewService(newMockJobStore(j), &mockPresence{}, &mockDirectory{}, nil, zerolog.Nop())

	info, err := svc.GetJobTrackingInfo(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetJobTrackingInfo() error: %v", err)
	}
	if info.Status != job.StatusPending {
		t.Errorf("Status = %s", info.Status)
	}
	if info.DestinationAddress != "12 MG Road, Bengaluru" {
		t.Errorf("DestinationAddress = %q", info.DestinationAddress)
	}
	if info.Technician != nil || info.TechnicianLocation != nil || info.DistanceKm != nil {
		t.Errorf("unassigned job leaked tracking fields: %+v", info)
	}
}

func TestGetJobTrackingInfo_AssignedWithoutPresence(t *testing.T) {
	store := newMockJobStore(activeJob("j1", techID("t1"), job.StatusAccepted, &siteA))
	dir := &mockDirectory{techs: map[types.ID]*technician.Technician{
		"t1": {ID: "t1", Name: "Asha", Rating: 4.5, Skills: []string{"AC"}},
	}}
	svc := NewService(store, &mockPresence{}, dir, nil, zerolog.Nop())

	info, err := svc.GetJobTrackingInfo(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetJobTrackingInfo() error: %v", err)
	}
	if info.Technician == nil || info.Technician.Name != "Asha" {
		t.Fatalf("Technician = %+v", info.Technician)
	}
	// Profile without a live position is fine; tracking fields just stay nil.
	if info.TechnicianLocation != nil || info.DistanceKm != nil || info.ETAMinutes != nil {
		t.Errorf("tracking fields set without presence: %+v", info)
	}
}

func TestGetJobTrackingInfo_LivePosition(t *testing.T) {
	store := newMockJobStore(activeJob("j1", techID("t1"), job.StatusInProgress, &siteA))
	dir := &mockDirectory{techs: map[types.ID]*technician.Technician{
		"t1": {ID: "t1", Name: "Asha"},
	}}
	presence := &mockPresence{}
	_ = presence.SetLocation(context.Background(), "t1", siteB, time.Now())
	svc := NewService(store, presence, dir, nil, zerolog.Nop())

	info, err := svc.GetJobTrackingInfo(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetJobTrackingInfo() error: %v", err)
	}
	if info.TechnicianLocation == nil || *info.TechnicianLocation != siteB {
		t.Fatalf("TechnicianLocation = %+v, want %+v", info.TechnicianLocation, siteB)
	}
	if info.DistanceKm == nil || *info.DistanceKm < 10 || *info.DistanceKm > 20 {
		t.Errorf("DistanceKm = %v, want ~15", info.DistanceKm)
	}
	if info.ETAMinutes == nil || *info.ETAMinutes <= 0 || info.ETAText == "" {
		t.Errorf("ETA = %v %q", info.ETAMinutes, info.ETAText)
	}
	if info.UpdatedAt == nil {
		t.Error("UpdatedAt = nil, want ping time")
	}
}

func TestGetJobTrackingInfo_PrefersRoutedEstimate(t *testing.T) {
	store := newMockJobStore(activeJob("j1", techID("t1"), job.StatusAccepted, &siteA))
	dir := &mockDirectory{techs: map[types.ID]*technician.Technician{"t1": {ID: "t1"}}}
	presence := &mockPresence{}
	_ = presence.SetLocation(context.Background(), "t1", siteB, time.Now())
	routes := &fixedEstimator{dur: 42 * time.Minute, km: 21.5}
	svc := NewService(store, presence, dir, routes, zerolog.Nop())

	info, err := svc.GetJobTrackingInfo(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetJobTrackingInfo() error: %v", err)
	}
	if info.DistanceKm == nil || *info.DistanceKm != 21.5 {
		t.Errorf("DistanceKm = %v, want routed 21.5", info.DistanceKm)
	}
	if info.ETAMinutes == nil || *info.ETAMinutes != 42 {
		t.Errorf("ETAMinutes = %v, want routed 42", info.ETAMinutes)
	}
}

func TestGetJobTrackingInfo_RoutingFailureFallsBack(t *testing.T) {
	store := newMockJobStore(activeJob("j1", techID("t1"), job.StatusAccepted, &siteA))
	dir := &mockDirectory{techs: map[types.ID]*technician.Technician{"t1": {ID: "t1"}}}
	presence := &mockPresence{}
	_ = presence.SetLocation(context.Background(), "t1", siteB, time.Now())
	routes := &fixedEstimator{err: errors.New("routing unavailable")}
	svc := NewService(store, presence, dir, routes, zerolog.Nop())

	info, err := svc.GetJobTrackingInfo(context.Background(), "j1")
	if err != nil {
		t.Fatalf("GetJobTrackingInfo() error: %v", err)
	}
	if info.DistanceKm == nil || *info.DistanceKm < 10 || *info.DistanceKm > 20 {
		t.Errorf("fallback DistanceKm = %v, want straight-line ~15", info.DistanceKm)
	}
}

func TestGetJobTrackingInfo_UnknownJob(t *testing.T) {
	svc := NewService(newMockJobStore(), &mockPresence{}, &mockDirectory{}, nil, zerolog.Nop())
	if _, err := svc.GetJobTrackingInfo(context.Background(), "missing"); !errors.Is(err, job.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}
