package ingest

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/job"
	"fieldops/internal/types"
)

type fakeCreator struct {
	mu   sync.Mutex
	cmds []job.CreateCommand
	err  error
}

func (f *fakeCreator) Create(_ context.Context, cmd job.CreateCommand) (types.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.cmds = append(f.cmds, cmd)
	return "j1", nil
}

type fakeAssigner struct {
	mu    sync.Mutex
	calls []types.ID
	err   error
}

func (f *fakeAssigner) AssignJob(_ context.Context, jobID types.ID) (*dispatch.AssignResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, jobID)
	if f.err != nil {
		return nil, f.err
	}
	return &dispatch.AssignResult{RadiusKm: 5}, nil
}

func (f *fakeAssigner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeUpdater struct {
	mu    sync.Mutex
	pings map[types.ID]types.Point
}

func (f *fakeUpdater) UpdateTechnicianLocation(_ context.Context, techID types.ID, pos types.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pings == nil {
		f.pings = make(map[types.ID]types.Point)
	}
	f.pings[techID] = pos
	return nil
}

func TestHandleJobRequest(t *testing.T) {
	creator := &fakeCreator{}
	assigner := &fakeAssigner{}
	c := NewConsumer(nil, creator, assigner, nil, zerolog.Nop())

	lat, lng := 28.6139, 77.2090
	body, _ := json.Marshal(jobRequest{
		CustomerID: "c1",
		Category:   "AC",
		Lat:        &lat,
		Lng:        &lng,
	})
	c.handleJobRequest(context.Background(), string(body))

	if len(creator.cmds) != 1 {
		t.Fatalf("creates = %d, want 1", len(creator.cmds))
	}
	cmd := creator.cmds[0]
	if cmd.CustomerID != "c1" || cmd.Category != "AC" {
		t.Errorf("cmd = %+v", cmd)
	}
	if cmd.Location == nil || cmd.Location.Lat != lat {
		t.Errorf("Location = %+v, want %f,%f", cmd.Location, lat, lng)
	}
	if assigner.count() != 1 || assigner.calls[0] != "j1" {
		t.Fatalf("assign calls = %v, want [j1]", assigner.calls)
	}
}

func TestHandleJobRequest_NoCoordinates(t *testing.T) {
	creator := &fakeCreator{}
	c := NewConsumer(nil, creator, &fakeAssigner{}, nil, zerolog.Nop())

	c.handleJobRequest(context.Background(), `{"customer_id":"c1","category":"AC","address":{"city":"Bengaluru"}}`)

	if len(creator.cmds) != 1 {
		t.Fatalf("creates = %d, want 1", len(creator.cmds))
	}
	if creator.cmds[0].Location != nil {
		t.Errorf("Location = %+v, want nil", creator.cmds[0].Location)
	}
	if creator.cmds[0].Address.City != "Bengaluru" {
		t.Errorf("City = %q", creator.cmds[0].Address.City)
	}
}

func TestHandleJobRequest_MalformedPayloadDropped(t *testing.T) {
	creator := &fakeCreator{}
	assigner := &fakeAssigner{}
	c := NewConsumer(nil, creator, assigner, nil, zerolog.Nop())

	c.handleJobRequest(context.Background(), "not json")

	if len(creator.cmds) != 0 || assigner.count() != 0 {
		t.Fatal("malformed payload reached the services")
	}
}

func TestHandleLocationPing(t *testing.T) {
	updater := &fakeUpdater{}
	c := NewConsumer(nil, nil, nil, updater, zerolog.Nop())

	c.handleLocationPing(context.Background(), `{"technician_id":"t1","lat":28.6,"lng":77.2}`)

	pos, ok := updater.pings["t1"]
	if !ok {
		t.Fatal("ping not forwarded")
	}
	if pos.Lat != 28.6 || pos.Lng != 77.2 {
		t.Errorf("pos = %+v", pos)
	}
}

func TestHandleLocationPing_MissingTechnicianDropped(t *testing.T) {
	updater := &fakeUpdater{}
	c := NewConsumer(nil, nil, nil, updater, zerolog.Nop())

	c.handleLocationPing(context.Background(), `{"lat":28.6,"lng":77.2}`)

	if len(updater.pings) != 0 {
		t.Fatal("ping without technician id was forwarded")
	}
}

func TestJobLoop_DrainsQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	creator := &fakeCreator{}
	assigner := &fakeAssigner{}
	c := NewConsumer(rdb, creator, assigner, &fakeUpdater{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Enqueue before the loop starts; list entries persist until popped.
	for _, customer := range []string{"c1", "c2"} {
		body, _ := json.Marshal(map[string]any{
			"customer_id": customer,
			"category":    "AC",
			"address":     map[string]string{"city": "Bengaluru"},
		})
		if err := rdb.LPush(ctx, "fieldops:jobs", body).Err(); err != nil {
			t.Fatalf("LPush: %v", err)
		}
	}

	go c.jobLoop(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for assigner.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("queue not drained: %d assigns", assigner.count())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
