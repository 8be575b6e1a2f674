// README: Redis-fed ingest: job requests from a work queue, location pings
// from a pub/sub channel. The request layer lives in a separate service and
// talks to this daemon exclusively through these two keys.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/job"
	"fieldops/internal/types"
)

const (
	// jobQueueKey is the list the request layer LPUSHes create requests onto.
	jobQueueKey = "fieldops:jobs"
	// locationChannel carries technician location pings.
	locationChannel = "fieldops:location"

	popTimeout   = 5 * time.Second
	retryBackoff = time.Second
)

type JobCreator interface {
	Create(ctx context.Context, cmd job.CreateCommand) (types.ID, error)
}

type Assigner interface {
	AssignJob(ctx context.Context, jobID types.ID) (*dispatch.AssignResult, error)
}

type LocationUpdater interface {
	UpdateTechnicianLocation(ctx context.Context, techID types.ID, pos types.Point) error
}

// Consumer drains both ingest paths until its context is cancelled.
type Consumer struct {
	redis    *redis.Client
	jobs     JobCreator
	dispatch Assigner
	tracking LocationUpdater
	log      zerolog.Logger
}

func NewConsumer(rdb *redis.Client, jobs JobCreator, disp Assigner, tracking LocationUpdater, log zerolog.Logger) *Consumer {
	return &Consumer{redis: rdb, jobs: jobs, dispatch: disp, tracking: tracking, log: log}
}

// Start launches the queue and pub/sub loops. Both stop when ctx is done.
func (c *Consumer) Start(ctx context.Context) {
	go c.jobLoop(ctx)
	go c.locationLoop(ctx)
	c.log.Info().Str("queue", jobQueueKey).Str("channel", locationChannel).Msg("ingest consumer started")
}

type jobRequest struct {
	CustomerID string   `json:"customer_id"`
	Category   string   `json:"category"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
	Address    struct {
		Line1      string `json:"line1"`
		Line2      string `json:"line2"`
		City       string `json:"city"`
		State      string `json:"state"`
		PostalCode string `json:"postal_code"`
	} `json:"address"`
}

type locationPing struct {
	TechnicianID string  `json:"technician_id"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
}

func (c *Consumer) jobLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		res, err := c.redis.BRPop(ctx, popTimeout, jobQueueKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			c.log.Error().Err(err).Msg("ingest: job queue pop failed")
			time.Sleep(retryBackoff)
			continue
		}
		// BRPop returns [key, value].
		c.handleJobRequest(ctx, res[1])
	}
}

func (c *Consumer) handleJobRequest(ctx context.Context, payload string) {
	var req jobRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		c.log.Error().Err(err).Msg("ingest: malformed job request dropped")
		return
	}

	cmd := job.CreateCommand{
		CustomerID: types.ID(req.CustomerID),
		Category:   req.Category,
		Address: job.Address{
			Line1:      req.Address.Line1,
			Line2:      req.Address.Line2,
			City:       req.Address.City,
			State:      req.Address.State,
			PostalCode: req.Address.PostalCode,
		},
	}
	if req.Lat != nil && req.Lng != nil {
		cmd.Location = &types.Point{Lat: *req.Lat, Lng: *req.Lng}
	}

	id, err := c.jobs.Create(ctx, cmd)
	if err != nil {
		c.log.Error().Err(err).Str("customer_id", req.CustomerID).Msg("ingest: job create failed")
		return
	}

	res, err := c.dispatch.AssignJob(ctx, id)
	switch {
	case err == nil:
		c.log.Info().Str("job_id", string(id)).Float64("radius_km", res.RadiusKm).Int("candidates", len(res.Candidates)).Msg("ingest: job dispatched")
	case errors.Is(err, dispatch.ErrNoCapacity):
		c.log.Warn().Str("job_id", string(id)).Msg("ingest: job created but no technicians available")
	default:
		c.log.Error().Err(err).Str("job_id", string(id)).Msg("ingest: candidate search failed")
	}
}

func (c *Consumer) locationLoop(ctx context.Context) {
	sub := c.redis.Subscribe(ctx, locationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			c.handleLocationPing(ctx, msg.Payload)
		}
	}
}

func (c *Consumer) handleLocationPing(ctx context.Context, payload string) {
	var ping locationPing
	if err := json.Unmarshal([]byte(payload), &ping); err != nil {
		c.log.Error().Err(err).Msg("ingest: malformed location ping dropped")
		return
	}
	if ping.TechnicianID == "" {
		c.log.Error().Msg("ingest: location ping without technician id dropped")
		return
	}
	pos := types.Point{Lat: ping.Lat, Lng: ping.Lng}
	if err := c.tracking.UpdateTechnicianLocation(ctx, types.ID(ping.TechnicianID), pos); err != nil {
		c.log.Error().Err(err).Str("technician_id", ping.TechnicianID).Msg("ingest: location update failed")
	}
}
