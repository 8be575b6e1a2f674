// README: Live presence store backed by Redis GEO and per-technician hashes.
package technician

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"fieldops/internal/types"
)

const (
	geoKey         = "geo:technicians"
	locKeyPrefix   = "tech:loc:"
	presenceKeyTTL = 24 * time.Hour
)

// PresenceStore keeps live technician positions. Entries older than the
// staleness window count as offline even if the hash still exists.
type PresenceStore struct {
	redis *redis.Client
	stale time.Duration
}

func NewPresenceStore(rdb *redis.Client, staleAfter time.Duration) *PresenceStore {
	return &PresenceStore{redis: rdb, stale: staleAfter}
}

func (s *PresenceStore) SetLocation(ctx context.Context, id types.ID, pos types.Point, now time.Time) error {
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: pos.Lng,
		Latitude:  pos.Lat,
	})
	key := locKey(id)
	pipe.HSet(ctx, key, map[string]interface{}{
		"lat":    pos.Lat,
		"lng":    pos.Lng,
		"online": "1",
		"ts":     now.UnixMilli(),
	})
	pipe.Expire(ctx, key, presenceKeyTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *PresenceStore) SetOffline(ctx context.Context, id types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, geoKey, string(id))
	pipe.HSet(ctx, locKey(id), "online", "0")
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the technician's presence, or nil when no position is known.
func (s *PresenceStore) Get(ctx context.Context, id types.ID) (*Presence, error) {
	vals, err := s.redis.HGetAll(ctx, locKey(id)).Result()
	if err != nil {
		return nil, err
	}
	return s.parse(vals), nil
}

// GetMany fetches presence for several technicians in one round trip.
func (s *PresenceStore) GetMany(ctx context.Context, ids []types.ID) (map[types.ID]Presence, error) {
	if len(ids) == 0 {
		return map[types.ID]Presence{}, nil
	}
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, locKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	out := make(map[types.ID]Presence, len(ids))
	for i, id := range ids {
		vals, err := cmds[i].Result()
		if err != nil {
			return nil, err
		}
		if p := s.parse(vals); p != nil {
			out[id] = *p
		}
	}
	return out, nil
}

func (s *PresenceStore) parse(vals map[string]string) *Presence {
	if len(vals) == 0 {
		return nil
	}
	lat, err1 := strconv.ParseFloat(vals["lat"], 64)
	lng, err2 := strconv.ParseFloat(vals["lng"], 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	ts, _ := strconv.ParseInt(vals["ts"], 10, 64)
	updatedAt := time.UnixMilli(ts)

	online := vals["online"] == "1"
	if s.stale > 0 && time.Since(updatedAt) > s.stale {
		online = false
	}
	return &Presence{
		Position:  types.Point{Lat: lat, Lng: lng},
		Online:    online,
		UpdatedAt: updatedAt,
	}
}

func locKey(id types.ID) string {
	return locKeyPrefix + string(id)
}
