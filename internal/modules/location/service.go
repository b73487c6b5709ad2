// Location service handles high-frequency courier position updates.
package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"beam/internal/observability"
	"beam/internal/types"
)

var ErrBadSample = errors.New("invalid location sample")

// PositionSink receives the latest position per courier. The beaming
// candidate index satisfies it, which keeps a single geo set shared
// between ingestion and search.
type PositionSink interface {
	Upsert(ctx context.Context, id types.ID, p types.Point, vehicleClass string) error
	Remove(ctx context.Context, id types.ID) error
}

// SnapshotStore archives samples at a lower cadence.
type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snap Snapshot) error
	RecentSnapshots(ctx context.Context, courierID types.ID, limit int) ([]Snapshot, error)
}

// Publisher fans a courier's position out to live subscribers.
type Publisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// RedisPublisher publishes over Redis pub/sub.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(redis *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: redis}
}

func (p *RedisPublisher) Publish(ctx context.Context, channel string, payload []byte) error {
	return p.redis.Publish(ctx, channel, payload).Err()
}

type Service struct {
	sink  PositionSink
	store SnapshotStore
	pub   Publisher
	log   zerolog.Logger

	// snapshots are flushed at most once per courier per this interval;
	// the hot path is the sink update.
	snapshotEvery time.Duration
	mu            sync.Mutex
	lastSnapshot  map[types.ID]time.Time
}

func NewService(sink PositionSink, store SnapshotStore, pub Publisher, log zerolog.Logger) *Service {
	return &Service{
		sink:          sink,
		store:         store,
		pub:           pub,
		log:           log,
		snapshotEvery: 30 * time.Second,
		lastSnapshot:  make(map[types.ID]time.Time),
	}
}

// Update ingests one sample: refresh the live index, fan the position out
// to subscribers, and occasionally archive a snapshot.
func (s *Service) Update(ctx context.Context, u Sample) error {
	if err := validate(u); err != nil {
		observability.LocationsInvalid.Inc()
		return err
	}
	if u.RecordedAt.IsZero() {
		u.RecordedAt = time.Now()
	}

	if err := s.sink.Upsert(ctx, u.CourierID, u.Position, u.VehicleClass); err != nil {
		return err
	}
	observability.LocationsIngested.Inc()

	s.publish(ctx, u)

	if s.shouldSnapshot(u.CourierID, u.RecordedAt) {
		if err := s.store.AppendSnapshot(ctx, Snapshot{
			CourierID:  u.CourierID,
			Position:   u.Position,
			RecordedAt: u.RecordedAt,
		}); err != nil {
			s.log.Warn().Err(err).Str("courier_id", string(u.CourierID)).Msg("snapshot append failed")
		}
	}
	return nil
}

// SetAvailability flips a courier in or out of the search pool. Going
// offline removes them from the live index so no wave will see them.
func (s *Service) SetAvailability(ctx context.Context, id types.ID, online bool, p *types.Point, vehicleClass string) error {
	if id == "" {
		return ErrBadSample
	}
	if !online {
		return s.sink.Remove(ctx, id)
	}
	if p == nil {
		// Online without a position: wait for the first sample. The
		// courier stays invisible to searches until then.
		return nil
	}
	return s.sink.Upsert(ctx, id, *p, vehicleClass)
}

// Recent returns the newest archived snapshots for a courier.
func (s *Service) Recent(ctx context.Context, id types.ID, limit int) ([]Snapshot, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.store.RecentSnapshots(ctx, id, limit)
}

func (s *Service) shouldSnapshot(id types.ID, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	last, ok := s.lastSnapshot[id]
	if ok && at.Sub(last) < s.snapshotEvery {
		return false
	}
	s.lastSnapshot[id] = at
	return true
}

func (s *Service) publish(ctx context.Context, u Sample) {
	payload, err := json.Marshal(map[string]any{
		"courier_id":  string(u.CourierID),
		"lat":         u.Position.Lat,
		"lng":         u.Position.Lng,
		"heading":     u.Heading,
		"speed_kmh":   u.SpeedKmh,
		"recorded_at": u.RecordedAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return
	}
	channel := fmt.Sprintf("courier:%s:location", string(u.CourierID))
	if err := s.pub.Publish(ctx, channel, payload); err != nil {
		s.log.Warn().Err(err).Str("channel", channel).Msg("location publish failed")
	}
}

func validate(u Sample) error {
	if u.CourierID == "" {
		return ErrBadSample
	}
	if u.Position.Lat < -90 || u.Position.Lat > 90 {
		return ErrBadSample
	}
	if u.Position.Lng < -180 || u.Position.Lng > 180 {
		return ErrBadSample
	}
	return nil
}
