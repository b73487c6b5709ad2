package beaming

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"beam/internal/types"
)

const (
	courierGeoKey     = "beaming:couriers"
	courierMetaPrefix = "beaming:courier:%s"
	notifiedKeyPrefix = "beaming:job:%s:notified"
	notifiedTTL       = 2 * time.Hour
)

// RedisIndex holds courier positions in a Redis GEO set, with a small
// metadata hash per courier for vehicle class and availability. Couriers
// that never report a position are simply absent and never surface in a
// wave.
type RedisIndex struct {
	redis *redis.Client
}

func NewRedisIndex(redis *redis.Client) *RedisIndex {
	return &RedisIndex{redis: redis}
}

// Upsert writes a courier's latest position and metadata.
func (s *RedisIndex) Upsert(ctx context.Context, id types.ID, p types.Point, vehicleClass string) error {
	pipe := s.redis.Pipeline()
	pipe.GeoAdd(ctx, courierGeoKey, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	})
	pipe.HSet(ctx, courierMetaKey(id), "vehicle_class", vehicleClass, "online", "1")
	_, err := pipe.Exec(ctx)
	return err
}

// Remove takes a courier out of the search pool.
func (s *RedisIndex) Remove(ctx context.Context, id types.ID) error {
	pipe := s.redis.Pipeline()
	pipe.ZRem(ctx, courierGeoKey, string(id))
	pipe.HSet(ctx, courierMetaKey(id), "online", "0")
	_, err := pipe.Exec(ctx)
	return err
}

// Nearby returns up to limit online couriers of the given vehicle class
// within radiusM of origin, closest first.
func (s *RedisIndex) Nearby(ctx context.Context, origin types.Point, radiusM float64, vehicleClass string, limit int) ([]Candidate, error) {
	results, err := s.redis.GeoSearchLocation(ctx, courierGeoKey, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  origin.Lng,
			Latitude:   origin.Lat,
			Radius:     radiusM,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, limit)
	for _, r := range results {
		id := types.ID(r.Name)
		meta, err := s.redis.HGetAll(ctx, courierMetaKey(id)).Result()
		if err != nil {
			return nil, err
		}
		if meta["online"] != "1" {
			continue
		}
		if vehicleClass != "" && meta["vehicle_class"] != vehicleClass {
			continue
		}
		cands = append(cands, Candidate{
			ID:           id,
			Position:     types.Point{Lat: r.Latitude, Lng: r.Longitude},
			DistanceM:    r.Dist,
			VehicleClass: meta["vehicle_class"],
		})
		if len(cands) == limit {
			break
		}
	}
	return cands, nil
}

// Position returns a courier's last known position, if any.
func (s *RedisIndex) Position(ctx context.Context, id types.ID) (types.Point, bool, error) {
	pos, err := s.redis.GeoPos(ctx, courierGeoKey, string(id)).Result()
	if err != nil {
		return types.Point{}, false, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return types.Point{}, false, nil
	}
	return types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude}, true, nil
}

// RecordNotified adds couriers to a job's notified set. The set expires on
// its own; the job row stays the durable record.
func (s *RedisIndex) RecordNotified(ctx context.Context, jobID types.ID, courierIDs []types.ID) error {
	if len(courierIDs) == 0 {
		return nil
	}
	members := make([]interface{}, len(courierIDs))
	for i, id := range courierIDs {
		members[i] = string(id)
	}
	key := notifiedKey(jobID)
	pipe := s.redis.Pipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, notifiedTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// Notified returns the couriers already offered a job, if the set is still
// live.
func (s *RedisIndex) Notified(ctx context.Context, jobID types.ID) ([]types.ID, error) {
	members, err := s.redis.SMembers(ctx, notifiedKey(jobID)).Result()
	if err != nil {
		return nil, err
	}
	ids := make([]types.ID, len(members))
	for i, m := range members {
		ids[i] = types.ID(m)
	}
	return ids, nil
}

func courierMetaKey(id types.ID) string {
	return fmt.Sprintf(courierMetaPrefix, string(id))
}

func notifiedKey(jobID types.ID) string {
	return fmt.Sprintf(notifiedKeyPrefix, string(jobID))
}

// PGProposalStore persists bids in Postgres, one row per (job, courier).
// Resubmitting replaces the earlier bid.
type PGProposalStore struct {
	pool *pgxpool.Pool
}

func NewPGProposalStore(pool *pgxpool.Pool) *PGProposalStore {
	return &PGProposalStore{pool: pool}
}

func (s *PGProposalStore) Upsert(ctx context.Context, p *Proposal) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO job_proposals
			(job_id, courier_id, courier_name, vehicle, rating, distance_m,
			 top_up, total_fare, currency, notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (job_id, courier_id) DO UPDATE SET
			top_up = EXCLUDED.top_up,
			total_fare = EXCLUDED.total_fare,
			distance_m = EXCLUDED.distance_m,
			notes = EXCLUDED.notes,
			created_at = EXCLUDED.created_at`,
		string(p.JobID), string(p.CourierID), p.CourierName, p.Vehicle, p.Rating,
		p.DistanceM, p.TopUp.Amount, p.TotalFare.Amount, p.TotalFare.Currency,
		p.Notes, p.CreatedAt,
	)
	return err
}

const proposalColumns = `
	job_id, courier_id, courier_name, vehicle, rating, distance_m,
	top_up, total_fare, currency, notes, created_at`

func (s *PGProposalStore) ByJob(ctx context.Context, jobID types.ID) ([]Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+proposalColumns+`
		FROM job_proposals
		WHERE job_id = $1
		ORDER BY created_at ASC`, string(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Proposal
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *PGProposalStore) Get(ctx context.Context, jobID, courierID types.ID) (*Proposal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+proposalColumns+`
		FROM job_proposals
		WHERE job_id = $1 AND courier_id = $2`, string(jobID), string(courierID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanProposal(rows)
}

func (s *PGProposalStore) Clear(ctx context.Context, jobID types.ID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM job_proposals WHERE job_id = $1`, string(jobID))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*Proposal, error) {
	var p Proposal
	var jobID, courierID string
	var topUp, total int64
	var currency string
	if err := row.Scan(
		&jobID, &courierID, &p.CourierName, &p.Vehicle, &p.Rating, &p.DistanceM,
		&topUp, &total, &currency, &p.Notes, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	p.JobID = types.ID(jobID)
	p.CourierID = types.ID(courierID)
	p.TopUp = types.Money{Amount: topUp, Currency: currency}
	p.TotalFare = types.Money{Amount: total, Currency: currency}
	return &p, nil
}

// PGProfileStore reads courier display profiles.
type PGProfileStore struct {
	pool *pgxpool.Pool
}

func NewPGProfileStore(pool *pgxpool.Pool) *PGProfileStore {
	return &PGProfileStore{pool: pool}
}

func (s *PGProfileStore) Courier(ctx context.Context, id types.ID) (CourierProfile, error) {
	var p CourierProfile
	var pid string
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, vehicle, vehicle_class, rating
		FROM couriers
		WHERE id = $1`, string(id)).
		Scan(&pid, &p.Name, &p.Vehicle, &p.VehicleClass, &p.Rating)
	if err != nil {
		return CourierProfile{}, err
	}
	p.ID = types.ID(pid)
	return p, nil
}
