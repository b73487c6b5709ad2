package location

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"beam/internal/types"
)

// PGStore archives position snapshots in Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) AppendSnapshot(ctx context.Context, snap Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO location_snapshots (courier_id, lat, lng, recorded_at)
		VALUES ($1, $2, $3, $4)`,
		string(snap.CourierID), snap.Position.Lat, snap.Position.Lng, snap.RecordedAt,
	)
	return err
}

func (s *PGStore) RecentSnapshots(ctx context.Context, courierID types.ID, limit int) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, courier_id, lat, lng, recorded_at
		FROM location_snapshots
		WHERE courier_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2`, string(courierID), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var id string
		if err := rows.Scan(&snap.ID, &id, &snap.Position.Lat, &snap.Position.Lng, &snap.RecordedAt); err != nil {
			return nil, err
		}
		snap.CourierID = types.ID(id)
		out = append(out, snap)
	}
	return out, rows.Err()
}
