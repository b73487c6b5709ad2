package pricing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"beam/internal/types"
)

// Store reads fare configurations from Postgres with a small TTL cache.
// Configs change rarely (admin edits) and every job creation needs one.
type Store struct {
	db       *pgxpool.Pool
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]cachedConfig
}

type cachedConfig struct {
	cfg    FareConfig
	loaded time.Time
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{
		db:       db,
		cacheTTL: time.Minute,
		cache:    make(map[string]cachedConfig),
	}
}

func (s *Store) FareConfig(ctx context.Context, serviceClass, region string) (FareConfig, error) {
	key := serviceClass + "|" + region

	s.mu.RLock()
	if c, ok := s.cache[key]; ok && time.Since(c.loaded) < s.cacheTTL {
		s.mu.RUnlock()
		return c.cfg, nil
	}
	s.mu.RUnlock()

	row := s.db.QueryRow(ctx, `
        SELECT service_class, region, currency,
               base_fare, per_km, per_min, min_fare,
               fee_type, fee_flat, fee_percent
        FROM fare_configs
        WHERE service_class = $1 AND region = $2`,
		serviceClass, region,
	)

	var cfg FareConfig
	err := row.Scan(
		&cfg.ServiceClass, &cfg.Region, &cfg.Currency,
		&cfg.Base.Amount, &cfg.PerKm.Amount, &cfg.PerMin.Amount, &cfg.MinFare.Amount,
		&cfg.FeeType, &cfg.FeeFlat.Amount, &cfg.FeePercent,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return FareConfig{}, ErrConfigNotFound
	}
	if err != nil {
		return FareConfig{}, err
	}
	fillCurrency(&cfg)

	s.mu.Lock()
	s.cache[key] = cachedConfig{cfg: cfg, loaded: time.Now()}
	s.mu.Unlock()
	return cfg, nil
}

func fillCurrency(cfg *FareConfig) {
	for _, m := range []*types.Money{&cfg.Base, &cfg.PerKm, &cfg.PerMin, &cfg.MinFare, &cfg.FeeFlat} {
		m.Currency = cfg.Currency
	}
}
