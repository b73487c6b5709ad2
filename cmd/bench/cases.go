// Smoke-check cases: environment connectivity, quote pricing, the job
// lifecycle, wallet loads, and the courier location path.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
}

type Result struct {
	Name    string
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := pgxpool.New(ctx, r.cfg.DSN); err == nil {
			r.db = db
		}
	}
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))

	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{
			Name: "Env: Postgres connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.db == nil {
					return Result{Status: "FAIL", Note: "db not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.db.Ping(ctx); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "Env: Redis connect",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "FAIL", Note: "redis not configured"}
				}
				ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
				defer cancel()
				if err := r.redis.Ping(ctx).Err(); err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				return Result{Status: "PASS"}
			},
		},
		{
			Name: "API: health",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				status, _, err := r.get(ctx, base+"/health")
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", status)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "API: quote a trip",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				status, body, err := r.post(ctx, base+"/api/quotes", map[string]any{
					"pickup_lat": 14.5896, "pickup_lng": 120.9813,
					"dropoff_lat": 14.5547, "dropoff_lng": 121.0244,
					"service_class": "motorcycle", "region": "metro",
				})
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d: %s", status, body)}
				}
				var resp struct {
					DistanceKm float64 `json:"distance_km"`
				}
				if err := json.Unmarshal(body, &resp); err != nil || resp.DistanceKm <= 0 {
					return Result{Status: "FAIL", Note: "no distance in quote"}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "API: create job and fetch it back",
			Run: func(ctx context.Context, r *Runner) Result {
				start := time.Now()
				status, body, err := r.post(ctx, base+"/api/jobs", map[string]any{
					"kind":         "ride",
					"requester_id": fmt.Sprintf("bench_%d", time.Now().UnixNano()),
					"pickup_lat":   14.5896, "pickup_lng": 120.9813,
					"dropoff_lat": 14.5547, "dropoff_lng": 121.0244,
					"service_class": "motorcycle", "region": "metro",
				})
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				if status != http.StatusCreated {
					return Result{Status: "FAIL", Note: fmt.Sprintf("create status %d: %s", status, body)}
				}
				var created struct {
					JobID  string `json:"job_id"`
					Status string `json:"status"`
				}
				if err := json.Unmarshal(body, &created); err != nil || created.JobID == "" {
					return Result{Status: "FAIL", Note: "no job_id in response"}
				}
				if created.Status != "requested" {
					return Result{Status: "FAIL", Note: "new job not in requested"}
				}

				status, _, err = r.get(ctx, base+"/api/jobs/"+created.JobID)
				if err != nil || status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("get status %d", status)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "API: wallet load and balance",
			Run: func(ctx context.Context, r *Runner) Result {
				user := fmt.Sprintf("bench_wallet_%d", time.Now().UnixNano())
				if r.db == nil {
					return Result{Status: "SKIP", Note: "needs db to provision account"}
				}
				_, err := r.db.Exec(ctx, `
					INSERT INTO wallet_accounts (user_id, balance, currency)
					VALUES ($1, 0, 'PHP') ON CONFLICT (user_id) DO NOTHING`, user)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				start := time.Now()
				status, body, err := r.post(ctx, base+"/api/wallets/"+user+"/load", map[string]any{
					"amount_cents": 10000, "currency": "PHP", "reference": "bench",
				})
				if err != nil || status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("load status %d: %s", status, body)}
				}
				status, body, err = r.get(ctx, base+"/api/wallets/"+user)
				if err != nil || status != http.StatusOK {
					return Result{Status: "FAIL", Note: fmt.Sprintf("balance status %d", status)}
				}
				var resp struct {
					Balance struct {
						Amount int64 `json:"amount"`
					} `json:"balance"`
				}
				if err := json.Unmarshal(body, &resp); err != nil || resp.Balance.Amount != 10000 {
					return Result{Status: "FAIL", Note: fmt.Sprintf("balance %s", body)}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
		{
			Name: "API: courier location lands in geo index",
			Run: func(ctx context.Context, r *Runner) Result {
				if r.redis == nil {
					return Result{Status: "SKIP", Note: "needs redis to verify"}
				}
				courier := fmt.Sprintf("bench_courier_%d", time.Now().UnixNano())
				start := time.Now()
				req, err := http.NewRequestWithContext(ctx, http.MethodPut,
					base+"/api/couriers/"+courier+"/location",
					bytes.NewBufferString(`{"lat":14.59,"lng":120.98,"vehicle_class":"motorcycle"}`))
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				req.Header.Set("Content-Type", "application/json")
				resp, err := r.httpc.Do(req)
				if err != nil {
					return Result{Status: "FAIL", Note: err.Error()}
				}
				_ = resp.Body.Close()
				if resp.StatusCode != http.StatusNoContent {
					return Result{Status: "FAIL", Note: fmt.Sprintf("status %d", resp.StatusCode)}
				}
				pos, err := r.redis.GeoPos(ctx, "beaming:couriers", courier).Result()
				if err != nil || len(pos) == 0 || pos[0] == nil {
					return Result{Status: "FAIL", Note: "courier missing from geo set"}
				}
				return Result{Status: "PASS", Latency: time.Since(start)}
			},
		},
	}
}

func (r *Runner) get(ctx context.Context, url string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}

func (r *Runner) post(ctx context.Context, url string, payload any) (int, []byte, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body, nil
}
