// locationd consumes courier position samples from Kafka and feeds them
// into the live candidate index. Runs separately from the API so position
// ingest scales on its own.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"beam/internal/config"
	"beam/internal/infra"
	"beam/internal/logging"
	"beam/internal/modules/beaming"
	"beam/internal/modules/location"
	"beam/internal/types"
)

type locationMsg struct {
	CourierID    string  `json:"courier_id"`
	Lat          float64 `json:"lat"`
	Lng          float64 `json:"lng"`
	VehicleClass string  `json:"vehicle_class"`
	Heading      float64 `json:"heading"`
	SpeedKmh     float64 `json:"speed_kmh"`
	RecordedAt   string  `json:"recorded_at"`
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New("locationd", cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis)
	defer redisClient.Close()

	index := beaming.NewRedisIndex(redisClient)
	locationSvc := location.NewService(index, location.NewPGStore(dbPool),
		location.NewRedisPublisher(redisClient), log)

	// Metrics and health endpoints on a side port.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := redisClient.Ping(r.Context()).Err(); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		log.Info().Str("addr", cfg.Kafka.MetricsAddr).Msg("metrics server listening")
		if err := http.ListenAndServe(cfg.Kafka.MetricsAddr, mux); err != nil {
			log.Warn().Err(err).Msg("metrics server stopped")
		}
	}()

	reader := infra.NewLocationReader(cfg.Kafka)
	defer reader.Close()

	log.Info().
		Str("topic", cfg.Kafka.LocationTopic).
		Strs("brokers", cfg.Kafka.Brokers).
		Msg("consuming courier locations")

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("shutting down")
				return
			}
			log.Warn().Err(err).Dur("backoff", backoff).Msg("kafka read error")
			time.Sleep(backoff)
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = time.Second

		var msg locationMsg
		if err := json.Unmarshal(m.Value, &msg); err != nil {
			log.Warn().Err(err).Msg("invalid location message")
			continue
		}

		sample := location.Sample{
			CourierID:    types.ID(msg.CourierID),
			Position:     types.Point{Lat: msg.Lat, Lng: msg.Lng},
			VehicleClass: msg.VehicleClass,
			Heading:      msg.Heading,
			SpeedKmh:     msg.SpeedKmh,
		}
		if ts, err := time.Parse(time.RFC3339, msg.RecordedAt); err == nil {
			sample.RecordedAt = ts
		}
		if err := locationSvc.Update(ctx, sample); err != nil {
			log.Warn().Err(err).Str("courier_id", msg.CourierID).Msg("location update failed")
		}
	}
}
