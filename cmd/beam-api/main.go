// Entry point: loads config, wires module services, runs the HTTP API and
// background search loops.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"beam/internal/config"
	"beam/internal/dispatch"
	httptransport "beam/internal/http"
	"beam/internal/infra"
	"beam/internal/logging"
	"beam/internal/maps"
	"beam/internal/modules/beaming"
	"beam/internal/modules/job"
	"beam/internal/modules/location"
	"beam/internal/modules/platformfee"
	"beam/internal/modules/pricing"
	"beam/internal/modules/wallet"
	"beam/internal/types"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New("beam-api", cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis)
	defer redisClient.Close()

	pricingSvc := pricing.NewService(pricing.NewStore(dbPool))

	jobStore := job.NewPGStore(dbPool)
	jobSvc := job.NewService(jobStore, pricingSvc, log)

	walletSvc := wallet.NewService(wallet.NewPGStore(dbPool), log)

	feeEngine := platformfee.NewEngine(jobStore, walletSvc,
		types.Money{Amount: cfg.Fees.PlatformFeeCents, Currency: cfg.Fees.Currency}, log)
	jobSvc.SetFeeCharger(job.FeeChargerFunc(func(ctx context.Context, jobID types.ID) error {
		_, err := feeEngine.ChargeForJob(ctx, jobID)
		return err
	}))
	jobSvc.SetFeeRefunder(job.FeeRefunderFunc(func(ctx context.Context, jobID types.ID) error {
		_, err := feeEngine.RefundForJob(ctx, jobID)
		return err
	}))

	registry := dispatch.NewWSRegistry(log)
	notifier := dispatch.Fanout{registry, dispatch.NewLogNotifier(log)}
	jobSvc.SetStatusFeed(dispatch.NewRedisFeed(redisClient, log))

	index := beaming.NewRedisIndex(redisClient)
	searchSvc := beaming.NewService(
		jobSvc,
		index,
		beaming.NewPGProposalStore(dbPool),
		beaming.NewPGProfileStore(dbPool),
		notifier,
		cfg.Beaming,
		log,
	)

	locationSvc := location.NewService(index, location.NewPGStore(dbPool),
		location.NewRedisPublisher(redisClient), log)

	var router maps.Router
	if cfg.Maps.APIKey != "" {
		router, err = maps.NewGoogleRouter(cfg.Maps.APIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("maps client init")
		}
	}
	estimator := maps.NewEstimator(router, cfg.Maps, log)

	handler := httptransport.NewRouter(httptransport.RouterDeps{
		BaseCtx:   ctx,
		Jobs:      jobSvc,
		Search:    searchSvc,
		Wallet:    walletSvc,
		Pricing:   pricingSvc,
		Location:  locationSvc,
		Estimator: estimator,
		Registry:  registry,
		Log:       log,
	})

	server := httptransport.NewServer(handler, cfg.HTTP, log)
	if err := server.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("http server")
	}

	// Let in-flight searches observe the cancelled context and finish.
	searchSvc.Wait()
}
