// README: Entry point; loads config, wires stores and services, starts the
// ingest consumer, the expansion sweeper, and the metrics endpoint.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fieldops/internal/config"
	"fieldops/internal/infra"
	"fieldops/internal/ingest"
	"fieldops/internal/logging"
	"fieldops/internal/maps"
	"fieldops/internal/modules/dispatch"
	"fieldops/internal/modules/job"
	"fieldops/internal/modules/technician"
	"fieldops/internal/modules/tracking"
	"fieldops/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := infra.NewDB(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres init")
	}
	defer dbPool.Close()

	redisClient := infra.NewRedis(cfg.Redis.Addr)
	defer redisClient.Close()

	jobStore := job.NewStore(dbPool)
	jobSvc := job.NewService(jobStore)

	techStore := technician.NewStore(dbPool)
	presence := technician.NewPresenceStore(redisClient, cfg.Dispatch.PresenceTTL)
	directory := technician.NewDirectory(techStore, presence)

	dispatchStore := dispatch.NewStore(redisClient)
	dispatchSvc := dispatch.NewService(jobStore, directory, dispatchStore, log)

	var routes tracking.TravelEstimator
	if cfg.Maps.APIKey != "" {
		rs, err := maps.NewRouteService(cfg.Maps.APIKey)
		if err != nil {
			log.Fatal().Err(err).Msg("maps init")
		}
		routes = rs
	}
	trackingSvc := tracking.NewService(jobStore, presence, directory, routes, log)

	consumer := ingest.NewConsumer(redisClient, jobSvc, dispatchSvc, trackingSvc, log)
	consumer.Start(ctx)

	sweeper := scheduler.New(jobStore, dispatchSvc, cfg.Dispatch.SweepInterval, log)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("sweeper start")
	}
	defer sweeper.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics endpoint up")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("metrics server")
	}
}
