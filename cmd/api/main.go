package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"studio/internal/http/handlers"
	httpapi "studio/internal/http/httpapi"
	"studio/internal/infra"
	"studio/internal/infra/geoip"
	"studio/internal/studio"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	st, err := studio.New(ctx, cfg, &logger, studio.Options{ArchiveOnComplete: true})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to assemble studio")
	}
	defer st.Close()

	// jobs left in flight by a previous run keep polling here
	if _, err := st.Tracker.Resume(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to resume jobs")
	}

	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	}
	defer resolver.Close()

	app := &handlers.App{
		Config:        cfg,
		Logger:        logger,
		Jobs:          st.Jobs,
		Artifacts:     st.Cache,
		Exporter:      st.Exporter,
		Publisher:     st.Publisher,
		Sources:       st.Sources,
		Integrations:  st.Integrations,
		Campaigns:     st.Campaigns,
		CountryLookup: resolver.Lookup(),
	}
	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("backend", cfg.BackendBaseURL).Str("store", cfg.StoreDriver).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
