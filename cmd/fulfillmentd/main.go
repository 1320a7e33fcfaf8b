package main

import (
	"flag"
	"log/slog"
	"net/http"
	"os"

	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"
	"github.com/offerstack/fulfillment/internal/config"
	"github.com/offerstack/fulfillment/internal/infrastructure/db"
	"github.com/offerstack/fulfillment/internal/infrastructure/persistence"
	"github.com/offerstack/fulfillment/internal/interface/api"
	"github.com/offerstack/fulfillment/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: logLevel(cfg.Log.Level)}))
	slog.SetDefault(logger)

	database, err := db.Open(cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	clock := clockwork.NewRealClock()
	catalog := persistence.NewCatalogRepository(database)
	subsRepo := persistence.NewSubscriptionRepository(database)
	usageRepo := persistence.NewMeterUsageRepository(database)
	ipRepo := persistence.NewIPRepository(database)
	armParams := persistence.NewArmTemplateParameterRepository(database)
	hookParams := persistence.NewWebhookParameterRepository(database)

	lifecycle := usecase.NewSubscriptionLifecycle(subsRepo, catalog, clock, logger)
	configs := usecase.NewIPConfigService(ipRepo, catalog, logger)
	tracker := usecase.NewMeterUsageTracker(usageRepo, catalog, clock, logger)
	templates := usecase.NewTemplateService(
		usecase.NewTemplateReconciler(armParams, catalog, logger),
		usecase.NewTemplateReconciler(hookParams, catalog, logger),
		catalog, logger)

	mux := api.NewRouter(
		api.NewSubscriptionHandler(lifecycle, logger),
		api.NewIPConfigHandler(configs, logger),
		api.NewMeterUsageHandler(tracker, logger),
		api.NewTemplateHandler(templates, logger),
	)

	logger.Info("starting server", "listen", cfg.Server.Listen)
	if err := http.ListenAndServe(cfg.Server.Listen, mux); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
