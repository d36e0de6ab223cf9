package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	httpadapter "github.com/SneHope/TVH-NotiZAR/internal/adapter/http"
	kafkaadapter "github.com/SneHope/TVH-NotiZAR/internal/adapter/kafka"
	"github.com/SneHope/TVH-NotiZAR/internal/adapter/mapbox"
	"github.com/SneHope/TVH-NotiZAR/internal/adapter/sqlite"
	"github.com/SneHope/TVH-NotiZAR/internal/adapter/websocket"
	"github.com/SneHope/TVH-NotiZAR/internal/alert"
	"github.com/SneHope/TVH-NotiZAR/internal/config"
	"github.com/SneHope/TVH-NotiZAR/internal/dashboard"
	"github.com/SneHope/TVH-NotiZAR/internal/domain"
	"github.com/SneHope/TVH-NotiZAR/internal/feed"
	"github.com/SneHope/TVH-NotiZAR/internal/observability"
	"github.com/SneHope/TVH-NotiZAR/internal/report"
)

func main() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("failed to read .env", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.Open(ctx, cfg.DatabaseDSN, logger)
	if err != nil {
		logger.Error("failed to open store", "dsn", cfg.DatabaseDSN, "error", err)
		os.Exit(1)
	}

	reports, updates, closeFeeds := newFeeds(cfg, logger)

	opts := []report.Option{report.WithStoreTimeout(cfg.StoreTimeout)}

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxCountry, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		opts = append(opts, report.WithGeocoder(geocoder))
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	svc := report.NewService(store, reports, updates, logger, metrics, opts...)

	hub := websocket.NewHub(logger, metrics)
	dispatcher := alert.NewDispatcher([]alert.Sink{
		alert.NewBannerSink(hub),
		alert.NewNotificationSink(hub),
		alert.NewSoundSink(hub),
	}, cfg.AlertDedupSize, logger, metrics)
	for name, enabled := range map[string]bool{
		alert.SinkBanner:       cfg.AlertBannerEnabled,
		alert.SinkNotification: cfg.AlertNotificationsEnabled,
		alert.SinkSound:        cfg.AlertSoundEnabled,
	} {
		if err := dispatcher.SetEnabled(name, enabled); err != nil {
			logger.Error("failed to configure alert sink", "sink", name, "error", err)
			os.Exit(1)
		}
	}
	alerter := alert.NewAlerter(svc, dispatcher, logger, metrics)

	presenter := dashboard.NewPresenter(svc, clockwork.NewRealClock(), logger)
	dashboardSub, err := svc.SubscribeToInserts(presenter.Apply)
	if err != nil {
		logger.Error("failed to subscribe dashboard", "error", err)
		os.Exit(1)
	}
	updatesSub, err := svc.SubscribeToAdminUpdates(hub.PublishUpdate)
	if err != nil {
		logger.Error("failed to subscribe admin updates", "error", err)
		os.Exit(1)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Reports:    svc,
		Dashboard:  presenter,
		Ready:      alerter,
		Geocoder:   geocoder,
		AdminHub:   hub,
		AdminToken: cfg.AdminToken,
	}, logger)
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN not set, admin routes are disabled")
	}

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	var wg sync.WaitGroup

	// Start alerting.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := alerter.Run(ctx); err != nil {
			logger.Error("alerter error", "error", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := presenter.Run(ctx, cfg.DashboardRefreshInterval); err != nil {
			logger.Error("dashboard error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	// Let in-flight alerts and refreshes finish before their dependencies close.
	wg.Wait()
	dashboardSub.Cancel()
	updatesSub.Cancel()
	hub.Close()
	if err := closeFeeds(); err != nil {
		logger.Error("feed close error", "error", err)
	}
	if err := store.Close(); err != nil {
		logger.Error("store close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newFeeds builds the report and admin update feeds for the configured driver.
func newFeeds(cfg *config.Config, logger *slog.Logger) (domain.Feed[domain.Report], domain.Feed[domain.AdminUpdate], func() error) {
	if cfg.FeedDriver == config.FeedKafka {
		reports := kafkaadapter.NewReportFeed(cfg, logger)
		updates := kafkaadapter.NewAdminUpdateFeed(cfg, logger)
		logger.Info("kafka change feed", "brokers", cfg.KafkaBrokers, "reports_topic", cfg.KafkaReportsTopic, "updates_topic", cfg.KafkaUpdatesTopic)
		return reports, updates, func() error {
			return errors.Join(reports.Close(), updates.Close())
		}
	}

	reports := feed.NewHub[domain.Report]()
	updates := feed.NewHub[domain.AdminUpdate]()
	logger.Info("in-process change feed")
	return reports, updates, func() error {
		reports.Close()
		updates.Close()
		return nil
	}
}
