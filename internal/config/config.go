package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Feed drivers.
const (
	FeedMemory = "memory"
	FeedKafka  = "kafka"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	DatabaseDSN  string
	StoreTimeout time.Duration

	// Change feed transport.
	FeedDriver        string
	KafkaBrokers      []string
	KafkaReportsTopic string
	KafkaUpdatesTopic string
	KafkaGroupID      string

	// Distinguishes this replica's consumer groups. Defaults to the hostname.
	KafkaInstanceID string

	// Mapbox geocoding configuration.
	MapboxToken     string
	MapboxEnabled   bool
	MapboxTimeout   time.Duration
	MapboxCacheSize int
	MapboxCountry   string

	// Shared secret for admin routes. Empty disables them.
	AdminToken string

	AlertBannerEnabled        bool
	AlertNotificationsEnabled bool
	AlertSoundEnabled         bool
	AlertDedupSize            int

	DashboardRefreshInterval time.Duration
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	storeTimeout, err := parseDuration("STORE_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	mapboxTimeout, err := parseDuration("MAPBOX_TIMEOUT", "5s")
	if err != nil {
		return nil, err
	}
	refresh, err := parseDuration("DASHBOARD_REFRESH_INTERVAL", "30s")
	if err != nil {
		return nil, err
	}
	mapboxCacheSize, err := parsePositiveInt("MAPBOX_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	dedupSize, err := parsePositiveInt("ALERT_DEDUP_SIZE", 1000)
	if err != nil {
		return nil, err
	}

	instanceID := os.Getenv("KAFKA_INSTANCE_ID")
	if instanceID == "" {
		// Empty on error; the feed then generates an id.
		instanceID, _ = os.Hostname()
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled, err := parseBool("MAPBOX_ENABLED", mapboxToken != "")
	if err != nil {
		return nil, err
	}
	bannerEnabled, err := parseBool("ALERT_BANNER_ENABLED", true)
	if err != nil {
		return nil, err
	}
	notificationsEnabled, err := parseBool("ALERT_NOTIFICATIONS_ENABLED", true)
	if err != nil {
		return nil, err
	}
	soundEnabled, err := parseBool("ALERT_SOUND_ENABLED", true)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DatabaseDSN:  sharedcfg.EnvOrDefault("DATABASE_DSN", "file:notizar.db"),
		StoreTimeout: storeTimeout,

		FeedDriver:        strings.ToLower(sharedcfg.EnvOrDefault("FEED_DRIVER", FeedMemory)),
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaReportsTopic: sharedcfg.EnvOrDefault("KAFKA_REPORTS_TOPIC", "report-inserts"),
		KafkaUpdatesTopic: sharedcfg.EnvOrDefault("KAFKA_UPDATES_TOPIC", "admin-update-inserts"),
		KafkaGroupID:      sharedcfg.EnvOrDefault("KAFKA_GROUP_ID", "notizar-admin"),
		KafkaInstanceID:   instanceID,

		MapboxToken:     mapboxToken,
		MapboxEnabled:   mapboxEnabled,
		MapboxTimeout:   mapboxTimeout,
		MapboxCacheSize: mapboxCacheSize,
		MapboxCountry:   sharedcfg.EnvOrDefault("MAPBOX_COUNTRY", "za"),

		AdminToken: os.Getenv("ADMIN_TOKEN"),

		AlertBannerEnabled:        bannerEnabled,
		AlertNotificationsEnabled: notificationsEnabled,
		AlertSoundEnabled:         soundEnabled,
		AlertDedupSize:            dedupSize,

		DashboardRefreshInterval: refresh,
	}

	switch cfg.FeedDriver {
	case FeedMemory:
	case FeedKafka:
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when FEED_DRIVER is kafka")
		}
		if cfg.KafkaReportsTopic == "" {
			return nil, errors.New("KAFKA_REPORTS_TOPIC is required")
		}
		if cfg.KafkaUpdatesTopic == "" {
			return nil, errors.New("KAFKA_UPDATES_TOPIC is required")
		}
	default:
		return nil, fmt.Errorf("invalid FEED_DRIVER %q: want %s or %s", cfg.FeedDriver, FeedMemory, FeedKafka)
	}
	if cfg.DatabaseDSN == "" {
		return nil, errors.New("DATABASE_DSN is required")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

func parseDuration(name, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(name, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive duration", name)
	}
	return d, nil
}

func parsePositiveInt(name string, def int) (int, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", name)
	}
	return n, nil
}

func parseBool(name string, def bool) (bool, error) {
	s := os.Getenv(name)
	if s == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid %s: must be true or false", name)
	}
	return b, nil
}
