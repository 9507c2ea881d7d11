package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/hydro-feed-service/internal/domain"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Upstream fetch settings.
	USGSBaseURL  string
	CDECRelayURL string
	FetchTimeout time.Duration

	// Refresh scheduling. The default window covers the last DefaultLookbackDays days.
	RefreshInterval     time.Duration
	RefreshConcurrency  int
	DefaultLookbackDays int

	SitesFile string
	Sites     []domain.SiteProfile

	// Optional snapshot sink.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSnapshotTopic string
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	fetchTimeout, err := parsePositiveDuration("FETCH_TIMEOUT", "15s")
	if err != nil {
		return nil, err
	}

	refreshInterval, err := parsePositiveDuration("REFRESH_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	lookback, err := parsePositiveInt("DEFAULT_LOOKBACK_DAYS", 365)
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("REFRESH_CONCURRENCY", 4)
	if err != nil {
		return nil, err
	}

	sitesFile := strings.TrimSpace(os.Getenv("SITES_FILE"))
	sites := DefaultSites()
	if sitesFile != "" {
		sites, err = LoadSites(sitesFile)
		if err != nil {
			return nil, err
		}
	}
	if err := validateSites(sites); err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		USGSBaseURL:  sharedcfg.EnvOrDefault("USGS_BASE_URL", "https://api.waterdata.usgs.gov/ogcapi/v0/collections/daily/items"),
		CDECRelayURL: strings.TrimRight(sharedcfg.EnvOrDefault("CDEC_RELAY_URL", "https://cdec-proxy.vercel.app"), "/"),
		FetchTimeout: fetchTimeout,

		RefreshInterval:     refreshInterval,
		RefreshConcurrency:  concurrency,
		DefaultLookbackDays: lookback,

		SitesFile: sitesFile,
		Sites:     sites,

		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "hydro-feed-snapshots"),
	}

	if cfg.USGSBaseURL == "" {
		return nil, errors.New("USGS_BASE_URL is required")
	}
	if cfg.CDECRelayURL == "" {
		return nil, errors.New("CDEC_RELAY_URL is required")
	}
	if cfg.KafkaEnabled && len(cfg.KafkaBrokers) == 0 {
		return nil, errors.New("KAFKA_ENABLED is true but KAFKA_BROKERS is empty")
	}
	if cfg.KafkaEnabled && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required")
	}

	return cfg, nil
}

// Site returns the profile for a feed key.
func (c *Config) Site(key string) (domain.SiteProfile, bool) {
	for _, s := range c.Sites {
		if s.Key == key {
			return s, true
		}
	}
	return domain.SiteProfile{}, false
}

func parsePositiveDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
