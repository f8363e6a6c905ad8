package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds tool settings, populated from environment variables. CLI flags
// override individual fields after Load.
type Config struct {
	LogLevel  string
	LogFormat string

	OutputDir     string
	DataSheet     string
	StationSheet  string
	InputSheet    string
	HeaderRow     int
	FirstDataRow  int
	BatchWorkers  int
	AliasFile     string
	MetricsFile   string
	ResolverCache int

	// Report sink; disabled when ReportBrokers is empty.
	ReportBrokers []string
	ReportTopic   string
}

// Load reads an optional .env file, then environment variables, applying
// defaults where unset.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	headerRow, err := positiveInt("HYDRO_HEADER_ROW", 3)
	if err != nil {
		return nil, err
	}
	firstDataRow, err := positiveInt("HYDRO_DATA_START_ROW", 4)
	if err != nil {
		return nil, err
	}
	workers, err := positiveInt("HYDRO_BATCH_WORKERS", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := positiveInt("HYDRO_RESOLVER_CACHE_SIZE", 1024)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:      sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:     sharedcfg.EnvOrDefault("LOG_FORMAT", "text"),
		OutputDir:     sharedcfg.EnvOrDefault("HYDRO_OUTDIR", "outputs/runs"),
		DataSheet:     sharedcfg.EnvOrDefault("HYDRO_SHEET_DATA", "Données"),
		StationSheet:  sharedcfg.EnvOrDefault("HYDRO_SHEET_STATIONS", "Stations"),
		InputSheet:    sharedcfg.EnvOrDefault("HYDRO_INPUT_SHEET", "DataTable"),
		HeaderRow:     headerRow,
		FirstDataRow:  firstDataRow,
		BatchWorkers:  workers,
		AliasFile:     os.Getenv("HYDRO_ALIAS_FILE"),
		MetricsFile:   os.Getenv("HYDRO_METRICS_FILE"),
		ResolverCache: cacheSize,
		ReportTopic:   sharedcfg.EnvOrDefault("REPORT_KAFKA_TOPIC", "hydro-run-reports"),
	}
	if brokers := os.Getenv("REPORT_KAFKA_BROKERS"); brokers != "" {
		cfg.ReportBrokers = sharedcfg.ParseBrokers(brokers)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints. It is called again after flag overrides.
func (c *Config) Validate() error {
	if c.FirstDataRow <= c.HeaderRow {
		return fmt.Errorf("HYDRO_DATA_START_ROW (%d) must be greater than HYDRO_HEADER_ROW (%d)", c.FirstDataRow, c.HeaderRow)
	}
	if c.DataSheet == "" {
		return errors.New("HYDRO_SHEET_DATA is required")
	}
	if c.StationSheet == "" {
		return errors.New("HYDRO_SHEET_STATIONS is required")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q", c.LogFormat)
	}
	if len(c.ReportBrokers) > 0 && c.ReportTopic == "" {
		return errors.New("REPORT_KAFKA_TOPIC is required when REPORT_KAFKA_BROKERS is set")
	}
	return nil
}

// ReportSinkEnabled reports whether finalized reports are published to Kafka.
func (c *Config) ReportSinkEnabled() bool {
	return len(c.ReportBrokers) > 0
}

func positiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, s)
	}
	return n, nil
}
