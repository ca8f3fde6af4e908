package config

import (
	"fmt"
	"time"

	"github.com/kalambet/offerjourney/internal/source"
)

// DefaultCustomer is the loan ID the dashboard opens with.
const DefaultCustomer = 3655615

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Source    SourceConfig
	Dashboard DashboardConfig
	Cache     CacheConfig
	Log       LogConfig
	Worker    WorkerConfig
}

type ServerConfig struct {
	Port int
	// Token guards the import endpoints. Empty rejects every request.
	Token string
}

type StorageConfig struct {
	DataDir string
}

type SourceConfig struct {
	Kind        string
	ParquetPath string
	MySQLDSN    string
	MySQLTable  string
}

type DashboardConfig struct {
	DefaultCustomer int
}

type CacheConfig struct {
	TTL string
}

type LogConfig struct {
	Level string
}

type WorkerConfig struct {
	PollInterval string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4100,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Source: SourceConfig{
			Kind:        source.KindParquet,
			ParquetPath: "data/synthetic_fsi/synthetic_demo_data.parquet",
		},
		Dashboard: DashboardConfig{
			DefaultCustomer: DefaultCustomer,
		},
		Cache: CacheConfig{
			TTL: "0s",
		},
		Log: LogConfig{
			Level: "info",
		},
		Worker: WorkerConfig{
			PollInterval: "2s",
		},
	}
}

// Load reads configuration from the JSON config file at
// $XDG_CONFIG_HOME/offerjourney/config.json, then applies OFFERJOURNEY_*
// environment variables on top. Secrets are only read from the environment.
func Load() (Config, error) {
	return loadWith(openConfigFile(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if _, err := time.ParseDuration(c.Cache.TTL); err != nil {
		return fmt.Errorf("cache.ttl: %w", err)
	}
	d, err := time.ParseDuration(c.Worker.PollInterval)
	if err != nil {
		return fmt.Errorf("worker.poll_interval: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("worker.poll_interval must be positive")
	}
	if c.Source.Kind != source.KindParquet && c.Source.Kind != source.KindMySQL {
		return fmt.Errorf("source.kind %q: %w", c.Source.Kind, source.ErrUnknownKind)
	}
	return nil
}

// CacheTTL is the parsed cache.ttl. Zero keeps the table until the next import.
func (c Config) CacheTTL() time.Duration {
	d, _ := time.ParseDuration(c.Cache.TTL)
	return d
}

// PollInterval is the parsed worker.poll_interval.
func (c Config) PollInterval() time.Duration {
	d, _ := time.ParseDuration(c.Worker.PollInterval)
	return d
}

// SourceSpec returns the configured source of the given kind, or of
// source.kind when kind is empty.
func (c Config) SourceSpec(kind string) source.Spec {
	if kind == "" {
		kind = c.Source.Kind
	}
	switch kind {
	case source.KindMySQL:
		return source.Spec{Kind: kind, DSN: c.Source.MySQLDSN, Table: c.Source.MySQLTable}
	case source.KindParquet:
		return source.Spec{Kind: kind, Path: c.Source.ParquetPath}
	default:
		return source.Spec{Kind: kind}
	}
}

// SourceDefaults maps each source kind to its configured spec.
func (c Config) SourceDefaults() map[string]source.Spec {
	return map[string]source.Spec{
		source.KindParquet: c.SourceSpec(source.KindParquet),
		source.KindMySQL:   c.SourceSpec(source.KindMySQL),
	}
}
