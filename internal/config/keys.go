package config

import (
	"fmt"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "OFFERJOURNEY_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.token", typ: kString, env: "OFFERJOURNEY_SERVER_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Server.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.Token },
	},
	{
		key: "storage.data_dir", typ: kString, env: "OFFERJOURNEY_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "source.kind", typ: kString, env: "OFFERJOURNEY_SOURCE_KIND",
		apply:   func(cfg *Config, v any) { cfg.Source.Kind = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.Kind },
	},
	{
		key: "source.parquet_path", typ: kString, env: "OFFERJOURNEY_SOURCE_PARQUET_PATH",
		apply:   func(cfg *Config, v any) { cfg.Source.ParquetPath = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.ParquetPath },
	},
	{
		key: "source.mysql_dsn", typ: kString, env: "OFFERJOURNEY_SOURCE_MYSQL_DSN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Source.MySQLDSN = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.MySQLDSN },
	},
	{
		key: "source.mysql_table", typ: kString, env: "OFFERJOURNEY_SOURCE_MYSQL_TABLE",
		apply:   func(cfg *Config, v any) { cfg.Source.MySQLTable = v.(string) },
		extract: func(cfg Config) any { return cfg.Source.MySQLTable },
	},
	{
		key: "dashboard.default_customer", typ: kInt, env: "OFFERJOURNEY_DASHBOARD_DEFAULT_CUSTOMER",
		apply:   func(cfg *Config, v any) { cfg.Dashboard.DefaultCustomer = v.(int) },
		extract: func(cfg Config) any { return cfg.Dashboard.DefaultCustomer },
	},
	{
		key: "cache.ttl", typ: kString, env: "OFFERJOURNEY_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "log.level", typ: kString, env: "OFFERJOURNEY_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "worker.poll_interval", typ: kString, env: "OFFERJOURNEY_WORKER_POLL_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Worker.PollInterval = v.(string) },
		extract: func(cfg Config) any { return cfg.Worker.PollInterval },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
