package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted by the store selector.
const (
	BackendMemory   = "memory"
	BackendLevelDB  = "leveldb"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config captures the runtime settings for the indexer daemon.
type Config struct {
	Service       string        `yaml:"service"`
	Environment   string        `yaml:"environment"`
	LogLevel      string        `yaml:"log_level"`
	ListenAddress string        `yaml:"listen"`
	Backend       string        `yaml:"backend"`
	DSN           string        `yaml:"dsn"`
	ReplayFile    string        `yaml:"replay_file"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	BatchSize     int           `yaml:"batch_size"`
}

// Load reads the YAML configuration from disk, applying defaults before
// validation.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	return normalize(cfg)
}

func defaults() Config {
	return Config{
		Service:       "socialindexd",
		LogLevel:      "info",
		ListenAddress: ":8480",
		Backend:       BackendSQLite,
		PollInterval:  5 * time.Second,
		BatchSize:     100,
	}
}

func normalize(cfg Config) (Config, error) {
	if cfg.Service == "" {
		cfg.Service = "socialindexd"
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8480"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch cfg.Backend {
	case BackendMemory:
	case BackendLevelDB, BackendSQLite, BackendPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return cfg, fmt.Errorf("dsn is required for backend %q", cfg.Backend)
		}
	default:
		return cfg, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if strings.TrimSpace(cfg.ReplayFile) == "" {
		return cfg, fmt.Errorf("replay_file is required")
	}
	return cfg, nil
}
