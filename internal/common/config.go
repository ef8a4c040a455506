package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Chain       ChainConfig     `toml:"chain"`
	Worker      WorkerConfig    `toml:"worker"`
	Storage     StorageConfig   `toml:"storage"`
	Logging     LoggingConfig   `toml:"logging"`
	WebSocket   WebSocketConfig `toml:"websocket"`
	Prover      ProverConfig    `toml:"prover"`
	Browser     BrowserConfig   `toml:"browser"`
}

// BrowserConfig controls the managed Chrome instance.
type BrowserConfig struct {
	Headless  bool   `toml:"headless"`
	UserAgent string `toml:"user_agent"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// ChainConfig holds the operator-supplied chain connection settings.
// All four fields are required before the chain clients can initialize;
// they may also arrive later via the config-saved control message.
type ChainConfig struct {
	ChainID         int64  `toml:"chain_id" validate:"omitempty,gt=0"`
	RPCURL          string `toml:"rpc_url" validate:"omitempty,url"`
	ContractAddress string `toml:"contract_address" validate:"omitempty,eth_addr"`
	WorkerKey       string `toml:"worker_key" validate:"omitempty,len=66,hexadecimal|startswith=0x"`
}

// Configured reports whether all chain settings are present.
func (c *ChainConfig) Configured() bool {
	return c.RPCURL != "" && c.ContractAddress != "" && c.WorkerKey != "" && c.ChainID != 0
}

type WorkerConfig struct {
	RunnerURL    string `toml:"runner_url"`    // Well-known URL the controlled tab opens at
	PollInterval string `toml:"poll_interval"` // e.g., "10s" - registry poll cadence
	NavTimeout   string `toml:"nav_timeout"`   // e.g., "30s" - page load wait bound
	SettleDelay  string `toml:"settle_delay"`  // e.g., "1s" - post-load render settle
	JobDelay     string `toml:"job_delay"`     // e.g., "1s" - delay between auto-mode jobs
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05")
}

type WebSocketConfig struct {
	AllowedEvents    []string `toml:"allowed_events"`    // Whitelist of events to broadcast (empty = allow all)
	ProgressInterval string   `toml:"progress_interval"` // Throttle interval for progress broadcasts, e.g. "250ms"
}

type ProverConfig struct {
	Mode      string `toml:"mode" validate:"omitempty,oneof=mock notary"` // "mock" or "notary"
	NotaryURL string `toml:"notary_url"`                                  // Notary API base URL (notary mode)
	ClientID  string `toml:"client_id"`
	Secret    string `toml:"secret"`
	Timeout   string `toml:"timeout"` // e.g., "60s"
}

// DefaultConfig returns a config with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Worker: WorkerConfig{
			RunnerURL:    "http://localhost:3000/worker/runner",
			PollInterval: "10s",
			NavTimeout:   "30s",
			SettleDelay:  "1s",
			JobDelay:     "1s",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/merces",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		WebSocket: WebSocketConfig{
			ProgressInterval: "250ms",
		},
		Prover: ProverConfig{
			Mode:    "mock",
			Timeout: "60s",
		},
		Browser: BrowserConfig{
			Headless: true,
		},
	}
}

// LoadFromFiles loads configuration in layers: defaults -> files (in order,
// later files override earlier ones) -> environment -> CLI overrides applied
// by the caller.
func LoadFromFiles(paths ...string) (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnvOverrides maps MERCES_* environment variables onto the config.
// Environment has higher priority than files, lower than CLI flags.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MERCES_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("MERCES_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("MERCES_CHAIN_RPC_URL"); v != "" {
		cfg.Chain.RPCURL = v
	}
	if v := os.Getenv("MERCES_CHAIN_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}
	if v := os.Getenv("MERCES_CHAIN_CONTRACT"); v != "" {
		cfg.Chain.ContractAddress = v
	}
	if v := os.Getenv("MERCES_CHAIN_WORKER_KEY"); v != "" {
		cfg.Chain.WorkerKey = v
	}
	if v := os.Getenv("MERCES_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MERCES_STORAGE_PATH"); v != "" {
		cfg.Storage.Badger.Path = v
	}
	if v := os.Getenv("MERCES_PROVER_MODE"); v != "" {
		cfg.Prover.Mode = v
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(cfg *Config, port int, host string) {
	if port != 0 {
		cfg.Server.Port = port
	}
	if host != "" {
		cfg.Server.Host = host
	}
}

// Validate checks structural constraints on the loaded configuration.
func Validate(cfg *Config) error {
	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// ParseDurationOr parses a duration string, falling back to def on error or
// empty input. Config durations are strings so operators can write "10s".
func ParseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
