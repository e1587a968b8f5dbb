package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"sbtlend/crypto"
	"sbtlend/observability/logging"
)

const (
	defaultListen  = ":8480"
	StorageMemory  = "memory"
	StorageLevelDB = "leveldb"
	StorageBolt    = "bolt"
)

// Config captures the runtime settings for the lending service daemon.
type Config struct {
	ListenAddress  string          `yaml:"listen"`
	MaxConnections int             `yaml:"max_connections"`
	TLS            TLSConfig       `yaml:"tls"`
	Auth           AuthConfig      `yaml:"auth"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Storage        StorageConfig   `yaml:"storage"`
	Journal        JournalConfig   `yaml:"journal"`
	Logging        LoggingConfig   `yaml:"logging"`
	ParamsFile     string          `yaml:"params_file"`
	Admin          string          `yaml:"admin"`
	Pauses         []string        `yaml:"pauses"`
	Genesis        []GenesisEntry  `yaml:"genesis"`
	StreamOrigins  []string        `yaml:"stream_origins"`
}

// TLSConfig describes the TLS material for the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token verification. The secret may be given
// inline or through the environment variable named by HMACSecretEnv.
type AuthConfig struct {
	HMACSecret    string        `yaml:"hmac_secret"`
	HMACSecretEnv string        `yaml:"hmac_secret_env"`
	Issuer        string        `yaml:"issuer"`
	Audience      string        `yaml:"audience"`
	ClockSkew     time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds per-client request rates. Zero disables throttling.
// Forwarding headers are only read from peers listed in TrustedProxies.
type RateLimitConfig struct {
	RequestsPerMinute float64  `yaml:"requests_per_minute"`
	Burst             int      `yaml:"burst"`
	TrustedProxies    []string `yaml:"trusted_proxies"`
}

// StorageConfig selects the state backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// JournalConfig selects the event journal backend. An empty driver disables
// the journal.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LoggingConfig controls log level and the optional rotating file sink.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// GenesisEntry seeds a base asset balance on first start.
type GenesisEntry struct {
	Address string `yaml:"address"`
	Amount  uint64 `yaml:"amount"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{
		ListenAddress: defaultListen,
	}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LogValue summarises the configuration for startup logs. Secrets and the
// journal DSN are masked.
func (cfg Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("listen", cfg.ListenAddress),
		slog.Bool("tls", cfg.TLS.Enabled()),
		slog.Int("max_connections", cfg.MaxConnections),
		logging.MaskField("hmac_secret", cfg.Auth.HMACSecret),
		slog.String("issuer", cfg.Auth.Issuer),
		slog.String("audience", cfg.Auth.Audience),
		slog.Float64("requests_per_minute", cfg.RateLimit.RequestsPerMinute),
		slog.Int("trusted_proxies", len(cfg.RateLimit.TrustedProxies)),
		slog.String("storage", cfg.Storage.Backend),
		slog.String("journal", cfg.Journal.Driver),
		logging.MaskField("journal_dsn", cfg.Journal.DSN),
		slog.String("admin", cfg.Admin),
		slog.Int("genesis_accounts", len(cfg.Genesis)),
	)
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.ParamsFile = strings.TrimSpace(cfg.ParamsFile)
	cfg.Admin = strings.TrimSpace(cfg.Admin)
	cfg.Pauses = trimAll(cfg.Pauses)
	cfg.StreamOrigins = trimAll(cfg.StreamOrigins)
	cfg.RateLimit.TrustedProxies = trimAll(cfg.RateLimit.TrustedProxies)
	for i := range cfg.Genesis {
		cfg.Genesis[i].Address = strings.TrimSpace(cfg.Genesis[i].Address)
	}
	cfg.TLS.normalize()
	cfg.Auth.normalize()
	cfg.Storage.normalize()
	cfg.Journal.Driver = strings.ToLower(strings.TrimSpace(cfg.Journal.Driver))
	cfg.Journal.DSN = strings.TrimSpace(cfg.Journal.DSN)
	cfg.Logging.Level = strings.TrimSpace(cfg.Logging.Level)
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.TLS.validate(); err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := cfg.Storage.validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if cfg.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative")
	}
	if cfg.RateLimit.RequestsPerMinute < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit: values must not be negative")
	}
	for _, proxy := range cfg.RateLimit.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			return fmt.Errorf("rate_limit: trusted proxy %q is not an IP address", proxy)
		}
	}
	switch cfg.Journal.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("journal: unsupported driver %q", cfg.Journal.Driver)
	}
	if cfg.Journal.Driver == "postgres" && cfg.Journal.DSN == "" {
		return fmt.Errorf("journal: postgres requires a dsn")
	}
	if cfg.Admin != "" {
		if _, err := crypto.DecodeAddress(cfg.Admin); err != nil {
			return fmt.Errorf("admin: %w", err)
		}
	}
	for i, entry := range cfg.Genesis {
		if _, err := crypto.DecodeAddress(entry.Address); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	return nil
}

func (cfg *TLSConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.CertPath = strings.TrimSpace(cfg.CertPath)
	cfg.KeyPath = strings.TrimSpace(cfg.KeyPath)
}

func (cfg TLSConfig) validate() error {
	hasCert := cfg.CertPath != ""
	hasKey := cfg.KeyPath != ""
	if hasCert != hasKey {
		return fmt.Errorf("cert and key must either both be provided or both be empty")
	}
	if !cfg.AllowInsecure && !hasCert {
		return fmt.Errorf("cert and key are required unless allow_insecure=true")
	}
	return nil
}

// Enabled reports whether TLS material is configured.
func (cfg TLSConfig) Enabled() bool {
	return cfg.CertPath != "" && cfg.KeyPath != ""
}

func (cfg *AuthConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.HMACSecretEnv = strings.TrimSpace(cfg.HMACSecretEnv)
	if strings.TrimSpace(cfg.HMACSecret) == "" && cfg.HMACSecretEnv != "" {
		cfg.HMACSecret = os.Getenv(cfg.HMACSecretEnv)
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
}

func (cfg AuthConfig) validate() error {
	if cfg.HMACSecret == "" {
		return fmt.Errorf("hmac_secret or hmac_secret_env must be configured")
	}
	if len(cfg.HMACSecret) < 16 {
		return fmt.Errorf("hmac secret must be at least 16 bytes")
	}
	return nil
}

func (cfg *StorageConfig) normalize() {
	if cfg == nil {
		return
	}
	cfg.Backend = strings.ToLower(strings.TrimSpace(cfg.Backend))
	if cfg.Backend == "" {
		cfg.Backend = StorageMemory
	}
	cfg.Path = strings.TrimSpace(cfg.Path)
}

func (cfg StorageConfig) validate() error {
	switch cfg.Backend {
	case StorageMemory:
		return nil
	case StorageLevelDB, StorageBolt:
		if cfg.Path == "" {
			return fmt.Errorf("%s backend requires a path", cfg.Backend)
		}
		return nil
	default:
		return fmt.Errorf("unsupported backend %q", cfg.Backend)
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
