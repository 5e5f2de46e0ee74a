// Package config loads the retrio service configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the retrio API configuration.
type Config struct {
	HTTP         HTTPConfig         `yaml:"http"`
	Auth         AuthConfig         `yaml:"auth"`
	Search       SearchConfig       `yaml:"search"`
	Backends     BackendsConfig     `yaml:"backends"`
	Verification VerificationConfig `yaml:"verification"`
	Cache        CacheConfig        `yaml:"cache"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// SearchConfig holds dispatch and fan-out settings.
type SearchConfig struct {
	TopK int `yaml:"top_k"` // candidates requested per backend
	// MaxWaitMS is the default caller wait; the effective global deadline is
	// min(caller wait, HardCeilingMS) regardless of per-backend timeouts.
	MaxWaitMS     int `yaml:"max_wait_ms"`
	HardCeilingMS int `yaml:"hard_ceiling_ms"`
	WorkerPool    int `yaml:"worker_pool"` // dispatcher goroutine pool size
}

// BackendsConfig holds per-backend connection settings.
type BackendsConfig struct {
	Vector  VectorConfig  `yaml:"vector"`
	Keyword KeywordConfig `yaml:"keyword"`
	Graph   GraphConfig   `yaml:"graph"`
}

// VectorConfig holds the Redis vector store settings.
type VectorConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Addrs     []string        `yaml:"addrs"`
	Password  string          `yaml:"password"`
	Index     string          `yaml:"index"`
	KeyPrefix string          `yaml:"key_prefix"`
	TimeoutMS int             `yaml:"timeout_ms"`
	Embedding EmbeddingConfig `yaml:"embedding"`
}

// EmbeddingConfig holds the query embedding provider settings.
type EmbeddingConfig struct {
	APIKey     string `yaml:"api_key"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
}

// KeywordConfig holds the full-text index settings.
type KeywordConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"` // empty = in-memory index
	TimeoutMS int    `yaml:"timeout_ms"`
}

// GraphConfig holds the knowledge graph store settings.
type GraphConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"` // empty = in-memory store
	MaxDepth  int    `yaml:"max_depth"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

// VerificationConfig holds backend probe settings.
type VerificationConfig struct {
	IntervalSec     int           `yaml:"interval_sec"`
	LatencyBudgetMS int           `yaml:"latency_budget_ms"`
	TimeoutMS       int           `yaml:"timeout_ms"`
	Probes          []ProbeConfig `yaml:"probes"`
}

// ProbeConfig is one canned verification query.
type ProbeConfig struct {
	Backend         string `yaml:"backend"`
	Query           string `yaml:"query"`
	MinResults      int    `yaml:"min_results"`
	ExpectContentID string `yaml:"expect_content_id"`
}

// CacheConfig holds the optional query result cache settings.
type CacheConfig struct {
	Enabled  bool  `yaml:"enabled"`
	TTLSec   int   `yaml:"ttl_sec"`
	MaxCost  int64 `yaml:"max_cost_bytes"`
	Counters int64 `yaml:"counters"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 15
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Search.TopK <= 0 {
		c.Search.TopK = 50
	}
	if c.Search.MaxWaitMS <= 0 {
		c.Search.MaxWaitMS = 3000
	}
	if c.Search.HardCeilingMS <= 0 {
		c.Search.HardCeilingMS = 10000
	}
	if c.Search.WorkerPool <= 0 {
		c.Search.WorkerPool = 16
	}
	if c.Backends.Vector.TimeoutMS <= 0 {
		c.Backends.Vector.TimeoutMS = 2000
	}
	if c.Backends.Vector.Index == "" {
		c.Backends.Vector.Index = "retrio:content:idx"
	}
	if c.Backends.Vector.KeyPrefix == "" {
		c.Backends.Vector.KeyPrefix = "retrio:content:"
	}
	if c.Backends.Keyword.TimeoutMS <= 0 {
		c.Backends.Keyword.TimeoutMS = 1500
	}
	if c.Backends.Graph.TimeoutMS <= 0 {
		c.Backends.Graph.TimeoutMS = 1500
	}
	if c.Backends.Graph.MaxDepth <= 0 {
		c.Backends.Graph.MaxDepth = 2
	}
	if c.Verification.IntervalSec <= 0 {
		c.Verification.IntervalSec = 30
	}
	if c.Verification.LatencyBudgetMS <= 0 {
		c.Verification.LatencyBudgetMS = 1000
	}
	if c.Verification.TimeoutMS <= 0 {
		c.Verification.TimeoutMS = 5000
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 60
	}
	if c.Cache.MaxCost <= 0 {
		c.Cache.MaxCost = 64 << 20
	}
	if c.Cache.Counters <= 0 {
		c.Cache.Counters = 100_000
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !c.Backends.Vector.Enabled && !c.Backends.Keyword.Enabled && !c.Backends.Graph.Enabled {
		return fmt.Errorf("at least one backend must be enabled")
	}
	if c.Backends.Vector.Enabled {
		if len(c.Backends.Vector.Addrs) == 0 {
			return fmt.Errorf("backends.vector.addrs is required when the vector backend is enabled")
		}
		if c.Backends.Vector.Embedding.Model == "" {
			return fmt.Errorf("backends.vector.embedding.model is required when the vector backend is enabled")
		}
	}
	if c.Search.MaxWaitMS > c.Search.HardCeilingMS {
		return fmt.Errorf(
			"search.max_wait_ms (%d) must not exceed search.hard_ceiling_ms (%d)",
			c.Search.MaxWaitMS, c.Search.HardCeilingMS,
		)
	}
	for i, p := range c.Verification.Probes {
		if p.Backend == "" {
			return fmt.Errorf("verification.probes[%d].backend is required", i)
		}
		if p.Query == "" {
			return fmt.Errorf("verification.probes[%d].query is required", i)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
