package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/topoagent/internal/domain"
)

// Config holds the topoagent configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int    `yaml:"port"`
	APIPrefix       string `yaml:"api_prefix"`
	ReadTimeoutSec  int    `yaml:"read_timeout_sec"`
	WriteTimeoutSec int    `yaml:"write_timeout_sec"`
	ShutdownSec     int    `yaml:"shutdown_timeout_sec"`
	// CORSAllowOrigins enables CORS for the listed browser origins; "*" allows any.
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverValkey   = "valkey"
	DriverRedis    = "redis"
)

// DatabaseConfig holds comment store connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // postgres (default), valkey, redis
	DSN              string   `yaml:"dsn"`    // postgres only
	Addrs            []string `yaml:"addrs"`  // valkey/redis only
	Password         string   `yaml:"password"`
	Table            string   `yaml:"table"`  // postgres table with comment embeddings
	Index            string   `yaml:"index"`  // valkey/redis FT index
	Metric           string   `yaml:"metric"` // cosine, l2
	EFSearch         int      `yaml:"ef_search"`
	MaxOpenConns     int      `yaml:"max_open_conns"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Embedding provider kinds.
const (
	KindCompat = "compat"
	KindOpenAI = "openai"
)

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Kind             string        `yaml:"kind"`     // compat (default), openai
	Provider         string        `yaml:"provider"` // metrics label, e.g. ollama
	BaseURL          string        `yaml:"base_url"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	Dimensions       int           `yaml:"dimensions"`
	QueryInstruction string        `yaml:"query_instruction"`
	TimeoutSec       int           `yaml:"timeout_sec"`
	Breaker          BreakerConfig `yaml:"breaker"`
	Cache            CacheConfig   `yaml:"cache"`
}

// BreakerConfig holds circuit breaker settings for the provider.
type BreakerConfig struct {
	Enabled        bool `yaml:"enabled"`
	MaxFailures    int  `yaml:"max_failures"`
	OpenTimeoutSec int  `yaml:"open_timeout_sec"`
}

// CacheConfig holds the query embedding cache settings.
// The cache lives in Valkey/Redis; Addrs defaults to database.addrs.
type CacheConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Addrs    []string `yaml:"addrs"`
	Password string   `yaml:"password"`
	TTLSec   int      `yaml:"ttl_sec"` // 0 = no expiry
}

// Failure actions for retrieval.on_store_error.
const (
	ActionPropagate = "propagate"
	ActionDegrade   = "degrade"
)

// RetrievalConfig holds retrieval node settings.
type RetrievalConfig struct {
	TopK         int    `yaml:"top_k"`
	OnStoreError string `yaml:"on_store_error"` // propagate (default), degrade
}

// Load reads configuration from a YAML file by environment name (local, docker, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML, applies defaults and validates.
func Parse(data []byte) (Config, error) {
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

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.APIPrefix == "" {
		c.HTTP.APIPrefix = "/api/v1"
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}

	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	if c.Database.Table == "" {
		c.Database.Table = "comment_embeddings"
	}
	if c.Database.Index == "" {
		c.Database.Index = "topo:comments:idx"
	}
	vec := domain.DefaultVectorConfig()
	if c.Database.Metric == "" {
		c.Database.Metric = vec.DistanceMetric
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Embedding.Kind == "" {
		c.Embedding.Kind = KindCompat
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "ollama"
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = vec.APIBase
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = vec.Model
	}
	if c.Embedding.Dimensions == 0 {
		c.Embedding.Dimensions = vec.Dimensions
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.Breaker.MaxFailures <= 0 {
		c.Embedding.Breaker.MaxFailures = 5
	}
	if c.Embedding.Breaker.OpenTimeoutSec <= 0 {
		c.Embedding.Breaker.OpenTimeoutSec = 30
	}
	if len(c.Embedding.Cache.Addrs) == 0 && c.Database.Driver != DriverPostgres {
		c.Embedding.Cache.Addrs = c.Database.Addrs
		if c.Embedding.Cache.Password == "" {
			c.Embedding.Cache.Password = c.Database.Password
		}
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = 5
	}
	if c.Retrieval.OnStoreError == "" {
		c.Retrieval.OnStoreError = ActionPropagate
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.HTTP.APIPrefix, "/") {
		return fmt.Errorf("http.api_prefix must start with \"/\", got %q", c.HTTP.APIPrefix)
	}

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %q", c.Database.Driver)
		}
	case DriverValkey, DriverRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver must be \"postgres\", \"valkey\" or \"redis\", got %q", c.Database.Driver)
	}
	switch c.Database.Metric {
	case domain.MetricCosine, domain.MetricL2:
	default:
		return fmt.Errorf("database.metric must be \"cosine\" or \"l2\", got %q", c.Database.Metric)
	}

	switch c.Embedding.Kind {
	case KindCompat, KindOpenAI:
	default:
		return fmt.Errorf("embedding.kind must be \"compat\" or \"openai\", got %q", c.Embedding.Kind)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Cache.Enabled && len(c.Embedding.Cache.Addrs) == 0 {
		return fmt.Errorf("embedding.cache.addrs is required when the cache is enabled")
	}

	switch c.Retrieval.OnStoreError {
	case ActionPropagate, ActionDegrade:
	default:
		return fmt.Errorf(
			"retrieval.on_store_error must be \"propagate\" or \"degrade\", got %q",
			c.Retrieval.OnStoreError,
		)
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
