package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/mailrag/internal/domain"
)

// Config holds the mailrag configuration.
type Config struct {
	Logging    LoggingConfig    `yaml:"logging"`
	HTTP       HTTPConfig       `yaml:"http"`
	Auth       AuthConfig       `yaml:"auth"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Generation GenerationConfig `yaml:"generation"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Emails     EmailsConfig     `yaml:"emails"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// HTTPConfig holds ops listener settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// AuthConfig holds admin route authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// DatabaseConfig holds redis/valkey connection settings. Used by the redis
// storage driver, the redis embedding cache and budget persistence.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// Storage drivers for the vector snapshot.
const (
	DriverFile   = "file"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
	DriverMinio  = "minio"
	DriverMemory = "memory"
)

// StorageConfig selects where the vector snapshot is persisted.
type StorageConfig struct {
	Driver      string      `yaml:"driver"`      // file (default), redis, valkey, minio, memory
	Path        string      `yaml:"path"`        // file driver
	Key         string      `yaml:"key"`         // redis/valkey key or minio object name
	Compression string      `yaml:"compression"` // none (default), zstd
	Minio       MinioConfig `yaml:"minio"`
}

// MinioConfig holds S3-compatible object storage settings.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

// Embedding providers.
const (
	ProviderOpenAI  = "openai"
	ProviderHashing = "hashing"
)

// Embedding cache backends.
const (
	CacheNone  = "none"
	CacheLRU   = "lru"
	CacheRedis = "redis"
)

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider      string       `yaml:"provider"` // openai (default), hashing
	APIKey        string       `yaml:"api_key"`
	BaseURL       string       `yaml:"base_url"`
	Model         string       `yaml:"model"`
	Dimensions    int          `yaml:"dimensions"` // 0 = learn from warm-up
	TimeoutSec    int          `yaml:"timeout_sec"`
	MaxInputChars int          `yaml:"max_input_chars"`
	RateLimitRPS  float64      `yaml:"rate_limit_rps"` // 0 = unlimited
	RateBurst     int          `yaml:"rate_burst"`
	Cache         string       `yaml:"cache"` // lru (default), redis, none
	CacheSize     int          `yaml:"cache_size"`
	Budget        BudgetConfig `yaml:"budget"`
	// Optional prefixes for models trained with asymmetric inputs (e.g. "passage: " / "query: ").
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit   int64  `yaml:"daily_token_limit"`   // 0 = unlimited
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"` // 0 = unlimited
	Action            string `yaml:"action"`              // "reject" | "warn" (default)
	Persist           bool   `yaml:"persist"`             // keep counters in redis across restarts
}

// GenerationConfig holds completion settings.
type GenerationConfig struct {
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	Temperature       float32 `yaml:"temperature"`
	TimeoutSec        int     `yaml:"timeout_sec"`
	MaxRetries        int     `yaml:"max_retries"`
	BreakerFailures   uint32  `yaml:"breaker_failures"`
	BreakerTimeoutSec int     `yaml:"breaker_timeout_sec"`
}

// RetrievalConfig holds similarity search settings.
type RetrievalConfig struct {
	TopK int `yaml:"top_k"`
}

// EmailsConfig holds the email source settings.
type EmailsConfig struct {
	Path       string `yaml:"path"`         // JSON-lines mailbox export
	Categorize bool   `yaml:"categorize"`   // fill missing categories with keyword rules
	IndexMode  string `yaml:"index_mode"`   // catchup (default), reindex
	IndexOnRun bool   `yaml:"index_on_run"` // run one index pass when serve starts
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	return LoadFile(findConfigPath(env))
}

// LoadFile reads configuration from an explicit path.
func LoadFile(configPath string) (Config, error) {
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
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 60
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.Path == "" {
		c.Storage.Path = "data/vector_store.json"
	}
	if c.Storage.Key == "" {
		c.Storage.Key = "mailrag:vectors"
	}
	if c.Storage.Compression == "" {
		c.Storage.Compression = "none"
	}

	if c.Embedding.Provider == "" {
		c.Embedding.Provider = ProviderOpenAI
	}
	vec := domain.DefaultVectorConfig()
	if c.Embedding.Model == "" {
		c.Embedding.Model = vec.Model
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Embedding.MaxInputChars <= 0 {
		c.Embedding.MaxInputChars = vec.MaxInputChars
	}
	if c.Embedding.RateBurst <= 0 {
		c.Embedding.RateBurst = 1
	}
	if c.Embedding.Cache == "" {
		c.Embedding.Cache = CacheLRU
	}
	if c.Embedding.CacheSize <= 0 {
		c.Embedding.CacheSize = 4096
	}

	if c.Generation.Model == "" {
		c.Generation.Model = "gpt-3.5-turbo"
	}
	if c.Generation.MaxTokens <= 0 {
		c.Generation.MaxTokens = 500
	}
	if c.Generation.Temperature <= 0 {
		c.Generation.Temperature = 0.7
	}
	if c.Generation.TimeoutSec <= 0 {
		c.Generation.TimeoutSec = 60
	}
	if c.Generation.BreakerFailures == 0 {
		c.Generation.BreakerFailures = 5
	}
	if c.Generation.BreakerTimeoutSec <= 0 {
		c.Generation.BreakerTimeoutSec = 30
	}
	// Generation credentials default to the embedding ones (same OpenAI account).
	if c.Generation.APIKey == "" {
		c.Generation.APIKey = c.Embedding.APIKey
	}
	if c.Generation.BaseURL == "" {
		c.Generation.BaseURL = c.Embedding.BaseURL
	}

	if c.Retrieval.TopK <= 0 {
		c.Retrieval.TopK = domain.DefaultTopK
	}

	if c.Emails.Path == "" {
		c.Emails.Path = "data/emails.jsonl"
	}
	if c.Emails.IndexMode == "" {
		c.Emails.IndexMode = "catchup"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}

	switch c.Storage.Driver {
	case DriverFile, DriverMemory:
	case DriverRedis, DriverValkey:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for storage driver %q", c.Storage.Driver)
		}
	case DriverMinio:
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.Bucket == "" {
			return fmt.Errorf("storage.minio.endpoint and storage.minio.bucket are required")
		}
	default:
		return fmt.Errorf("storage.driver must be one of file, redis, valkey, minio, memory, got %q", c.Storage.Driver)
	}

	switch c.Storage.Compression {
	case "none", "zstd":
	default:
		return fmt.Errorf("storage.compression must be \"none\" or \"zstd\", got %q", c.Storage.Compression)
	}

	switch c.Embedding.Provider {
	case ProviderOpenAI:
		if c.Embedding.APIKey == "" {
			return fmt.Errorf("embedding.api_key is required for provider %q", ProviderOpenAI)
		}
	case ProviderHashing:
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("embedding.dimensions is required for provider %q", ProviderHashing)
		}
	default:
		return fmt.Errorf("embedding.provider must be \"openai\" or \"hashing\", got %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions < 0 {
		return fmt.Errorf("embedding.dimensions must not be negative, got %d", c.Embedding.Dimensions)
	}

	switch c.Embedding.Cache {
	case CacheNone, CacheLRU:
	case CacheRedis:
		if len(c.Database.Addrs) == 0 {
			return fmt.Errorf("database.addrs is required for embedding cache %q", CacheRedis)
		}
	default:
		return fmt.Errorf("embedding.cache must be one of lru, redis, none, got %q", c.Embedding.Cache)
	}

	switch c.Embedding.Budget.Action {
	case "", "warn", "reject":
		// ok
	default:
		return fmt.Errorf(
			"embedding.budget.action must be \"warn\" or \"reject\", got %q", c.Embedding.Budget.Action,
		)
	}
	if c.Embedding.Budget.Persist && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required for embedding.budget.persist")
	}

	if c.Generation.Temperature > 2 {
		return fmt.Errorf("generation.temperature must be between 0 and 2, got %v", c.Generation.Temperature)
	}

	switch c.Emails.IndexMode {
	case "catchup", "reindex":
	default:
		return fmt.Errorf("emails.index_mode must be \"catchup\" or \"reindex\", got %q", c.Emails.IndexMode)
	}
	return nil
}

// EmbeddingTimeout returns the per-call embedding timeout.
func (c *Config) EmbeddingTimeout() time.Duration {
	return time.Duration(c.Embedding.TimeoutSec) * time.Second
}

// GenerationTimeout returns the per-call completion timeout.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.Generation.TimeoutSec) * time.Second
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
