package conf

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/lk2023060901/llm-field-extractor/internal/auth/middleware"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/oracle"
	"github.com/lk2023060901/llm-field-extractor/internal/extraction/types"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/database"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/logger"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/minio"
	"github.com/lk2023060901/llm-field-extractor/internal/pkg/redis"
	"github.com/spf13/viper"
)

const (
	DefaultConfigPath = "configs/config.yaml"
	DefaultEnvFile    = "dudoxx-llm.env"
	EnvPrefix         = "DUDOXX"

	DefaultSystemPrompt = "You are an expert data extractor. Only output the fields requested, based solely on the given text."
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        logger.Config    `mapstructure:"log"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Extraction ExtractionConfig `mapstructure:"extraction"`
	Auth       AuthConfig       `mapstructure:"auth"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Redis      redis.Config     `mapstructure:"redis"`
	Database   DatabaseConfig   `mapstructure:"database"`
	MinIO      MinIOConfig      `mapstructure:"minio"`
	Office     OfficeConfig     `mapstructure:"office"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"` // gin mode: debug, release, test
	Version      string        `mapstructure:"version"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// Heartbeat is the keep-alive interval of the SSE endpoint.
	Heartbeat time.Duration `mapstructure:"heartbeat"`
}

// LLMConfig is the OpenAI-compatible endpoint used as the oracle.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	JSONMode    bool          `mapstructure:"json_mode"`
	FewShot     bool          `mapstructure:"few_shot"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
	RateLimit   float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	Burst       int           `mapstructure:"burst"`
}

// ExtractionConfig holds the run defaults applied when a request leaves an option out.
type ExtractionConfig struct {
	ChunkMethod   string   `mapstructure:"chunk_method"`
	ChunkSize     int      `mapstructure:"chunk_size"`
	ChunkOverlap  int      `mapstructure:"chunk_overlap"`
	MinChunkSize  int      `mapstructure:"min_chunk_size"`
	MaxThreads    int      `mapstructure:"max_threads"`
	UnknownValue  string   `mapstructure:"unknown_value"`
	DateFormat    string   `mapstructure:"date_format"`
	DateFields    []string `mapstructure:"date_fields"`
	ListFields    []string `mapstructure:"list_fields"`
	ListSeparator string   `mapstructure:"list_separator"`
	SystemPrompt  string   `mapstructure:"system_prompt"`
	OutputFormat  string   `mapstructure:"output_format"`
	MaxUploadMB   int      `mapstructure:"max_upload_mb"`
}

type AuthConfig struct {
	// APIToken is the bearer token required on /api/v1. Empty disables auth.
	APIToken string `mapstructure:"api_token"`
}

type RateLimitConfig struct {
	Enabled                      bool `mapstructure:"enabled"`
	middleware.RateLimiterConfig `mapstructure:",squash"`
}

// CacheConfig controls the Redis cache of oracle answers.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	Prefix  string        `mapstructure:"prefix"`
}

// DatabaseConfig enables run history in PostgreSQL.
type DatabaseConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	database.Config `mapstructure:",squash"`
}

// MinIOConfig enables archiving of documents and results.
type MinIOConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Prefix       string `mapstructure:"prefix"`
	minio.Config `mapstructure:",squash"`
}

type OfficeConfig struct {
	License string `mapstructure:"license"`
}

// legacyEnv maps the flat variables of dudoxx-llm.env onto config keys.
var legacyEnv = []struct {
	name    string
	key     string
	seconds bool
}{
	{name: "DUDOXX_API_KEY", key: "llm.api_key"},
	{name: "DUDOXX_BASE_URL", key: "llm.base_url"},
	{name: "DUDOXX_MODEL_NAME", key: "llm.model"},
	{name: "DUDOXX_REQUEST_TIMEOUT", key: "llm.timeout", seconds: true},
	{name: "DUDOXX_MAX_RETRIES", key: "llm.max_retries"},
	{name: "DUDOXX_RETRY_DELAY", key: "llm.retry_delay", seconds: true},
	{name: "DUDOXX_CHUNK_SIZE", key: "extraction.chunk_size"},
	{name: "DUDOXX_CHUNK_OVERLAP", key: "extraction.chunk_overlap"},
	{name: "DUDOXX_MIN_CHUNK_SIZE", key: "extraction.min_chunk_size"},
	{name: "DUDOXX_MAX_THREADS", key: "extraction.max_threads"},
	{name: "DUDOXX_DEFAULT_SYSTEM_PROMPT", key: "extraction.system_prompt"},
	{name: "DUDOXX_OUTPUT_FORMAT", key: "extraction.output_format"},
	{name: "DUDOXX_UNKNOWN_VALUE", key: "extraction.unknown_value"},
	{name: "DUDOXX_DATE_FORMAT", key: "extraction.date_format"},
	{name: "DUDOXX_LOG_LEVEL", key: "log.level"},
	{name: "DUDOXX_API_TOKEN", key: "auth.api_token"},
}

// Load reads configuration from, in increasing priority: defaults, the YAML
// file at path, the dotenv file at envFile, and the process environment.
// Missing default files are skipped; an explicitly named file must exist.
func Load(path, envFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		if err := readOptional(path, path == DefaultConfigPath, func() error {
			v.SetConfigFile(path)
			return v.ReadInConfig()
		}); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	dotenv := viper.New()
	if envFile != "" {
		if err := readOptional(envFile, envFile == DefaultEnvFile, func() error {
			dotenv.SetConfigFile(envFile)
			dotenv.SetConfigType("env")
			return dotenv.ReadInConfig()
		}); err != nil {
			return nil, fmt.Errorf("read env file %s: %w", envFile, err)
		}
	}
	applyLegacyEnv(v, dotenv)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readOptional(path string, optional bool, read func() error) error {
	if _, err := os.Stat(path); err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return read()
}

// applyLegacyEnv sets config keys from the flat DUDOXX_* names. The process
// environment wins over the dotenv file.
func applyLegacyEnv(v, dotenv *viper.Viper) {
	for _, e := range legacyEnv {
		value, ok := os.LookupEnv(e.name)
		if !ok {
			if !dotenv.IsSet(strings.ToLower(e.name)) {
				continue
			}
			value = dotenv.GetString(strings.ToLower(e.name))
		}
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		if e.seconds && isDigits(value) {
			value += "s"
		}
		v.Set(e.key, value)
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.version", "1.0.0")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Minute)
	v.SetDefault("server.heartbeat", 15*time.Second)

	lc := logger.DefaultConfig()
	v.SetDefault("log.level", lc.Level)
	v.SetDefault("log.format", lc.Format)
	v.SetDefault("log.output", lc.Output)
	v.SetDefault("log.enable_caller", lc.EnableCaller)
	v.SetDefault("log.enable_stacktrace", lc.EnableStacktrace)
	v.SetDefault("log.file.filename", lc.File.Filename)
	v.SetDefault("log.file.max_size", lc.File.MaxSize)
	v.SetDefault("log.file.max_age", lc.File.MaxAge)
	v.SetDefault("log.file.max_backups", lc.File.MaxBackups)
	v.SetDefault("log.file.compress", lc.File.Compress)

	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "https://llm-proxy.dudoxx.com/v1")
	v.SetDefault("llm.model", "dudoxx")
	v.SetDefault("llm.temperature", 0.0)
	v.SetDefault("llm.json_mode", false)
	v.SetDefault("llm.few_shot", true)
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.max_retries", 3)
	v.SetDefault("llm.retry_delay", 2*time.Second)
	v.SetDefault("llm.rate_limit", 0.0)
	v.SetDefault("llm.burst", 1)

	v.SetDefault("extraction.chunk_method", types.ChunkMethodWords)
	v.SetDefault("extraction.chunk_size", 1000)
	v.SetDefault("extraction.chunk_overlap", 100)
	v.SetDefault("extraction.min_chunk_size", 200)
	v.SetDefault("extraction.max_threads", 5)
	v.SetDefault("extraction.unknown_value", types.DefaultUnknownValue)
	v.SetDefault("extraction.date_format", types.DefaultDateFormat)
	v.SetDefault("extraction.date_fields", []string{})
	v.SetDefault("extraction.list_fields", []string{})
	v.SetDefault("extraction.list_separator", types.DefaultListSeparator)
	v.SetDefault("extraction.system_prompt", DefaultSystemPrompt)
	v.SetDefault("extraction.output_format", "json")
	v.SetDefault("extraction.max_upload_mb", 20)

	v.SetDefault("auth.api_token", "")

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.max_requests", 60)
	v.SetDefault("rate_limit.window_seconds", 60)
	v.SetDefault("rate_limit.strategy", middleware.StrategyToken)
	v.SetDefault("rate_limit.prefix", "extractor:rate_limit")

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.ttl", 24*time.Hour)
	v.SetDefault("cache.prefix", "extractor:oracle:")

	rc := redis.DefaultConfig()
	v.SetDefault("redis.mode", string(rc.Mode))
	v.SetDefault("redis.addrs", rc.Addrs)
	v.SetDefault("redis.master_name", "")
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", rc.PoolSize)
	v.SetDefault("redis.min_idle_conns", rc.MinIdleConns)
	v.SetDefault("redis.dial_timeout", rc.DialTimeout)
	v.SetDefault("redis.read_timeout", rc.ReadTimeout)
	v.SetDefault("redis.write_timeout", rc.WriteTimeout)
	v.SetDefault("redis.max_retries", rc.MaxRetries)

	dc := database.DefaultConfig()
	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", dc.Host)
	v.SetDefault("database.port", dc.Port)
	v.SetDefault("database.user", dc.User)
	v.SetDefault("database.password", dc.Password)
	v.SetDefault("database.dbname", dc.DBName)
	v.SetDefault("database.ssl_mode", dc.SSLMode)
	v.SetDefault("database.timezone", dc.Timezone)
	v.SetDefault("database.max_idle_conns", dc.MaxIdleConns)
	v.SetDefault("database.max_open_conns", dc.MaxOpenConns)
	v.SetDefault("database.conn_max_lifetime", dc.ConnMaxLifetime)
	v.SetDefault("database.log_level", dc.LogLevel)
	v.SetDefault("database.slow_threshold", dc.SlowThreshold)
	v.SetDefault("database.auto_migrate", dc.AutoMigrate)

	mc := minio.DefaultConfig()
	v.SetDefault("minio.enabled", false)
	v.SetDefault("minio.prefix", "runs")
	v.SetDefault("minio.endpoint", mc.Endpoint)
	v.SetDefault("minio.access_key_id", "")
	v.SetDefault("minio.secret_access_key", "")
	v.SetDefault("minio.region", "")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket_lookup", string(mc.BucketLookup))
	v.SetDefault("minio.bucket", mc.Bucket)
	v.SetDefault("minio.request_timeout", mc.RequestTimeout)

	v.SetDefault("office.license", "")
}

// Validate checks every section that is in use.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Server.Mode {
	case "", "debug", "release", "test":
	default:
		return fmt.Errorf("server.mode %q must be debug, release or test", c.Server.Mode)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	run := c.RunDefaults()
	run.Fields = []string{"placeholder"}
	if err := run.Validate(); err != nil {
		return fmt.Errorf("extraction: %w", err)
	}
	if c.Extraction.MaxUploadMB < 0 {
		return errors.New("extraction.max_upload_mb must not be negative")
	}
	if c.LLM.MaxRetries < 1 {
		return errors.New("llm.max_retries must be at least 1")
	}

	if c.Cache.Enabled || c.RateLimit.Enabled {
		if err := c.Redis.Validate(); err != nil {
			return err
		}
	}
	if c.Database.Enabled {
		if err := c.Database.Validate(); err != nil {
			return err
		}
	}
	if c.MinIO.Enabled {
		if err := c.MinIO.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// RunDefaults returns the run config every request starts from.
func (c *Config) RunDefaults() types.RunConfig {
	e := c.Extraction
	return types.RunConfig{
		ChunkMethod:   e.ChunkMethod,
		ChunkSize:     e.ChunkSize,
		ChunkOverlap:  e.ChunkOverlap,
		MinChunkSize:  e.MinChunkSize,
		MaxThreads:    e.MaxThreads,
		DateFields:    append([]string(nil), e.DateFields...),
		DateFormat:    e.DateFormat,
		UnknownValue:  e.UnknownValue,
		SystemPrompt:  e.SystemPrompt,
		ListFields:    append([]string(nil), e.ListFields...),
		ListSeparator: e.ListSeparator,
	}
}

// OpenAI returns the oracle adapter settings.
func (c *Config) OpenAI() oracle.OpenAIConfig {
	return oracle.OpenAIConfig{
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		Model:       c.LLM.Model,
		Temperature: c.LLM.Temperature,
		JSONMode:    c.LLM.JSONMode,
		FewShot:     c.LLM.FewShot,
		Timeout:     c.LLM.Timeout,
		MaxRetries:  c.LLM.MaxRetries,
		RetryDelay:  c.LLM.RetryDelay,
		RateLimit:   c.LLM.RateLimit,
		Burst:       c.LLM.Burst,
	}
}

// MaxUploadBytes is the upload limit in bytes; 0 means unlimited.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Extraction.MaxUploadMB) << 20
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
