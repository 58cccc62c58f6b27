package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. COMOVE_MAX_WARP.
const EnvPrefix = "COMOVE"

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            *bool         `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Interval  time.Duration `yaml:"interval"`
			Threshold int           `yaml:"threshold"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Source struct {
		Type   string `yaml:"type"` // clickhouse or csv
		CSVDir string `yaml:"csv_dir"`
	} `yaml:"source"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks"`
		Compression  string   `yaml:"compression"`
		ReportTopic  string   `yaml:"report_topic"`
		RequestTopic string   `yaml:"request_topic"`
		LogTopic     string   `yaml:"log_topic"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
		InitSchema       bool          `yaml:"init_schema"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		Prefix       string        `yaml:"prefix"`
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		PoolTimeout  time.Duration `yaml:"pool_timeout"`
	} `yaml:"redis"`
	Cache struct {
		MemoryMaxSize   int           `yaml:"memory_max_size"`
		MemoryTTL       time.Duration `yaml:"memory_ttl"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
	} `yaml:"cache"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
		KeyPrefix  string        `yaml:"key_prefix"`
	} `yaml:"queue"`
	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		SampleRatio float64 `yaml:"sample_ratio"`
	} `yaml:"tracing"`
	RateLimit struct {
		Enabled bool    `yaml:"enabled"`
		RPS     float64 `yaml:"rps"`
		Burst   int     `yaml:"burst"`
	} `yaml:"rate_limit"`
	Analysis AnalysisConfig `yaml:"analysis"`
}

// AnalysisConfig holds the run defaults. MaxWarp and FreqBand have no
// default and must be set.
type AnalysisConfig struct {
	Window              int             `yaml:"window"`
	MaxWarp             *int            `yaml:"max_warp"`
	FreqBand            []float64       `yaml:"freq_band"`
	MinStrength         float64         `yaml:"min_strength"`
	WeightedMinStrength float64         `yaml:"weighted_min_strength"`
	NormalizeDTW        bool            `yaml:"normalize_dtw"`
	Timeframe           string          `yaml:"timeframe"`
	Field               string          `yaml:"field"`
	Smoothing           SmoothingConfig `yaml:"smoothing"`
	Timeout             time.Duration   `yaml:"timeout"`
	CacheTTL            time.Duration   `yaml:"cache_ttl"`
	// Schedule reruns the configured tickers periodically; zero disables it.
	Schedule            time.Duration   `yaml:"schedule"`
	Tickers             struct {
		Primary     string   `yaml:"primary"`
		Comparisons []string `yaml:"comparisons"`
	} `yaml:"tickers"`
}

type SmoothingConfig struct {
	Method       string  `yaml:"method"`
	Window       int     `yaml:"window"`
	Alpha        float64 `yaml:"alpha"`
	Iterations   int     `yaml:"iterations"`
	Span         int     `yaml:"span"`
	SavGolWindow int     `yaml:"savgol_window"`
	SavGolOrder  *int    `yaml:"savgol_order"` // nil keeps the default; 0 is a moving average
}

// envOverrides lists the settings that may come from the environment.
type envOverrides struct {
	Environment  string    `envconfig:"ENVIRONMENT"`
	Port         int       `envconfig:"PORT"`
	LogLevel     string    `envconfig:"LOG_LEVEL"`
	Source       string    `envconfig:"SOURCE"`
	CSVDir       string    `envconfig:"CSV_DIR"`
	KafkaBrokers []string  `envconfig:"KAFKA_BROKERS"`
	ReportTopic  string    `envconfig:"REPORT_TOPIC"`
	RequestTopic string    `envconfig:"REQUEST_TOPIC"`
	CHHost       string    `envconfig:"CLICKHOUSE_HOST"`
	CHPassword   string    `envconfig:"CLICKHOUSE_PASSWORD"`
	RedisHost    string    `envconfig:"REDIS_HOST"`
	RedisPass    string    `envconfig:"REDIS_PASSWORD"`
	MaxWarp      *int      `envconfig:"MAX_WARP"`
	FreqBand     []float64 `envconfig:"FREQ_BAND"`
	Window       int       `envconfig:"WINDOW"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML, a .env file if present, and
// COMOVE_* environment variables, in increasing precedence.
func LoadWithEnv(path string) (*Config, error) {
	c, err := parse(path)
	if err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func parse(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.setDefaults()
	return &c, nil
}

func (c *Config) applyEnv() error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if env.Environment != "" {
		c.Environment = env.Environment
	}
	if env.Port != 0 {
		c.Server.Port = env.Port
	}
	if env.LogLevel != "" {
		c.Log.Level = env.LogLevel
	}
	if env.Source != "" {
		c.Source.Type = env.Source
	}
	if env.CSVDir != "" {
		c.Source.CSVDir = env.CSVDir
	}
	if len(env.KafkaBrokers) > 0 {
		c.Kafka.Brokers = env.KafkaBrokers
	}
	if env.ReportTopic != "" {
		c.Kafka.ReportTopic = env.ReportTopic
	}
	if env.RequestTopic != "" {
		c.Kafka.RequestTopic = env.RequestTopic
	}
	if env.CHHost != "" {
		c.ClickHouse.Host = env.CHHost
	}
	if env.CHPassword != "" {
		c.ClickHouse.Password = env.CHPassword
	}
	if env.RedisHost != "" {
		c.Redis.Host = env.RedisHost
	}
	if env.RedisPass != "" {
		c.Redis.Password = env.RedisPass
	}
	if env.MaxWarp != nil {
		c.Analysis.MaxWarp = env.MaxWarp
	}
	if len(env.FreqBand) > 0 {
		c.Analysis.FreqBand = env.FreqBand
	}
	if env.Window != 0 {
		c.Analysis.Window = env.Window
	}
	return nil
}

// CORSEnabled reports whether the HTTP server answers cross-origin
// requests. It is on unless server.cors is false.
func (c *Config) CORSEnabled() bool {
	return c.Server.CORS == nil || *c.Server.CORS
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Log.Output == "" {
		c.Log.Output = "stdout"
	}
	if c.Kafka.ReportTopic == "" {
		c.Kafka.ReportTopic = "comove.reports"
	}
	if c.Kafka.RequestTopic == "" {
		c.Kafka.RequestTopic = "comove.requests"
	}
	if c.Kafka.LogTopic == "" {
		c.Kafka.LogTopic = "comove.logs"
	}
	if c.Kafka.Consumer.GroupID == "" {
		c.Kafka.Consumer.GroupID = "comove-analysis"
	}
	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "comove"
	}
	if c.Redis.PoolSize == 0 {
		c.Redis.PoolSize = 10
	}
	if c.Redis.MinIdleConns == 0 {
		c.Redis.MinIdleConns = 5
	}
	if c.Redis.PoolTimeout == 0 {
		c.Redis.PoolTimeout = 30 * time.Second
	}
	if c.Cache.MemoryMaxSize == 0 {
		c.Cache.MemoryMaxSize = 1000
	}
	if c.Cache.MemoryTTL == 0 {
		c.Cache.MemoryTTL = time.Minute
	}
	if c.Cache.CleanupInterval == 0 {
		c.Cache.CleanupInterval = 5 * time.Minute
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 2
	}
	if c.Queue.RetryDelay == 0 {
		c.Queue.RetryDelay = 10 * time.Second
	}
	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = c.Redis.Prefix + ":queue"
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "comove"
	}
	a := &c.Analysis
	if a.Window == 0 {
		a.Window = 6
	}
	if a.WeightedMinStrength == 0 {
		a.WeightedMinStrength = 0.3
	}
	if a.Timeframe == "" {
		a.Timeframe = "1wk"
	}
	if a.Field == "" {
		a.Field = "return"
	}
	if a.Smoothing.Method == "" {
		a.Smoothing.Method = "llt"
	}
	if a.Timeout == 0 {
		a.Timeout = 30 * time.Second
	}
	if a.CacheTTL == 0 {
		a.CacheTTL = 15 * time.Minute
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Source.Type {
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for source.type 'clickhouse'")
		}
	case "csv":
		if c.Source.CSVDir == "" {
			return fmt.Errorf("source.csv_dir is required for source.type 'csv'")
		}
	case "":
		return fmt.Errorf("source.type is required")
	default:
		return fmt.Errorf("source.type must be 'clickhouse' or 'csv', got '%s'", c.Source.Type)
	}
	if (c.Kafka.Enabled || c.Kafka.Consumer.Enabled) && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue requires redis.enabled")
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		return fmt.Errorf("rate_limit.rps and rate_limit.burst must be positive")
	}
	return c.Analysis.Validate()
}

// Validate checks the analysis defaults.
func (a *AnalysisConfig) Validate() error {
	if a.Window < 2 {
		return fmt.Errorf("analysis.window must be >= 2, got %d", a.Window)
	}
	if a.MaxWarp == nil {
		return fmt.Errorf("analysis.max_warp is required")
	}
	if *a.MaxWarp < 0 {
		return fmt.Errorf("analysis.max_warp must be >= 0, got %d", *a.MaxWarp)
	}
	if len(a.FreqBand) == 0 {
		return fmt.Errorf("analysis.freq_band is required")
	}
	if len(a.FreqBand) != 2 {
		return fmt.Errorf("analysis.freq_band must have two values, got %d", len(a.FreqBand))
	}
	low, high := a.FreqBand[0], a.FreqBand[1]
	if low < 0 || high > 1 || low >= high {
		return fmt.Errorf("analysis.freq_band must satisfy 0 <= low < high <= 1, got [%g, %g]", low, high)
	}
	if a.Schedule > 0 && (a.Tickers.Primary == "" || len(a.Tickers.Comparisons) == 0) {
		return fmt.Errorf("analysis.schedule requires analysis.tickers.primary and comparisons")
	}
	if a.MinStrength < 0 || a.MinStrength > 1 {
		return fmt.Errorf("analysis.min_strength must be in [0, 1], got %g", a.MinStrength)
	}
	return nil
}
