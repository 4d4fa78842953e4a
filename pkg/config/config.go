package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required,oneof=development staging production test"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error fatal"`
		Format string `yaml:"format" default:"json" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Collect ships aggregated error logs to Kafka.
		Collect      bool          `yaml:"collect"`
		CollectTopic string        `yaml:"collect_topic" default:"confluence.logs"`
		CollectEvery time.Duration `yaml:"collect_every" default:"30s"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		AllowOrigins    []string      `yaml:"allow_origins"`
		// RateLimit throttles analyze and refresh per client IP; 0 disables it.
		RateLimit float64 `yaml:"rate_limit" default:"2"`
		RateBurst int     `yaml:"rate_burst" default:"5"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Redis struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"6379"`
		Password     string        `yaml:"password"`
		DB           int           `yaml:"db"`
		PoolSize     int           `yaml:"pool_size" default:"20"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"2s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"1s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"1s"`
	} `yaml:"redis"`
	Cache struct {
		// IndicatorCaching toggles the per-indicator cache path.
		IndicatorCaching bool          `yaml:"indicator_caching" default:"true"`
		Backend          string        `yaml:"backend" default:"redis" validate:"oneof=redis memory layered"`
		Prefix           string        `yaml:"prefix"`
		OpTimeout        time.Duration `yaml:"op_timeout" default:"750ms"`
		ReadyTimeout     time.Duration `yaml:"ready_timeout" default:"2s"`
		DefaultTTL       time.Duration `yaml:"default_ttl" default:"60s"`
		// TTLs overrides DefaultTTL per indicator kind.
		TTLs            map[string]time.Duration `yaml:"ttls"`
		MemorySize      int                      `yaml:"memory_size" default:"5000"`
		BreakerFailures uint32                   `yaml:"breaker_failures" default:"5"`
		BreakerTimeout  time.Duration            `yaml:"breaker_timeout" default:"30s"`
	} `yaml:"cache"`
	Confluence struct {
		Symbols          []string           `yaml:"symbols" validate:"min=1,dive,required"`
		Interval         time.Duration      `yaml:"interval" default:"30s"`
		PublishTTL       time.Duration      `yaml:"publish_ttl" default:"300s"`
		Weights          map[string]float64 `yaml:"weights"`
		DecayRate        float64            `yaml:"decay_rate" default:"2" validate:"gt=0"`
		ComponentTimeout time.Duration      `yaml:"component_timeout" default:"5s"`
		Concurrency      int                `yaml:"concurrency" default:"4" validate:"min=1"`
	} `yaml:"confluence"`
	Market struct {
		Source        string        `yaml:"source" default:"binance" validate:"oneof=binance clickhouse"`
		APIKey        string        `yaml:"api_key"`
		SecretKey     string        `yaml:"secret_key"`
		KlineInterval string        `yaml:"kline_interval" default:"15m"`
		Lookback      int           `yaml:"lookback" default:"200" validate:"min=30"`
		DepthLimit    int           `yaml:"depth_limit" default:"50"`
		TradesLimit   int           `yaml:"trades_limit" default:"500"`
		RateLimit     float64       `yaml:"rate_limit" default:"10"`
		RateBurst     int           `yaml:"rate_burst" default:"20"`
		MaxRetries    int           `yaml:"max_retries" default:"3"`
		Timeout       time.Duration `yaml:"timeout" default:"10s"`
		Stream        struct {
			Enabled        bool          `yaml:"enabled"`
			URL            string        `yaml:"url" default:"wss://fstream.binance.com/stream"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
			BufferSize     int           `yaml:"buffer_size" default:"1000"`
			Coalesce       time.Duration `yaml:"coalesce" default:"100ms"`
			PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		} `yaml:"stream"`
	} `yaml:"market"`
	Sentiment struct {
		Enabled    bool          `yaml:"enabled"`
		ServiceURL string        `yaml:"service_url" default:"http://localhost:8000"`
		Timeout    time.Duration `yaml:"timeout" default:"3s"`
		CacheTTL   time.Duration `yaml:"cache_ttl" default:"60s"`
	} `yaml:"sentiment"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		Topic        string   `yaml:"topic" default:"confluence.breakdowns"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			Topic      string        `yaml:"topic" default:"market.snapshots"`
			GroupID    string        `yaml:"group_id" default:"confluence"`
			Workers    int           `yaml:"workers" default:"4"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"200ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic" default:"market.snapshots.dlq"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"confluence"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
		CandleTable      string        `yaml:"candle_table" default:"candles"`
		HistoryTable     string        `yaml:"history_table" default:"confluence_history"`
	} `yaml:"clickhouse"`
	Queue struct {
		Enabled   bool          `yaml:"enabled" default:"true"`
		Name      string        `yaml:"name" default:"confluence"`
		Workers   int           `yaml:"workers" default:"2"`
		PollEvery time.Duration `yaml:"poll_every" default:"1s"`
		Retries   int           `yaml:"retries" default:"3"`
		RetryWait time.Duration `yaml:"retry_wait" default:"10s"`
		DedupeTTL time.Duration `yaml:"dedupe_ttl" default:"30s"`
	} `yaml:"queue"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file, fills defaults and validates it.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes raw YAML into a defaulted, validated Config.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Confluence.Symbols = splitList(v)
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("INDICATOR_CACHING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Cache.IndicatorCaching = b
		}
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Market.APIKey = v
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Market.SecretKey = v
	}
	if v := os.Getenv("MARKET_SOURCE"); v != "" {
		c.Market.Source = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("SENTIMENT_SERVICE_URL"); v != "" {
		c.Sentiment.ServiceURL = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Market.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("market.source 'clickhouse' requires clickhouse.enabled")
	}
	for name, w := range c.Confluence.Weights {
		if w < 0 {
			return fmt.Errorf("confluence.weights.%s must be non-negative, got %v", name, w)
		}
	}
	return nil
}

// IndicatorTTL returns the cache TTL for an indicator kind.
func (c *Config) IndicatorTTL(kind string) time.Duration {
	if ttl, ok := c.Cache.TTLs[kind]; ok && ttl > 0 {
		return ttl
	}
	return c.Cache.DefaultTTL
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
