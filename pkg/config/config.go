package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string          `yaml:"environment" default:"development" validate:"oneof=development staging production test"`
	Log         LogConfig       `yaml:"log"`
	Server      ServerConfig    `yaml:"server"`
	Metrics     MetricsConfig   `yaml:"metrics"`
	Engine      EngineConfig    `yaml:"engine"`
	Models      ModelsConfig    `yaml:"models"`
	Predictor   PredictorConfig `yaml:"predictor"`
	Data        DataConfig      `yaml:"data"`
	Cache       CacheConfig     `yaml:"cache"`
	ClickHouse  ClickHouse      `yaml:"clickhouse"`
	Kafka       KafkaConfig     `yaml:"kafka"`
	Queue       QueueConfig     `yaml:"queue"`
	Live        LiveConfig      `yaml:"live"`
	RateLimit   RateLimit       `yaml:"rate_limit"`
}

type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json console"`
	Output string `yaml:"output" default:"stderr"`
}

type ServerConfig struct {
	Host            string        `yaml:"host" default:"0.0.0.0"`
	Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	CORS            bool          `yaml:"cors"`
}

type MetricsConfig struct {
	SlowThreshold time.Duration `yaml:"slow_threshold" default:"2s"`
}

// EngineConfig holds the numeric defaults of the decision engine.
type EngineConfig struct {
	WindowLength     int     `yaml:"window_length" default:"60" validate:"gte=1"`
	InitialBalance   float64 `yaml:"initial_balance" default:"10000" validate:"gt=0"`
	DefaultBalance   float64 `yaml:"default_balance" default:"1000" validate:"gte=0"`
	DefaultRiskLevel float64 `yaml:"default_risk_level" default:"0.5" validate:"gte=0,lte=1"`
	// EvalSplit is the fraction of training bars before the post-training backtest segment.
	EvalSplit   float64       `yaml:"eval_split" default:"0.8" validate:"gt=0,lt=1"`
	EvalTimeout time.Duration `yaml:"eval_timeout"`
	Seed        int64         `yaml:"seed" default:"42"`
	// SignalPolicy is the live policy: risk_banded or binary.
	SignalPolicy string `yaml:"signal_policy" default:"risk_banded" validate:"oneof=risk_banded binary"`
}

type ModelsConfig struct {
	Dir string `yaml:"dir" default:"./models" validate:"required"`
}

type PredictorConfig struct {
	ServiceURL string        `yaml:"service_url" validate:"omitempty,url"`
	Timeout    time.Duration `yaml:"timeout" default:"60s"`
	Retries    int           `yaml:"retries" default:"3" validate:"gte=0"`
	RSIPeriod  int           `yaml:"rsi_period" default:"14" validate:"gte=2"`
}

type DataConfig struct {
	Dir          string        `yaml:"dir" default:"./data"`
	BinanceURL   string        `yaml:"binance_url" default:"https://api.binance.com" validate:"url"`
	BinanceWSURL string        `yaml:"binance_ws_url" default:"wss://stream.binance.com:9443/ws" validate:"url"`
	APIKey       string        `yaml:"api_key"`
	Timeout      time.Duration `yaml:"timeout" default:"15s"`
}

type CacheConfig struct {
	Enabled       bool          `yaml:"enabled"`
	TTL           time.Duration `yaml:"ttl" default:"10m"`
	MemoryMaxSize int           `yaml:"memory_max_size" default:"1000"`
	Redis         RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"finagent"`
}

type ClickHouse struct {
	Enabled     bool          `yaml:"enabled"`
	Host        string        `yaml:"host" default:"localhost"`
	Port        int           `yaml:"port" default:"9000"`
	Database    string        `yaml:"database" default:"finagent"`
	User        string        `yaml:"user" default:"default"`
	Password    string        `yaml:"password"`
	Table       string        `yaml:"table" default:"bars" validate:"alphanum"`
	UseHTTP     bool          `yaml:"use_http"`
	DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	ReadTimeout time.Duration `yaml:"read_timeout" default:"30s"`
}

type KafkaConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Brokers        []string `yaml:"brokers" default:"[\"localhost:9092\"]"`
	DecisionsTopic string   `yaml:"decisions_topic" default:"agent.decisions"`
	BarsTopic      string   `yaml:"bars_topic" default:"market.bars"`
	LogsTopic      string   `yaml:"logs_topic" default:"agent.logs"`
	GroupID        string   `yaml:"group_id" default:"finagent-live"`
	RequiredAcks   int      `yaml:"required_acks" default:"-1"`
	Compression    string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
	Workers        int      `yaml:"workers" default:"4" validate:"gte=1"`
}

type QueueConfig struct {
	Enabled    bool          `yaml:"enabled"`
	Workers    int           `yaml:"workers" default:"2" validate:"gte=1"`
	QueueSize  int           `yaml:"queue_size" default:"100" validate:"gte=1"`
	RetryLimit int           `yaml:"retry_limit" default:"3" validate:"gte=0"`
	RetryDelay time.Duration `yaml:"retry_delay" default:"5s"`
	KeyPrefix  string        `yaml:"key_prefix" default:"finagent"`
}

type LiveConfig struct {
	AgentID  string   `yaml:"agent_id"`
	Symbols  []string `yaml:"symbols"`
	Interval string   `yaml:"interval" default:"1m"`
	Source   string   `yaml:"source" default:"binance" validate:"oneof=binance kafka"`
	Balance  float64  `yaml:"balance" default:"1000" validate:"gte=0"`
	// Warmup is the data source spec used to fill the window before live bars arrive.
	Warmup string `yaml:"warmup"`
}

type RateLimit struct {
	RequestsPerMinute int `yaml:"requests_per_minute" default:"30" validate:"gte=1"`
	Burst             int `yaml:"burst" default:"5" validate:"gte=1"`
}

var validate = validator.New()

// Default returns the configuration with every default applied.
func Default() *Config {
	var c Config
	if err := defaults.Set(&c); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return &c
}

// Load reads a YAML configuration file over the defaults. An empty path
// yields the defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config and overrides it with environment variables.
func LoadWithEnv(path string) (*Config, error) {
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
	if v := os.Getenv("MODEL_SAVE_PATH"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.Data.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PREDICTOR_SERVICE_URL"); v != "" {
		c.Predictor.ServiceURL = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Data.APIKey = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Cache.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("LIVE_SYMBOLS"); v != "" {
		c.Live.Symbols = splitList(v)
	}
}

// Validate checks field rules and the dependencies between sections.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Live.Source == "kafka" && c.Live.AgentID != "" && !c.Kafka.Enabled {
		return fmt.Errorf("live.source kafka requires kafka.enabled")
	}
	if c.Queue.Enabled && !c.Cache.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires cache.redis.enabled")
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
