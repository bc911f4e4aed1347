package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		RequestTimeout  time.Duration `yaml:"request_timeout"`
		CORSOrigins     []string      `yaml:"cors_origins"`
		SlowThreshold   time.Duration `yaml:"slow_threshold"`
		RateLimit       struct {
			Enabled bool    `yaml:"enabled"`
			RPS     float64 `yaml:"rps"`
			Burst   int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Logger struct {
		Level     string `yaml:"level"`
		Format    string `yaml:"format"`
		Output    string `yaml:"output"`
		Collector struct {
			Enabled        bool          `yaml:"enabled"`
			Topic          string        `yaml:"topic"`
			Interval       time.Duration `yaml:"interval"`
			CountThreshold int           `yaml:"count_threshold"`
		} `yaml:"collector"`
	} `yaml:"logger"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Source struct {
		Type         string        `yaml:"type"`
		RetryMax     int           `yaml:"retry_max"`
		RetryBackoff time.Duration `yaml:"retry_backoff"`
	} `yaml:"source"`
	Postgres struct {
		DSN             string        `yaml:"dsn"`
		MaxConns        int32         `yaml:"max_conns"`
		MinConns        int32         `yaml:"min_conns"`
		ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		ConnectTimeout  time.Duration `yaml:"connect_timeout"`
	} `yaml:"postgres"`
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
	} `yaml:"clickhouse"`
	Supabase struct {
		URL     string        `yaml:"url"`
		Key     string        `yaml:"key"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"supabase"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
		// pool settings; zero keeps the client defaults
		PoolSize     int           `yaml:"pool_size"`
		MinIdleConns int           `yaml:"min_idle_conns"`
		PoolTimeout  time.Duration `yaml:"pool_timeout"`
		// entries held in process in front of Redis
		LocalSize int `yaml:"local_size"`
	} `yaml:"redis"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		PredictionTopic string   `yaml:"prediction_topic"`
		IngestTopic     string   `yaml:"ingest_topic"`
		RequiredAcks    int      `yaml:"required_acks"`
		Compression     string   `yaml:"compression"`
		Producer        struct {
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
			StoreRPS   float64       `yaml:"store_rps"`
			StoreBurst int           `yaml:"store_burst"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Forecast struct {
		DefaultHorizon     int     `yaml:"default_horizon"`
		MaxHorizon         int     `yaml:"max_horizon"`
		MinTrainingRows    int     `yaml:"min_training_rows"`
		ModelVersion       string  `yaml:"model_version"`
		PersistPredictions bool    `yaml:"persist_predictions"`
		Trees              int     `yaml:"trees"`
		MaxDepth           int     `yaml:"max_depth"`
		LearningRate       float64 `yaml:"learning_rate"`
		Seed               uint64  `yaml:"seed"`
	} `yaml:"forecast"`
	Registry struct {
		MaxEntries               int           `yaml:"max_entries"`
		MaxAge                   time.Duration `yaml:"max_age"`
		RetrainAfterObservations int           `yaml:"retrain_after_observations"`
	} `yaml:"registry"`
	Predictions struct {
		Sink  string `yaml:"sink"`
		Table string `yaml:"table"`
	} `yaml:"predictions"`
	Products struct {
		CacheTTL time.Duration `yaml:"cache_ttl"`
	} `yaml:"products"`
	Export struct {
		Dir string `yaml:"dir"`
	} `yaml:"export"`
	Targets []Target `yaml:"targets"`
}

// Target is one (product, city) pair forecast by the batch command.
type Target struct {
	Product string `yaml:"product"`
	City    string `yaml:"city"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
	if v := getenv("LOG_LEVEL"); v != "" {
		c.Logger.Level = v
	}
	if v := getenv("SOURCE_TYPE"); v != "" {
		c.Source.Type = v
	}
	if v := getenv("DATABASE_URL"); v != "" {
		c.Postgres.DSN = v
	}
	if v := getenv("SUPABASE_URL"); v != "" {
		c.Supabase.URL = v
	}
	if v := getenv("SUPABASE_KEY"); v != "" {
		c.Supabase.Key = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Logger.Output == "" {
		c.Logger.Output = "stdout"
	}
	if c.Forecast.DefaultHorizon == 0 {
		c.Forecast.DefaultHorizon = 3
	}
	if c.Forecast.MaxHorizon == 0 {
		c.Forecast.MaxHorizon = 30
	}
	if c.Forecast.MinTrainingRows == 0 {
		c.Forecast.MinTrainingRows = 1
	}
	if c.Predictions.Sink == "" {
		c.Predictions.Sink = "none"
	}
	if c.Predictions.Table == "" {
		c.Predictions.Table = "price_predictions"
	}
	if c.Products.CacheTTL == 0 {
		c.Products.CacheTTL = 5 * time.Minute
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Source.Type {
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for source.type 'postgres'")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for source.type 'clickhouse'")
		}
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("supabase.url and supabase.key are required for source.type 'supabase'")
		}
	case "":
		return fmt.Errorf("source.type is required")
	default:
		return fmt.Errorf("source.type must be 'postgres', 'clickhouse' or 'supabase', got '%s'", c.Source.Type)
	}
	switch c.Predictions.Sink {
	case "none":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required for predictions.sink 'postgres'")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 || c.Kafka.PredictionTopic == "" {
			return fmt.Errorf("kafka.brokers and kafka.prediction_topic are required for predictions.sink 'kafka'")
		}
	case "supabase":
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			return fmt.Errorf("supabase.url and supabase.key are required for predictions.sink 'supabase'")
		}
	default:
		return fmt.Errorf("predictions.sink must be one of none, postgres, kafka, supabase; got '%s'", c.Predictions.Sink)
	}
	if c.Kafka.Consumer.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.IngestTopic == "") {
		return fmt.Errorf("kafka.brokers and kafka.ingest_topic are required when kafka.consumer.enabled")
	}
	if c.Forecast.DefaultHorizon < 1 || c.Forecast.DefaultHorizon > c.Forecast.MaxHorizon {
		return fmt.Errorf("forecast.default_horizon must be between 1 and forecast.max_horizon")
	}
	if c.Forecast.MinTrainingRows < 1 {
		return fmt.Errorf("forecast.min_training_rows must be >= 1")
	}
	for i, t := range c.Targets {
		if t.Product == "" || t.City == "" {
			return fmt.Errorf("targets[%d] needs product and city", i)
		}
	}
	return nil
}
