package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"EquiCast/pkg/util"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	ClickHouse struct {
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Brokers         []string `yaml:"brokers"`
		RunsTopic       string   `yaml:"runs_topic"`
		ActivationTopic string   `yaml:"activation_topic"`
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
			GroupID    string `yaml:"group_id"`
			MinBytes   int    `yaml:"min_bytes"`
			MaxBytes   int    `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	Queue struct {
		Addr       string        `yaml:"addr"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		Workers    int           `yaml:"workers"`
		RetryLimit int           `yaml:"retry_limit"`
		RetryDelay time.Duration `yaml:"retry_delay"`
	} `yaml:"queue"`
	MarketData struct {
		APIKey         string        `yaml:"api_key"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
		Enabled        bool          `yaml:"enabled"`
	} `yaml:"market_data"`
	Model struct {
		Lookback   int     `yaml:"lookback"`
		HiddenSize int     `yaml:"hidden_size"`
		Layers     int     `yaml:"layers"`
		Dropout    float64 `yaml:"dropout"`
	} `yaml:"model"`
	Training struct {
		Symbol        string        `yaml:"symbol"`
		HistoryDays   int           `yaml:"history_days"`
		Epochs        int           `yaml:"epochs"`
		BatchSize     int           `yaml:"batch_size"`
		LearningRate  float64       `yaml:"learning_rate"`
		TestRatio     float64       `yaml:"test_ratio"`
		ValRatio      float64       `yaml:"val_ratio"`
		Seed          int64         `yaml:"seed"`
		RunTimeout    time.Duration `yaml:"run_timeout"`
	} `yaml:"training"`
	Artifacts struct {
		Dir string `yaml:"dir"`
	} `yaml:"artifacts"`
	RateLimit struct {
		Enabled      bool    `yaml:"enabled"`
		Capacity     float64 `yaml:"capacity"`
		RefillPerSec float64 `yaml:"refill_per_sec"`
	} `yaml:"rate_limit"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	// Validate required fields
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

	// Override with environment variables
	if v := os.Getenv("MARKETDATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Queue.Addr = v
	}
	c.Server.Port = util.ParseIntDefault(os.Getenv("SERVER_PORT"), c.Server.Port)
	if v := os.Getenv("ARTIFACTS_DIR"); v != "" {
		c.Artifacts.Dir = v
	}
	if v := os.Getenv("TRAIN_SYMBOL"); v != "" {
		c.Training.Symbol = v
	}
	if v := os.Getenv("SEED"); v != "" {
		if seed, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Training.Seed = seed
		}
	}

	return c, nil
}

// applyDefaults fills hyperparameters and ratios left unset in YAML.
func (c *Config) applyDefaults() {
	if c.Model.Lookback == 0 {
		c.Model.Lookback = 60
	}
	if c.Model.HiddenSize == 0 {
		c.Model.HiddenSize = 50
	}
	if c.Model.Layers == 0 {
		c.Model.Layers = 2
	}
	if c.Model.Dropout == 0 {
		c.Model.Dropout = 0.2
	}
	if c.Training.Epochs == 0 {
		c.Training.Epochs = 50
	}
	if c.Training.BatchSize == 0 {
		c.Training.BatchSize = 64
	}
	if c.Training.LearningRate == 0 {
		c.Training.LearningRate = 0.001
	}
	if c.Training.TestRatio == 0 {
		c.Training.TestRatio = 0.2
	}
	if c.Training.ValRatio == 0 {
		c.Training.ValRatio = 0.2
	}
	if c.Training.HistoryDays == 0 {
		c.Training.HistoryDays = 365 * 3
	}
	if c.Artifacts.Dir == "" {
		c.Artifacts.Dir = "artifacts"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Training.Symbol == "" {
		return fmt.Errorf("training.symbol is required")
	}
	if c.Model.Lookback < 1 {
		return fmt.Errorf("model.lookback must be >= 1, got %d", c.Model.Lookback)
	}
	if c.Training.TestRatio <= 0 || c.Training.TestRatio >= 1 {
		return fmt.Errorf("training.test_ratio must be in (0,1), got %v", c.Training.TestRatio)
	}
	if c.Training.ValRatio < 0 || c.Training.ValRatio >= 1 {
		return fmt.Errorf("training.val_ratio must be in [0,1), got %v", c.Training.ValRatio)
	}
	if c.MarketData.Enabled && c.MarketData.APIKey == "" {
		return fmt.Errorf("market_data.api_key is required when market_data.enabled")
	}
	return nil
}
