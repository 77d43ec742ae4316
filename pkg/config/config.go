package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"FxPulse/pkg/util"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Server      struct {
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"15s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Log struct {
		Level         string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format        string        `yaml:"format" default:"console" validate:"oneof=console json"`
		Collect       bool          `yaml:"collect"`
		Queue         string        `yaml:"queue" default:"error-logs"`
		FlushInterval time.Duration `yaml:"flush_interval" default:"30s"`
		FlushSize     int           `yaml:"flush_size" default:"100" validate:"gt=0"`
		Warnings      bool          `yaml:"collect_warnings"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Storage struct {
		Backend         string        `yaml:"backend" default:"memory" validate:"oneof=memory redis"`
		RecentRetention time.Duration `yaml:"recent_retention" default:"168h"`
	} `yaml:"storage"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"fxpulse"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled            bool     `yaml:"enabled"`
		Brokers            []string `yaml:"brokers"`
		ReportsTopic       string   `yaml:"reports_topic" default:"cycle-reports"`
		NotificationsTopic string   `yaml:"notifications_topic" default:"notifications"`
		AcksTopic          string   `yaml:"acks_topic" default:"notification-acks"`
		RequiredAcks       int      `yaml:"required_acks" default:"1"`
		Compression        string   `yaml:"compression" default:"snappy"`
		Producer           struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"fxpulse-acks"`
			StartOffset string        `yaml:"start_offset" default:"earliest" validate:"oneof=earliest latest"`
			Workers     int           `yaml:"workers" default:"2"`
			BufferSize  int           `yaml:"buffer_size" default:"100"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fxpulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		Compression      string        `yaml:"compression" default:"lz4" validate:"oneof=none lz4 zstd"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Gateway struct {
		MarketURL     string        `yaml:"market_url" validate:"required,url"`
		PredictionURL string        `yaml:"prediction_url" validate:"required,url"`
		Timeout       time.Duration `yaml:"timeout" default:"5s" validate:"gt=0"`
		CacheTTL      time.Duration `yaml:"cache_ttl" default:"20s"`
		Candles       int           `yaml:"candles" default:"50" validate:"gte=2"`
		RateLimit     struct {
			Capacity        float64 `yaml:"capacity" default:"20"`
			RefillPerSecond float64 `yaml:"refill_per_second" default:"10"`
		} `yaml:"rate_limit"`
		Fallback bool `yaml:"fallback" default:"true"`
	} `yaml:"gateway"`
	Accounts struct {
		BaseURL string        `yaml:"base_url" validate:"required,url"`
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"accounts"`
	Risk struct {
		ReversalThreshold float64 `yaml:"reversal_threshold" default:"0.6" validate:"gte=0,lte=1"`
		TargetProgress    float64 `yaml:"target_progress" default:"0.8" validate:"gt=0,lte=1"`
	} `yaml:"risk"`
	Scheduler struct {
		Interval        time.Duration `yaml:"interval" default:"5m" validate:"gt=0"`
		Workers         int           `yaml:"workers" default:"8" validate:"gte=1"`
		UnitRetries     int           `yaml:"unit_retries" default:"2" validate:"gte=0"`
		RetryBackoffMin time.Duration `yaml:"retry_backoff_min" default:"200ms"`
		RetryBackoffMax time.Duration `yaml:"retry_backoff_max" default:"2s"`
		AutoStart       bool          `yaml:"auto_start" default:"true"`
		Pairs           []string      `yaml:"pairs" validate:"required,min=1,dive,required"`
		Timeframes      []string      `yaml:"timeframes" validate:"required,min=1,dive,oneof=1h 4h 1d 1w"`
	} `yaml:"scheduler"`
	Dispatch struct {
		ChannelTimeout time.Duration `yaml:"channel_timeout" default:"10s" validate:"gt=0"`
	} `yaml:"dispatch"`
	Channels struct {
		Telegram struct {
			Enabled  bool   `yaml:"enabled"`
			BotToken string `yaml:"bot_token"`
			APIURL   string `yaml:"api_url" default:"https://api.telegram.org"`
		} `yaml:"telegram"`
		Discord struct {
			Enabled bool `yaml:"enabled"`
		} `yaml:"discord"`
		Email struct {
			Enabled  bool   `yaml:"enabled"`
			Host     string `yaml:"host"`
			Port     int    `yaml:"port" default:"587"`
			Username string `yaml:"username"`
			Password string `yaml:"password"`
			From     string `yaml:"from"`
		} `yaml:"email"`
		InApp struct {
			Enabled      bool          `yaml:"enabled" default:"true"`
			IdleTimeout  time.Duration `yaml:"idle_timeout" default:"2m"`
			PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
			TokenPrefix  string        `yaml:"token_prefix" default:"session-token"`
			Inbox        struct {
				Queue         string        `yaml:"queue" default:"inbox"`
				Workers       int           `yaml:"workers" default:"2"`
				RetryLimit    int           `yaml:"retry_limit" default:"20"`
				RetryDelay    time.Duration `yaml:"retry_delay" default:"15s"`
				MaxRetryDelay time.Duration `yaml:"max_retry_delay" default:"10m"`
			} `yaml:"inbox"`
		} `yaml:"in_app"`
	} `yaml:"channels"`
}

// Default returns a configuration with every default applied.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// LoadWithEnv loads config from YAML and overrides with environment variables
// before validating, so secrets and endpoints may live only in the environment.
func LoadWithEnv(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	c, err := decode(b)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func decode(b []byte) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := getenv("REDIS_PORT"); v != "" {
		c.Redis.Port = util.ParseIntDefault(v, c.Redis.Port)
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("MARKET_URL"); v != "" {
		c.Gateway.MarketURL = v
	}
	if v := getenv("PREDICTION_URL"); v != "" {
		c.Gateway.PredictionURL = v
	}
	if v := getenv("ACCOUNTS_URL"); v != "" {
		c.Accounts.BaseURL = v
	}
	if v := getenv("ACCOUNTS_TOKEN"); v != "" {
		c.Accounts.Token = v
	}
	if v := getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Channels.Telegram.BotToken = v
	}
	if v := getenv("SMTP_PASSWORD"); v != "" {
		c.Channels.Email.Password = v
	}
	if v := getenv("PAIRS"); v != "" {
		c.Scheduler.Pairs = strings.Split(v, ",")
	}
}

var validate = validator.New()

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.BotToken == "" {
		return fmt.Errorf("channels.telegram.bot_token is required")
	}
	if c.Channels.Email.Enabled && (c.Channels.Email.Host == "" || c.Channels.Email.From == "") {
		return fmt.Errorf("channels.email.host and channels.email.from are required")
	}
	if r := c.Storage.RecentRetention; r != 0 && r < 24*time.Hour {
		return fmt.Errorf("storage.recent_retention must be 0 or at least 24h, got %s", r)
	}
	if c.Scheduler.RetryBackoffMax < c.Scheduler.RetryBackoffMin {
		return fmt.Errorf("scheduler.retry_backoff_max must not be below retry_backoff_min")
	}
	return nil
}
