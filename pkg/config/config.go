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
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=json console"`
		Output string `yaml:"output" default:"stdout"`
		// Warn and error lines are aggregated and shipped to kafka.logs_topic
		// when backend.type is kafka.
		CollectInterval  time.Duration `yaml:"collect_interval" default:"30s" validate:"gt=0"`
		CollectThreshold int           `yaml:"collect_threshold" default:"100" validate:"gte=1"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"60s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Backend struct {
		Type         string        `yaml:"type" default:"none" validate:"oneof=none kafka clickhouse"`
		BatchSize    int           `yaml:"batch_size" default:"100"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
	} `yaml:"backend"`
	Strategy StrategyConfig `yaml:"strategy"`
	Swarm    SwarmConfig    `yaml:"swarm"`
	Backtest BacktestConfig `yaml:"backtest"`
	Data     DataConfig     `yaml:"data"`
	LLM      LLMConfig      `yaml:"llm"`
	Yahoo    struct {
		BaseURL string        `yaml:"base_url" default:"https://query1.finance.yahoo.com"`
		Timeout time.Duration `yaml:"timeout" default:"15s"`
		RPS     float64       `yaml:"rps" default:"2"`
	} `yaml:"yahoo"`
	Kafka struct {
		Brokers      []string `yaml:"brokers"`
		FillsTopic   string   `yaml:"fills_topic" default:"regimetrader.fills"`
		BarsTopic    string   `yaml:"bars_topic" default:"regimetrader.bars"`
		LogsTopic    string   `yaml:"logs_topic" default:"regimetrader.logs"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip" validate:"oneof=gzip snappy lz4 zstd"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"100ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			Enabled    bool          `yaml:"enabled"`
			GroupID    string        `yaml:"group_id" default:"regimetrader"`
			Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"regimetrader"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"regimetrader"`
	} `yaml:"redis"`
	Queue struct {
		Enabled    bool          `yaml:"enabled"`
		Workers    int           `yaml:"workers" default:"1" validate:"gte=1"`
		RetryLimit int           `yaml:"retry_limit" default:"2" validate:"gte=0"`
		RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		Prefix     string        `yaml:"prefix" default:"regimetrader:queue"`
	} `yaml:"queue"`
	Postgres struct {
		Enabled  bool   `yaml:"enabled"`
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns" default:"4"`
	} `yaml:"postgres"`
	Stream struct {
		Enabled        bool          `yaml:"enabled"`
		URL            string        `yaml:"url" default:"ws://localhost:8765/bars"`
		Symbols        []string      `yaml:"symbols"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
		MaxRPS         int           `yaml:"max_rps" default:"20"`
		BufferSize     int           `yaml:"buffer_size" default:"1000"`
	} `yaml:"stream"`
}

// StrategyConfig mirrors strategy.Params; every threshold is explicit so a run
// can be reproduced from its config file alone.
type StrategyConfig struct {
	Kind              string  `yaml:"kind" default:"adaptive" validate:"oneof=adaptive swarm trend"`
	BullThreshold     float64 `yaml:"bull_threshold" default:"0.5"`
	BearThreshold     float64 `yaml:"bear_threshold" default:"-0.5"`
	ConfirmBars       int     `yaml:"confirm_bars" default:"1" validate:"gte=1"`
	AggressiveEntry   float64 `yaml:"aggressive_entry" default:"0.0"`
	AggressiveExit    float64 `yaml:"aggressive_exit" default:"-0.5"`
	AggressiveSize    float64 `yaml:"aggressive_size" default:"0.95" validate:"gte=0,lte=1"`
	DefensiveShort    float64 `yaml:"defensive_short" default:"-0.3"`
	DefensiveCover    float64 `yaml:"defensive_cover" default:"0.0"`
	DefensiveSize     float64 `yaml:"defensive_size" default:"0.5" validate:"gte=0,lte=1"`
	Lookback          int     `yaml:"lookback" default:"20" validate:"gte=2"`
	SupportPct        float64 `yaml:"support_pct" default:"0.03" validate:"gte=0,lt=1"`
	ResistancePct     float64 `yaml:"resistance_pct" default:"0.03" validate:"gte=0,lt=1"`
	MeanRevSize       float64 `yaml:"mean_reversion_size" default:"0.6" validate:"gte=0,lte=1"`
	MeanRevShort      bool    `yaml:"mean_reversion_short"`
	StopLossPct       float64 `yaml:"stop_loss_pct" default:"0.20" validate:"gte=0,lt=1"`
	TrailingStopPct   float64 `yaml:"trailing_stop_pct" default:"0.05" validate:"gte=0,lt=1"`
	DynamicThresholds bool    `yaml:"dynamic_thresholds"`
	CrossModeExit     bool    `yaml:"cross_mode_exit"`
	ADXPeriod         int     `yaml:"adx_period" default:"14" validate:"gte=2"`
	ADXThreshold      float64 `yaml:"adx_threshold" default:"25" validate:"gte=0,lte=100"`
}

type SwarmConfig struct {
	BuyThreshold   float64            `yaml:"buy_threshold" default:"0.25"`
	SellThreshold  float64            `yaml:"sell_threshold" default:"-0.25"`
	Warmup         int                `yaml:"warmup" default:"60" validate:"gte=0"`
	Size           float64            `yaml:"size" default:"0.95" validate:"gte=0,lte=1"`
	AccuracyAlpha  float64            `yaml:"accuracy_alpha" default:"0.1" validate:"gt=0,lte=1"`
	LearnAccuracy  bool               `yaml:"learn_accuracy" default:"true"`
	Weights        map[string]float64 `yaml:"weights" validate:"dive,gte=0"`
	DisabledAgents []string           `yaml:"disabled_agents"`
}

type BacktestConfig struct {
	InitialCash     float64 `yaml:"initial_cash" default:"100000" validate:"gt=0"`
	Commission      float64 `yaml:"commission" default:"0.001" validate:"gte=0,lt=1"`
	ExclusiveOrders bool    `yaml:"exclusive_orders" default:"true"`
	RiskFreeRate    float64 `yaml:"risk_free_rate" default:"0.02"`
	PeriodsPerYear  int     `yaml:"periods_per_year" default:"252" validate:"gt=0"`
	Journal         bool    `yaml:"journal"`
	Publish         bool    `yaml:"publish"`
}

type DataConfig struct {
	Source    string `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
	Symbol    string `yaml:"symbol" default:"NVDA" validate:"required"`
	VIXSymbol string `yaml:"vix_symbol" default:"^VIX"`
	Start     string `yaml:"start" default:"2023-01-01"`
	End       string `yaml:"end" default:"2024-01-01"`
	CSVPath   string `yaml:"csv_path" default:"data/nvda_real_data_2023.csv"`
	// BarPeriod is the bar length; a bar closes at its time plus BarPeriod.
	BarPeriod time.Duration `yaml:"bar_period" default:"24h" validate:"gt=0"`
	// StrictAsOf rejects bars without an as-of stamp instead of assuming a one-bar lag.
	StrictAsOf bool  `yaml:"strict_as_of"`
	Seed       int64 `yaml:"seed" default:"42"`
}

type LLMConfig struct {
	BaseURL         string        `yaml:"base_url" default:"https://api.deepseek.com"`
	Model           string        `yaml:"model" default:"deepseek-chat"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout" default:"30s"`
	MaxRetries      int           `yaml:"max_retries" default:"3" validate:"gte=1"`
	RetryDelay      time.Duration `yaml:"retry_delay" default:"2s"`
	Temperature     float64       `yaml:"temperature" default:"0.1"`
	MaxTokens       int           `yaml:"max_tokens" default:"10"`
	RPS             float64       `yaml:"rps" default:"2"`
	BreakerFailures uint32        `yaml:"breaker_failures" default:"5"`
	CacheTTL        time.Duration `yaml:"cache_ttl" default:"720h"`
}

var validate = validator.New()

// Default returns a config populated only from struct defaults.
func Default() *Config {
	var c Config
	_ = defaults.Set(&c)
	return &c
}

// Load reads and parses a YAML configuration file. Defaults are applied before
// decoding so explicit zero values in the file are kept.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML bytes on top of the defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file next to the working directory is loaded first when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	var c *Config
	if path == "" {
		c = Default()
	} else {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		c = loaded
	}

	applyEnv(c)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func applyEnv(c *Config) {
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		c.LLM.APIKey = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		c.Data.Symbol = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend.Type = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
		c.Postgres.Enabled = true
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			if p, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = p
			}
		}
		c.Redis.Enabled = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// Validate checks field rules and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%s failed on '%s' (param %q)", fe.Namespace(), fe.Tag(), fe.Param())
		}
		return err
	}
	if c.Strategy.BullThreshold <= c.Strategy.BearThreshold {
		return fmt.Errorf("strategy.bull_threshold (%v) must be greater than strategy.bear_threshold (%v)",
			c.Strategy.BullThreshold, c.Strategy.BearThreshold)
	}
	if c.Swarm.BuyThreshold < c.Swarm.SellThreshold {
		return fmt.Errorf("swarm.buy_threshold must not be below swarm.sell_threshold")
	}
	if c.Backend.Type == "kafka" && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when backend.type is 'kafka'")
	}
	if c.Backend.Type == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse.enabled must be true when backend.type is 'clickhouse'")
	}
	if c.Data.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse.enabled must be true when data.source is 'clickhouse'")
	}
	if c.Kafka.Consumer.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka.consumer.enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("redis.enabled must be true when queue.enabled")
	}
	if c.Postgres.Enabled && c.Postgres.DSN == "" {
		return fmt.Errorf("postgres.dsn is required when postgres.enabled")
	}
	if c.Stream.Enabled && len(c.Stream.Symbols) == 0 {
		return fmt.Errorf("stream.symbols cannot be empty when stream.enabled")
	}
	if _, _, err := c.Data.Range(); err != nil {
		return err
	}
	return nil
}

// Range parses data.start and data.end. Empty values leave the bound zero.
func (d DataConfig) Range() (from, to time.Time, err error) {
	if d.Start != "" {
		if from, err = time.Parse(time.DateOnly, d.Start); err != nil {
			return from, to, fmt.Errorf("data.start: %w", err)
		}
	}
	if d.End != "" {
		if to, err = time.Parse(time.DateOnly, d.End); err != nil {
			return from, to, fmt.Errorf("data.end: %w", err)
		}
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return from, to, fmt.Errorf("data.end (%s) must be after data.start (%s)", d.End, d.Start)
	}
	return from, to, nil
}
