package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the single validated configuration struct, constructed once at
// startup and passed by reference into every component constructor. No
// component reads configuration at runtime.
type Config struct {
	Environment string `yaml:"environment" default:"dev"`
	Symbol      string `yaml:"symbol" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"gt=0,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`

	Feed struct {
		// Source selects the candle feed backend.
		Source         string        `yaml:"source" default:"websocket" validate:"oneof=websocket kafka"`
		WebSocketURL   string        `yaml:"websocket_url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
	} `yaml:"feed"`

	// TimeframeMinutes lists the aggregation timeframes in minutes; the first
	// entry is the base resolution.
	TimeframeMinutes []int `yaml:"timeframes" validate:"min=1"`

	Psi struct {
		Window       int     `yaml:"window" default:"20" validate:"gte=5,lte=200"`
		Sensitivity  float64 `yaml:"sensitivity" default:"1.5" validate:"gt=0,lte=10"`
		Threshold    float64 `yaml:"threshold" default:"0.7" validate:"gte=0,lte=1"`
		PriceWeight  float64 `yaml:"price_weight" default:"0.4" validate:"gt=0"`
		VolumeWeight float64 `yaml:"volume_weight" default:"0.3" validate:"gte=0"`
		Bound        float64 `yaml:"bound" default:"1.0" validate:"gt=0"`
	} `yaml:"psi"`

	Features struct {
		// VectorSize is the contract with the classifiers; a mismatch against
		// the assembler layout is fatal at startup.
		VectorSize    int `yaml:"vector_size" default:"57" validate:"gt=0"`
		RecentCandles int `yaml:"recent_candles" default:"10" validate:"gt=0"`
		SequenceSpan  int `yaml:"sequence_span" default:"50" validate:"gt=1"`
		StatsPeriod   int `yaml:"stats_period" default:"14" validate:"gt=1"`
	} `yaml:"features"`

	Inference struct {
		ServiceURL    string        `yaml:"service_url"`
		Timeout       time.Duration `yaml:"timeout" default:"3s"`
		Retries       int           `yaml:"retries" default:"2" validate:"gte=0,lte=5"`
		TrendMinConf  float64       `yaml:"trend_min_confidence" default:"0.65" validate:"gte=0,lte=1"`
		ActionMinConf float64       `yaml:"action_min_confidence" default:"0.65" validate:"gte=0,lte=1"`
	} `yaml:"inference"`

	Trading struct {
		Mode                string  `yaml:"mode" default:"paper" validate:"oneof=paper live"`
		Leverage            int     `yaml:"leverage" default:"5" validate:"gte=1,lte=100"`
		MaxPyramidLevels    int     `yaml:"max_pyramid_levels" default:"3" validate:"gte=1,lte=10"`
		PositionSizePercent float64 `yaml:"position_size_percent" default:"2.0" validate:"gt=0,lte=100"`
		MinPositionValue    float64 `yaml:"min_position_value" default:"10.0" validate:"gte=0"`
		PyramidMinGainPct   float64 `yaml:"pyramid_min_gain_percent" default:"1.0" validate:"gt=0"`
	} `yaml:"trading"`

	Risk struct {
		StopLossPercent     float64 `yaml:"stop_loss_percent" default:"1.5" validate:"gt=0,lte=50"`
		TakeProfitPercent   float64 `yaml:"take_profit_percent" default:"3.0" validate:"gt=0,lte=100"`
		TrailingPercent     float64 `yaml:"trailing_percent" default:"0.5" validate:"gt=0,lte=10"`
		LockInPercent       float64 `yaml:"lock_in_percent" default:"1.0" validate:"gt=0"`
		MaxDailyLossPercent float64 `yaml:"max_daily_loss_percent" default:"5.0" validate:"gt=0,lte=50"`
	} `yaml:"risk"`

	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
		GroupID string   `yaml:"group_id" default:"psipulse"`
		// AuditTopic receives fused decisions for offline inspection.
		AuditTopic string `yaml:"audit_topic"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled     bool          `yaml:"enabled"`
		Host        string        `yaml:"host" default:"localhost"`
		Port        int           `yaml:"port" default:"9000"`
		Database    string        `yaml:"database" default:"psipulse"`
		User        string        `yaml:"user" default:"default"`
		Password    string        `yaml:"password"`
		DialTimeout time.Duration `yaml:"dial_timeout" default:"5s"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Load reads, defaults, and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if len(c.TimeframeMinutes) == 0 {
		c.TimeframeMinutes = []int{1, 5, 15, 30, 60, 240}
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment
// variables (SYMBOL, PSI_SENSITIVITY, TIMEFRAMES, ...).
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOL"); v != "" {
		c.Symbol = v
	}
	if v := os.Getenv("TRADING_MODE"); v != "" {
		c.Trading.Mode = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("INFERENCE_URL"); v != "" {
		c.Inference.ServiceURL = v
	}
	if v := os.Getenv("PSI_SENSITIVITY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Psi.Sensitivity = f
		}
	}
	if v := os.Getenv("PSI_FREQ_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Psi.Threshold = f
		}
	}
	if v := os.Getenv("PSI_TRAJECTORY_WINDOW"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Psi.Window = n
		}
	}
	if v := os.Getenv("TIMEFRAMES"); v != "" {
		mins := make([]int, 0, 6)
		for _, s := range strings.Split(v, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(s))
			if err != nil {
				return nil, fmt.Errorf("TIMEFRAMES: %w", err)
			}
			mins = append(mins, n)
		}
		c.TimeframeMinutes = mins
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks structural rules and cross-field constraints that tags
// cannot express. Configuration errors are fatal at startup, never
// auto-corrected at runtime.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	base := c.TimeframeMinutes[0]
	if base <= 0 {
		return fmt.Errorf("base timeframe must be positive")
	}
	for _, m := range c.TimeframeMinutes[1:] {
		if m <= base || m%base != 0 {
			return fmt.Errorf("timeframe %dm is not a multiple of base %dm", m, base)
		}
	}
	if c.Feed.Source == "kafka" && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("kafka feed requires brokers and topic")
	}
	if c.Feed.Source == "websocket" && c.Feed.WebSocketURL == "" {
		return fmt.Errorf("websocket feed requires websocket_url")
	}
	if c.Trading.Mode == "live" && c.Inference.ServiceURL == "" {
		return fmt.Errorf("live trading requires inference.service_url")
	}
	if c.Psi.PriceWeight+c.Psi.VolumeWeight <= 0 {
		return fmt.Errorf("psi weights must be positive")
	}
	return nil
}

// BaseTimeframeMinutes returns the base candle resolution in minutes.
func (c *Config) BaseTimeframeMinutes() int { return c.TimeframeMinutes[0] }
