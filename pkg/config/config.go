package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"RiskGate/pkg/util"

	"github.com/creasty/defaults"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Log         struct {
		Level     string `yaml:"level" default:"info"`
		Format    string `yaml:"format" default:"console"`
		Output    string `yaml:"output" default:"stdout"`
		Collector struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"riskgate.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
			Level     string        `yaml:"level" default:"error"`
		} `yaml:"collector"`
	} `yaml:"log"`
	Tracing struct {
		Endpoint string `yaml:"endpoint"` // OTLP gRPC endpoint; empty disables export
		Service  string `yaml:"service" default:"riskgate"`
	} `yaml:"tracing"`
	Server struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
		SlowRequest     time.Duration `yaml:"slow_request" default:"2s"`
		BodyLimit       string        `yaml:"body_limit" default:"1M"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
		RateLimit       struct {
			Capacity     float64 `yaml:"capacity" default:"20"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"5"`
		} `yaml:"rate_limit"`
	} `yaml:"server"`
	Cache struct {
		Backend       string        `yaml:"backend" default:"memory"` // memory | redis | layered
		HistoryTTL    time.Duration `yaml:"history_ttl" default:"5s"`
		MemoryMaxSize int           `yaml:"memory_max_size" default:"10000"`
	} `yaml:"cache"`
	Redis struct {
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		Prefix   string `yaml:"prefix" default:"riskgate"`
	} `yaml:"redis"`
	Storage struct {
		Backend string `yaml:"backend" default:"memory"` // memory | clickhouse
	} `yaml:"storage"`
	Users struct {
		Backend string     `yaml:"backend" default:"memory"` // memory | redis
		Seed    []SeedUser `yaml:"seed"`
	} `yaml:"users"`
	Kafka struct {
		Enabled             bool     `yaml:"enabled"`
		Brokers             []string `yaml:"brokers"`
		StageTopic          string   `yaml:"stage_topic" default:"riskgate.pipeline.stages"`
		ReviewDecisionTopic string   `yaml:"review_decision_topic" default:"riskgate.review.decisions"`
		RequiredAcks        int      `yaml:"required_acks" default:"-1"`
		Compression         string   `yaml:"compression" default:"gzip"`
		Producer            struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"riskgate"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes" default:"1"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"riskgate"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Review struct {
		Backend       string        `yaml:"backend" default:"memory"` // memory | redis
		Deadline      time.Duration `yaml:"deadline" default:"24h"`
		SweepInterval time.Duration `yaml:"sweep_interval" default:"1m"`
		Workers       int           `yaml:"workers" default:"1"`
		RetryDelay    time.Duration `yaml:"retry_delay" default:"1m"`
	} `yaml:"review"`
	Pipeline struct {
		StageTimeout              time.Duration `yaml:"stage_timeout" default:"5s"`
		RetryAttempts             int           `yaml:"retry_attempts" default:"3"`
		RetryBaseDelay            time.Duration `yaml:"retry_base_delay" default:"100ms"`
		HighValueThreshold        float64       `yaml:"high_value_threshold" default:"5000"`
		UrgentThreshold           float64       `yaml:"urgent_threshold" default:"10000"`
		WithdrawalReviewThreshold float64       `yaml:"withdrawal_review_threshold"` // 0 disables
		Currencies                []string      `yaml:"currencies"`
		Retention                 time.Duration `yaml:"retention" default:"1h"`
		PruneInterval             time.Duration `yaml:"prune_interval" default:"5m"`
	} `yaml:"pipeline"`
	Activity struct {
		Backend      string        `yaml:"backend" default:"store"` // store | kafka
		Topic        string        `yaml:"topic" default:"riskgate.activity"`
		BatchSize    int           `yaml:"batch_size" default:"500"`
		BatchTimeout time.Duration `yaml:"batch_timeout" default:"1s"`
		QueueSize    int           `yaml:"queue_size" default:"10000"`
	} `yaml:"activity"`
	Stream struct {
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
		BufferSize   int           `yaml:"buffer_size" default:"256"`
	} `yaml:"stream"`
	Limits struct {
		Location   string     `yaml:"location" default:"UTC"`
		WeekStart  string     `yaml:"week_start" default:"monday"`
		Deposit    KindLimits `yaml:"deposit"`
		Withdrawal KindLimits `yaml:"withdrawal"`
	} `yaml:"limits"`
	Risk struct {
		VelocityFlagThreshold int      `yaml:"velocity_flag_threshold" default:"8"`
		KYCThreshold          float64  `yaml:"kyc_threshold" default:"2000"`
		ReportingThreshold    float64  `yaml:"reporting_threshold" default:"10000"`
		HighRiskCountries     []string `yaml:"high_risk_countries"`
		Predictor             struct {
			Type     string        `yaml:"type" default:"heuristic"` // heuristic | http
			URL      string        `yaml:"url"`
			Timeout  time.Duration `yaml:"timeout" default:"2s"`
			Attempts int           `yaml:"attempts" default:"2"`
		} `yaml:"predictor"`
	} `yaml:"risk"`
	Compliance struct {
		Rules []RuleConfig `yaml:"rules"`
	} `yaml:"compliance"`
	Providers []ProviderConfig `yaml:"providers"`
}

// KindLimits bounds one transaction kind. Amounts are in the account currency.
type KindLimits struct {
	Min          float64 `yaml:"min" default:"10"`
	Max          float64 `yaml:"max" default:"50000"`
	HourlyCount  int     `yaml:"hourly_count" default:"10"`
	HourlyAmount float64 `yaml:"hourly_amount" default:"20000"`
	DailyCount   int     `yaml:"daily_count" default:"50"`
	DailyAmount  float64 `yaml:"daily_amount" default:"100000"`
	Day          float64 `yaml:"day" default:"50000"`
	Week         float64 `yaml:"week" default:"200000"`
	Month        float64 `yaml:"month" default:"500000"`
}

type RuleConfig struct {
	ID       string                 `yaml:"id"`
	Type     string                 `yaml:"type"`
	Severity string                 `yaml:"severity" default:"critical"`
	Disabled bool                   `yaml:"disabled"`
	Params   map[string]interface{} `yaml:"params"`
	Actions  []string               `yaml:"actions"`
}

type ProviderConfig struct {
	ID              string        `yaml:"id"`
	Name            string        `yaml:"name"`
	Disabled        bool          `yaml:"disabled"`
	Kinds           []string      `yaml:"kinds"`
	FixedFee        float64       `yaml:"fixed_fee"`
	PercentFee      float64       `yaml:"percent_fee"`
	MinLatency      time.Duration `yaml:"min_latency" default:"20ms"`
	MaxLatency      time.Duration `yaml:"max_latency" default:"200ms"`
	SuccessRate     float64       `yaml:"success_rate" default:"0.98"`
	TimeoutShare    float64       `yaml:"timeout_share" default:"0.5"` // share of failures that are transient
	HealthThreshold float64       `yaml:"health_threshold" default:"0.8"`
}

type SeedUser struct {
	ID          string  `yaml:"id"`
	Balance     float64 `yaml:"balance"`
	KYCLevel    int     `yaml:"kyc_level"`
	KYCVerified bool    `yaml:"kyc_verified"`
	VIPLevel    int     `yaml:"vip_level"`
	Country     string  `yaml:"country"`
	AgeDays     int     `yaml:"age_days" default:"365"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, fills defaults and validates.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.applyDefaults(); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// Default returns a validated configuration built only from defaults.
func Default() *Config {
	c, err := Parse([]byte("{}"))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return c
}

// LoadWithEnv loads .env (if present), the YAML file, then applies environment overrides.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("RISKGATE_ENV"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("REDIS_HOST"); v != "" {
		c.Redis.Host = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Tracing.Endpoint = v
	}
	if v := os.Getenv("PREDICTOR_URL"); v != "" {
		c.Risk.Predictor.URL = v
		c.Risk.Predictor.Type = "http"
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyDefaults() error {
	if err := defaults.Set(c); err != nil {
		return err
	}
	if len(c.Compliance.Rules) == 0 {
		c.Compliance.Rules = DefaultRules()
	}
	if len(c.Providers) == 0 {
		c.Providers = DefaultProviders()
	}
	for i := range c.Compliance.Rules {
		if err := defaults.Set(&c.Compliance.Rules[i]); err != nil {
			return err
		}
	}
	for i := range c.Providers {
		if err := defaults.Set(&c.Providers[i]); err != nil {
			return err
		}
	}
	if len(c.Pipeline.Currencies) == 0 {
		c.Pipeline.Currencies = []string{"USD", "EUR", "GBP"}
	}
	return nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if !oneOf(c.Cache.Backend, "memory", "redis", "layered") {
		return fmt.Errorf("cache.backend must be memory, redis or layered, got '%s'", c.Cache.Backend)
	}
	if !oneOf(c.Storage.Backend, "memory", "clickhouse") {
		return fmt.Errorf("storage.backend must be memory or clickhouse, got '%s'", c.Storage.Backend)
	}
	if !oneOf(c.Users.Backend, "memory", "redis") {
		return fmt.Errorf("users.backend must be memory or redis, got '%s'", c.Users.Backend)
	}
	if !oneOf(c.Review.Backend, "memory", "redis") {
		return fmt.Errorf("review.backend must be memory or redis, got '%s'", c.Review.Backend)
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if !oneOf(c.Activity.Backend, "store", "kafka") {
		return fmt.Errorf("activity.backend must be store or kafka, got '%s'", c.Activity.Backend)
	}
	if c.Activity.Backend == "kafka" && !c.Kafka.Enabled {
		return fmt.Errorf("activity.backend kafka requires kafka")
	}
	if c.Log.Collector.Enabled && !c.Kafka.Enabled {
		return fmt.Errorf("log.collector requires kafka")
	}
	if c.Risk.Predictor.Type == "http" && c.Risk.Predictor.URL == "" {
		return fmt.Errorf("risk.predictor.url is required for the http predictor")
	}
	if c.Pipeline.StageTimeout <= 0 {
		return fmt.Errorf("pipeline.stage_timeout must be positive")
	}
	if _, err := time.LoadLocation(c.Limits.Location); err != nil {
		return fmt.Errorf("limits.location: %w", err)
	}
	if _, ok := util.ParseWeekday(c.Limits.WeekStart); !ok {
		return fmt.Errorf("limits.week_start: unknown weekday '%s'", c.Limits.WeekStart)
	}
	for name, l := range map[string]KindLimits{"deposit": c.Limits.Deposit, "withdrawal": c.Limits.Withdrawal} {
		if l.Min < 0 || l.Max <= l.Min {
			return fmt.Errorf("limits.%s: min must be below max", name)
		}
	}

	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if p.ID == "" {
			return fmt.Errorf("providers: id is required")
		}
		if seen[p.ID] {
			return fmt.Errorf("providers: duplicate id %s", p.ID)
		}
		seen[p.ID] = true
		if p.MaxLatency < p.MinLatency {
			return fmt.Errorf("providers.%s: max_latency below min_latency", p.ID)
		}
	}

	for _, r := range c.Compliance.Rules {
		if r.ID == "" {
			return fmt.Errorf("compliance.rules: id is required")
		}
		if !oneOf(r.Type, "kyc", "aml", "sanctions", "velocity", "amount") {
			return fmt.Errorf("compliance.rules.%s: unknown type '%s'", r.ID, r.Type)
		}
		if err := r.validateParams(); err != nil {
			return fmt.Errorf("compliance.rules.%s: %w", r.ID, err)
		}
	}
	return nil
}

// validateParams checks the parameters each rule type reads at evaluation.
func (r RuleConfig) validateParams() error {
	var required, optional []string
	switch r.Type {
	case "amount":
		required = []string{"max_amount"}
	case "kyc":
		required, optional = []string{"threshold"}, []string{"min_level"}
	case "sanctions":
		if len(stringList(r.Params["countries"])) == 0 {
			return fmt.Errorf("params.countries must list at least one country")
		}
	}
	for _, key := range required {
		if _, ok := r.Params[key]; !ok {
			return fmt.Errorf("params.%s is required for %s rules", key, r.Type)
		}
	}
	for _, key := range append(required, optional...) {
		v, ok := r.Params[key]
		if ok && !isNumber(v) {
			return fmt.Errorf("params.%s must be a number, got %v", key, v)
		}
	}
	return nil
}

func isNumber(v interface{}) bool {
	switch n := v.(type) {
	case int, int64, float64:
		return true
	case string:
		_, err := strconv.ParseFloat(n, 64)
		return err == nil
	}
	return false
}

func stringList(v interface{}) []string {
	switch l := v.(type) {
	case []string:
		return l
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// DefaultRules is the rule set used when the file declares none.
func DefaultRules() []RuleConfig {
	return []RuleConfig{
		{ID: "max-single-amount", Type: "amount", Severity: "critical", Params: map[string]interface{}{"max_amount": 25000}, Actions: []string{"block"}},
		{ID: "kyc-large-amount", Type: "kyc", Severity: "critical", Params: map[string]interface{}{"threshold": 2000, "min_level": 2}, Actions: []string{"block", "request_kyc"}},
		{ID: "aml-flags", Type: "aml", Severity: "critical", Actions: []string{"block", "notify_compliance"}},
	}
}

// DefaultProviders is the provider set used when the file declares none.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{ID: "card", Name: "Card Acquirer", Kinds: []string{"deposit", "withdrawal"}, FixedFee: 0.30, PercentFee: 2.9},
		{ID: "bank_transfer", Name: "Bank Transfer", Kinds: []string{"deposit", "withdrawal"}, FixedFee: 1.00},
		{ID: "ewallet", Name: "E-Wallet", Kinds: []string{"deposit", "withdrawal"}, PercentFee: 1.5},
		{ID: "crypto", Name: "Crypto Gateway", Kinds: []string{"deposit", "withdrawal"}, PercentFee: 1.0},
	}
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}
