package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Analyzer names accepted as strategy_weights keys.
const (
	AnalyzerTechnical   = "technical"
	AnalyzerStructural  = "structural"
	AnalyzerFundamental = "fundamental"
)

// KnownAnalyzers lists the closed set of signal sources in reasoning order.
var KnownAnalyzers = []string{AnalyzerTechnical, AnalyzerStructural, AnalyzerFundamental}

const weightSumTolerance = 1e-6

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`

	SystemIdentity struct {
		Name string `yaml:"name" default:"Seraph" validate:"required"`
	} `yaml:"system_identity"`

	SystemFiles struct {
		StatusFile       string `yaml:"status_file" default:"status.json" validate:"required"`
		EvaluationMarker string `yaml:"evaluation_marker" default:"last_evaluation.log" validate:"required"`
	} `yaml:"system_files"`

	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stdout" validate:"required"`
	} `yaml:"logging"`

	StrategyWeights map[string]float64 `yaml:"strategy_weights" validate:"required,min=1"`

	DecisionThresholds struct {
		BuyAbove  float64 `yaml:"buy_above" default:"0.55"`
		SellBelow float64 `yaml:"sell_below" default:"-0.55"`
	} `yaml:"decision_thresholds"`

	TradingParameters struct {
		SymbolsToTrade []string      `yaml:"symbols_to_trade" validate:"required,min=1,dive,required"`
		LotSize        float64       `yaml:"lot_size" default:"0.01" validate:"gt=0"`
		Timeframe      string        `yaml:"timeframe" default:"M15" validate:"oneof=M1 M5 M15 M30 H1 H4 D1"`
		BarsToFetch    int           `yaml:"bars_to_fetch" default:"210" validate:"gte=2"`
		CycleInterval  time.Duration `yaml:"cycle_interval" default:"5m" validate:"gt=0"`
		Deviation      int           `yaml:"deviation" default:"20" validate:"gte=0"`
		Magic          int64         `yaml:"magic" default:"202403"`
	} `yaml:"trading_parameters"`

	DynamicRiskManagement struct {
		ATRPeriod       int     `yaml:"atr_period" default:"14" validate:"gte=1"`
		SLATRMultiplier float64 `yaml:"sl_atr_multiplier" default:"1.5" validate:"gt=0"`
		TPATRMultiplier float64 `yaml:"tp_atr_multiplier" default:"3.0" validate:"gt=0"`
	} `yaml:"dynamic_risk_management"`

	StructuralParameters struct {
		SwingPointLookback   int     `yaml:"swing_point_lookback" default:"20" validate:"gte=2"`
		BOSChochThresholdATR float64 `yaml:"bos_choch_threshold_atr" default:"0.5" validate:"gte=0"`
	} `yaml:"structural_parameters"`

	TechnicalParameters struct {
		ModelServiceURL string `yaml:"model_service_url"`
		LookbackPeriod  int    `yaml:"lookback_period" default:"60" validate:"gte=1"`
		Attempts        int    `yaml:"attempts" default:"2" validate:"gte=1,lte=5"`
	} `yaml:"technical_parameters"`

	FundamentalParameters struct {
		SentimentServiceURL  string        `yaml:"sentiment_service_url"`
		CurrenciesOfInterest []string      `yaml:"currencies_of_interest"`
		CacheTTL             time.Duration `yaml:"cache_ttl" default:"30m"`
		RateLimit            struct {
			Capacity     float64 `yaml:"capacity" default:"5" validate:"gt=0"`
			RefillPerSec float64 `yaml:"refill_per_sec" default:"0.2" validate:"gt=0"`
		} `yaml:"rate_limit"`
	} `yaml:"fundamental_parameters"`

	EvaluatorSettings struct {
		JournalFile            string        `yaml:"journal_file" default:"trade_journal.jsonl" validate:"required"`
		LearningRate           float64       `yaml:"learning_rate" default:"0.05" validate:"gt=0"`
		EvaluationPeriodTrades int           `yaml:"evaluation_period_trades" default:"10" validate:"gte=1"`
		OutcomeSource          string        `yaml:"outcome_source" default:"venue" validate:"oneof=venue clickhouse"`
		HistoryPadding         time.Duration `yaml:"history_padding" default:"24h"`
		DistributedLock        bool          `yaml:"distributed_lock"`
	} `yaml:"evaluator_settings"`

	Timeouts struct {
		Analyzer time.Duration `yaml:"analyzer" default:"10s" validate:"gt=0"`
		Venue    time.Duration `yaml:"venue" default:"10s" validate:"gt=0"`
	} `yaml:"timeouts"`

	MarketData struct {
		Source string `yaml:"source" default:"bridge" validate:"oneof=bridge clickhouse"`
	} `yaml:"market_data"`

	Venue struct {
		Type        string `yaml:"type" default:"paper" validate:"oneof=paper bridge"`
		BridgeURL   string `yaml:"bridge_url"`
		BridgeToken string `yaml:"bridge_token"`
		Paper       struct {
			SpreadPoints int     `yaml:"spread_points" default:"10" validate:"gte=0"`
			Point        float64 `yaml:"point" default:"0.0001" validate:"gt=0"`
			Digits       int32   `yaml:"digits" default:"5" validate:"gte=0,lte=10"`
			ContractSize float64 `yaml:"contract_size" default:"100000" validate:"gt=0"`
		} `yaml:"paper"`
	} `yaml:"venue"`

	Server struct {
		Enabled         bool          `yaml:"enabled" default:"true"`
		Port            int           `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"30s"`
		CORSOrigins     []string      `yaml:"cors_origins"`
	} `yaml:"server"`

	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		RequiredAcks int      `yaml:"required_acks" default:"-1"`
		Compression  string   `yaml:"compression" default:"gzip"`
		Topics       struct {
			Decisions  string `yaml:"decisions" default:"fusiontrader.decisions"`
			Executions string `yaml:"executions" default:"fusiontrader.executions"`
			Deals      string `yaml:"deals" default:"fusiontrader.deals"`
			Logs       string `yaml:"logs" default:"fusiontrader.logs"`
		} `yaml:"topics"`
		Producer struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"200ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"fusiontrader"`
			Workers    int           `yaml:"workers" default:"1"`
			BufferSize int           `yaml:"buffer_size" default:"64"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic   string        `yaml:"dlq_topic"`
		} `yaml:"consumer"`
		LogCollector struct {
			Interval       time.Duration `yaml:"interval" default:"30s"`
			CountThreshold int           `yaml:"count_threshold" default:"100"`
		} `yaml:"log_collector"`
	} `yaml:"kafka"`

	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"fusiontrader"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
		MirrorJournal    bool          `yaml:"mirror_journal" default:"true"`
	} `yaml:"clickhouse"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix" default:"fusiontrader"`
		PoolSize int    `yaml:"pool_size" default:"10" validate:"gte=1"`
	} `yaml:"redis"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML document on top of the defaults and validates it.
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

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.TradingParameters.SymbolsToTrade = splitList(v)
	}
	if v := os.Getenv("LOT_SIZE"); v != "" {
		lot, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("LOT_SIZE: %w", err)
		}
		c.TradingParameters.LotSize = lot
	}
	if v := os.Getenv("VENUE_TYPE"); v != "" {
		c.Venue.Type = v
	}
	if v := os.Getenv("BRIDGE_URL"); v != "" {
		c.Venue.BridgeURL = v
	}
	if v := os.Getenv("BRIDGE_TOKEN"); v != "" {
		c.Venue.BridgeToken = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Host = host
		if ok {
			p, err := strconv.Atoi(port)
			if err != nil {
				return fmt.Errorf("REDIS_ADDR: %w", err)
			}
			c.Redis.Port = p
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
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

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if err := ValidateWeights(c.StrategyWeights); err != nil {
		return fmt.Errorf("strategy_weights: %w", err)
	}
	if c.DecisionThresholds.BuyAbove <= c.DecisionThresholds.SellBelow {
		return fmt.Errorf("decision_thresholds.buy_above (%v) must be greater than sell_below (%v)",
			c.DecisionThresholds.BuyAbove, c.DecisionThresholds.SellBelow)
	}
	if c.TradingParameters.BarsToFetch < c.DynamicRiskManagement.ATRPeriod {
		return fmt.Errorf("trading_parameters.bars_to_fetch must be >= dynamic_risk_management.atr_period")
	}
	if c.Venue.Type == "bridge" && c.Venue.BridgeURL == "" {
		return fmt.Errorf("venue.bridge_url is required when venue.type is 'bridge'")
	}
	if c.MarketData.Source == "bridge" && c.Venue.BridgeURL == "" {
		return fmt.Errorf("venue.bridge_url is required when market_data.source is 'bridge'")
	}
	if c.MarketData.Source == "clickhouse" && !c.ClickHouse.Enabled {
		return fmt.Errorf("clickhouse.enabled must be true when market_data.source is 'clickhouse'")
	}
	if c.EvaluatorSettings.OutcomeSource == "clickhouse" && !(c.ClickHouse.Enabled && c.Kafka.Enabled) {
		return fmt.Errorf("outcome_source 'clickhouse' requires clickhouse and kafka to be enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	if c.EvaluatorSettings.DistributedLock && !c.Redis.Enabled {
		return fmt.Errorf("evaluator_settings.distributed_lock requires redis.enabled")
	}
	return nil
}

// ValidateWeights checks keys, sign and the unit-sum invariant.
func ValidateWeights(ws map[string]float64) error {
	if len(ws) == 0 {
		return fmt.Errorf("no weights configured")
	}
	sum := 0.0
	for name, w := range ws {
		if !IsKnownAnalyzer(name) {
			return fmt.Errorf("unknown analyzer %q (known: %s)", name, strings.Join(KnownAnalyzers, ", "))
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("weight for %q must be a finite value >= 0, got %v", name, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("weights must sum to 1.0, got %v", sum)
	}
	return nil
}

// IsKnownAnalyzer reports whether name belongs to the closed analyzer set.
func IsKnownAnalyzer(name string) bool {
	for _, k := range KnownAnalyzers {
		if k == name {
			return true
		}
	}
	return false
}

// AnalyzerOrder returns the configured analyzer names in reasoning order.
func (c *Config) AnalyzerOrder() []string {
	out := make([]string, 0, len(c.StrategyWeights))
	for _, k := range KnownAnalyzers {
		if _, ok := c.StrategyWeights[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// WithWeights returns a deep copy of c carrying ws as strategy_weights.
func (c *Config) WithWeights(ws map[string]float64) *Config {
	cp := c.Clone()
	cp.StrategyWeights = make(map[string]float64, len(ws))
	for k, v := range ws {
		cp.StrategyWeights[k] = v
	}
	return cp
}

// Clone returns a copy that shares no maps or slices with c.
func (c *Config) Clone() *Config {
	cp := *c
	cp.StrategyWeights = make(map[string]float64, len(c.StrategyWeights))
	for k, v := range c.StrategyWeights {
		cp.StrategyWeights[k] = v
	}
	cp.TradingParameters.SymbolsToTrade = append([]string(nil), c.TradingParameters.SymbolsToTrade...)
	cp.FundamentalParameters.CurrenciesOfInterest = append([]string(nil), c.FundamentalParameters.CurrenciesOfInterest...)
	cp.Kafka.Brokers = append([]string(nil), c.Kafka.Brokers...)
	cp.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return &cp
}
