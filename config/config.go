// Package config loads the engine configuration from an optional YAML
// file, environment overrides and built-in defaults. Components never
// read configuration globally; main maps these sections onto package
// configs at construction.
package config

import (
	"fmt"
	"strings"
	"time"
	// Session windows are meaningless without the exchange zone, so the
	// zone database ships inside the binary.
	_ "time/tzdata"

	"github.com/spf13/viper"
)

// Config is the complete application configuration.
type Config struct {
	Engine     EngineConfig     `mapstructure:"engine"`
	Feed       FeedConfig       `mapstructure:"feed"`
	Analyzer   AnalyzerConfig   `mapstructure:"analyzer"`
	TrendScore TrendScoreConfig `mapstructure:"trend_score"`
	Direction  DirectionConfig  `mapstructure:"direction"`
	Momentum   MomentumConfig   `mapstructure:"momentum"`
	Volatility VolatilityConfig `mapstructure:"volatility"`
	Gate       GateConfig       `mapstructure:"gate"`
	Scaling    ScalingConfig    `mapstructure:"scaling"`
	Selector   SelectorConfig   `mapstructure:"selector"`
	Circuit    CircuitConfig    `mapstructure:"circuit"`
	Server     ServerConfig     `mapstructure:"server"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`

	// Timezone is the exchange session zone, e.g. "Asia/Kolkata".
	Timezone string `mapstructure:"timezone"`
}

// EngineConfig drives the evaluation loop.
type EngineConfig struct {
	Indices               []string `mapstructure:"indices"`
	PrimaryTimeframe      string   `mapstructure:"primary_timeframe"`
	ConfirmationTimeframe string   `mapstructure:"confirmation_timeframe"`
	SignalPath            string   `mapstructure:"signal_path"`             // "multi_factor" or "trend_score"
	CycleSeconds          int      `mapstructure:"cycle_seconds"`           // Seconds between passes
	InterIndexDelaySecs   int      `mapstructure:"inter_index_delay_secs"`  // Seconds between indices in a pass
}

// FeedConfig bounds the in-memory candle store.
type FeedConfig struct {
	MaxBars int `mapstructure:"max_bars"`
}

// AnalyzerConfig tunes the per-timeframe Supertrend+ADX verdict.
type AnalyzerConfig struct {
	SupertrendPeriod     int     `mapstructure:"supertrend_period"`
	SupertrendMultiplier float64 `mapstructure:"supertrend_multiplier"`
	ADXPeriod            int     `mapstructure:"adx_period"`
	MinADX               float64 `mapstructure:"min_adx"`
}

// TrendScoreConfig bands the composite score.
type TrendScoreConfig struct {
	BullishThreshold float64 `mapstructure:"bullish_threshold"`
	BearishThreshold float64 `mapstructure:"bearish_threshold"`
}

// DirectionConfig tunes the six-factor direction validator.
type DirectionConfig struct {
	MinAgreement    int    `mapstructure:"min_agreement"` // 1..6
	HigherTimeframe string `mapstructure:"higher_timeframe"`
}

// MomentumConfig tunes the momentum validator.
type MomentumConfig struct {
	MinConfirmations int `mapstructure:"min_confirmations"` // 1..3
}

// VolatilityConfig tunes the volatility regime validator.
type VolatilityConfig struct {
	MinATRRatio float64 `mapstructure:"min_atr_ratio"`
	ChopStart   string  `mapstructure:"chop_start"` // "HH:MM" local
	ChopEnd     string  `mapstructure:"chop_end"`   // "HH:MM" local
}

// GateConfig tunes the comprehensive validation gate.
type GateConfig struct {
	Mode          string  `mapstructure:"mode"` // conservative, balanced, aggressive
	IVRankMin     float64 `mapstructure:"iv_rank_min"`
	IVRankMax     float64 `mapstructure:"iv_rank_max"`
	ThetaCutoff   string  `mapstructure:"theta_cutoff"`
	MarketOpen    string  `mapstructure:"market_open"`
	WarmupMinutes int     `mapstructure:"warmup_minutes"`
	EntryCutoff   string  `mapstructure:"entry_cutoff"`
}

// ScalingConfig controls repeat-signal position scaling.
type ScalingConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	DecaySeconds  int  `mapstructure:"decay_seconds"`
	MaxMultiplier int  `mapstructure:"max_multiplier"`
}

// SelectorConfig controls cross-index selection.
type SelectorConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MinTrendScore float64 `mapstructure:"min_trend_score"`
	TieBand       float64 `mapstructure:"tie_band"`
}

// CircuitConfig controls the evaluation circuit breaker.
type CircuitConfig struct {
	MaxConsecutiveFailures int `mapstructure:"max_consecutive_failures"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	ProductionMode bool     `mapstructure:"production_mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RedisConfig holds the optional scaling-state store settings. When
// disabled the engine falls back to the in-memory store.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level   string `mapstructure:"level"` // trace, debug, info, warn, error
	Console bool   `mapstructure:"console"`
}

// Load reads configuration from the given YAML file, environment
// variables prefixed SIGNAL_ and built-in defaults. An empty path skips
// the file and uses defaults plus environment only.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SIGNAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for i, index := range cfg.Engine.Indices {
		cfg.Engine.Indices[i] = strings.ToUpper(strings.TrimSpace(index))
	}
	cfg.Engine.SignalPath = strings.ToLower(cfg.Engine.SignalPath)
	cfg.Gate.Mode = strings.ToLower(cfg.Gate.Mode)
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.indices", []string{"NIFTY", "BANKNIFTY", "SENSEX"})
	v.SetDefault("engine.primary_timeframe", "5")
	v.SetDefault("engine.confirmation_timeframe", "15")
	v.SetDefault("engine.signal_path", "multi_factor")
	v.SetDefault("engine.cycle_seconds", 30)
	v.SetDefault("engine.inter_index_delay_secs", 5)

	v.SetDefault("feed.max_bars", 500)

	v.SetDefault("analyzer.supertrend_period", 10)
	v.SetDefault("analyzer.supertrend_multiplier", 3.0)
	v.SetDefault("analyzer.adx_period", 14)
	v.SetDefault("analyzer.min_adx", 20.0)

	v.SetDefault("trend_score.bullish_threshold", 14.0)
	v.SetDefault("trend_score.bearish_threshold", 7.0)

	v.SetDefault("direction.min_agreement", 4)
	v.SetDefault("direction.higher_timeframe", "60")

	v.SetDefault("momentum.min_confirmations", 2)

	v.SetDefault("volatility.min_atr_ratio", 0.65)
	v.SetDefault("volatility.chop_start", "12:00")
	v.SetDefault("volatility.chop_end", "13:00")

	v.SetDefault("gate.mode", "balanced")
	v.SetDefault("gate.iv_rank_min", 0.05)
	v.SetDefault("gate.iv_rank_max", 0.95)
	v.SetDefault("gate.theta_cutoff", "14:45")
	v.SetDefault("gate.market_open", "09:15")
	v.SetDefault("gate.warmup_minutes", 15)
	v.SetDefault("gate.entry_cutoff", "14:30")

	v.SetDefault("scaling.enabled", true)
	v.SetDefault("scaling.decay_seconds", 900)
	v.SetDefault("scaling.max_multiplier", 3)

	v.SetDefault("selector.enabled", true)
	v.SetDefault("selector.min_trend_score", 15.0)
	v.SetDefault("selector.tie_band", 2.0)

	v.SetDefault("circuit.max_consecutive_failures", 5)

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.production_mode", false)
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.console", false)

	v.SetDefault("timezone", "Asia/Kolkata")
}

// Location resolves the configured session timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate checks every section for usable values.
func (c *Config) Validate() error {
	if len(c.Engine.Indices) == 0 {
		return fmt.Errorf("engine.indices must contain at least one index")
	}
	for _, index := range c.Engine.Indices {
		if index == "" {
			return fmt.Errorf("engine.indices must not contain empty names")
		}
	}
	if c.Engine.PrimaryTimeframe == "" {
		return fmt.Errorf("engine.primary_timeframe is required")
	}
	if c.Engine.SignalPath != "multi_factor" && c.Engine.SignalPath != "trend_score" {
		return fmt.Errorf("engine.signal_path must be multi_factor or trend_score")
	}
	if c.Engine.CycleSeconds < 1 {
		return fmt.Errorf("engine.cycle_seconds must be at least 1")
	}
	if c.Engine.InterIndexDelaySecs < 0 {
		return fmt.Errorf("engine.inter_index_delay_secs must not be negative")
	}

	if c.Feed.MaxBars < 1 {
		return fmt.Errorf("feed.max_bars must be at least 1")
	}

	if c.Analyzer.SupertrendPeriod < 1 {
		return fmt.Errorf("analyzer.supertrend_period must be at least 1")
	}
	if c.Analyzer.SupertrendMultiplier <= 0 {
		return fmt.Errorf("analyzer.supertrend_multiplier must be positive")
	}
	if c.Analyzer.ADXPeriod < 1 {
		return fmt.Errorf("analyzer.adx_period must be at least 1")
	}
	if c.Analyzer.MinADX < 0 || c.Analyzer.MinADX > 100 {
		return fmt.Errorf("analyzer.min_adx must be between 0 and 100")
	}

	if c.TrendScore.BearishThreshold < 0 {
		return fmt.Errorf("trend_score.bearish_threshold must not be negative")
	}
	if c.TrendScore.BullishThreshold <= c.TrendScore.BearishThreshold {
		return fmt.Errorf("trend_score.bullish_threshold must exceed the bearish threshold")
	}

	if c.Direction.MinAgreement < 1 || c.Direction.MinAgreement > 6 {
		return fmt.Errorf("direction.min_agreement must be between 1 and 6")
	}
	if c.Direction.HigherTimeframe == "" {
		return fmt.Errorf("direction.higher_timeframe is required")
	}

	if c.Momentum.MinConfirmations < 1 || c.Momentum.MinConfirmations > 3 {
		return fmt.Errorf("momentum.min_confirmations must be between 1 and 3")
	}

	if c.Volatility.MinATRRatio < 0 || c.Volatility.MinATRRatio > 2 {
		return fmt.Errorf("volatility.min_atr_ratio must be between 0.0 and 2.0")
	}
	if err := validateClock("volatility.chop_start", c.Volatility.ChopStart); err != nil {
		return err
	}
	if err := validateClock("volatility.chop_end", c.Volatility.ChopEnd); err != nil {
		return err
	}

	switch c.Gate.Mode {
	case "conservative", "balanced", "aggressive":
	default:
		return fmt.Errorf("gate.mode must be conservative, balanced or aggressive")
	}
	if c.Gate.IVRankMin < 0 || c.Gate.IVRankMax > 1 || c.Gate.IVRankMin >= c.Gate.IVRankMax {
		return fmt.Errorf("gate IV rank band must satisfy 0 <= min < max <= 1")
	}
	if c.Gate.WarmupMinutes < 0 {
		return fmt.Errorf("gate.warmup_minutes must not be negative")
	}
	for key, value := range map[string]string{
		"gate.theta_cutoff": c.Gate.ThetaCutoff,
		"gate.market_open":  c.Gate.MarketOpen,
		"gate.entry_cutoff": c.Gate.EntryCutoff,
	} {
		if err := validateClock(key, value); err != nil {
			return err
		}
	}

	if c.Scaling.Enabled {
		if c.Scaling.DecaySeconds < 1 {
			return fmt.Errorf("scaling.decay_seconds must be at least 1 when scaling is enabled")
		}
		if c.Scaling.MaxMultiplier < 1 {
			return fmt.Errorf("scaling.max_multiplier must be at least 1 when scaling is enabled")
		}
	}

	if c.Selector.MinTrendScore < 0 || c.Selector.MinTrendScore > 21 {
		return fmt.Errorf("selector.min_trend_score must be between 0 and 21")
	}
	if c.Selector.TieBand < 0 {
		return fmt.Errorf("selector.tie_band must not be negative")
	}

	if c.Circuit.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("circuit.max_consecutive_failures must not be negative")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if c.Redis.Enabled && c.Redis.Address == "" {
		return fmt.Errorf("redis.address is required when redis is enabled")
	}

	switch c.Logging.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}

	if _, err := c.Location(); err != nil {
		return err
	}

	return nil
}

func validateClock(key, value string) error {
	if _, err := time.Parse("15:04", value); err != nil {
		return fmt.Errorf("%s must be an HH:MM clock time: %w", key, err)
	}
	return nil
}
