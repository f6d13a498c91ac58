package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"index-signal-engine/config"
	"index-signal-engine/internal/api"
	"index-signal-engine/internal/circuit"
	"index-signal-engine/internal/engine"
	"index-signal-engine/internal/events"
	"index-signal-engine/internal/indicators"
	"index-signal-engine/internal/marketdata"
	"index-signal-engine/internal/pipeline"
	"index-signal-engine/internal/scaling"
	"index-signal-engine/internal/selector"
)

var configPath = flag.String("config", "", "Path to YAML configuration file (empty uses defaults and SIGNAL_* environment overrides)")

func main() {
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger := buildLogger(cfg.Logging)
	logger.Info().Str("config", *configPath).Msg("Configuration loaded")

	loc, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to resolve session timezone")
	}

	// Candle feed. The engine reads from it; an embedding vendor adapter
	// publishes into it.
	feed := marketdata.NewFeed(cfg.Feed.MaxBars, logger)

	// Scaling-state store.
	var store scaling.Store
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		store = scaling.NewRedisStore(client, logger)
	} else {
		store = scaling.NewMemoryStore()
		logger.Info().Msg("Scaling state is in-memory only")
	}
	tracker := scaling.NewTracker(store, logger)

	// Pipeline components.
	supertrend := indicators.SupertrendParams{
		Period:     cfg.Analyzer.SupertrendPeriod,
		Multiplier: cfg.Analyzer.SupertrendMultiplier,
	}

	analyzer := pipeline.NewTimeframeAnalyzer(feed, pipeline.AnalyzerConfig{
		Supertrend: supertrend,
		ADXPeriod:  cfg.Analyzer.ADXPeriod,
		MinADX:     cfg.Analyzer.MinADX,
	}, logger)

	scorerCfg := pipeline.DefaultTrendScorerConfig()
	scorerCfg.BullishThreshold = cfg.TrendScore.BullishThreshold
	scorerCfg.BearishThreshold = cfg.TrendScore.BearishThreshold
	scorer := pipeline.NewTrendScorer(scorerCfg, logger)

	thresholds := pipeline.DefaultThresholdTable()

	directionCfg := pipeline.DefaultDirectionConfig()
	directionCfg.MinAgreement = cfg.Direction.MinAgreement
	directionCfg.HigherTimeframe = cfg.Direction.HigherTimeframe
	directionCfg.Supertrend = supertrend
	directionCfg.ADXPeriod = cfg.Analyzer.ADXPeriod
	direction := pipeline.NewDirectionValidator(feed, thresholds, directionCfg, logger)

	momentumCfg := pipeline.DefaultMomentumConfig()
	momentumCfg.MinConfirmations = cfg.Momentum.MinConfirmations
	momentum := pipeline.NewMomentumValidator(thresholds, momentumCfg, logger)

	volatilityCfg := pipeline.DefaultVolatilityConfig(loc)
	volatilityCfg.MinATRRatio = cfg.Volatility.MinATRRatio
	volatilityCfg.ChopStart = cfg.Volatility.ChopStart
	volatilityCfg.ChopEnd = cfg.Volatility.ChopEnd
	volatility, err := pipeline.NewVolatilityValidator(volatilityCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build volatility validator")
	}

	gateCfg := pipeline.GateConfig{
		Mode:          pipeline.GateMode(cfg.Gate.Mode),
		IVRankMin:     cfg.Gate.IVRankMin,
		IVRankMax:     cfg.Gate.IVRankMax,
		ThetaCutoff:   cfg.Gate.ThetaCutoff,
		MinADX:        cfg.Analyzer.MinADX,
		ADXPeriod:     cfg.Analyzer.ADXPeriod,
		MarketOpen:    cfg.Gate.MarketOpen,
		WarmupMinutes: cfg.Gate.WarmupMinutes,
		EntryCutoff:   cfg.Gate.EntryCutoff,
		Location:      loc,
	}
	gate, err := pipeline.NewComprehensiveValidationGate(gateCfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build validation gate")
	}

	// Cross-index selector.
	var indexSelector *selector.IndexSelector
	if cfg.Selector.Enabled {
		selectorCfg := selector.DefaultConfig()
		selectorCfg.Indices = cfg.Engine.Indices
		selectorCfg.PrimaryTimeframe = cfg.Engine.PrimaryTimeframe
		selectorCfg.ConfirmationTimeframe = cfg.Engine.ConfirmationTimeframe
		selectorCfg.MinTrendScore = cfg.Selector.MinTrendScore
		selectorCfg.TieBand = cfg.Selector.TieBand
		indexSelector = selector.New(feed, scorer, selectorCfg, logger)
	}

	breaker := circuit.NewBreaker(circuit.Config{
		MaxConsecutiveFailures: cfg.Circuit.MaxConsecutiveFailures,
	}, logger)
	bus := events.NewBus()

	engineCfg := engine.Config{
		Indices:               cfg.Engine.Indices,
		PrimaryTimeframe:      cfg.Engine.PrimaryTimeframe,
		ConfirmationTimeframe: cfg.Engine.ConfirmationTimeframe,
		SignalPath:            cfg.Engine.SignalPath,
		CyclePeriod:           time.Duration(cfg.Engine.CycleSeconds) * time.Second,
		InterIndexDelay:       time.Duration(cfg.Engine.InterIndexDelaySecs) * time.Second,
		Scaling: scaling.Config{
			Enabled:       cfg.Scaling.Enabled,
			DecaySeconds:  cfg.Scaling.DecaySeconds,
			MaxMultiplier: cfg.Scaling.MaxMultiplier,
		},
	}

	eng := engine.New(engine.Deps{
		Analyzer:   analyzer,
		Scorer:     scorer,
		Direction:  direction,
		Momentum:   momentum,
		Volatility: volatility,
		Gate:       gate,
		Tracker:    tracker,
		Selector:   indexSelector,
		Breaker:    breaker,
		Bus:        bus,
	}, engineCfg, logger)

	server := api.NewServer(api.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ProductionMode: cfg.Server.ProductionMode,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, eng, breaker, bus, logger)

	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("API server failed")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)

	logger.Info().
		Strs("indices", cfg.Engine.Indices).
		Str("signal_path", cfg.Engine.SignalPath).
		Int("cycle_seconds", cfg.Engine.CycleSeconds).
		Str("addr", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Msg("Signal engine started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error shutting down API server")
	}

	eng.Stop()
	cancel()

	logger.Info().Msg("Shutdown complete")
}

func buildLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Console {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}
