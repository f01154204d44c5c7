package di

import (
	"fmt"
	"time"

	domrepo "PsiPulse/internal/domain/repository"
	domsvc "PsiPulse/internal/domain/service"
	"PsiPulse/internal/handler/api"
	mid "PsiPulse/internal/middleware"
	internalrepo "PsiPulse/internal/repository"
	"PsiPulse/internal/service/audit"
	"PsiPulse/internal/service/exchange"
	"PsiPulse/internal/service/inference"
	"PsiPulse/internal/service/stream"
	"PsiPulse/internal/services/features"
	"PsiPulse/internal/services/fuse"
	"PsiPulse/internal/services/market"
	"PsiPulse/internal/services/position"
	"PsiPulse/internal/services/psi"
	"PsiPulse/internal/usecase"
	"PsiPulse/pkg/cache"
	pkgch "PsiPulse/pkg/clickhouse"
	"PsiPulse/pkg/config"
	xhttp "PsiPulse/pkg/http"
	pkgkafka "PsiPulse/pkg/kafka"
	applogger "PsiPulse/pkg/logger"
	"PsiPulse/pkg/metrics"
	"PsiPulse/pkg/server"
)

// paperStartBalance seeds the simulated account when trading in paper mode.
const paperStartBalance = 10000

// ProvideLogger creates the application logger from config.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideArchiveStore creates the ClickHouse archive, or nil when disabled.
func ProvideArchiveStore(cfg *config.Config, log *applogger.Logger) (domrepo.ArchiveStore, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, 10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}
	store := internalrepo.NewCHArchiveStore(client)
	store.SetLogger(log)
	return store, nil
}

// ProvideRiskStore creates the risk snapshot store: Redis when enabled,
// otherwise an in-process fallback that at least survives within the run.
func ProvideRiskStore(cfg *config.Config) (domrepo.RiskSnapshotStore, error) {
	if !cfg.Redis.Enabled {
		return internalrepo.NewRedisRiskStore(cache.NewMemoryCache()), nil
	}
	redisCache, err := cache.NewRedisCache(
		cache.WithRedisAddr(cfg.Redis.Addr),
		cache.WithRedisPassword(cfg.Redis.Password),
		cache.WithRedisDB(cfg.Redis.DB),
	)
	if err != nil {
		return nil, fmt.Errorf("redis cache: %w", err)
	}
	return internalrepo.NewRedisRiskStore(redisCache), nil
}

// ProvideCandleFeed selects the feed backend from config.
func ProvideCandleFeed(cfg *config.Config, log *applogger.Logger) (domrepo.CandleFeed, error) {
	switch cfg.Feed.Source {
	case "kafka":
		return stream.NewKafkaFeed(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, cfg.Symbol, log)
	default:
		return stream.NewWSFeed(
			cfg.Feed.WebSocketURL,
			cfg.Symbol,
			cfg.BaseTimeframeMinutes(),
			cfg.Feed.ReconnectDelay,
			cfg.Feed.PingInterval,
			log,
		), nil
	}
}

// ProvideAuditSink creates the Kafka decision audit sink, or nil when no
// audit topic is configured.
func ProvideAuditSink(cfg *config.Config) (*audit.KafkaSink, error) {
	if cfg.Kafka.AuditTopic == "" || len(cfg.Kafka.Brokers) == 0 {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return audit.NewKafkaSink(producer, cfg.Kafka.AuditTopic), nil
}

// ProvideExchange creates the order executor and balance provider. Only paper
// execution is wired; a live venue adapter must be added before mode=live can
// run.
func ProvideExchange(cfg *config.Config) (*exchange.PaperExchange, error) {
	if cfg.Trading.Mode == "live" {
		return nil, fmt.Errorf("live trading mode has no venue adapter configured")
	}
	return exchange.NewPaperExchange(cfg.Symbol, paperStartBalance), nil
}

// ProvideTrendClassifier selects the HTTP classifier when an inference
// service is configured, otherwise the deterministic local stand-in.
func ProvideTrendClassifier(cfg *config.Config) domsvc.TrendClassifier {
	if cfg.Inference.ServiceURL == "" {
		return inference.NewLocalTrendClassifier()
	}
	return inference.NewHTTPTrendClassifier(cfg)
}

// ProvideActionClassifier mirrors ProvideTrendClassifier for the action head.
func ProvideActionClassifier(cfg *config.Config) domsvc.ActionClassifier {
	if cfg.Inference.ServiceURL == "" {
		return inference.NewLocalActionClassifier()
	}
	return inference.NewHTTPActionClassifier(cfg)
}

// ProvideCandleStore creates the base-resolution candle buffer.
func ProvideCandleStore(cfg *config.Config) *market.CandleStore {
	interval := time.Duration(cfg.BaseTimeframeMinutes()) * time.Minute
	return market.NewCandleStore(cfg.Symbol, interval, 1024)
}

// ProvideAggregator creates the multi-timeframe aggregator.
func ProvideAggregator(cfg *config.Config) (*market.Aggregator, error) {
	tfs, err := domrepo.ParseTimeframes(cfg.TimeframeMinutes)
	if err != nil {
		return nil, err
	}
	return market.NewAggregator(tfs, cfg.Features.StatsPeriod)
}

// ProvidePsiEngine creates the psi-frequency engine.
func ProvidePsiEngine(cfg *config.Config) *psi.Engine {
	return psi.NewEngine(psi.Params{
		Window:       cfg.Psi.Window,
		Sensitivity:  cfg.Psi.Sensitivity,
		Threshold:    cfg.Psi.Threshold,
		PriceWeight:  cfg.Psi.PriceWeight,
		VolumeWeight: cfg.Psi.VolumeWeight,
		Bound:        cfg.Psi.Bound,
	})
}

// ProvideAssembler creates the feature assembler; a vector size mismatch is
// fatal here, at startup.
func ProvideAssembler(cfg *config.Config) (*features.Assembler, error) {
	return features.NewAssembler(cfg.Features.RecentCandles, cfg.Features.SequenceSpan, cfg.Features.VectorSize)
}

// ProvideFuser creates the decision fuser.
func ProvideFuser(cfg *config.Config) *fuse.Fuser {
	return fuse.NewFuser(cfg.Inference.TrendMinConf, cfg.Inference.ActionMinConf, cfg.Psi.Threshold)
}

// ProvidePositionManager wires the position state machine against the venue.
func ProvidePositionManager(
	cfg *config.Config,
	venue *exchange.PaperExchange,
	riskStore domrepo.RiskSnapshotStore,
	m domrepo.Metrics,
	log *applogger.Logger,
) (*position.Manager, error) {
	manager, err := position.NewManager(position.Params{
		Symbol:              cfg.Symbol,
		Leverage:            cfg.Trading.Leverage,
		MaxPyramidLevels:    cfg.Trading.MaxPyramidLevels,
		PositionSizePercent: cfg.Trading.PositionSizePercent,
		MinPositionValue:    cfg.Trading.MinPositionValue,
		PyramidMinGainPct:   cfg.Trading.PyramidMinGainPct,
		StopLossPercent:     cfg.Risk.StopLossPercent,
		TakeProfitPercent:   cfg.Risk.TakeProfitPercent,
		TrailingPercent:     cfg.Risk.TrailingPercent,
		LockInPercent:       cfg.Risk.LockInPercent,
		MaxDailyLossPercent: cfg.Risk.MaxDailyLossPercent,
	}, venue, venue, riskStore, log)
	if err != nil {
		return nil, err
	}
	manager.SetMetrics(m)
	return manager, nil
}

// ProvideEngine assembles the per-candle decision engine.
func ProvideEngine(
	cfg *config.Config,
	store *market.CandleStore,
	agg *market.Aggregator,
	psiEng *psi.Engine,
	assembler *features.Assembler,
	trend domsvc.TrendClassifier,
	action domsvc.ActionClassifier,
	fuser *fuse.Fuser,
	manager *position.Manager,
	archive domrepo.ArchiveStore,
	sink *audit.KafkaSink,
	m domrepo.Metrics,
	log *applogger.Logger,
) (*usecase.Engine, error) {
	deps := usecase.Deps{
		Symbol:        cfg.Symbol,
		RecentCandles: cfg.Features.RecentCandles,
		Store:         store,
		Agg:           agg,
		Psi:           psiEng,
		Assembler:     assembler,
		Trend:         trend,
		Action:        action,
		Fuser:         fuser,
		Manager:       manager,
		Archive:       archive,
		Metrics:       m,
		Log:           log,
	}
	if sink != nil {
		deps.Sink = sink
	}
	return usecase.NewEngine(deps)
}

// ProvidePipeline creates the validation/buffer middleware in front of the
// engine.
func ProvidePipeline(engine *usecase.Engine, m domrepo.Metrics) *mid.CandlePipeline {
	return mid.NewCandlePipeline(engine, m, mid.WithBufferSize(2000))
}

// ProvideCollector creates the feed collector.
func ProvideCollector(feed domrepo.CandleFeed, pipe *mid.CandlePipeline, log *applogger.Logger) *usecase.CandleCollector {
	return usecase.NewCandleCollector(feed, pipe, log)
}

// ProvideHTTPHandler creates the operational API handler.
func ProvideHTTPHandler(log *applogger.Logger, engine *usecase.Engine, archive domrepo.ArchiveStore) xhttp.Handler {
	return api.NewStatusHandler(log, engine, usecase.NewCandlesUseCase(archive))
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	engine *usecase.Engine,
	manager *position.Manager,
	collector *usecase.CandleCollector,
	pipeline *mid.CandlePipeline,
	handler xhttp.Handler,
	archive domrepo.ArchiveStore,
	sink *audit.KafkaSink,
) *server.App {
	return server.New(cfg, log, engine, manager, collector, pipeline, handler, archive, sink)
}
