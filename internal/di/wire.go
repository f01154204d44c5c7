//go:build wireinject
// +build wireinject

package di

import (
	"PsiPulse/pkg/config"
	"PsiPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure
		ProvideArchiveStore,
		ProvideRiskStore,
		ProvideCandleFeed,
		ProvideAuditSink,
		ProvideExchange,

		// Classifiers
		ProvideTrendClassifier,
		ProvideActionClassifier,

		// Market pipeline
		ProvideCandleStore,
		ProvideAggregator,
		ProvidePsiEngine,
		ProvideAssembler,
		ProvideFuser,
		ProvidePositionManager,

		// Use cases
		ProvideEngine,
		ProvidePipeline,
		ProvideCollector,

		// HTTP and application server
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
