//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"FxPulse/internal/usecase"
	"FxPulse/pkg/config"
	"FxPulse/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// ctx bounds websocket sessions and the periodic driver.
func InitializeApp(ctx context.Context, cfg *config.Config) (*server.App, func(), error) {
	wire.Build(
		// Infrastructure
		ProvideRedis,
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideClickHouse,
		ProvideEventPublisher,

		// Repositories
		ProvideSignalStateStore,
		ProvideNotificationStore,
		ProvideSnapshotStore,
		ProvideAccounts,

		// Domain services
		ProvideGateway,
		ProvideTracker,
		ProvideEvaluator,
		ProvideSessionRegistry,
		ProvideTokens,
		ProvideInbox,
		ProvideChannelAdapters,
		ProvideDispatcher,

		// Use cases
		ProvideNotifier,
		ProvideScheduler,
		ProvideNotifications,
		ProvideAckConsumer,
		ProvideAckHandler,

		// Transport
		ProvideOpsHandler,
		ProvideHTTPServer,
		ProvideApp,
	)
	return nil, nil, nil
}

// InitializeScheduler wires only what a single cycle needs, without the HTTP
// surface or the acknowledgment consumer.
func InitializeScheduler(cfg *config.Config) (*usecase.Scheduler, func(), error) {
	wire.Build(
		ProvideRedis,
		ProvideLogger,
		ProvideRegistry,
		ProvideMetrics,
		ProvideClickHouse,
		ProvideEventPublisher,
		ProvideSignalStateStore,
		ProvideNotificationStore,
		ProvideSnapshotStore,
		ProvideAccounts,
		ProvideGateway,
		ProvideTracker,
		ProvideEvaluator,
		ProvideSessionRegistry,
		ProvideInbox,
		ProvideChannelAdapters,
		ProvideDispatcher,
		ProvideNotifier,
		ProvideScheduler,
	)
	return nil, nil, nil
}
