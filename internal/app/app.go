// -----------------------------------------------------------------------
// Application wiring - services, storage, chain clients, worker engine
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/merces/internal/browser"
	"github.com/ternarybob/merces/internal/chain"
	"github.com/ternarybob/merces/internal/common"
	"github.com/ternarybob/merces/internal/handlers"
	"github.com/ternarybob/merces/internal/interfaces"
	"github.com/ternarybob/merces/internal/prover"
	"github.com/ternarybob/merces/internal/services/events"
	"github.com/ternarybob/merces/internal/storage/badger"
	"github.com/ternarybob/merces/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config    *common.Config
	Logger    arbor.ILogger
	ctx       context.Context
	cancelCtx context.CancelFunc

	EventService   interfaces.EventService
	StorageManager interfaces.StorageManager
	ChainService   *chain.Service
	TabManager     *browser.Manager
	Prover         interfaces.ProofClient
	Engine         *worker.Engine

	// HTTP/WebSocket handlers
	APIHandler       *handlers.APIHandler
	StatusHandler    *handlers.StatusHandler
	WorkerHandler    *handlers.WorkerHandler
	ConfigHandler    *handlers.ConfigHandler
	WebSocketHandler *handlers.WebSocketHandler
}

// New creates and wires all application components. The engine is not
// started; call Start once the server is ready.
func New(config *common.Config, logger arbor.ILogger) (*App, error) {
	ctx, cancel := context.WithCancel(context.Background())

	a := &App{
		Config:    config,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	a.EventService = events.NewService(logger)

	storageManager, err := badger.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.StorageManager = storageManager

	a.ChainService = chain.NewService(logger)
	if err := a.ChainService.Initialize(&config.Chain); err != nil {
		// Chain settings may arrive later via the config endpoint; run
		// degraded instead of failing startup
		logger.Warn().Err(err).Msg("Chain clients not initialized - configure chain settings to start working")
	}

	a.TabManager = browser.NewManager(browser.ManagerConfig{
		Headless:  config.Browser.Headless,
		UserAgent: config.Browser.UserAgent,
	}, logger)

	a.Prover = prover.NewClient(&config.Prover, logger)

	a.Engine = worker.NewEngine(worker.EngineConfig{
		Registry:     a.ChainService.Registry,
		TabManager:   a.TabManager,
		Prover:       a.Prover,
		Events:       a.EventService,
		Storage:      a.StorageManager,
		RunnerURL:    config.Worker.RunnerURL,
		PollInterval: common.ParseDurationOr(config.Worker.PollInterval, common.DefaultPollInterval),
		NavTimeout:   common.ParseDurationOr(config.Worker.NavTimeout, common.DefaultNavTimeout),
		SettleDelay:  common.ParseDurationOr(config.Worker.SettleDelay, common.DefaultSettleDelay),
		JobDelay:     common.ParseDurationOr(config.Worker.JobDelay, common.DefaultJobDelay),
	}, logger)

	// Saving chain settings brings the clients up; start listening as
	// soon as that happens
	a.EventService.Subscribe(interfaces.EventConfigSaved, func(_ context.Context, _ interfaces.Event) error {
		a.Engine.Start(a.ctx)
		return nil
	})

	protocol := handlers.NewProtocol(a.Engine, a.StorageManager, logger)
	a.APIHandler = handlers.NewAPIHandler(logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Engine, a.ChainService, logger)
	a.WorkerHandler = handlers.NewWorkerHandler(a.Engine, ctx, logger)
	a.ConfigHandler = handlers.NewConfigHandler(config, a.ChainService, a.EventService, logger)
	a.WebSocketHandler = handlers.NewWebSocketHandler(protocol, a.EventService, logger, &config.WebSocket)

	return a, nil
}

// Start begins background work: the registry listener starts polling if
// the chain clients are ready.
func (a *App) Start() {
	if a.ChainService.IsInitialized() {
		a.Engine.Start(a.ctx)
	} else {
		a.Logger.Info().Msg("Engine idle - waiting for chain configuration")
	}
}

// Context returns the application's base context.
func (a *App) Context() context.Context {
	return a.ctx
}

// Close shuts down all components in reverse dependency order.
func (a *App) Close() {
	a.Logger.Info().Msg("Shutting down application")

	a.Engine.Stop()
	a.cancelCtx()

	if err := a.TabManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close browser")
	}
	if err := a.ChainService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close chain clients")
	}
	if err := a.StorageManager.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close storage")
	}
	if err := a.EventService.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("Failed to close event service")
	}

	a.Logger.Info().Msg("Application shutdown complete")
}
