package system

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/KevinKickass/OpenBeamCore/internal/api/rest"
	"github.com/KevinKickass/OpenBeamCore/internal/api/websocket"
	"github.com/KevinKickass/OpenBeamCore/internal/auth"
	"github.com/KevinKickass/OpenBeamCore/internal/catalog"
	"github.com/KevinKickass/OpenBeamCore/internal/config"
	"github.com/KevinKickass/OpenBeamCore/internal/devices"
	"github.com/KevinKickass/OpenBeamCore/internal/interfaces"
	"github.com/KevinKickass/OpenBeamCore/internal/journal"
	"github.com/KevinKickass/OpenBeamCore/internal/machine"
	"github.com/KevinKickass/OpenBeamCore/internal/observability"
	"github.com/KevinKickass/OpenBeamCore/internal/storage"
	"go.uber.org/zap"
)

// LifecycleManager builds the accelerator from its descriptor and owns
// every long-running service around it.
type LifecycleManager struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *observability.Metrics

	accelerator   *machine.Accelerator
	deviceManager *devices.Manager
	poller        *devices.Poller
	storage       *storage.PostgresClient
	journal       journal.Sink
	wsHub         *websocket.Hub
	hubCancel     context.CancelFunc
	authService   *auth.AuthService
	restServer    *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	lastError    error

	shutdownOnce sync.Once
}

func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) *LifecycleManager {
	return &LifecycleManager{
		config:       cfg,
		logger:       logger,
		metrics:      observability.NewMetrics(),
		journal:      journal.Nop{},
		currentState: StateInitializing,
	}
}

// Start starts the entire system
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting OpenBeamCore",
		zap.String("descriptor", lm.config.Accelerator.Descriptor))

	if err := lm.build(ctx); err != nil {
		lm.setError(err)
		return err
	}

	// Start REST API Server
	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub, lm.authService, lm.metrics)
	if err := lm.restServer.Start(); err != nil {
		err = fmt.Errorf("failed to start REST API: %w", err)
		lm.setError(err)
		return err
	}

	if err := lm.setState(StateRunning); err != nil {
		return err
	}
	lm.logger.Info("System started successfully",
		zap.String("accelerator", lm.accelerator.Name()),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.Int("channels", len(lm.deviceManager.Channels())),
		zap.Bool("snapshots", lm.storage != nil),
		zap.Bool("journal", lm.config.Journal.Enabled))
	return nil
}

// build wires everything except the HTTP listener.
func (lm *LifecycleManager) build(ctx context.Context) error {
	loader, err := catalog.NewLoader(lm.config.Accelerator.SearchPaths)
	if err != nil {
		return err
	}
	loaded, err := loader.Load(lm.config.Accelerator.Descriptor)
	if err != nil {
		return fmt.Errorf("failed to load accelerator: %w", err)
	}
	templates, err := catalog.NewComposer(lm.logger).Compose(loaded)
	if err != nil {
		return fmt.Errorf("failed to compose %s: %w", loaded.Path, err)
	}

	lm.deviceManager, err = devices.NewManager(templates.Devices, lm.config.Modbus.DefaultTimeout, lm.metrics, lm.logger)
	if err != nil {
		return fmt.Errorf("failed to create device manager: %w", err)
	}

	lm.accelerator, err = machine.New(templates, lm.deviceManager, lm.logger)
	if err != nil {
		return fmt.Errorf("failed to build accelerator: %w", err)
	}

	if lm.config.Database.Enabled {
		db, err := storage.NewPostgresClient(ctx, lm.config.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			db.Close()
			return err
		}
		lm.storage = db
		lm.logger.Info("Database connected successfully")
	}

	lm.journal = journal.New(lm.config.Journal, lm.metrics, lm.logger)

	lm.authService, err = auth.NewAuthService(lm.config.Auth, lm.logger)
	if err != nil {
		return fmt.Errorf("failed to configure auth: %w", err)
	}

	hubCtx, cancel := context.WithCancel(context.Background())
	lm.hubCancel = cancel
	lm.wsHub = websocket.NewHub(lm.logger)
	go lm.wsHub.Run(hubCtx)

	lm.poller, err = lm.deviceManager.StartPoller(lm.config.Modbus.DefaultPollInterval, func(r []devices.Reading) {
		lm.wsHub.Broadcast(websocket.NewReadbacksMessage(r))
	})
	if err != nil {
		return fmt.Errorf("failed to start poller: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		_ = lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		_ = lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var errs []error

	// 1. Stop accepting requests
	if lm.restServer != nil {
		if err := lm.restServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("rest api shutdown failed: %w", err))
		}
	}

	// 2. Pollers and Modbus connections
	if lm.deviceManager != nil {
		if err := lm.deviceManager.StopAll(ctx); err != nil {
			errs = append(errs, fmt.Errorf("device manager stop failed: %w", err))
		}
	}

	// 3. Websocket clients
	if lm.hubCancel != nil {
		lm.hubCancel()
	}

	if err := lm.journal.Close(); err != nil {
		errs = append(errs, fmt.Errorf("journal close failed: %w", err))
	}
	if lm.storage != nil {
		lm.storage.Close()
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	lm.logger.Info("Graceful shutdown completed")
	return nil
}

func (lm *LifecycleManager) setState(state SystemState) error {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Rejected state change", zap.Error(err))
		return err
	}
	lm.logger.Debug("State changed",
		zap.Stringer("from", lm.currentState),
		zap.Stringer("to", state))
	lm.currentState = state
	return nil
}

func (lm *LifecycleManager) setError(err error) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	lm.logger.Error("System error", zap.Error(err))
	lm.currentState = StateError
	lm.lastError = err
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	status := interfaces.SystemStatus{
		State:     lm.currentState.String(),
		Snapshots: lm.storage != nil,
		Journal:   lm.config.Journal.Enabled,
	}
	if lm.lastError != nil {
		status.Error = lm.lastError.Error()
	}
	lm.stateMu.RUnlock()

	if lm.accelerator != nil {
		status.Accelerator = lm.accelerator.Status()
	}
	if lm.deviceManager != nil {
		status.ChannelCount = len(lm.deviceManager.Channels())
	}
	if lm.poller != nil {
		status.PollerRunning = lm.poller.IsRunning()
	}
	return status
}

func (lm *LifecycleManager) Config() *config.Config            { return lm.config }
func (lm *LifecycleManager) Accelerator() *machine.Accelerator { return lm.accelerator }
func (lm *LifecycleManager) DeviceManager() *devices.Manager   { return lm.deviceManager }
func (lm *LifecycleManager) Journal() journal.Sink             { return lm.journal }
func (lm *LifecycleManager) Metrics() *observability.Metrics   { return lm.metrics }
func (lm *LifecycleManager) Hub() *websocket.Hub               { return lm.wsHub }

// Snapshots is nil when the database is disabled.
func (lm *LifecycleManager) Snapshots() storage.SnapshotStore {
	if lm.storage == nil {
		return nil
	}
	return lm.storage
}
