package interfaces

import (
	"context"

	"github.com/KevinKickass/OpenBeamCore/internal/config"
	"github.com/KevinKickass/OpenBeamCore/internal/devices"
	"github.com/KevinKickass/OpenBeamCore/internal/journal"
	"github.com/KevinKickass/OpenBeamCore/internal/machine"
	"github.com/KevinKickass/OpenBeamCore/internal/storage"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State         string         `json:"state"`
	Accelerator   machine.Status `json:"accelerator"`
	ChannelCount  int            `json:"channel_count"`
	PollerRunning bool           `json:"poller_running"`
	Snapshots     bool           `json:"snapshots_enabled"`
	Journal       bool           `json:"journal_enabled"`
	Error         string         `json:"error,omitempty"`
}

type LifecycleManager interface {
	Config() *config.Config
	Accelerator() *machine.Accelerator
	DeviceManager() *devices.Manager
	// Snapshots is nil when the database is disabled.
	Snapshots() storage.SnapshotStore
	Journal() journal.Sink
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
