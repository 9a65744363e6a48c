package state_managers

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/file"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

// LocationStateManager keeps the last known location of every device in one
// JSON file.
type LocationStateManager struct {
	filePath   string
	fileClient file.FileOperations
	logger     zerolog.Logger
	mu         sync.Mutex
}

// NewLocationStateManager initializes a new LocationStateManager
func NewLocationStateManager(filePath string, fileClient file.FileOperations, logger zerolog.Logger) *LocationStateManager {
	return &LocationStateManager{
		filePath:   filePath,
		fileClient: fileClient,
		logger:     logger,
	}
}

// LoadState reads all snapshots. A missing file is an empty state.
func (sm *LocationStateManager) LoadState() (map[string]location.DeviceLocation, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.load()
}

func (sm *LocationStateManager) load() (map[string]location.DeviceLocation, error) {
	exists, err := sm.fileClient.IsFileExists(sm.filePath)
	if err != nil {
		sm.logger.Error().Err(err).Msg("Failed to stat state file")
		return nil, err
	}
	if !exists {
		return make(map[string]location.DeviceLocation), nil
	}

	states := make(map[string]location.DeviceLocation)
	if err := sm.fileClient.ReadJsonFile(sm.filePath, &states); err != nil {
		sm.logger.Error().Err(err).Msg("Failed to read state file")
		return nil, fmt.Errorf("read location state: %w", err)
	}
	return states, nil
}

// SaveLastKnown replaces the snapshot for loc.DeviceID.
func (sm *LocationStateManager) SaveLastKnown(_ context.Context, loc location.DeviceLocation) error {
	if loc.DeviceID == "" {
		return fmt.Errorf("location has no device id")
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	states, err := sm.load()
	if err != nil {
		return err
	}
	states[loc.DeviceID] = loc

	if err := sm.fileClient.WriteJsonFile(sm.filePath, states); err != nil {
		sm.logger.Error().Err(err).Msg("Failed to write state file")
		return fmt.Errorf("write location state: %w", err)
	}
	return nil
}

// LoadLastKnown returns nil when the device has no snapshot.
func (sm *LocationStateManager) LoadLastKnown(_ context.Context, deviceID string) (*location.DeviceLocation, error) {
	states, err := sm.LoadState()
	if err != nil {
		return nil, err
	}
	loc, ok := states[deviceID]
	if !ok {
		return nil, nil
	}
	return &loc, nil
}
