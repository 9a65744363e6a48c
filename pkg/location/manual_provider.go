package location

import (
	"context"
	"sync"
)

// ManualProvider returns a position set by the operator. It backs demo mode
// and devices without any positioning hardware.
type ManualProvider struct {
	mu  sync.RWMutex
	pos *Position
}

func NewManualProvider() *ManualProvider {
	return &ManualProvider{}
}

// SetPosition replaces the reported position.
func (m *ManualProvider) SetPosition(lat, lon, accuracy float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pos = &Position{Latitude: lat, Longitude: lon, Accuracy: accuracy}
}

func (m *ManualProvider) GetLocation(_ context.Context) (Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pos == nil {
		return Position{}, ErrNoFix
	}
	p := *m.pos
	p.Timestamp = timeNow()
	return p, nil
}

func (m *ManualProvider) Source() Source { return SourceManual }

func (m *ManualProvider) Close() error { return nil }

func (m *ManualProvider) Permission(_ context.Context) (PermissionState, error) {
	return PermissionGranted, nil
}
