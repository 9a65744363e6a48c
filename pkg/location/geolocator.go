package location

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/device"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/identity"
)

var timeNow = time.Now

// DefaultPollInterval is how often a watch asks the provider for a new sample.
const DefaultPollInterval = time.Second

// WatchID identifies a running watch.
type WatchID int64

// Geolocator turns provider readings into DeviceLocation samples, either one
// at a time or as a continuous watch.
type Geolocator struct {
	provider     Provider
	identity     identity.DeviceInfoInterface
	status       device.StatusReader
	pollInterval time.Duration
	logger       zerolog.Logger

	mu      sync.Mutex
	nextID  WatchID
	watches map[WatchID]context.CancelFunc
	last    *DeviceLocation
	wg      sync.WaitGroup
}

// NewGeolocator wires a provider to the device identity and status. A nil
// provider models a platform without geolocation support.
func NewGeolocator(provider Provider, ident identity.DeviceInfoInterface, status device.StatusReader,
	pollInterval time.Duration, logger zerolog.Logger) *Geolocator {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	return &Geolocator{
		provider:     provider,
		identity:     ident,
		status:       status,
		pollInterval: pollInterval,
		logger:       logger,
		watches:      make(map[WatchID]context.CancelFunc),
	}
}

// Supported reports whether any provider is configured.
func (g *Geolocator) Supported() bool {
	return g.provider != nil
}

// CheckPermissions never fails: unsupported platforms and failed checks are
// reported as denied, providers that cannot tell as prompt.
func (g *Geolocator) CheckPermissions(ctx context.Context) PermissionStatus {
	if !g.Supported() {
		return StatusOf(PermissionDenied)
	}
	checker, ok := g.provider.(PermissionChecker)
	if !ok {
		return StatusOf(PermissionPrompt)
	}
	state, err := checker.Permission(ctx)
	if err != nil {
		g.logger.Warn().Err(err).Msg("Permission check failed")
		return StatusOf(PermissionDenied)
	}
	return StatusOf(state)
}

// CurrentPosition performs a single read bounded by opts.Timeout.
func (g *Geolocator) CurrentPosition(ctx context.Context, opts PositionOptions) (DeviceLocation, error) {
	if !g.Supported() {
		return DeviceLocation{}, NewLocationError(CodeUnsupported, nil)
	}

	if opts.MaximumAge > 0 {
		g.mu.Lock()
		cached := g.last
		g.mu.Unlock()
		if cached != nil && timeNow().Sub(cached.Timestamp) <= opts.MaximumAge {
			return *cached, nil
		}
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	return g.read(ctx, timeout)
}

func (g *Geolocator) read(ctx context.Context, timeout time.Duration) (DeviceLocation, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	pos, err := g.provider.GetLocation(readCtx)
	if err != nil {
		if errors.Is(readCtx.Err(), context.DeadlineExceeded) {
			return DeviceLocation{}, NewLocationError(CodeTimeout, err)
		}
		return DeviceLocation{}, classify(err)
	}

	loc := g.stamp(pos)
	g.mu.Lock()
	g.last = &loc
	g.mu.Unlock()
	return loc, nil
}

// stamp builds a new sample from a provider reading.
func (g *Geolocator) stamp(pos Position) DeviceLocation {
	ts := pos.Timestamp
	if ts.IsZero() {
		ts = timeNow()
	}
	loc := DeviceLocation{
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Accuracy:  pos.Accuracy,
		Altitude:  pos.Altitude,
		Heading:   pos.Heading,
		Speed:     pos.Speed,
		Timestamp: ts,
		Source:    g.provider.Source(),
		IsOnline:  true,
	}
	if g.identity != nil {
		loc.DeviceID = g.identity.GetDeviceID()
		loc.UserID = g.identity.GetUserID()
	}
	if g.status != nil {
		loc.IsOnline = g.status.IsOnline()
		loc.BatteryLevel = g.status.BatteryLevel()
	}
	return loc
}

// Watch starts polling the provider until ClearWatch is called. Callbacks
// run on the watch goroutine, one at a time, in read order.
func (g *Geolocator) Watch(opts PositionOptions, onLocation func(DeviceLocation), onError func(error)) (WatchID, error) {
	if !g.Supported() {
		return 0, NewLocationError(CodeUnsupported, nil)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultWatchTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	g.mu.Lock()
	g.nextID++
	id := g.nextID
	g.watches[id] = cancel
	g.mu.Unlock()

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()

		ticker := time.NewTicker(g.pollInterval)
		defer ticker.Stop()

		for {
			loc, err := g.read(ctx, timeout)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				onError(err)
			} else {
				onLocation(loc)
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	g.logger.Debug().Int64("watch_id", int64(id)).Dur("poll_interval", g.pollInterval).Msg("Location watch started")
	return id, nil
}

// ClearWatch stops a watch. It does not wait for an in-flight read, so it is
// safe to call from inside a watch callback.
func (g *Geolocator) ClearWatch(id WatchID) {
	g.mu.Lock()
	cancel, ok := g.watches[id]
	delete(g.watches, id)
	g.mu.Unlock()

	if ok {
		cancel()
		g.logger.Debug().Int64("watch_id", int64(id)).Msg("Location watch cleared")
	}
}

// Close stops every watch, waits for them and releases the provider.
func (g *Geolocator) Close() error {
	g.mu.Lock()
	for id, cancel := range g.watches {
		cancel()
		delete(g.watches, id)
	}
	g.mu.Unlock()
	g.wg.Wait()

	if g.provider != nil {
		return g.provider.Close()
	}
	return nil
}
