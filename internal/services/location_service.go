package services

import (
	"context"
	"errors"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/internal/observability"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/identity"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

const (
	DefaultTrackingInterval  = 5 * time.Second
	DefaultMovementThreshold = 10.0 // meters
	defaultSideEffectTimeout = 5 * time.Second
	permissionRequestTimeout = location.DefaultReadTimeout
)

// ErrTrackingStopped is returned by StartTracking when StopTracking ran
// before the watch was registered.
var ErrTrackingStopped = errors.New("tracking stopped during start")

// Locator is the geolocation surface the service drives. *location.Geolocator
// implements it.
type Locator interface {
	Supported() bool
	CheckPermissions(ctx context.Context) location.PermissionStatus
	CurrentPosition(ctx context.Context, opts location.PositionOptions) (location.DeviceLocation, error)
	Watch(opts location.PositionOptions, onLocation func(location.DeviceLocation), onError func(error)) (location.WatchID, error)
	ClearWatch(id location.WatchID)
	Close() error
}

// LastKnownStore persists the most recent accepted location per device.
type LastKnownStore interface {
	SaveLastKnown(ctx context.Context, loc location.DeviceLocation) error
	LoadLastKnown(ctx context.Context, deviceID string) (*location.DeviceLocation, error)
}

// LocationForwarder pushes accepted locations somewhere outside the process.
type LocationForwarder interface {
	Name() string
	Forward(ctx context.Context, loc location.DeviceLocation) error
}

// LocationCallback receives location updates for one subscriber.
type LocationCallback func(loc location.DeviceLocation)

// SubscribeOptions tune delivery for one subscriber.
type SubscribeOptions struct {
	// MinDistanceMeters suppresses updates closer than this to the last one
	// delivered to the subscriber. Zero delivers everything.
	MinDistanceMeters float64
}

type subscriber struct {
	callback LocationCallback
	opts     SubscribeOptions

	mu        sync.Mutex
	delivered *location.DeviceLocation
}

// LocationOptions configures a LocationService.
type LocationOptions struct {
	TrackingInterval time.Duration
	Position         location.PositionOptions
	// AutoStart begins tracking when the service is started by the registry.
	AutoStart bool
}

// LocationService owns device tracking: it drives a Locator, rate limits
// accepted samples and fans them out to subscribers, the last-known store
// and the configured forwarders.
type LocationService struct {
	locator    Locator
	deviceInfo identity.DeviceInfoInterface
	store      LastKnownStore
	forwarders []LocationForwarder
	opts       LocationOptions
	logger     zerolog.Logger
	now        func() time.Time

	subscribers cmap.ConcurrentMap[string, *subscriber]

	startMu      sync.Mutex
	mu           sync.Mutex
	tracking     bool
	watchID      location.WatchID
	current      *location.DeviceLocation
	lastAccepted time.Time
}

// NewLocationService creates an idle service. store may be nil.
func NewLocationService(locator Locator, deviceInfo identity.DeviceInfoInterface, store LastKnownStore,
	forwarders []LocationForwarder, opts LocationOptions, logger zerolog.Logger) *LocationService {
	if opts.TrackingInterval <= 0 {
		opts.TrackingInterval = DefaultTrackingInterval
	}
	return &LocationService{
		locator:     locator,
		deviceInfo:  deviceInfo,
		store:       store,
		forwarders:  forwarders,
		opts:        opts,
		logger:      logger.With().Str("service", "location").Logger(),
		now:         time.Now,
		subscribers: cmap.New[*subscriber](),
	}
}

// Start restores the last known location and, if configured, begins tracking.
func (l *LocationService) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), defaultSideEffectTimeout)
	defer cancel()

	if err := l.Restore(ctx); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to restore last known location")
	}

	if !l.opts.AutoStart {
		l.logger.Info().Msg("LocationService started")
		return nil
	}

	if err := l.StartTracking(context.Background(), l.opts.Position); err != nil {
		// tracking can be retried later, the service itself is usable
		l.logger.Error().Err(err).Msg("Failed to start tracking")
		return nil
	}
	l.logger.Info().Dur("interval", l.opts.TrackingInterval).Msg("LocationService started with tracking")
	return nil
}

// Stop ends tracking and releases the locator.
func (l *LocationService) Stop() error {
	l.StopTracking()
	if err := l.locator.Close(); err != nil {
		l.logger.Error().Err(err).Msg("Failed to close locator")
		return err
	}
	l.logger.Info().Msg("LocationService stopped")
	return nil
}

// Restore loads the persisted snapshot for this device as the current location.
func (l *LocationService) Restore(ctx context.Context) error {
	if l.store == nil || l.deviceInfo == nil {
		return nil
	}
	deviceID := l.deviceInfo.GetDeviceID()
	loc, err := l.store.LoadLastKnown(ctx, deviceID)
	if err != nil {
		return err
	}
	if loc == nil {
		return nil
	}

	l.mu.Lock()
	if l.current == nil {
		l.current = loc
	}
	l.mu.Unlock()

	l.logger.Info().
		Str("device_id", deviceID).
		Time("timestamp", loc.Timestamp).
		Msg("Restored last known location")
	return nil
}

func (l *LocationService) CheckPermissions(ctx context.Context) location.PermissionStatus {
	return l.locator.CheckPermissions(ctx)
}

// RequestPermissions forces a one-shot read. Success means granted, a
// permission failure means denied. Any other failure leaves the state at
// prompt and returns the platform error.
func (l *LocationService) RequestPermissions(ctx context.Context) (location.PermissionState, error) {
	if !l.locator.Supported() {
		return location.PermissionDenied, location.NewLocationError(location.CodeUnsupported, nil)
	}

	loc, err := l.locator.CurrentPosition(ctx, location.PositionOptions{
		EnableHighAccuracy: true,
		Timeout:            permissionRequestTimeout,
	})
	switch {
	case err == nil:
		l.setCurrent(loc)
		return location.PermissionGranted, nil
	case location.IsPermissionDenied(err):
		l.logger.Warn().Err(err).Msg("Location permission refused")
		return location.PermissionDenied, nil
	default:
		return location.PermissionPrompt, err
	}
}

// GetCurrentLocation performs one read and caches it as current.
func (l *LocationService) GetCurrentLocation(ctx context.Context, opts location.PositionOptions) (location.DeviceLocation, error) {
	loc, err := l.locator.CurrentPosition(ctx, opts)
	if err != nil {
		l.logger.Error().Err(err).Msg("Failed to get current location")
		return location.DeviceLocation{}, err
	}
	l.setCurrent(loc)
	return loc, nil
}

// CurrentLocation returns the cached location, nil before the first sample.
func (l *LocationService) CurrentLocation() *location.DeviceLocation {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.current == nil {
		return nil
	}
	c := *l.current
	return &c
}

func (l *LocationService) IsTracking() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tracking
}

func (l *LocationService) setCurrent(loc location.DeviceLocation) {
	l.mu.Lock()
	l.current = &loc
	l.mu.Unlock()
}

// StartTracking registers a single continuous watch. Calling it while
// already tracking returns nil without touching permissions or the locator.
func (l *LocationService) StartTracking(ctx context.Context, opts location.PositionOptions) error {
	l.startMu.Lock()
	defer l.startMu.Unlock()

	if l.IsTracking() {
		return nil
	}

	if !l.locator.Supported() {
		return location.NewLocationError(location.CodeUnsupported, nil)
	}

	if !l.locator.CheckPermissions(ctx).Granted {
		state, err := l.RequestPermissions(ctx)
		if err != nil {
			return err
		}
		if state != location.PermissionGranted {
			return location.NewLocationError(location.CodePermissionDenied, nil)
		}
	}

	l.mu.Lock()
	l.tracking = true
	l.lastAccepted = time.Time{}
	l.mu.Unlock()

	id, err := l.locator.Watch(opts, l.handleLocation, l.handleWatchError)
	if err != nil {
		l.StopTracking()
		return err
	}

	l.mu.Lock()
	if !l.tracking {
		// stopped while the watch was being registered
		l.mu.Unlock()
		l.locator.ClearWatch(id)
		return ErrTrackingStopped
	}
	l.watchID = id
	l.mu.Unlock()

	observability.TrackingActive.Set(1)
	l.logger.Info().
		Int64("watch_id", int64(id)).
		Dur("interval", l.opts.TrackingInterval).
		Msg("Location tracking started")
	return nil
}

// StopTracking clears the watch. It is safe to call at any time, including
// from a location callback.
func (l *LocationService) StopTracking() {
	l.mu.Lock()
	wasTracking := l.tracking
	id := l.watchID
	l.tracking = false
	l.watchID = 0
	l.mu.Unlock()

	if id != 0 {
		l.locator.ClearWatch(id)
	}
	if wasTracking {
		observability.TrackingActive.Set(0)
		l.logger.Info().Msg("Location tracking stopped")
	}
}

func (l *LocationService) handleLocation(loc location.DeviceLocation) {
	l.mu.Lock()
	if !l.tracking {
		l.mu.Unlock()
		return
	}
	now := l.now()
	if !l.lastAccepted.IsZero() && now.Sub(l.lastAccepted) < l.opts.TrackingInterval {
		l.mu.Unlock()
		observability.LocationDropped.Inc()
		return
	}
	l.lastAccepted = now
	l.current = &loc
	l.mu.Unlock()

	observability.LocationAccepted.Inc()

	ctx, cancel := context.WithTimeout(context.Background(), defaultSideEffectTimeout)
	defer cancel()

	l.persist(ctx, loc)
	l.notifySubscribers(loc)
	l.forward(ctx, loc)
}

func (l *LocationService) handleWatchError(err error) {
	if location.IsPermissionDenied(err) {
		l.logger.Error().Err(err).Msg("Location permission lost, stopping tracking")
		l.StopTracking()
		return
	}
	l.logger.Warn().Err(err).Msg("Location watch error")
}

func (l *LocationService) persist(ctx context.Context, loc location.DeviceLocation) {
	if l.store == nil {
		return
	}
	if err := l.store.SaveLastKnown(ctx, loc); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to persist last known location")
	}
}

func (l *LocationService) forward(ctx context.Context, loc location.DeviceLocation) {
	for _, f := range l.forwarders {
		if err := f.Forward(ctx, loc); err != nil {
			observability.LocationForwardErrors.WithLabelValues(f.Name()).Inc()
			l.logger.Warn().Err(err).Str("forwarder", f.Name()).Msg("Failed to forward location")
		}
	}
}

// Subscribe registers callback under id, replacing any previous one, and
// replays the current location to it if there is one.
func (l *LocationService) Subscribe(id string, callback LocationCallback, opts SubscribeOptions) error {
	if id == "" {
		return errors.New("subscriber id is required")
	}
	if callback == nil {
		return errors.New("subscriber callback is required")
	}

	sub := &subscriber{callback: callback, opts: opts}
	l.subscribers.Set(id, sub)

	if current := l.CurrentLocation(); current != nil {
		l.deliver(id, sub, *current)
	}
	return nil
}

// Unsubscribe removes a subscriber. Unknown ids are ignored.
func (l *LocationService) Unsubscribe(id string) {
	l.subscribers.Remove(id)
}

func (l *LocationService) notifySubscribers(loc location.DeviceLocation) {
	for item := range l.subscribers.IterBuffered() {
		l.deliver(item.Key, item.Val, loc)
	}
}

func (l *LocationService) deliver(id string, sub *subscriber, loc location.DeviceLocation) {
	sub.mu.Lock()
	if sub.opts.MinDistanceMeters > 0 && sub.delivered != nil {
		moved := location.Distance(sub.delivered.Latitude, sub.delivered.Longitude, loc.Latitude, loc.Longitude)
		if moved < sub.opts.MinDistanceMeters {
			sub.mu.Unlock()
			return
		}
	}
	sub.delivered = &loc
	sub.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			l.logger.Error().Str("subscriber", id).Interface("panic", r).Msg("Location subscriber panicked")
		}
	}()
	sub.callback(loc)
}

// CalculateDistance returns the great-circle distance in meters.
func (l *LocationService) CalculateDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return location.Distance(lat1, lon1, lat2, lon2)
}

// HasMovedSignificantly reports whether loc is more than threshold meters
// from the current location. A non-positive threshold means 10 m. With no
// current location it is always true.
func (l *LocationService) HasMovedSignificantly(loc location.DeviceLocation, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultMovementThreshold
	}
	current := l.CurrentLocation()
	if current == nil {
		return true
	}
	return location.Distance(current.Latitude, current.Longitude, loc.Latitude, loc.Longitude) > threshold
}
