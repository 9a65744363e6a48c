package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
)

// SimulatorOptions configures the development simulator.
type SimulatorOptions struct {
	Seed            int64
	VehicleInterval time.Duration
	AlertInterval   time.Duration
	Center          Coordinates
	ProtocolVersion string
}

var defaultCenter = Coordinates{Latitude: -12.0464, Longitude: -77.0428}

type simVehicle struct {
	lat, lon float64
	heading  float64
	speedKmh float64
}

var alertKinds = []string{"accident", "congestion", "roadwork", "closure"}
var alertSeverities = []string{"low", "medium", "high", "critical"}

// Simulator is a Client that fabricates server traffic locally. Generated
// frames go through the same decoding path as real ones.
type Simulator struct {
	base

	opts SimulatorOptions

	mu       sync.Mutex
	rng      *rand.Rand
	state    ConnectionState
	vehicles map[string]*simVehicle
	alertID  string
	alertSeq int
	cancel   context.CancelFunc
	now      func() time.Time

	wg conc.WaitGroup
}

var _ Client = (*Simulator)(nil)

// NewSimulator returns a closed simulator. Zero intervals disable the
// corresponding ticker, the Step methods still work.
func NewSimulator(opts SimulatorOptions, logger zerolog.Logger) *Simulator {
	if opts.Center == (Coordinates{}) {
		opts.Center = defaultCenter
	}
	s := &Simulator{
		opts:     opts,
		rng:      rand.New(rand.NewSource(opts.Seed)),
		state:    StateClosed,
		vehicles: make(map[string]*simVehicle),
		now:      time.Now,
	}
	// no constraint, so init cannot fail
	_ = s.base.init(logger.With().Str("component", "simulator").Logger(), "", s.Send)
	return s
}

func (s *Simulator) State() ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulator) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.state = StateOpen
	genCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info().Int64("seed", s.opts.Seed).Msg("Simulator connected")
	s.Emit(EventConnected, nil)
	s.resubscribe()
	s.announceSession()

	if s.opts.VehicleInterval > 0 {
		s.wg.Go(func() { s.tick(genCtx, s.opts.VehicleInterval, s.StepVehicles) })
	}
	if s.opts.AlertInterval > 0 {
		s.wg.Go(func() { s.tick(genCtx, s.opts.AlertInterval, s.StepAlerts) })
	}
	return nil
}

func (s *Simulator) tick(ctx context.Context, every time.Duration, step func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			step()
		}
	}
}

func (s *Simulator) Disconnect() error {
	s.mu.Lock()
	if s.state != StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosed
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.Emit(EventDisconnected, nil)
	return nil
}

func (s *Simulator) Close() error {
	err := s.Disconnect()
	s.wg.Wait()
	return err
}

// Send accepts any message while open. Nothing is echoed back.
func (s *Simulator) Send(msg Message) error {
	if s.State() != StateOpen {
		s.logger.Warn().Str("type", msg.Type).Msg("Simulator not open, dropping outbound message")
		return ErrNotConnected
	}
	s.logger.Debug().Str("type", msg.Type).RawJSON("data", msg.Data).Msg("Simulator received message")
	return nil
}

func (s *Simulator) announceSession() {
	s.mu.Lock()
	session := fmt.Sprintf("sim-%d", s.rng.Int63())
	now := s.now()
	s.mu.Unlock()
	s.inject(TypeTrackingSessionStarted, TrackingSessionStarted{
		SessionID:       session,
		StartedAt:       now,
		ProtocolVersion: s.opts.ProtocolVersion,
	})
}

// StepVehicles moves every subscribed vehicle one step and emits a
// vehicle_update for each.
func (s *Simulator) StepVehicles() {
	if s.State() != StateOpen {
		return
	}
	for _, id := range s.subs.ids(ChannelVehicle) {
		s.inject(TypeVehicleUpdate, s.advance(id))
	}
}

func (s *Simulator) advance(id string) VehicleUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.vehicles[id]
	if !ok {
		v = &simVehicle{
			lat:      s.opts.Center.Latitude + (s.rng.Float64()-0.5)*0.05,
			lon:      s.opts.Center.Longitude + (s.rng.Float64()-0.5)*0.05,
			heading:  s.rng.Float64() * 360,
			speedKmh: 20 + s.rng.Float64()*40,
		}
		s.vehicles[id] = v
	}

	v.heading = math.Mod(v.heading+(s.rng.Float64()-0.5)*30+360, 360)
	v.speedKmh = math.Max(0, v.speedKmh+(s.rng.Float64()-0.5)*10)
	// ~1e-4 degrees is about 11 m
	step := v.speedKmh / 3.6 * 1e-5
	rad := v.heading * math.Pi / 180
	v.lat += step * math.Cos(rad)
	v.lon += step * math.Sin(rad)

	return VehicleUpdate{
		VehicleID: id,
		Location:  Coordinates{Latitude: v.lat, Longitude: v.lon},
		Speed:     v.speedKmh,
		Heading:   v.heading,
		Status:    "in_transit",
		Timestamp: s.now(),
	}
}

// StepAlerts alternates between raising a traffic alert and resolving it.
func (s *Simulator) StepAlerts() {
	if s.State() != StateOpen {
		return
	}

	s.mu.Lock()
	if s.alertID != "" {
		id := s.alertID
		s.alertID = ""
		s.mu.Unlock()
		s.inject(TypeTrafficAlertResolved, TrafficAlertResolved{AlertID: id})
		return
	}
	s.alertSeq++
	alert := TrafficAlert{
		ID:       fmt.Sprintf("sim-alert-%d", s.alertSeq),
		Type:     alertKinds[s.rng.Intn(len(alertKinds))],
		Severity: alertSeverities[s.rng.Intn(len(alertSeverities))],
		Location: Coordinates{
			Latitude:  s.opts.Center.Latitude + (s.rng.Float64()-0.5)*0.1,
			Longitude: s.opts.Center.Longitude + (s.rng.Float64()-0.5)*0.1,
		},
		Radius:    100 + s.rng.Float64()*900,
		StartTime: s.now(),
	}
	alert.Description = fmt.Sprintf("Simulated %s", alert.Type)
	s.alertID = alert.ID
	s.mu.Unlock()

	s.inject(TypeTrafficAlert, alert)
}

// inject encodes a payload as a wire frame and feeds it to dispatch.
func (s *Simulator) inject(msgType string, data any) {
	msg, err := NewMessage(msgType, data)
	if err != nil {
		s.logger.Error().Err(err).Msg("Simulator failed to build message")
		return
	}
	frame, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("Simulator failed to encode frame")
		return
	}
	s.dispatch(frame)
}

// SimulateDeviceLocation feeds a device_location_update as if the server
// echoed it.
func (s *Simulator) SimulateDeviceLocation(loc location.DeviceLocation) {
	if s.State() != StateOpen {
		return
	}
	s.inject(TypeDeviceLocationUpdate, loc)
}
