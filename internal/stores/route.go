package stores

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/location"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/routing"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/transport"
)

const (
	routesTable = "routes"

	// DefaultAverageSpeed is used for estimates when no router answers, m/s (40 km/h).
	DefaultAverageSpeed = 40.0 / 3.6
)

type RouteStatus string

const (
	RoutePlanned    RouteStatus = "planned"
	RouteInProgress RouteStatus = "in_progress"
	RouteCompleted  RouteStatus = "completed"
	RouteCancelled  RouteStatus = "cancelled"
)

type Waypoint struct {
	Name      string  `json:"name,omitempty"`
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
}

// Route is a planned trip. Distances are meters, durations seconds.
type Route struct {
	ID                string      `json:"id" validate:"required"`
	CompanyID         string      `json:"company_id"`
	Name              string      `json:"name"`
	VehicleID         string      `json:"vehicle_id,omitempty"`
	DriverID          string      `json:"driver_id,omitempty"`
	Status            RouteStatus `json:"status" validate:"omitempty,oneof=planned in_progress completed cancelled"`
	Origin            Waypoint    `json:"origin"`
	Destination       Waypoint    `json:"destination"`
	Progress          float64     `json:"progress" validate:"gte=0,lte=100"`
	DistanceRemaining float64     `json:"distance_remaining"`
	TimeRemaining     float64     `json:"time_remaining"`
	TotalDistance     float64     `json:"total_distance"`
	TotalDuration     float64     `json:"total_duration"`
	CurrentLocation   *Waypoint   `json:"current_location,omitempty"`
	Speed             float64     `json:"speed"`
	Deviated          bool        `json:"deviated"`
	DeviationDistance float64     `json:"deviation_distance"`
	StartedAt         *time.Time  `json:"started_at,omitempty"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
	UpdatedAt         *time.Time  `json:"updated_at,omitempty"`
}

// Estimate of a trip between two points.
type Estimate struct {
	Distance float64 // meters
	Duration time.Duration
	Geometry []routing.Point
	// Approximate is set when the figures come from the straight-line fallback.
	Approximate bool
}

// RouteStore caches routes and the traffic alerts currently in force.
type RouteStore struct {
	*cache[Route]
	backendOrDemo
	alerts       cmap.ConcurrentMap[string, transport.TrafficAlert]
	router       routing.Router
	averageSpeed float64
	logger       zerolog.Logger
}

// NewRouteStore creates the store. router may be nil, estimates then use the
// straight-line fallback.
func NewRouteStore(db backend.Querier, router routing.Router, opts Options, logger zerolog.Logger) *RouteStore {
	return &RouteStore{
		cache: newCache(
			func(r Route) string { return r.ID },
			func(a, b Route) bool { return a.Name < b.Name },
		),
		backendOrDemo: backendOrDemo{db: db, demo: opts.DemoMode},
		alerts:        cmap.New[transport.TrafficAlert](),
		router:        router,
		averageSpeed:  DefaultAverageSpeed,
		logger:        logger.With().Str("store", "routes").Logger(),
	}
}

func (s *RouteStore) Load(ctx context.Context, companyID string) ([]Route, error) {
	if s.demo {
		return s.loaded(demoRoutes(companyID), nil, s.logger, "routes")
	}
	rows, err := backend.SelectRows[Route](ctx, s.db, routesTable, backend.Query{
		Filters: []backend.Filter{backend.Eq("company_id", companyID)},
		Order:   "name.asc",
	})
	return s.loaded(rows, err, s.logger, "routes")
}

func (s *RouteStore) All() []Route { return s.list(nil) }

func (s *RouteStore) Get(id string) (Route, bool) { return s.get(id) }

func (s *RouteStore) ByStatus(status RouteStatus) []Route {
	return s.list(func(r Route) bool { return r.Status == status })
}

func (s *RouteStore) Create(ctx context.Context, r Route) (Route, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = RoutePlanned
	}

	created := r
	if !s.demo {
		var err error
		created, err = backend.InsertRow[Route](ctx, s.db, routesTable, r)
		if err != nil {
			return Route{}, err
		}
	}
	s.upsert(created)
	return created, nil
}

func (s *RouteStore) Update(ctx context.Context, r Route) (Route, error) {
	if r.ID == "" {
		return Route{}, errors.New("route id is required")
	}
	updated := r
	if !s.demo {
		var err error
		updated, err = backend.UpdateRow[Route](ctx, s.db, routesTable, []backend.Filter{backend.Eq("id", r.ID)}, r)
		if err != nil {
			return Route{}, err
		}
	}
	s.upsert(updated)
	return updated, nil
}

// Cancel is the soft delete for routes.
func (s *RouteStore) Cancel(ctx context.Context, id string) error {
	if !s.demo {
		patch := map[string]any{"status": RouteCancelled}
		if err := s.db.Update(ctx, routesTable, []backend.Filter{backend.Eq("id", id)}, patch, nil); err != nil {
			return err
		}
	}
	s.update(id, func(r *Route) { r.Status = RouteCancelled })
	return nil
}

// ApplyRouteUpdate records progress. Updates for routes that are not cached
// are ignored.
func (s *RouteStore) ApplyRouteUpdate(u transport.RouteUpdate) bool {
	return s.update(u.RouteID, func(r *Route) {
		r.Status = RouteInProgress
		r.Progress = u.Progress
		r.DistanceRemaining = u.DistanceRemaining
		r.TimeRemaining = u.TimeRemaining
		r.Speed = u.Speed
		r.CurrentLocation = &Waypoint{Latitude: u.CurrentLocation.Latitude, Longitude: u.CurrentLocation.Longitude}
		if u.VehicleID != "" {
			r.VehicleID = u.VehicleID
		}
		r.UpdatedAt = timestamp(u.Timestamp)
	})
}

func (s *RouteStore) ApplyRouteCompleted(c transport.RouteCompleted) bool {
	return s.update(c.RouteID, func(r *Route) {
		r.Status = RouteCompleted
		r.Progress = 100
		r.DistanceRemaining = 0
		r.TimeRemaining = 0
		r.TotalDistance = c.TotalDistance
		r.TotalDuration = c.TotalDuration
		r.Deviated = false
		r.CompletedAt = timestamp(c.CompletedAt)
	})
}

func (s *RouteStore) ApplyRouteDeviation(d transport.RouteDeviation) bool {
	return s.update(d.RouteID, func(r *Route) {
		r.Deviated = true
		r.DeviationDistance = d.DeviationDistance
		r.CurrentLocation = &Waypoint{Latitude: d.Location.Latitude, Longitude: d.Location.Longitude}
		r.UpdatedAt = timestamp(d.Timestamp)
	})
}

// ApplyTrafficAlert upserts an alert by id.
func (s *RouteStore) ApplyTrafficAlert(a transport.TrafficAlert) {
	s.alerts.Set(a.ID, a)
}

// ApplyTrafficAlertResolved drops an alert. Unknown ids are ignored.
func (s *RouteStore) ApplyTrafficAlertResolved(r transport.TrafficAlertResolved) {
	s.alerts.Remove(r.AlertID)
}

// Alerts returns the alerts in force, most severe first.
func (s *RouteStore) Alerts() []transport.TrafficAlert {
	items := s.alerts.Items()
	out := make([]transport.TrafficAlert, 0, len(items))
	for _, a := range items {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return alertLess(out[i], out[j]) })
	return out
}

// AlertsNear returns alerts whose area is within radius meters of a point.
func (s *RouteStore) AlertsNear(lat, lon, radius float64) []transport.TrafficAlert {
	var out []transport.TrafficAlert
	for _, a := range s.Alerts() {
		if location.Distance(lat, lon, a.Location.Latitude, a.Location.Longitude) <= radius+a.Radius {
			out = append(out, a)
		}
	}
	return out
}

// Attach follows route and traffic events from client.
func (s *RouteStore) Attach(client transport.Client) (detach func()) {
	handlers := map[string]transport.Listener{
		transport.TypeRouteUpdate: func(p any) {
			if u, ok := p.(transport.RouteUpdate); ok {
				s.ApplyRouteUpdate(u)
			}
		},
		transport.TypeRouteCompleted: func(p any) {
			if c, ok := p.(transport.RouteCompleted); ok {
				s.ApplyRouteCompleted(c)
			}
		},
		transport.TypeRouteDeviation: func(p any) {
			if d, ok := p.(transport.RouteDeviation); ok {
				s.ApplyRouteDeviation(d)
			}
		},
		transport.TypeTrafficAlert: func(p any) {
			if a, ok := p.(transport.TrafficAlert); ok {
				s.ApplyTrafficAlert(a)
			}
		},
		transport.TypeTrafficAlertResolved: func(p any) {
			if r, ok := p.(transport.TrafficAlertResolved); ok {
				s.ApplyTrafficAlertResolved(r)
			}
		},
	}

	ids := make(map[string]transport.ListenerID, len(handlers))
	for event, fn := range handlers {
		ids[event] = client.On(event, fn)
	}
	return func() {
		for event, id := range ids {
			client.Off(event, id)
		}
	}
}

// EstimateRoute asks the router and falls back to the great-circle distance
// at the average speed when there is no router or it fails.
func (s *RouteStore) EstimateRoute(ctx context.Context, from, to routing.Point, opts routing.Options) Estimate {
	if s.router != nil {
		route, err := s.router.Directions(ctx, from, to, opts)
		if err == nil {
			return Estimate{Distance: route.Distance, Duration: route.Duration, Geometry: route.Geometry}
		}
		s.logger.Warn().Err(err).Msg("Routing failed, using straight-line estimate")
	}

	distance := location.Distance(from.Lat, from.Lon, to.Lat, to.Lon)
	return Estimate{
		Distance:    distance,
		Duration:    time.Duration(distance / s.averageSpeed * float64(time.Second)),
		Geometry:    []routing.Point{from, to},
		Approximate: true,
	}
}

var severityRank = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3}

func alertLess(a, b transport.TrafficAlert) bool {
	if severityRank[a.Severity] != severityRank[b.Severity] {
		return severityRank[a.Severity] < severityRank[b.Severity]
	}
	return a.ID < b.ID
}

func timestamp(t time.Time) *time.Time {
	if t.IsZero() {
		t = time.Now()
	}
	return &t
}
