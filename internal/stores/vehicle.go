package stores

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/transport"
)

const vehiclesTable = "vehicles"

type VehicleStatus string

const (
	VehicleAvailable   VehicleStatus = "available"
	VehicleInTransit   VehicleStatus = "in_transit"
	VehicleMaintenance VehicleStatus = "maintenance"
	VehicleInactive    VehicleStatus = "inactive"
)

// ErrDuplicatePlate is returned before any request when another cached
// vehicle already has the plate.
var ErrDuplicatePlate = errors.New("a vehicle with this plate already exists")

// Vehicle is a fleet vehicle. Speed is m/s, capacity kg.
type Vehicle struct {
	ID        string        `json:"id" validate:"required"`
	CompanyID string        `json:"company_id"`
	Plate     string        `json:"plate" validate:"required"`
	Brand     string        `json:"brand"`
	Model     string        `json:"model"`
	Year      int           `json:"year,omitempty" validate:"omitempty,gte=1950,lte=2100"`
	Type      string        `json:"vehicle_type"`
	Capacity  float64       `json:"capacity_kg" validate:"gte=0"`
	Status    VehicleStatus `json:"status" validate:"omitempty,oneof=available in_transit maintenance inactive"`
	DriverID  *string       `json:"driver_id,omitempty"`
	Latitude  *float64      `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64      `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Speed     *float64      `json:"speed,omitempty"`
	Heading   *float64      `json:"heading,omitempty"`
	LastSeen  *time.Time    `json:"last_seen,omitempty"`
	IsActive  bool          `json:"is_active"`
}

// VehicleStore caches the vehicles of one company and follows live
// vehicle_update events.
type VehicleStore struct {
	*cache[Vehicle]
	backendOrDemo
	logger zerolog.Logger
}

func NewVehicleStore(db backend.Querier, opts Options, logger zerolog.Logger) *VehicleStore {
	return &VehicleStore{
		cache: newCache(
			func(v Vehicle) string { return v.ID },
			func(a, b Vehicle) bool { return a.Plate < b.Plate },
		),
		backendOrDemo: backendOrDemo{db: db, demo: opts.DemoMode},
		logger:        logger.With().Str("store", "vehicles").Logger(),
	}
}

// Load replaces the cache with the company's vehicles.
func (s *VehicleStore) Load(ctx context.Context, companyID string) ([]Vehicle, error) {
	if s.demo {
		return s.loaded(demoVehicles(companyID), nil, s.logger, "vehicles")
	}
	rows, err := backend.SelectRows[Vehicle](ctx, s.db, vehiclesTable, backend.Query{
		Filters: []backend.Filter{backend.Eq("company_id", companyID)},
		Order:   "plate.asc",
	})
	return s.loaded(rows, err, s.logger, "vehicles")
}

func (s *VehicleStore) All() []Vehicle { return s.list(nil) }

func (s *VehicleStore) Get(id string) (Vehicle, bool) { return s.get(id) }

// Active returns vehicles that are not soft-deleted.
func (s *VehicleStore) Active() []Vehicle {
	return s.list(func(v Vehicle) bool { return v.IsActive && v.Status != VehicleInactive })
}

func (s *VehicleStore) ByStatus(status VehicleStatus) []Vehicle {
	return s.list(func(v Vehicle) bool { return v.Status == status })
}

func (s *VehicleStore) checkPlate(v Vehicle) error {
	plate := normalizeKey(v.Plate)
	if plate == "" {
		return errors.New("plate is required")
	}
	for _, other := range s.list(nil) {
		if other.ID != v.ID && other.IsActive && normalizeKey(other.Plate) == plate {
			return ErrDuplicatePlate
		}
	}
	return nil
}

// Create stores a new vehicle. A missing id is generated.
func (s *VehicleStore) Create(ctx context.Context, v Vehicle) (Vehicle, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.Status == "" {
		v.Status = VehicleAvailable
	}
	v.IsActive = true
	if err := s.checkPlate(v); err != nil {
		return Vehicle{}, err
	}

	created := v
	if !s.demo {
		var err error
		created, err = backend.InsertRow[Vehicle](ctx, s.db, vehiclesTable, v)
		if err != nil {
			return Vehicle{}, err
		}
	}
	s.upsert(created)
	s.logger.Info().Str("vehicle_id", created.ID).Str("plate", created.Plate).Msg("Vehicle created")
	return created, nil
}

// Update writes the whole vehicle row.
func (s *VehicleStore) Update(ctx context.Context, v Vehicle) (Vehicle, error) {
	if v.ID == "" {
		return Vehicle{}, errors.New("vehicle id is required")
	}
	if err := s.checkPlate(v); err != nil {
		return Vehicle{}, err
	}

	updated := v
	if !s.demo {
		var err error
		updated, err = backend.UpdateRow[Vehicle](ctx, s.db, vehiclesTable, []backend.Filter{backend.Eq("id", v.ID)}, v)
		if err != nil {
			return Vehicle{}, err
		}
	}
	s.upsert(updated)
	return updated, nil
}

// Delete marks the vehicle inactive. The row stays in the backend.
func (s *VehicleStore) Delete(ctx context.Context, id string) error {
	if !s.demo {
		patch := map[string]any{"is_active": false, "status": VehicleInactive}
		if err := s.db.Update(ctx, vehiclesTable, []backend.Filter{backend.Eq("id", id)}, patch, nil); err != nil {
			return err
		}
	}
	s.update(id, func(v *Vehicle) {
		v.IsActive = false
		v.Status = VehicleInactive
	})
	s.logger.Info().Str("vehicle_id", id).Msg("Vehicle deactivated")
	return nil
}

// ApplyUpdate merges a live position into a cached vehicle. Unknown
// vehicles are ignored; it reports whether one was updated.
func (s *VehicleStore) ApplyUpdate(u transport.VehicleUpdate) bool {
	ok := s.update(u.VehicleID, func(v *Vehicle) {
		lat, lon, speed, heading := u.Location.Latitude, u.Location.Longitude, u.Speed, u.Heading
		v.Latitude, v.Longitude, v.Speed, v.Heading = &lat, &lon, &speed, &heading
		ts := u.Timestamp
		if ts.IsZero() {
			ts = time.Now()
		}
		v.LastSeen = &ts
		if u.Status != "" {
			v.Status = VehicleStatus(u.Status)
		}
		if u.DriverID != "" {
			driver := u.DriverID
			v.DriverID = &driver
		}
	})
	if !ok {
		s.logger.Debug().Str("vehicle_id", u.VehicleID).Msg("Ignoring update for unknown vehicle")
	}
	return ok
}

// Attach follows vehicle_update events from client until the returned
// function is called.
func (s *VehicleStore) Attach(client transport.Client) (detach func()) {
	id := client.On(transport.TypeVehicleUpdate, func(payload any) {
		if u, ok := payload.(transport.VehicleUpdate); ok {
			s.ApplyUpdate(u)
		}
	})
	return func() { client.Off(transport.TypeVehicleUpdate, id) }
}

func normalizeKey(s string) string {
	return strings.ToUpper(strings.Join(strings.Fields(s), ""))
}
