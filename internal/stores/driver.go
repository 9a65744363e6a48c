package stores

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
)

const driversTable = "drivers"

// ErrDuplicateLicense is returned before any request when another active
// driver already holds the license number.
var ErrDuplicateLicense = errors.New("a driver with this license number already exists")

type Driver struct {
	ID              string `json:"id" validate:"required"`
	CompanyID       string `json:"company_id"`
	FirstName       string `json:"first_name" validate:"required"`
	LastName        string `json:"last_name"`
	DocumentNumber  string `json:"document_number"`
	LicenseNumber   string `json:"license_number" validate:"required"`
	LicenseCategory string `json:"license_category"`
	LicenseExpiry   Date   `json:"license_expiry"`
	Phone           string `json:"phone,omitempty"`
	Email           string `json:"email,omitempty" validate:"omitempty,email"`
	VehicleID       string `json:"vehicle_id,omitempty"`
	IsActive        bool   `json:"is_active"`
}

func (d Driver) FullName() string {
	if d.LastName == "" {
		return d.FirstName
	}
	return d.FirstName + " " + d.LastName
}

type DriverStore struct {
	*cache[Driver]
	backendOrDemo
	now    func() time.Time
	logger zerolog.Logger
}

func NewDriverStore(db backend.Querier, opts Options, logger zerolog.Logger) *DriverStore {
	return &DriverStore{
		cache: newCache(
			func(d Driver) string { return d.ID },
			func(a, b Driver) bool { return a.FullName() < b.FullName() },
		),
		backendOrDemo: backendOrDemo{db: db, demo: opts.DemoMode},
		now:           time.Now,
		logger:        logger.With().Str("store", "drivers").Logger(),
	}
}

func (s *DriverStore) Load(ctx context.Context, companyID string) ([]Driver, error) {
	if s.demo {
		return s.loaded(demoDrivers(companyID, s.now()), nil, s.logger, "drivers")
	}
	rows, err := backend.SelectRows[Driver](ctx, s.db, driversTable, backend.Query{
		Filters: []backend.Filter{backend.Eq("company_id", companyID)},
		Order:   "first_name.asc",
	})
	return s.loaded(rows, err, s.logger, "drivers")
}

func (s *DriverStore) All() []Driver { return s.list(nil) }

func (s *DriverStore) Get(id string) (Driver, bool) { return s.get(id) }

func (s *DriverStore) today() Date { return DateOf(s.now()) }

// ActiveLicenses returns active drivers whose license is valid today.
func (s *DriverStore) ActiveLicenses() []Driver {
	today := s.today()
	return s.list(func(d Driver) bool {
		return d.IsActive && !d.LicenseExpiry.IsZero() && !d.LicenseExpiry.Before(today)
	})
}

// ExpiredLicenses returns active drivers whose license expired before today.
func (s *DriverStore) ExpiredLicenses() []Driver {
	today := s.today()
	return s.list(func(d Driver) bool {
		return d.IsActive && !d.LicenseExpiry.IsZero() && d.LicenseExpiry.Before(today)
	})
}

// ExpiringWithin returns still valid licenses that expire in the next window.
func (s *DriverStore) ExpiringWithin(window time.Duration) []Driver {
	today := s.today()
	limit := DateOf(today.Add(window))
	return s.list(func(d Driver) bool {
		return d.IsActive && !d.LicenseExpiry.IsZero() &&
			!d.LicenseExpiry.Before(today) && !limit.Before(d.LicenseExpiry)
	})
}

func (s *DriverStore) checkLicense(d Driver) error {
	license := normalizeKey(d.LicenseNumber)
	if license == "" {
		return errors.New("license number is required")
	}
	for _, other := range s.list(nil) {
		if other.ID != d.ID && other.IsActive && normalizeKey(other.LicenseNumber) == license {
			return ErrDuplicateLicense
		}
	}
	return nil
}

func (s *DriverStore) Create(ctx context.Context, d Driver) (Driver, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	d.IsActive = true
	if err := s.checkLicense(d); err != nil {
		return Driver{}, err
	}

	created := d
	if !s.demo {
		var err error
		created, err = backend.InsertRow[Driver](ctx, s.db, driversTable, d)
		if err != nil {
			return Driver{}, err
		}
	}
	s.upsert(created)
	s.logger.Info().Str("driver_id", created.ID).Msg("Driver created")
	return created, nil
}

func (s *DriverStore) Update(ctx context.Context, d Driver) (Driver, error) {
	if d.ID == "" {
		return Driver{}, errors.New("driver id is required")
	}
	if err := s.checkLicense(d); err != nil {
		return Driver{}, err
	}

	updated := d
	if !s.demo {
		var err error
		updated, err = backend.UpdateRow[Driver](ctx, s.db, driversTable, []backend.Filter{backend.Eq("id", d.ID)}, d)
		if err != nil {
			return Driver{}, err
		}
	}
	s.upsert(updated)
	return updated, nil
}

// Delete deactivates the driver.
func (s *DriverStore) Delete(ctx context.Context, id string) error {
	if !s.demo {
		patch := map[string]any{"is_active": false}
		if err := s.db.Update(ctx, driversTable, []backend.Filter{backend.Eq("id", id)}, patch, nil); err != nil {
			return err
		}
	}
	s.update(id, func(d *Driver) { d.IsActive = false })
	s.logger.Info().Str("driver_id", id).Msg("Driver deactivated")
	return nil
}
