package stores

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/routing"
	"github.com/jwichpas/backend-project-admin-sub000/pkg/transport"
)

const fleetLoadTimeout = 30 * time.Second

// Fleet bundles the company scoped stores and keeps them in step with a
// transport client while the agent runs.
type Fleet struct {
	Vehicles *VehicleStore
	Drivers  *DriverStore
	Routes   *RouteStore
	Rates    *ExchangeRateStore
	// Warehouse is loaded on Start when WarehouseID is set.
	Warehouse   *WarehouseStore
	WarehouseID string

	companyID string
	client    transport.Client
	detach    []func()
	logger    zerolog.Logger
}

// NewFleet creates the stores. router and client may be nil.
func NewFleet(db backend.Querier, router routing.Router, client transport.Client, companyID string, opts Options, logger zerolog.Logger) *Fleet {
	return &Fleet{
		Vehicles:  NewVehicleStore(db, opts, logger),
		Drivers:   NewDriverStore(db, opts, logger),
		Routes:    NewRouteStore(db, router, opts, logger),
		Rates:     NewExchangeRateStore(db, opts, logger),
		Warehouse: NewWarehouseStore(db, opts, logger),
		companyID: companyID,
		client:    client,
		logger:    logger.With().Str("component", "fleet").Str("company_id", companyID).Logger(),
	}
}

// Start loads every store and subscribes to live updates for the active
// vehicles and running routes. Load failures are logged, each store keeps
// its own error.
func (f *Fleet) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), fleetLoadTimeout)
	defer cancel()

	if f.client != nil {
		f.detach = append(f.detach, f.Vehicles.Attach(f.client), f.Routes.Attach(f.client))
	}

	err := NewLoader(0, f.logger).
		AddCompanyStores(f.companyID, f.Vehicles, f.Drivers, f.Routes, f.Rates).
		AddWarehouse(f.WarehouseID, f.Warehouse).
		LoadAll(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("Some stores failed to load")
	}

	if f.client != nil {
		f.subscribe()
	}
	return nil
}

func (f *Fleet) subscribe() {
	for _, v := range f.Vehicles.Active() {
		if err := f.client.SubscribeToVehicle(v.ID); err != nil {
			f.logger.Warn().Err(err).Str("vehicle_id", v.ID).Msg("Vehicle subscription failed")
		}
	}
	for _, r := range f.Routes.ByStatus(RouteInProgress) {
		if err := f.client.SubscribeToRoute(r.ID); err != nil {
			f.logger.Warn().Err(err).Str("route_id", r.ID).Msg("Route subscription failed")
		}
	}
	if err := f.client.SubscribeToTrafficAlerts(f.companyID); err != nil {
		f.logger.Warn().Err(err).Msg("Traffic alert subscription failed")
	}
}

// Stop detaches the stores from the transport.
func (f *Fleet) Stop() error {
	for _, detach := range f.detach {
		detach()
	}
	f.detach = nil
	return nil
}
