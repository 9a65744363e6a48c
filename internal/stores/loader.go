package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"
)

const defaultLoaderConcurrency = 4

type loadTask struct {
	name string
	fn   func(ctx context.Context) error
}

// Loader refreshes several stores concurrently.
type Loader struct {
	tasks          []loadTask
	maxConcurrency int
	logger         zerolog.Logger
}

func NewLoader(maxConcurrency int, logger zerolog.Logger) *Loader {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultLoaderConcurrency
	}
	return &Loader{maxConcurrency: maxConcurrency, logger: logger}
}

// Add registers a named load.
func (l *Loader) Add(name string, fn func(ctx context.Context) error) *Loader {
	l.tasks = append(l.tasks, loadTask{name: name, fn: fn})
	return l
}

// LoadAll runs every load and returns their errors joined. One failing
// store does not cancel the others.
func (l *Loader) LoadAll(ctx context.Context) error {
	start := time.Now()
	p := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(l.maxConcurrency)
	for _, task := range l.tasks {
		task := task
		p.Go(func(ctx context.Context) error {
			if err := task.fn(ctx); err != nil {
				return fmt.Errorf("%s: %w", task.name, err)
			}
			return nil
		})
	}
	err := p.Wait()
	l.logger.Info().
		Int("stores", len(l.tasks)).
		Dur("elapsed", time.Since(start)).
		AnErr("error", err).
		Msg("Stores refreshed")
	return err
}

// AddCompanyStores registers the company scoped stores in one call.
func (l *Loader) AddCompanyStores(companyID string, vehicles *VehicleStore, drivers *DriverStore, routes *RouteStore, rates *ExchangeRateStore) *Loader {
	if vehicles != nil {
		l.Add("vehicles", func(ctx context.Context) error { _, err := vehicles.Load(ctx, companyID); return err })
	}
	if drivers != nil {
		l.Add("drivers", func(ctx context.Context) error { _, err := drivers.Load(ctx, companyID); return err })
	}
	if routes != nil {
		l.Add("routes", func(ctx context.Context) error { _, err := routes.Load(ctx, companyID); return err })
	}
	if rates != nil {
		l.Add("exchange_rates", func(ctx context.Context) error { _, err := rates.Load(ctx, companyID); return err })
	}
	return l
}

// AddWarehouse registers the positions of one warehouse. An empty id is skipped.
func (l *Loader) AddWarehouse(warehouseID string, positions *WarehouseStore) *Loader {
	if warehouseID != "" && positions != nil {
		l.Add("warehouse_positions", func(ctx context.Context) error {
			_, err := positions.Load(ctx, warehouseID)
			return err
		})
	}
	return l
}
