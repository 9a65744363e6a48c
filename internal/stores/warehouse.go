package stores

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
)

const (
	positionsTable = "warehouse_positions"
	stockRPC       = "get_product_stock"
)

var (
	ErrPositionOccupied = errors.New("warehouse position is already occupied")
	ErrUnknownPosition  = errors.New("unknown warehouse position")
)

// WarehousePosition is one storage slot (zone/aisle/rack/level).
type WarehousePosition struct {
	ID          string  `json:"id" validate:"required"`
	WarehouseID string  `json:"warehouse_id"`
	Code        string  `json:"code" validate:"required"`
	Zone        string  `json:"zone,omitempty"`
	Aisle       string  `json:"aisle,omitempty"`
	Rack        string  `json:"rack,omitempty"`
	Level       string  `json:"level,omitempty"`
	ProductID   *string `json:"product_id"`
	Quantity    float64 `json:"quantity" validate:"gte=0"`
	Capacity    float64 `json:"capacity" validate:"gte=0"`
	IsActive    bool    `json:"is_active"`
}

func (p WarehousePosition) Occupied() bool {
	return p.ProductID != nil && *p.ProductID != ""
}

// StockLevel is one row of get_product_stock.
type StockLevel struct {
	WarehouseID   string  `json:"warehouse_id" validate:"required"`
	WarehouseName string  `json:"warehouse_name"`
	Quantity      float64 `json:"quantity"`
	Reserved      float64 `json:"reserved"`
	MinStock      float64 `json:"min_stock"`
}

func (s StockLevel) Available() float64 { return s.Quantity - s.Reserved }

type WarehouseStore struct {
	*cache[WarehousePosition]
	backendOrDemo
	logger zerolog.Logger
}

func NewWarehouseStore(db backend.Querier, opts Options, logger zerolog.Logger) *WarehouseStore {
	return &WarehouseStore{
		cache: newCache(
			func(p WarehousePosition) string { return p.ID },
			func(a, b WarehousePosition) bool { return a.Code < b.Code },
		),
		backendOrDemo: backendOrDemo{db: db, demo: opts.DemoMode},
		logger:        logger.With().Str("store", "warehouse").Logger(),
	}
}

func (s *WarehouseStore) Get(id string) (WarehousePosition, bool) { return s.get(id) }

// Load replaces the cache with the positions of one warehouse.
func (s *WarehouseStore) Load(ctx context.Context, warehouseID string) ([]WarehousePosition, error) {
	if s.demo {
		return s.loaded(demoPositions(warehouseID), nil, s.logger, "warehouse positions")
	}
	rows, err := backend.SelectRows[WarehousePosition](ctx, s.db, positionsTable, backend.Query{
		Filters: []backend.Filter{backend.Eq("warehouse_id", warehouseID), backend.Eq("is_active", true)},
		Order:   "code.asc",
	})
	return s.loaded(rows, err, s.logger, "warehouse positions")
}

func (s *WarehouseStore) Positions() []WarehousePosition { return s.list(nil) }

func (s *WarehouseStore) FreePositions() []WarehousePosition {
	return s.list(func(p WarehousePosition) bool { return p.IsActive && !p.Occupied() })
}

func (s *WarehouseStore) OccupiedPositions() []WarehousePosition {
	return s.list(func(p WarehousePosition) bool { return p.IsActive && p.Occupied() })
}

// PositionsOf returns the positions holding productID.
func (s *WarehouseStore) PositionsOf(productID string) []WarehousePosition {
	return s.list(func(p WarehousePosition) bool { return p.Occupied() && *p.ProductID == productID })
}

func (s *WarehouseStore) CreatePosition(ctx context.Context, p WarehousePosition) (WarehousePosition, error) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Code == "" {
		return WarehousePosition{}, errors.New("position code is required")
	}
	p.IsActive = true

	created := p
	if !s.demo {
		var err error
		created, err = backend.InsertRow[WarehousePosition](ctx, s.db, positionsTable, p)
		if err != nil {
			return WarehousePosition{}, err
		}
	}
	s.upsert(created)
	return created, nil
}

// AssignProduct places quantity units of productID in a free position.
func (s *WarehouseStore) AssignProduct(ctx context.Context, positionID, productID string, quantity float64) (WarehousePosition, error) {
	pos, ok := s.get(positionID)
	if !ok {
		return WarehousePosition{}, ErrUnknownPosition
	}
	if pos.Occupied() && *pos.ProductID != productID {
		return WarehousePosition{}, ErrPositionOccupied
	}
	if quantity <= 0 {
		return WarehousePosition{}, errors.New("quantity must be positive")
	}
	if pos.Capacity > 0 && quantity > pos.Capacity {
		return WarehousePosition{}, fmt.Errorf("quantity %.2f exceeds position capacity %.2f", quantity, pos.Capacity)
	}

	return s.patch(ctx, positionID, map[string]any{"product_id": productID, "quantity": quantity}, func(p *WarehousePosition) {
		p.ProductID = &productID
		p.Quantity = quantity
	})
}

// ReleasePosition empties a position.
func (s *WarehouseStore) ReleasePosition(ctx context.Context, positionID string) (WarehousePosition, error) {
	if _, ok := s.get(positionID); !ok {
		return WarehousePosition{}, ErrUnknownPosition
	}
	return s.patch(ctx, positionID, map[string]any{"product_id": nil, "quantity": 0}, func(p *WarehousePosition) {
		p.ProductID = nil
		p.Quantity = 0
	})
}

// DeactivatePosition soft deletes a position.
func (s *WarehouseStore) DeactivatePosition(ctx context.Context, positionID string) error {
	_, err := s.patch(ctx, positionID, map[string]any{"is_active": false}, func(p *WarehousePosition) {
		p.IsActive = false
	})
	return err
}

func (s *WarehouseStore) patch(ctx context.Context, id string, fields map[string]any, local func(*WarehousePosition)) (WarehousePosition, error) {
	if s.demo {
		s.update(id, local)
		pos, _ := s.get(id)
		return pos, nil
	}
	updated, err := backend.UpdateRow[WarehousePosition](ctx, s.db, positionsTable, []backend.Filter{backend.Eq("id", id)}, fields)
	if err != nil {
		return WarehousePosition{}, err
	}
	s.upsert(updated)
	return updated, nil
}

// ProductStock returns per-warehouse stock of a product.
func (s *WarehouseStore) ProductStock(ctx context.Context, productID string) ([]StockLevel, error) {
	if s.demo {
		return demoStock(productID), nil
	}
	return backend.RPCRows[StockLevel](ctx, s.db, stockRPC, map[string]string{"p_product_id": productID})
}
