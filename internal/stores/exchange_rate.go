package stores

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jwichpas/backend-project-admin-sub000/pkg/backend"
)

const exchangeRatesTable = "exchange_rates"

// ErrInvalidRate is returned before any request for non-positive rates.
var ErrInvalidRate = errors.New("exchange rate must be greater than zero")

type ExchangeRate struct {
	ID           string  `json:"id" validate:"required"`
	CompanyID    string  `json:"company_id"`
	FromCurrency string  `json:"from_currency" validate:"required,len=3"`
	ToCurrency   string  `json:"to_currency" validate:"required,len=3"`
	Rate         float64 `json:"rate" validate:"gt=0"`
	Date         Date    `json:"rate_date"`
	Source       string  `json:"source,omitempty"`
	InverseOf    *string `json:"inverse_of,omitempty"`
}

// RoundRate rounds to the 6 decimals rates are stored with.
func RoundRate(rate float64) float64 {
	return math.Round(rate*1e6) / 1e6
}

type ExchangeRateStore struct {
	*cache[ExchangeRate]
	backendOrDemo
	now    func() time.Time
	logger zerolog.Logger
}

func NewExchangeRateStore(db backend.Querier, opts Options, logger zerolog.Logger) *ExchangeRateStore {
	return &ExchangeRateStore{
		cache: newCache(
			func(r ExchangeRate) string { return r.ID },
			func(a, b ExchangeRate) bool {
				if !a.Date.Equal(b.Date.Time) {
					return b.Date.Before(a.Date)
				}
				return a.FromCurrency+a.ToCurrency < b.FromCurrency+b.ToCurrency
			},
		),
		backendOrDemo: backendOrDemo{db: db, demo: opts.DemoMode},
		now:           time.Now,
		logger:        logger.With().Str("store", "exchange_rates").Logger(),
	}
}

// Load reads the company's rates, newest first.
func (s *ExchangeRateStore) Load(ctx context.Context, companyID string) ([]ExchangeRate, error) {
	if s.demo {
		return s.loaded(demoRates(companyID, s.now()), nil, s.logger, "exchange rates")
	}
	rows, err := backend.SelectRows[ExchangeRate](ctx, s.db, exchangeRatesTable, backend.Query{
		Filters: []backend.Filter{backend.Eq("company_id", companyID)},
		Order:   "rate_date.desc",
	})
	return s.loaded(rows, err, s.logger, "exchange rates")
}

func (s *ExchangeRateStore) All() []ExchangeRate { return s.list(nil) }

// Latest returns the most recent rate for a currency pair.
func (s *ExchangeRateStore) Latest(from, to string) (ExchangeRate, bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	rates := s.list(func(r ExchangeRate) bool { return r.FromCurrency == from && r.ToCurrency == to })
	if len(rates) == 0 {
		return ExchangeRate{}, false
	}
	return rates[0], true
}

// Convert converts amount with the latest rate of the pair.
func (s *ExchangeRateStore) Convert(amount float64, from, to string) (float64, error) {
	if strings.EqualFold(from, to) {
		return amount, nil
	}
	rate, ok := s.Latest(from, to)
	if !ok {
		return 0, fmt.Errorf("no exchange rate for %s to %s", from, to)
	}
	return amount * rate.Rate, nil
}

// Create stores a rate and, when withInverse is set, the inverse pair with
// rate 1/r rounded to 6 decimals.
func (s *ExchangeRateStore) Create(ctx context.Context, r ExchangeRate, withInverse bool) (ExchangeRate, error) {
	if r.Rate <= 0 || math.IsNaN(r.Rate) || math.IsInf(r.Rate, 0) {
		return ExchangeRate{}, ErrInvalidRate
	}
	r.FromCurrency = strings.ToUpper(r.FromCurrency)
	r.ToCurrency = strings.ToUpper(r.ToCurrency)
	if r.FromCurrency == r.ToCurrency {
		return ExchangeRate{}, errors.New("exchange rate currencies must differ")
	}
	if r.Date.IsZero() {
		r.Date = DateOf(s.now())
	}
	r.Rate = RoundRate(r.Rate)

	created, err := s.insert(ctx, r)
	if err != nil {
		return ExchangeRate{}, err
	}

	if withInverse {
		originalID := created.ID
		inverse := ExchangeRate{
			CompanyID:    created.CompanyID,
			FromCurrency: created.ToCurrency,
			ToCurrency:   created.FromCurrency,
			Rate:         RoundRate(1 / created.Rate),
			Date:         created.Date,
			Source:       created.Source,
			InverseOf:    &originalID,
		}
		if _, err := s.insert(ctx, inverse); err != nil {
			return created, fmt.Errorf("rate %s created but its inverse failed: %w", created.ID, err)
		}
	}
	return created, nil
}

func (s *ExchangeRateStore) insert(ctx context.Context, r ExchangeRate) (ExchangeRate, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	created := r
	if !s.demo {
		var err error
		created, err = backend.InsertRow[ExchangeRate](ctx, s.db, exchangeRatesTable, r)
		if err != nil {
			return ExchangeRate{}, err
		}
	}
	s.upsert(created)
	return created, nil
}

// Delete removes a rate together with the inverse created for it.
func (s *ExchangeRateStore) Delete(ctx context.Context, id string) error {
	if err := s.delete(ctx, id); err != nil {
		return err
	}
	// the inverse may not be cached, so it is matched on the backend by inverse_of
	if !s.demo {
		if err := s.db.Delete(ctx, exchangeRatesTable, []backend.Filter{backend.Eq("inverse_of", id)}); err != nil {
			return fmt.Errorf("rate %s deleted but its inverse failed: %w", id, err)
		}
	}
	for _, inv := range s.list(func(r ExchangeRate) bool { return r.InverseOf != nil && *r.InverseOf == id }) {
		s.remove(inv.ID)
	}
	return nil
}

func (s *ExchangeRateStore) delete(ctx context.Context, id string) error {
	if !s.demo {
		if err := s.db.Delete(ctx, exchangeRatesTable, []backend.Filter{backend.Eq("id", id)}); err != nil {
			return err
		}
	}
	s.remove(id)
	return nil
}
