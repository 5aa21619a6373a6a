// Package carrier prices shipments for the synthetic carriers. Carriers
// differ only in data (tiers, zone multipliers, transit windows), so a single
// Engine type serves all of them.
package carrier

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"shipquote/internal/quote"
	"shipquote/internal/rate"
	"shipquote/internal/zone"
)

// FragileSurcharge is applied after zone and weight pricing.
var FragileSurcharge = decimal.RequireFromString("1.15")

// PreconditionError is returned when an engine is called with input outside
// its bounds. It unwraps to a *quote.ValidationError.
type PreconditionError struct {
	Carrier string
	Err     *quote.ValidationError
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("carrier %s: %s", e.Carrier, e.Err.Error())
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// CheckPreconditions guards every engine independently of request validation.
func CheckPreconditions(weight float64, destination string) *quote.ValidationError {
	return quote.CheckBounds(weight, destination)
}

// Engine quotes a single carrier.
type Engine struct {
	cfg Config
}

// New validates cfg and returns its engine.
func New(cfg Config) (*Engine, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

func (e *Engine) ID() string     { return e.cfg.ID }
func (e *Engine) Name() string   { return e.cfg.Name }
func (e *Engine) Config() Config { return e.cfg }

// Quote prices weight kilograms to destination:
// weight × tier rate × zone multiplier × 1.15 when fragile.
func (e *Engine) Quote(ctx context.Context, weight float64, destination string, fragile bool) (quote.Quote, error) {
	if err := ctx.Err(); err != nil {
		return quote.Quote{}, err
	}
	if verr := CheckPreconditions(weight, destination); verr != nil {
		return quote.Quote{}, &PreconditionError{Carrier: e.cfg.ID, Err: verr}
	}

	z := zone.Resolve(destination)
	perKg, err := rate.RateForWeight(weight, e.cfg.Tiers)
	if err != nil {
		return quote.Quote{}, fmt.Errorf("carrier %s: %w", e.cfg.ID, err)
	}

	price := decimal.NewFromFloat(weight).
		Mul(decimal.NewFromFloat(perKg)).
		Mul(decimal.NewFromFloat(e.cfg.Multipliers.For(z)))
	if fragile {
		price = price.Mul(FragileSurcharge)
	}

	window := e.cfg.Transit[z]
	return quote.Quote{
		ProviderID:    e.cfg.ID,
		ProviderName:  e.cfg.Name,
		Price:         price.Round(2).InexactFloat64(),
		Currency:      e.cfg.Currency,
		MinDays:       window.MinDays,
		MaxDays:       window.MaxDays,
		TransportMode: e.cfg.TransportMode,
		Zone:          string(z),
	}, nil
}
