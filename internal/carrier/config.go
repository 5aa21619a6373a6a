package carrier

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"shipquote/internal/rate"
	"shipquote/internal/zone"
)

// Window is a delivery estimate in days.
type Window struct {
	MinDays int `yaml:"minDays" validate:"gte=0"`
	MaxDays int `yaml:"maxDays" validate:"gtefield=MinDays"`
}

// Config is everything that distinguishes one carrier from another.
type Config struct {
	ID            string               `yaml:"id" validate:"required,lowercase,alphanum"`
	Name          string               `yaml:"name" validate:"required"`
	Currency      string               `yaml:"currency" validate:"required,len=3,uppercase"`
	TransportMode string               `yaml:"transportMode" validate:"required"`
	Tiers         []rate.Tier          `yaml:"tiers" validate:"required,min=1"`
	Multipliers   zone.Table           `yaml:"multipliers"`
	Transit       map[zone.Zone]Window `yaml:"transit" validate:"required,dive"`
}

var validate = validator.New()

// Validate checks struct constraints, the tier table, and that every zone has
// a multiplier of at least 1 and a transit window.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("carrier %q: %w", c.ID, err)
	}
	if err := rate.ValidateTiers(c.Tiers); err != nil {
		return fmt.Errorf("carrier %q: tiers: %w", c.ID, err)
	}
	for _, z := range zone.All {
		m, ok := c.Multipliers[z]
		if !ok {
			return fmt.Errorf("carrier %q: missing multiplier for %s", c.ID, z)
		}
		if m < 1 {
			return fmt.Errorf("carrier %q: multiplier for %s must be at least 1", c.ID, z)
		}
		if _, ok := c.Transit[z]; !ok {
			return fmt.Errorf("carrier %q: missing transit window for %s", c.ID, z)
		}
	}
	return nil
}

// withDefaults fills tiers and multipliers from the built-in tables when a
// catalogue entry omits them.
func (c Config) withDefaults() Config {
	c.ID = strings.ToLower(strings.TrimSpace(c.ID))
	if len(c.Tiers) == 0 {
		c.Tiers = rate.TiersFor(c.ID)
	}
	if len(c.Multipliers) == 0 {
		c.Multipliers = zone.Multipliers(c.ID)
	}
	if c.Currency == "" {
		c.Currency = "COP"
	}
	return c
}
