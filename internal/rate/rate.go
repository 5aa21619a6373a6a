package rate

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Unbounded marks the open upper edge of the last tier.
var Unbounded = math.Inf(1)

var (
	// ErrInvalidWeight is returned for weights that are not strictly positive.
	ErrInvalidWeight = errors.New("weight must be greater than 0")
	// ErrNoTiers is returned when a table has no tiers at all.
	ErrNoTiers = errors.New("at least one tier is required")
)

// Tier is a weight bracket [MinWeight, MaxWeight) priced at RatePerKg.
type Tier struct {
	MinWeight float64 `json:"minWeight" yaml:"minWeight"`
	MaxWeight float64 `json:"maxWeight" yaml:"maxWeight"`
	RatePerKg float64 `json:"ratePerKg" yaml:"ratePerKg"`
}

// Contains reports whether w falls into the tier. The lower edge is inclusive.
func (t Tier) Contains(w float64) bool {
	return (w >= t.MinWeight && w < t.MaxWeight) || w == t.MinWeight
}

// RateForWeight returns the per-kg rate of the first tier containing weight.
// Weights beyond every tier use the last tier's rate.
func RateForWeight(weight float64, tiers []Tier) (float64, error) {
	if math.IsNaN(weight) || weight <= 0 {
		return 0, ErrInvalidWeight
	}
	if len(tiers) == 0 {
		return 0, ErrNoTiers
	}
	for _, t := range tiers {
		if t.Contains(weight) {
			return t.RatePerKg, nil
		}
	}
	return tiers[len(tiers)-1].RatePerKg, nil
}

// CalculateCost returns weight × RateForWeight(weight).
func CalculateCost(weight float64, tiers []Tier) (float64, error) {
	r, err := RateForWeight(weight, tiers)
	if err != nil {
		return 0, err
	}
	return weight * r, nil
}

// ValidateTiers checks that tiers are ordered, contiguous, positively priced
// and end with an unbounded tier.
func ValidateTiers(tiers []Tier) error {
	if len(tiers) == 0 {
		return ErrNoTiers
	}
	if tiers[0].MinWeight != 0 {
		return errors.New("first tier must start at 0")
	}
	for i, t := range tiers {
		if t.RatePerKg <= 0 {
			return fmt.Errorf("tier %d: rate per kg must be positive", i)
		}
		if t.MaxWeight <= t.MinWeight {
			return fmt.Errorf("tier %d: max weight must exceed min weight", i)
		}
		if i > 0 && t.MinWeight != tiers[i-1].MaxWeight {
			return fmt.Errorf("tier %d: must start where tier %d ends", i, i-1)
		}
	}
	if !math.IsInf(tiers[len(tiers)-1].MaxWeight, 1) {
		return errors.New("last tier must be unbounded")
	}
	return nil
}

// Built-in tables, COP per kg.
var (
	FedEx = []Tier{
		{MinWeight: 0, MaxWeight: 5, RatePerKg: 8000},
		{MinWeight: 5, MaxWeight: 20, RatePerKg: 6500},
		{MinWeight: 20, MaxWeight: 50, RatePerKg: 5500},
		{MinWeight: 50, MaxWeight: Unbounded, RatePerKg: 4800},
	}
	DHL = []Tier{
		{MinWeight: 0, MaxWeight: 5, RatePerKg: 7500},
		{MinWeight: 5, MaxWeight: 20, RatePerKg: 6000},
		{MinWeight: 20, MaxWeight: 50, RatePerKg: 5000},
		{MinWeight: 50, MaxWeight: Unbounded, RatePerKg: 4500},
	}
	Local = []Tier{
		{MinWeight: 0, MaxWeight: 5, RatePerKg: 5000},
		{MinWeight: 5, MaxWeight: 20, RatePerKg: 4500},
		{MinWeight: 20, MaxWeight: 50, RatePerKg: 4000},
		{MinWeight: 50, MaxWeight: Unbounded, RatePerKg: 3800},
	}
)

// TiersFor returns a copy of a built-in table by carrier name.
// Unknown names fall back to FedEx.
func TiersFor(name string) []Tier {
	var src []Tier
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "dhl":
		src = DHL
	case "local":
		src = Local
	default:
		src = FedEx
	}
	return append([]Tier(nil), src...)
}
