package zone

import "strings"

// Table holds one multiplier per zone.
type Table map[Zone]float64

// DefaultCarrier is used when a carrier has no multiplier table of its own.
const DefaultCarrier = "fedex"

var multipliers = map[string]Table{
	"fedex": {Zone1: 1.0, Zone2: 1.15, Zone3: 1.25, Zone4: 1.35, Zone5: 1.6},
	"dhl":   {Zone1: 1.0, Zone2: 1.1, Zone3: 1.2, Zone4: 1.3, Zone5: 1.5},
	"local": {Zone1: 1.8, Zone2: 1.4, Zone3: 1.12, Zone4: 1.5, Zone5: 1.6},
}

// Multipliers returns a copy of the carrier's table, falling back to the
// default carrier for unknown names.
func Multipliers(carrier string) Table {
	t, ok := multipliers[strings.ToLower(strings.TrimSpace(carrier))]
	if !ok {
		t = multipliers[DefaultCarrier]
	}
	out := make(Table, len(t))
	for z, m := range t {
		out[z] = m
	}
	return out
}

// Multiplier returns the carrier's multiplier for z.
func Multiplier(carrier string, z Zone) float64 {
	return Multipliers(carrier).For(z)
}

// For returns the multiplier for z. A missing zone is priced as Default and
// a table without Default yields 1.
func (t Table) For(z Zone) float64 {
	if m, ok := t[z]; ok {
		return m
	}
	if m, ok := t[Default]; ok {
		return m
	}
	return 1
}
