// Package zone maps destinations to Colombian shipping zones and holds the
// per-carrier zone multipliers.
package zone

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Zone is a geographic pricing cluster.
type Zone string

const (
	Zone1 Zone = "ZONE_1" // Bogotá y región central
	Zone2 Zone = "ZONE_2" // Medellín y Eje Cafetero
	Zone3 Zone = "ZONE_3" // Cali y región Pacífico
	Zone4 Zone = "ZONE_4" // Costa Caribe
	Zone5 Zone = "ZONE_5" // Zonas remotas

	// Default is returned for blank or unknown destinations.
	Default = Zone1
)

// All lists the zones in ascending remoteness.
var All = []Zone{Zone1, Zone2, Zone3, Zone4, Zone5}

// Valid reports whether z is one of the five known zones.
func (z Zone) Valid() bool {
	switch z {
	case Zone1, Zone2, Zone3, Zone4, Zone5:
		return true
	}
	return false
}

type city struct {
	name string
	zone Zone
}

// cities is scanned in order during substring matching, so the first entry
// contained in a destination wins. Names are stored already normalized.
var cities = []city{
	{"BOGOTA", Zone1},
	{"SOACHA", Zone1},
	{"ZIPAQUIRA", Zone1},
	{"FACATATIVA", Zone1},
	{"CHIA", Zone1},
	{"TUNJA", Zone1},
	{"VILLAVICENCIO", Zone1},
	{"FUSAGASUGA", Zone1},

	{"MEDELLIN", Zone2},
	{"ENVIGADO", Zone2},
	{"ITAGUI", Zone2},
	{"BELLO", Zone2},
	{"SABANETA", Zone2},
	{"RIONEGRO", Zone2},
	{"MANIZALES", Zone2},
	{"PEREIRA", Zone2},
	{"ARMENIA", Zone2},
	{"DOSQUEBRADAS", Zone2},

	{"CALI", Zone3},
	{"PALMIRA", Zone3},
	{"BUENAVENTURA", Zone3},
	{"TULUA", Zone3},
	{"POPAYAN", Zone3},
	{"PASTO", Zone3},
	{"IPIALES", Zone3},

	{"BARRANQUILLA", Zone4},
	{"CARTAGENA", Zone4},
	{"SANTA MARTA", Zone4},
	{"MONTERIA", Zone4},
	{"VALLEDUPAR", Zone4},
	{"SINCELEJO", Zone4},
	{"SOLEDAD", Zone4},
	{"MALAMBO", Zone4},

	{"LETICIA", Zone5},
	{"PUERTO", Zone5},
	{"INIRIDA", Zone5},
	{"MITU", Zone5},
	{"YOPAL", Zone5},
	{"ARAUCA", Zone5},
	{"MOCOA", Zone5},
	{"FLORENCIA", Zone5},
}

var exact = func() map[string]Zone {
	m := make(map[string]Zone, len(cities))
	for _, c := range cities {
		m[c.name] = c.zone
	}
	return m
}()

// Normalize strips diacritics, upper-cases and trims s.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(strings.TrimSpace(out))
}

// Resolve returns the zone for a free-text destination. It never fails:
// blank and unrecognised destinations resolve to Default.
func Resolve(destination string) Zone {
	normalized := Normalize(destination)
	if normalized == "" {
		return Default
	}
	if z, ok := exact[normalized]; ok {
		return z
	}
	for _, c := range cities {
		if strings.Contains(normalized, c.name) {
			return c.zone
		}
	}
	return Default
}

// Cities returns the city table in scan order.
func Cities() []string {
	out := make([]string, len(cities))
	for i, c := range cities {
		out[i] = c.name
	}
	return out
}
