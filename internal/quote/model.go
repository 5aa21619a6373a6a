// Package quote holds the quote request domain: validation of inbound
// requests, the priced quote entity and the cache-then-compute service that
// fans out to carrier engines.
package quote

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Request is a validated quote request. Values are only obtainable through
// Validator.Validate or NewRequest, so every instance satisfies the field
// invariants and downstream code does not re-check them.
type Request struct {
	origin      string
	destination string
	weight      float64
	pickupDate  time.Time
	fragile     bool
}

func (r Request) Origin() string        { return r.origin }
func (r Request) Destination() string   { return r.destination }
func (r Request) Weight() float64       { return r.weight }
func (r Request) PickupDate() time.Time { return r.pickupDate }
func (r Request) Fragile() bool         { return r.fragile }

// Fingerprint returns the cache key of the request. The pickup date is not
// part of it: prices do not depend on it.
func (r Request) Fingerprint() Fingerprint {
	return Fingerprint{
		Origin:      r.origin,
		Destination: r.destination,
		Weight:      r.weight,
		Fragile:     r.fragile,
	}
}

// Fingerprint identifies equivalent requests for cache lookups.
type Fingerprint struct {
	Origin      string
	Destination string
	Weight      float64
	Fragile     bool
}

// Key renders the fingerprint as an unambiguous string.
func (f Fingerprint) Key() string {
	return strings.Join([]string{
		strconv.Quote(f.Origin),
		strconv.Quote(f.Destination),
		strconv.FormatFloat(f.Weight, 'g', -1, 64),
		strconv.FormatBool(f.Fragile),
	}, "|")
}

// Quote is one carrier's priced offer for a request.
type Quote struct {
	ProviderID    string    `json:"providerId"`
	ProviderName  string    `json:"providerName"`
	Price         float64   `json:"price"`
	Currency      string    `json:"currency"`
	MinDays       int       `json:"minDays"`
	MaxDays       int       `json:"maxDays"`
	TransportMode string    `json:"transportMode"`
	Zone          string    `json:"zone,omitempty"`
	IsCheapest    bool      `json:"isCheapest"`
	IsFastest     bool      `json:"isFastest"`
	QuotedAt      time.Time `json:"quotedAt"`
}

// EstimatedDays renders the delivery window, e.g. "2-4".
func (q Quote) EstimatedDays() string {
	if q.MinDays == q.MaxDays {
		return strconv.Itoa(q.MinDays)
	}
	return fmt.Sprintf("%d-%d", q.MinDays, q.MaxDays)
}

// Message is an informational note attached to a response, typically a
// provider that could not quote.
type Message struct {
	ProviderID string `json:"providerId"`
	Text       string `json:"text"`
}

// SystemProvider is the ProviderID used for messages not tied to a carrier.
const SystemProvider = "system"

// MarkBest flags the cheapest and the fastest quote in place. Ties go to the
// earliest quote; one quote may carry both flags.
func MarkBest(quotes []Quote) {
	if len(quotes) == 0 {
		return
	}
	cheapest, fastest := 0, 0
	for i := range quotes {
		quotes[i].IsCheapest = false
		quotes[i].IsFastest = false
		if quotes[i].Price < quotes[cheapest].Price {
			cheapest = i
		}
		if quotes[i].MinDays < quotes[fastest].MinDays {
			fastest = i
		}
	}
	quotes[cheapest].IsCheapest = true
	quotes[fastest].IsFastest = true
}

func cloneQuotes(in []Quote) []Quote {
	if in == nil {
		return nil
	}
	return append([]Quote(nil), in...)
}
