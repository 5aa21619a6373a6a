package server

import (
	"encoding/json"
	"errors"
	"strings"

	"shipquote/internal/quote"
)

// ErrNotObject is returned when the body is valid JSON but not an object.
var ErrNotObject = errors.New("request body must be a JSON object")

// Accepted JSON paths per request field, first non-null match wins. The flat
// keys are canonical; the nested forms come from clients that send an
// address object or a package block.
var (
	originPaths      = []string{"origin.city", "origin"}
	destinationPaths = []string{"destination.city", "destination"}
	weightPaths      = []string{"weight", "package.weight", "weightKg"}
	pickupDatePaths  = []string{"pickupDate", "pickup_date"}
	fragilePaths     = []string{"fragile", "package.fragile"}
)

// normalizeQuoteRequest maps a request body into a quote.RawRequest without
// coercing any value, so the validator sees the JSON types as sent.
func normalizeQuoteRequest(body []byte) (quote.RawRequest, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return quote.RawRequest{}, err
	}
	m, ok := payload.(map[string]any)
	if !ok {
		return quote.RawRequest{}, ErrNotObject
	}
	return quote.RawRequest{
		Origin:      getAny(m, originPaths),
		Destination: getAny(m, destinationPaths),
		Weight:      getAny(m, weightPaths),
		PickupDate:  getAny(m, pickupDatePaths),
		Fragile:     getAny(m, fragilePaths),
	}, nil
}

// getAny returns the first non-nil value from the candidate keys.
func getAny(m map[string]any, keys []string) any {
	for _, k := range keys {
		if v := getPath(m, k); v != nil {
			return v
		}
	}
	return nil
}

// getPath navigates a dot-separated key into nested maps.
func getPath(m map[string]any, path string) any {
	parts := strings.Split(path, ".")
	var cur any = m
	for _, p := range parts {
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		v, ok := mm[p]
		if !ok {
			return nil
		}
		cur = v
	}
	return cur
}
