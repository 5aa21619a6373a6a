package quote

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"
)

// Request bounds.
const (
	MinWeight    = 0.1
	MaxWeight    = 1000.0
	MaxDaysAhead = 30
)

const dateLayout = "2006-01-02"

// RawRequest carries request fields exactly as decoded from JSON, so that
// type mismatches ("5.5" for a weight, 1 for a boolean) can be rejected.
// A nil field means the key was absent or null.
type RawRequest struct {
	Origin      any
	Destination any
	Weight      any
	PickupDate  any
	Fragile     any
}

// RawFromMap builds a RawRequest from a decoded JSON object.
func RawFromMap(m map[string]any) RawRequest {
	return RawRequest{
		Origin:      m["origin"],
		Destination: m["destination"],
		Weight:      m["weight"],
		PickupDate:  m["pickupDate"],
		Fragile:     m["fragile"],
	}
}

// Validator turns raw input into a Request. Fields are checked in a fixed
// order (origin, destination, weight, pickupDate, fragile) and the first
// failure is returned.
type Validator struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Location decides calendar days for the pickup window. Defaults to time.Local.
	Location *time.Location
}

// NewValidator returns a Validator using the wall clock and local time zone.
func NewValidator() *Validator {
	return &Validator{Now: time.Now, Location: time.Local}
}

// Validate checks raw and returns the normalized request or a *ValidationError.
func (v *Validator) Validate(raw RawRequest) (Request, error) {
	origin, err := requiredText("origin", raw.Origin)
	if err != nil {
		return Request{}, err
	}
	destination, err := requiredText("destination", raw.Destination)
	if err != nil {
		return Request{}, err
	}
	weight, err := checkWeight(raw.Weight)
	if err != nil {
		return Request{}, err
	}
	pickup, err := v.checkPickupDate(raw.PickupDate)
	if err != nil {
		return Request{}, err
	}
	fragile, err := checkFragile(raw.Fragile)
	if err != nil {
		return Request{}, err
	}
	return Request{
		origin:      origin,
		destination: destination,
		weight:      weight,
		pickupDate:  pickup,
		fragile:     fragile,
	}, nil
}

// NewRequest builds a Request from typed values using the default validator.
func NewRequest(origin, destination string, weight float64, pickupDate time.Time, fragile bool) (Request, error) {
	return NewValidator().Validate(RawRequest{
		Origin:      origin,
		Destination: destination,
		Weight:      weight,
		PickupDate:  pickupDate,
		Fragile:     fragile,
	})
}

func requiredText(field string, v any) (string, error) {
	if v == nil {
		return "", &ValidationError{Field: field, Value: v, Message: fmt.Sprintf(msgRequired, field)}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ValidationError{Field: field, Value: v, Message: fmt.Sprintf(msgNotText, field)}
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", &ValidationError{Field: field, Value: v, Message: fmt.Sprintf(msgRequired, field)}
	}
	return s, nil
}

func checkWeight(v any) (float64, error) {
	w, ok := toNumber(v)
	if !ok || math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, &ValidationError{Field: "weight", Value: v, Message: msgWeightNumber}
	}
	if w < MinWeight {
		return 0, &ValidationError{Field: "weight", Value: v, Message: msgWeightMin}
	}
	if w > MaxWeight {
		return 0, &ValidationError{Field: "weight", Value: v, Message: msgWeightMax}
	}
	return w, nil
}

// toNumber accepts numeric Go types only; numeric-looking strings are rejected.
func toNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func (v *Validator) checkPickupDate(raw any) (time.Time, error) {
	loc := v.Location
	if loc == nil {
		loc = time.Local
	}
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	pickup, ok := parseDate(raw, loc)
	if !ok {
		return time.Time{}, &ValidationError{Field: "pickupDate", Value: raw, Message: msgDateRequired}
	}

	today := startOfDay(now().In(loc))
	day := startOfDay(pickup.In(loc))
	if day.Before(today) {
		return time.Time{}, &ValidationError{Field: "pickupDate", Value: raw, Message: msgDateBeforeToday}
	}
	if day.After(today.AddDate(0, 0, MaxDaysAhead)) {
		return time.Time{}, &ValidationError{Field: "pickupDate", Value: raw, Message: msgDateTooFar}
	}
	return pickup, nil
}

func parseDate(raw any, loc *time.Location) (time.Time, bool) {
	switch t := raw.(type) {
	case time.Time:
		return t, !t.IsZero()
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, true
		}
		if ts, err := time.ParseInLocation(dateLayout, s, loc); err == nil {
			return ts, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func checkFragile(v any) (bool, error) {
	if v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &ValidationError{Field: "fragile", Value: v, Message: msgFragileBool}
	}
	return b, nil
}

// CheckBounds reports whether weight and destination are acceptable to a
// carrier engine. Engines call it on every quote regardless of upstream
// validation.
func CheckBounds(weight float64, destination string) *ValidationError {
	if math.IsNaN(weight) || math.IsInf(weight, 0) {
		return &ValidationError{Field: "weight", Value: weight, Message: msgWeightNumber}
	}
	if weight < MinWeight {
		return &ValidationError{Field: "weight", Value: weight, Message: msgWeightMin}
	}
	if weight > MaxWeight {
		return &ValidationError{Field: "weight", Value: weight, Message: msgWeightMax}
	}
	if strings.TrimSpace(destination) == "" {
		return &ValidationError{Field: "destination", Value: destination, Message: fmt.Sprintf(msgRequired, "destination")}
	}
	return nil
}
