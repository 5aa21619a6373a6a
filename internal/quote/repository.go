package quote

import (
	"context"
	"time"
)

const (
	// CacheTTL is how long a computed batch answers equivalent requests.
	CacheTTL = 5 * time.Minute
	// DefaultHistoryLimit is used by FindAll when no positive limit is given.
	DefaultHistoryLimit = 100
)

// Repository persists quotes and serves the short-TTL cache.
//
// FindCached returns (nil, nil) when no batch for the request's fingerprint
// is younger than the TTL, whatever the storage still physically holds.
// FindAll lists the most recent quotes first.
type Repository interface {
	Save(ctx context.Context, q Quote, req Request) error
	SaveMany(ctx context.Context, quotes []Quote, req Request) error
	FindCached(ctx context.Context, req Request) ([]Quote, error)
	FindAll(ctx context.Context, limit int) ([]Quote, error)
}

// Fresh reports whether a record created at createdAt is still inside ttl.
func Fresh(createdAt, now time.Time, ttl time.Duration) bool {
	return now.Sub(createdAt) < ttl
}

// HistoryLimit normalizes a FindAll limit.
func HistoryLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
