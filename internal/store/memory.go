// Package store holds the quote.Repository implementations: an in-process
// store for development and tests, Postgres for durable history and Redis as
// a shared short-lived cache.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shipquote/internal/quote"
)

// Record is one persisted quote with the request it answered.
type Record struct {
	ID          uuid.UUID
	BatchID     uuid.UUID
	Position    int
	Fingerprint quote.Fingerprint
	PickupDate  time.Time
	Quote       quote.Quote
	CreatedAt   time.Time
}

// MemoryRepository keeps records in a slice guarded by a mutex, oldest
// first. Once it holds more than historyN records the oldest whole batches
// are dropped.
type MemoryRepository struct {
	mu       sync.RWMutex
	records  []Record
	ttl      time.Duration
	now      func() time.Time
	historyN int
}

type Option func(*options)

type options struct {
	ttl      time.Duration
	now      func() time.Time
	historyN int
}

// WithTTL overrides quote.CacheTTL.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithClock injects the time source used for created_at and freshness checks.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithHistoryCap bounds how many quotes are kept for FindAll. Defaults to
// DefaultHistoryN.
func WithHistoryCap(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.historyN = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{ttl: quote.CacheTTL, now: time.Now, historyN: DefaultHistoryN}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func NewMemoryRepository(opts ...Option) *MemoryRepository {
	o := buildOptions(opts)
	return &MemoryRepository{ttl: o.ttl, now: o.now, historyN: o.historyN}
}

func (r *MemoryRepository) Save(ctx context.Context, q quote.Quote, req quote.Request) error {
	return r.SaveMany(ctx, []quote.Quote{q}, req)
}

func (r *MemoryRepository) SaveMany(ctx context.Context, quotes []quote.Quote, req quote.Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	records := newRecords(quotes, req, r.now())
	r.mu.Lock()
	r.records = append(r.records, records...)
	r.prune(len(records))
	r.mu.Unlock()
	return nil
}

// prune drops the oldest batches while over historyN, never touching the
// newest keep records. Callers hold the write lock.
func (r *MemoryRepository) prune(keep int) {
	drop := 0
	for len(r.records)-drop > r.historyN && drop < len(r.records)-keep {
		batch := r.records[drop].BatchID
		for drop < len(r.records) && r.records[drop].BatchID == batch {
			drop++
		}
	}
	if drop > 0 {
		r.records = append([]Record(nil), r.records[drop:]...)
	}
}

// FindCached returns the newest batch for the request's fingerprint that is
// still inside the TTL.
func (r *MemoryRepository) FindCached(ctx context.Context, req quote.Request) ([]quote.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fp := req.Fingerprint()
	now := r.now()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		batch  uuid.UUID
		newest time.Time
		found  bool
	)
	for _, rec := range r.records {
		if rec.Fingerprint != fp || !quote.Fresh(rec.CreatedAt, now, r.ttl) {
			continue
		}
		if !found || rec.CreatedAt.After(newest) {
			batch, newest, found = rec.BatchID, rec.CreatedAt, true
		}
	}
	if !found {
		return nil, nil
	}

	var matched []Record
	for _, rec := range r.records {
		if rec.BatchID == batch {
			matched = append(matched, rec)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].Position < matched[j].Position })
	out := make([]quote.Quote, len(matched))
	for i, rec := range matched {
		out[i] = rec.Quote
	}
	return out, nil
}

// FindAll returns up to limit quotes, newest first.
func (r *MemoryRepository) FindAll(ctx context.Context, limit int) ([]quote.Quote, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = quote.HistoryLimit(limit)

	r.mu.RLock()
	sorted := append([]Record(nil), r.records...)
	r.mu.RUnlock()

	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].Position < sorted[j].Position
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	out := make([]quote.Quote, len(sorted))
	for i, rec := range sorted {
		out[i] = rec.Quote
	}
	return out, nil
}

// newRecords stamps a batch. created_at is the quote's QuotedAt when set.
func newRecords(quotes []quote.Quote, req quote.Request, now time.Time) []Record {
	batch := uuid.New()
	fp := req.Fingerprint()
	out := make([]Record, len(quotes))
	for i, q := range quotes {
		created := q.QuotedAt
		if created.IsZero() {
			created = now
		}
		created = created.UTC()
		q.QuotedAt = created
		out[i] = Record{
			ID:          uuid.New(),
			BatchID:     batch,
			Position:    i,
			Fingerprint: fp,
			PickupDate:  req.PickupDate(),
			Quote:       q,
			CreatedAt:   created,
		}
	}
	return out
}
