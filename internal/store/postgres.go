package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"shipquote/internal/quote"
)

// pgxQuerier is the subset of pgxpool.Pool used by PostgresRepository.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

var _ pgxQuerier = (*pgxpool.Pool)(nil)

// PostgresRepository stores every quote in the quotes table. The TTL is a
// query predicate; rows are kept as history.
type PostgresRepository struct {
	db  pgxQuerier
	ttl time.Duration
	now func() time.Time
}

func NewPostgresRepository(pool *pgxpool.Pool, opts ...Option) *PostgresRepository {
	o := buildOptions(opts)
	return &PostgresRepository{db: pool, ttl: o.ttl, now: o.now}
}

const insertQuoteSQL = `
    INSERT INTO quotes (
        id, batch_id, position, origin, destination, weight, fragile, pickup_date,
        provider_id, provider_name, price, currency, min_days, max_days,
        transport_mode, zone, is_cheapest, is_fastest, created_at
    ) VALUES (
        $1, $2, $3, $4, $5, $6, $7, $8,
        $9, $10, $11, $12, $13, $14,
        $15, $16, $17, $18, $19
    )`

const quoteColumns = `provider_id, provider_name, price::float8, currency, min_days, max_days,
        transport_mode, zone, is_cheapest, is_fastest, created_at`

func (r *PostgresRepository) Save(ctx context.Context, q quote.Quote, req quote.Request) error {
	return r.SaveMany(ctx, []quote.Quote{q}, req)
}

// SaveMany inserts the batch in a single round trip.
func (r *PostgresRepository) SaveMany(ctx context.Context, quotes []quote.Quote, req quote.Request) error {
	if len(quotes) == 0 {
		return nil
	}
	records := newRecords(quotes, req, r.now())

	b := &pgx.Batch{}
	for _, rec := range records {
		var pickup *time.Time
		if !rec.PickupDate.IsZero() {
			p := rec.PickupDate.UTC()
			pickup = &p
		}
		q := rec.Quote
		b.Queue(insertQuoteSQL,
			rec.ID, rec.BatchID, rec.Position,
			rec.Fingerprint.Origin, rec.Fingerprint.Destination, rec.Fingerprint.Weight, rec.Fingerprint.Fragile,
			pickup,
			q.ProviderID, q.ProviderName, q.Price, q.Currency, q.MinDays, q.MaxDays,
			q.TransportMode, q.Zone, q.IsCheapest, q.IsFastest, rec.CreatedAt,
		)
	}

	br := r.db.SendBatch(ctx, b)
	for range records {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("insert quote: %w", describePgError(err))
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("insert quote batch: %w", describePgError(err))
	}
	return nil
}

// FindCached returns the newest batch for the fingerprint created after
// now - ttl.
func (r *PostgresRepository) FindCached(ctx context.Context, req quote.Request) ([]quote.Quote, error) {
	fp := req.Fingerprint()
	cutoff := r.now().Add(-r.ttl).UTC()
	rows, err := r.db.Query(ctx, `
        SELECT `+quoteColumns+`
        FROM quotes
        WHERE batch_id = (
            SELECT batch_id FROM quotes
            WHERE origin = $1
              AND destination = $2
              AND weight = $3
              AND fragile = $4
              AND created_at > $5
            ORDER BY created_at DESC
            LIMIT 1
        )
        ORDER BY position
    `, fp.Origin, fp.Destination, fp.Weight, fp.Fragile, cutoff)
	if err != nil {
		return nil, fmt.Errorf("find cached quotes: %w", describePgError(err))
	}
	quotes, err := scanQuotes(rows)
	if err != nil {
		return nil, fmt.Errorf("find cached quotes: %w", err)
	}
	if len(quotes) == 0 {
		return nil, nil
	}
	return quotes, nil
}

func (r *PostgresRepository) FindAll(ctx context.Context, limit int) ([]quote.Quote, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+quoteColumns+`
        FROM quotes
        ORDER BY created_at DESC, position
        LIMIT $1
    `, quote.HistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", describePgError(err))
	}
	quotes, err := scanQuotes(rows)
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	return quotes, nil
}

func scanQuotes(rows pgx.Rows) ([]quote.Quote, error) {
	defer rows.Close()
	var out []quote.Quote
	for rows.Next() {
		var q quote.Quote
		if err := rows.Scan(
			&q.ProviderID, &q.ProviderName, &q.Price, &q.Currency, &q.MinDays, &q.MaxDays,
			&q.TransportMode, &q.Zone, &q.IsCheapest, &q.IsFastest, &q.QuotedAt,
		); err != nil {
			return nil, err
		}
		q.QuotedAt = q.QuotedAt.UTC()
		out = append(out, q)
	}
	return out, rows.Err()
}

// describePgError keeps the server-side code and constraint in the message.
func describePgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.ConstraintName != "" {
			return fmt.Errorf("%w (sqlstate %s, constraint %s)", err, pgErr.Code, pgErr.ConstraintName)
		}
		return fmt.Errorf("%w (sqlstate %s)", err, pgErr.Code)
	}
	return err
}
