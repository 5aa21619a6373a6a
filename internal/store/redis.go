package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shipquote/internal/quote"
)

const (
	keyNamespace    = "shipquote"
	cachePrefix     = "quotes:cache"
	historyKey      = "quotes:history"
	// DefaultHistoryN caps the quotes kept for FindAll by the memory and
	// redis stores.
	DefaultHistoryN = 1000
)

// RedisOptions locate the server. URL wins over Address.
type RedisOptions struct {
	URL      string
	Address  string
	Password string
	DB       int
}

// NewRedisClient connects and pings.
func NewRedisClient(ctx context.Context, cfg RedisOptions) (*redis.Client, error) {
	if cfg.URL == "" && cfg.Address == "" {
		return nil, errors.New("redis url or address is required")
	}
	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		opts = parsed
	} else {
		opts = &redis.Options{Addr: cfg.Address, Password: cfg.Password, DB: cfg.DB}
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// RedisRepository keeps one JSON batch per fingerprint with a key expiry of
// ttl, and a capped list of recent quotes for FindAll. Freshness is checked
// against the stored created_at as well, so a key that outlives its TTL is
// still a miss.
type RedisRepository struct {
	client   redis.Cmdable
	ttl      time.Duration
	now      func() time.Time
	historyN int64
}

type cachedBatch struct {
	CreatedAt time.Time     `json:"createdAt"`
	Quotes    []quote.Quote `json:"quotes"`
}

func NewRedisRepository(client redis.Cmdable, opts ...Option) *RedisRepository {
	o := buildOptions(opts)
	return &RedisRepository{client: client, ttl: o.ttl, now: o.now, historyN: int64(o.historyN)}
}

func cacheKey(fp quote.Fingerprint) string {
	return keyNamespace + ":" + cachePrefix + ":" + fp.Key()
}

func historyListKey() string {
	return keyNamespace + ":" + historyKey
}

func (r *RedisRepository) Save(ctx context.Context, q quote.Quote, req quote.Request) error {
	return r.SaveMany(ctx, []quote.Quote{q}, req)
}

func (r *RedisRepository) SaveMany(ctx context.Context, quotes []quote.Quote, req quote.Request) error {
	if len(quotes) == 0 {
		return nil
	}
	records := newRecords(quotes, req, r.now())
	batch := cachedBatch{CreatedAt: records[0].CreatedAt, Quotes: make([]quote.Quote, len(records))}
	history := make([]any, 0, len(records))
	// LPUSH prepends one value at a time; push in reverse so position 0 ends up first.
	for i := len(records) - 1; i >= 0; i-- {
		batch.Quotes[i] = records[i].Quote
		raw, err := json.Marshal(records[i].Quote)
		if err != nil {
			return fmt.Errorf("encode quote: %w", err)
		}
		history = append(history, raw)
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encode quote batch: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, cacheKey(req.Fingerprint()), payload, r.ttl)
		p.LPush(ctx, historyListKey(), history...)
		p.LTrim(ctx, historyListKey(), 0, r.historyN-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save quote batch: %w", err)
	}
	return nil
}

func (r *RedisRepository) FindCached(ctx context.Context, req quote.Request) ([]quote.Quote, error) {
	raw, err := r.client.Get(ctx, cacheKey(req.Fingerprint())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cached quotes: %w", err)
	}
	var batch cachedBatch
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("decode cached quotes: %w", err)
	}
	if !quote.Fresh(batch.CreatedAt, r.now(), r.ttl) || len(batch.Quotes) == 0 {
		return nil, nil
	}
	return batch.Quotes, nil
}

// FindAll reads the capped history list. Limits above the cap return at most
// the cap.
func (r *RedisRepository) FindAll(ctx context.Context, limit int) ([]quote.Quote, error) {
	n := int64(quote.HistoryLimit(limit))
	items, err := r.client.LRange(ctx, historyListKey(), 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("list quotes: %w", err)
	}
	out := make([]quote.Quote, 0, len(items))
	for _, item := range items {
		var q quote.Quote
		if err := json.Unmarshal([]byte(item), &q); err != nil {
			return nil, fmt.Errorf("decode quote: %w", err)
		}
		out = append(out, q)
	}
	return out, nil
}
