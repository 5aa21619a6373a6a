package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"shipquote/internal/logger"
)

// Engine prices a shipment for a single carrier.
type Engine interface {
	ID() string
	Name() string
	Quote(ctx context.Context, weight float64, destination string, fragile bool) (Quote, error)
}

// Publisher receives every freshly computed batch.
type Publisher interface {
	PublishBatch(ctx context.Context, req Request, quotes []Quote) error
}

// Observer is notified of carrier outcomes and cache lookups.
type Observer interface {
	ObserveQuote(providerID string, latency time.Duration, err error)
	ObserveCache(hit bool)
}

// Result is the outcome of Service.Handle.
type Result struct {
	Quotes   []Quote   `json:"quotes"`
	Messages []Message `json:"messages"`
	Cached   bool      `json:"cached"`
}

// Service answers quote requests from the cache or by asking every carrier.
type Service struct {
	repo      Repository
	engines   []Engine
	publisher Publisher
	observers []Observer
	log       *logger.Logger
	now       func() time.Time
	group     singleflight.Group
}

type Option func(*Service)

func WithPublisher(p Publisher) Option { return func(s *Service) { s.publisher = p } }

func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.log = l } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(repo Repository, engines []Engine, opts ...Option) *Service {
	s := &Service{
		repo:    repo,
		engines: engines,
		log:     logger.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Engines returns the configured carriers in quoting order.
func (s *Service) Engines() []Engine {
	return append([]Engine(nil), s.engines...)
}

// Handle returns cached quotes for an equivalent request younger than the
// TTL, otherwise prices the request with every carrier, persists the batch
// and returns it. Carrier failures become messages; only context errors are
// returned as errors, and only when ctx itself is done.
func (s *Service) Handle(ctx context.Context, req Request) (Result, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		if cached, ok := s.lookup(ctx, req); ok {
			return Result{Quotes: cached, Messages: []Message{}, Cached: true}, nil
		}

		ch := s.group.DoChan(req.Fingerprint().Key(), func() (any, error) {
			return s.compute(ctx, req)
		})
		var res singleflight.Result
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case res = <-ch:
		}

		if res.Err != nil {
			// The shared call ran under another caller's context. Its
			// cancellation is not ours: price again under ctx.
			if isContextErr(res.Err) && ctx.Err() == nil {
				continue
			}
			return Result{}, res.Err
		}
		out := res.Val.(Result)
		out.Quotes = cloneQuotes(out.Quotes)
		out.Messages = append([]Message{}, out.Messages...)
		return out, nil
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// History lists persisted quotes, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]Quote, error) {
	quotes, err := s.repo.FindAll(ctx, HistoryLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("quote history: %w", err)
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	return quotes, nil
}

func (s *Service) lookup(ctx context.Context, req Request) ([]Quote, bool) {
	cached, err := s.repo.FindCached(ctx, req)
	if err != nil {
		s.log.Warn(ctx, "quote.cache_lookup_failed", err)
		s.observeCache(false)
		return nil, false
	}
	hit := len(cached) > 0
	s.observeCache(hit)
	return cached, hit
}

type outcome struct {
	quote   Quote
	err     error
	latency time.Duration
}

func (s *Service) compute(ctx context.Context, req Request) (Result, error) {
	outcomes := make([]outcome, len(s.engines))

	// A plain group: one carrier failing must not cancel the others.
	var g errgroup.Group
	for i, e := range s.engines {
		g.Go(func() error {
			start := time.Now()
			q, err := quoteSafely(ctx, e, req)
			outcomes[i] = outcome{quote: q, err: err, latency: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	quotes := make([]Quote, 0, len(s.engines))
	messages := []Message{}
	for i, o := range outcomes {
		e := s.engines[i]
		s.observeQuote(e.ID(), o.latency, o.err)
		if o.err != nil {
			lctx := s.log.WithFields(ctx, map[string]any{"provider_id": e.ID(), "latency_ms": o.latency.Milliseconds()})
			s.log.Warn(lctx, "quote.carrier_failed", o.err)
			messages = append(messages, Message{
				ProviderID: e.ID(),
				Text:       fmt.Sprintf("El proveedor %s no está disponible en este momento", e.Name()),
			})
			continue
		}
		quotes = append(quotes, o.quote)
	}

	if len(quotes) == 0 {
		messages = append(messages, Message{
			ProviderID: SystemProvider,
			Text:       "No hay cotizaciones disponibles en este momento, intenta de nuevo más tarde",
		})
		return Result{Quotes: quotes, Messages: messages}, nil
	}

	MarkBest(quotes)
	quotedAt := s.now().UTC()
	for i := range quotes {
		quotes[i].QuotedAt = quotedAt
	}

	if err := s.repo.SaveMany(ctx, quotes, req); err != nil {
		s.log.Error(ctx, "quote.persist_failed", err)
		messages = append(messages, Message{
			ProviderID: SystemProvider,
			Text:       "Las cotizaciones no pudieron guardarse y se recalcularán en la próxima consulta",
		})
	} else if s.publisher != nil {
		if err := s.publisher.PublishBatch(ctx, req, cloneQuotes(quotes)); err != nil {
			s.log.Warn(ctx, "quote.publish_failed", err)
		}
	}

	return Result{Quotes: quotes, Messages: messages}, nil
}

// errCarrierPanic wraps a recovered panic from an engine.
var errCarrierPanic = errors.New("carrier panicked")

func quoteSafely(ctx context.Context, e Engine, req Request) (q Quote, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %s: %v", errCarrierPanic, e.ID(), rec)
		}
	}()
	return e.Quote(ctx, req.Weight(), req.Destination(), req.Fragile())
}

func (s *Service) observeQuote(id string, latency time.Duration, err error) {
	for _, o := range s.observers {
		o.ObserveQuote(id, latency, err)
	}
}

func (s *Service) observeCache(hit bool) {
	for _, o := range s.observers {
		o.ObserveCache(hit)
	}
}
