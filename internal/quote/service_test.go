package quote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	id, name string
	price    float64
	minDays  int
	err      error
	panics   bool
	delay    time.Duration
	calls    atomic.Int32

	// entered receives once per call, when set.
	entered chan struct{}
	// gate blocks every call until it is closed, when set.
	gate chan struct{}
}

func (f *fakeEngine) ID() string   { return f.id }
func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Quote(ctx context.Context, weight float64, destination string, fragile bool) (Quote, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return Quote{}, ctx.Err()
		}
	}
	if f.panics {
		panic("boom")
	}
	if f.err != nil {
		return Quote{}, f.err
	}
	price := f.price * weight
	if fragile {
		price *= 1.15
	}
	return Quote{
		ProviderID:   f.id,
		ProviderName: f.name,
		Price:        price,
		Currency:     "COP",
		MinDays:      f.minDays,
		MaxDays:      f.minDays + 2,
	}, nil
}

type storedBatch struct {
	fp        Fingerprint
	quotes    []Quote
	createdAt time.Time
}

type fakeRepo struct {
	mu      sync.Mutex
	now     func() time.Time
	batches []storedBatch
	saveErr error
	findErr error
	saves   int
	lookups int
}

func (r *fakeRepo) Save(ctx context.Context, q Quote, req Request) error {
	return r.SaveMany(ctx, []Quote{q}, req)
}

func (r *fakeRepo) SaveMany(_ context.Context, quotes []Quote, req Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++
	if r.saveErr != nil {
		return r.saveErr
	}
	r.batches = append(r.batches, storedBatch{fp: req.Fingerprint(), quotes: cloneQuotes(quotes), createdAt: r.now()})
	return nil
}

func (r *fakeRepo) FindCached(_ context.Context, req Request) ([]Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.findErr != nil {
		return nil, r.findErr
	}
	for i := len(r.batches) - 1; i >= 0; i-- {
		b := r.batches[i]
		if b.fp == req.Fingerprint() && Fresh(b.createdAt, r.now(), CacheTTL) {
			return cloneQuotes(b.quotes), nil
		}
	}
	return nil, nil
}

func (r *fakeRepo) lookupCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lookups
}

func (r *fakeRepo) saveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves
}

func (r *fakeRepo) FindAll(_ context.Context, limit int) ([]Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Quote
	for i := len(r.batches) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, r.batches[i].quotes...)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type recordingObserver struct {
	mu     sync.Mutex
	quotes map[string]error
	hits   int
	misses int
}

func (o *recordingObserver) ObserveQuote(id string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.quotes == nil {
		o.quotes = map[string]error{}
	}
	o.quotes[id] = err
}

func (o *recordingObserver) ObserveCache(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]Quote
	err     error
}

func (p *recordingPublisher) PublishBatch(_ context.Context, _ Request, quotes []Quote) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, quotes)
	return p.err
}

func threeCarriers() (*fakeEngine, *fakeEngine, *fakeEngine) {
	return &fakeEngine{id: "fedex", name: "FedEx", price: 7475, minDays: 2},
		&fakeEngine{id: "dhl", name: "DHL", price: 6600, minDays: 2},
		&fakeEngine{id: "local", name: "Local", price: 6300, minDays: 4}
}

func newTestService(t *testing.T, engines ...Engine) (*Service, *fakeRepo, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
	repo := &fakeRepo{now: clk.Now}
	return NewService(repo, engines, WithClock(clk.Now)), repo, clk
}

func mustRequest(t *testing.T, origin, destination string, weight float64, pickup time.Time, fragile bool) Request {
	t.Helper()
	req, err := NewRequest(origin, destination, weight, pickup, fragile)
	require.NoError(t, err)
	return req
}

func TestHandleComputesAndCaches(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, repo, _ := newTestService(t, fedex, dhl, local)
	req := mustRequest(t, "Bogotá", "Medellín", 10, time.Now(), false)

	res, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	require.Len(t, res.Quotes, 3)
	assert.Empty(t, res.Messages)
	assert.Equal(t, "fedex", res.Quotes[0].ProviderID)
	assert.Equal(t, "dhl", res.Quotes[1].ProviderID)
	assert.Equal(t, "local", res.Quotes[2].ProviderID)
	assert.Equal(t, 1, repo.saves)
	for _, q := range res.Quotes {
		assert.Equal(t, time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC), q.QuotedAt)
	}

	again, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.Quotes, again.Quotes)
	assert.Equal(t, int32(1), fedex.calls.Load())
	assert.Equal(t, 1, repo.saves)
}

func TestHandleMarksExactlyOneCheapestAndFastest(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, _, _ := newTestService(t, fedex, dhl, local)
	res, err := svc.Handle(context.Background(), mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	require.NoError(t, err)

	var cheapest, fastest int
	for _, q := range res.Quotes {
		if q.IsCheapest {
			cheapest++
			assert.Equal(t, "local", q.ProviderID)
		}
		if q.IsFastest {
			fastest++
			assert.Equal(t, "fedex", q.ProviderID)
		}
	}
	assert.Equal(t, 1, cheapest)
	assert.Equal(t, 1, fastest)
}

func TestHandleCacheExpiresAfterTTL(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, repo, clk := newTestService(t, fedex, dhl, local)
	req := mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false)

	_, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)

	clk.Advance(CacheTTL - time.Second)
	res, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Cached)

	clk.Advance(time.Second)
	res, err = svc.Handle(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Equal(t, 2, repo.saves)
	assert.Equal(t, int32(2), fedex.calls.Load())
}

func TestHandleCacheIgnoresPickupDate(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, _, _ := newTestService(t, fedex, dhl, local)

	first := mustRequest(t, "Bogotá", "Cali", 3, time.Now(), true)
	second := mustRequest(t, "Bogotá", "Cali", 3, time.Now().AddDate(0, 0, 7), true)

	_, err := svc.Handle(context.Background(), first)
	require.NoError(t, err)
	res, err := svc.Handle(context.Background(), second)
	require.NoError(t, err)
	assert.True(t, res.Cached)
	assert.Equal(t, int32(1), dhl.calls.Load())
}

func TestHandleCacheKeyIncludesFragileAndWeight(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, _, _ := newTestService(t, fedex, dhl, local)

	for _, req := range []Request{
		mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false),
		mustRequest(t, "Bogotá", "Cali", 3, time.Now(), true),
		mustRequest(t, "Bogotá", "Cali", 3.5, time.Now(), false),
		mustRequest(t, "Tunja", "Cali", 3, time.Now(), false),
	} {
		res, err := svc.Handle(context.Background(), req)
		require.NoError(t, err)
		assert.False(t, res.Cached)
	}
	assert.Equal(t, int32(4), local.calls.Load())
}

func TestHandleCarrierFailureBecomesMessage(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	dhl.err = errors.New("timeout talking to carrier")
	obs := &recordingObserver{}
	svc, _, _ := newTestService(t, fedex, dhl, local)
	svc.observers = append(svc.observers, obs)

	res, err := svc.Handle(context.Background(), mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	require.NoError(t, err)
	require.Len(t, res.Quotes, 2)
	assert.Equal(t, "fedex", res.Quotes[0].ProviderID)
	assert.Equal(t, "local", res.Quotes[1].ProviderID)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "dhl", res.Messages[0].ProviderID)
	assert.Contains(t, res.Messages[0].Text, "DHL")

	assert.NoError(t, obs.quotes["fedex"])
	assert.Error(t, obs.quotes["dhl"])
	assert.Equal(t, 1, obs.misses)
}

func TestHandleRecoversCarrierPanic(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	local.panics = true
	svc, _, _ := newTestService(t, fedex, dhl, local)

	res, err := svc.Handle(context.Background(), mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	require.NoError(t, err)
	assert.Len(t, res.Quotes, 2)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, "local", res.Messages[0].ProviderID)
}

func TestHandleAllCarriersFail(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	fedex.err = errors.New("down")
	dhl.err = errors.New("down")
	local.err = errors.New("down")
	svc, repo, _ := newTestService(t, fedex, dhl, local)

	res, err := svc.Handle(context.Background(), mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	require.NoError(t, err)
	assert.Empty(t, res.Quotes)
	assert.NotNil(t, res.Quotes)
	require.Len(t, res.Messages, 4)
	assert.Equal(t, SystemProvider, res.Messages[3].ProviderID)
	assert.Equal(t, 0, repo.saves)
}

func TestHandleSaveFailureStillReturnsQuotes(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	pub := &recordingPublisher{}
	svc, repo, _ := newTestService(t, fedex, dhl, local)
	svc.publisher = pub
	repo.saveErr = errors.New("disk full")

	res, err := svc.Handle(context.Background(), mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	require.NoError(t, err)
	assert.Len(t, res.Quotes, 3)
	require.Len(t, res.Messages, 1)
	assert.Equal(t, SystemProvider, res.Messages[0].ProviderID)
	assert.Empty(t, pub.batches)
}

func TestHandleLookupFailureIsTreatedAsMiss(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, repo, _ := newTestService(t, fedex, dhl, local)
	repo.findErr = errors.New("connection refused")

	res, err := svc.Handle(context.Background(), mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	require.NoError(t, err)
	assert.False(t, res.Cached)
	assert.Len(t, res.Quotes, 3)
}

func TestHandlePublishesFreshBatches(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	pub := &recordingPublisher{err: errors.New("broker unavailable")}
	svc, _, _ := newTestService(t, fedex, dhl, local)
	svc.publisher = pub
	req := mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false)

	_, err := svc.Handle(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Handle(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, pub.batches, 1)
	assert.Len(t, pub.batches[0], 3)
}

func TestHandleCancelledContext(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, _, _ := newTestService(t, fedex, dhl, local)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Handle(ctx, mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), fedex.calls.Load())
}

func TestHandleTimeoutAbortsWholeRequest(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	local.delay = time.Second
	svc, repo, _ := newTestService(t, fedex, dhl, local)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := svc.Handle(ctx, mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, repo.saveCount())
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond)
}

func TestHandleCoalescesConcurrentMisses(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	fedex.gate = make(chan struct{})
	fedex.entered = make(chan struct{}, 1)
	svc, repo, _ := newTestService(t, fedex, dhl, local)
	req := mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false)

	const callers = 8
	var wg sync.WaitGroup
	results := make([]Result, callers)
	errs := make([]error, callers)
	run := func(i int) {
		defer wg.Done()
		results[i], errs[i] = svc.Handle(context.Background(), req)
	}

	wg.Add(1)
	go run(0)
	<-fedex.entered

	for i := 1; i < callers; i++ {
		wg.Add(1)
		go run(i)
	}
	// Every caller has missed the cache; give them time to join the
	// in-flight call before letting it finish.
	waitFor(t, func() bool { return repo.lookupCount() == callers })
	time.Sleep(20 * time.Millisecond)
	close(fedex.gate)
	wg.Wait()

	assert.Equal(t, int32(1), fedex.calls.Load())
	assert.Equal(t, 1, repo.saveCount())
	for i, res := range results {
		require.NoError(t, errs[i])
		assert.Len(t, res.Quotes, 3)
		assert.False(t, res.Cached)
	}
}

func TestHandleSharedCallSurvivesCancelledCaller(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	fedex.gate = make(chan struct{})
	fedex.entered = make(chan struct{}, 2)
	svc, repo, _ := newTestService(t, fedex, dhl, local)
	req := mustRequest(t, "Bogotá", "Medellín", 10, time.Now(), false)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.Handle(firstCtx, req)
		firstErr <- err
	}()
	<-fedex.entered

	type outcome struct {
		res Result
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		res, err := svc.Handle(context.Background(), req)
		second <- outcome{res, err}
	}()
	waitFor(t, func() bool { return repo.lookupCount() == 2 })
	time.Sleep(20 * time.Millisecond)

	cancelFirst()
	require.ErrorIs(t, <-firstErr, context.Canceled)
	assert.Equal(t, 0, repo.saveCount())

	// The second caller prices again under its own live context.
	<-fedex.entered
	close(fedex.gate)

	got := <-second
	require.NoError(t, got.err)
	assert.Len(t, got.res.Quotes, 3)
	assert.Empty(t, got.res.Messages)
	assert.Equal(t, 1, repo.saveCount())
	assert.Equal(t, int32(2), fedex.calls.Load())
}

func TestHistory(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, _, _ := newTestService(t, fedex, dhl, local)

	_, err := svc.Handle(context.Background(), mustRequest(t, "Bogotá", "Cali", 3, time.Now(), false))
	require.NoError(t, err)

	all, err := svc.History(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	two, err := svc.History(context.Background(), 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

func TestEnginesReturnsCopy(t *testing.T) {
	fedex, dhl, local := threeCarriers()
	svc, _, _ := newTestService(t, fedex, dhl, local)
	engines := svc.Engines()
	engines[0] = nil
	assert.Equal(t, "fedex", svc.Engines()[0].ID())
}
