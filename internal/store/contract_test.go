package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shipquote/internal/quote"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func mustRequest(t *testing.T, destination string, weight float64, pickup time.Time, fragile bool) quote.Request {
	t.Helper()
	req, err := quote.NewRequest("Bogotá", destination, weight, pickup, fragile)
	require.NoError(t, err)
	return req
}

func sampleBatch() []quote.Quote {
	quotes := []quote.Quote{
		{ProviderID: "fedex", ProviderName: "FedEx", Price: 74750, Currency: "COP", MinDays: 2, MaxDays: 3, TransportMode: "air", Zone: "ZONE_2"},
		{ProviderID: "dhl", ProviderName: "DHL", Price: 66000, Currency: "COP", MinDays: 2, MaxDays: 4, TransportMode: "air", Zone: "ZONE_2"},
		{ProviderID: "local", ProviderName: "Local", Price: 63000, Currency: "COP", MinDays: 4, MaxDays: 6, TransportMode: "ground", Zone: "ZONE_2"},
	}
	quote.MarkBest(quotes)
	return quotes
}

// runRepositoryContract checks the behaviour every quote.Repository shares.
// newRepo must return an empty repository driven by clk.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T, clk *testClock) quote.Repository) {
	ctx := context.Background()

	t.Run("miss on empty store", func(t *testing.T) {
		repo := newRepo(t, newTestClock())
		got, err := repo.FindCached(ctx, mustRequest(t, "Medellín", 10, time.Now(), false))
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("hit returns the batch in order", func(t *testing.T) {
		clk := newTestClock()
		repo := newRepo(t, clk)
		req := mustRequest(t, "Medellín", 10, time.Now(), false)
		require.NoError(t, repo.SaveMany(ctx, sampleBatch(), req))

		got, err := repo.FindCached(ctx, req)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, "fedex", got[0].ProviderID)
		assert.Equal(t, "dhl", got[1].ProviderID)
		assert.Equal(t, "local", got[2].ProviderID)
		assert.Equal(t, 74750.0, got[0].Price)
		assert.True(t, got[2].IsCheapest)
		assert.True(t, got[0].IsFastest)
		assert.True(t, clk.Now().Equal(got[0].QuotedAt))
	})

	t.Run("pickup date is not part of the key", func(t *testing.T) {
		repo := newRepo(t, newTestClock())
		require.NoError(t, repo.SaveMany(ctx, sampleBatch(), mustRequest(t, "Medellín", 10, time.Now(), false)))

		got, err := repo.FindCached(ctx, mustRequest(t, "Medellín", 10, time.Now().AddDate(0, 0, 3), false))
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("fingerprint fields must all match", func(t *testing.T) {
		repo := newRepo(t, newTestClock())
		require.NoError(t, repo.SaveMany(ctx, sampleBatch(), mustRequest(t, "Medellín", 10, time.Now(), false)))

		for _, req := range []quote.Request{
			mustRequest(t, "Medellín", 10, time.Now(), true),
			mustRequest(t, "Medellín", 10.5, time.Now(), false),
			mustRequest(t, "Cali", 10, time.Now(), false),
		} {
			got, err := repo.FindCached(ctx, req)
			require.NoError(t, err)
			assert.Nil(t, got)
		}
	})

	t.Run("entries expire after the ttl", func(t *testing.T) {
		clk := newTestClock()
		repo := newRepo(t, clk)
		req := mustRequest(t, "Medellín", 10, time.Now(), false)
		batch := sampleBatch()
		for i := range batch {
			batch[i].QuotedAt = clk.Now()
		}
		require.NoError(t, repo.SaveMany(ctx, batch, req))

		clk.Advance(quote.CacheTTL - time.Second)
		got, err := repo.FindCached(ctx, req)
		require.NoError(t, err)
		assert.Len(t, got, 3)

		clk.Advance(time.Second)
		got, err = repo.FindCached(ctx, req)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("newest batch wins", func(t *testing.T) {
		clk := newTestClock()
		repo := newRepo(t, clk)
		req := mustRequest(t, "Medellín", 10, time.Now(), false)
		require.NoError(t, repo.SaveMany(ctx, sampleBatch(), req))

		clk.Advance(time.Minute)
		newer := sampleBatch()[:1]
		newer[0].Price = 70000
		require.NoError(t, repo.SaveMany(ctx, newer, req))

		got, err := repo.FindCached(ctx, req)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, 70000.0, got[0].Price)
	})

	t.Run("find all is newest first and limited", func(t *testing.T) {
		clk := newTestClock()
		repo := newRepo(t, clk)
		require.NoError(t, repo.SaveMany(ctx, sampleBatch(), mustRequest(t, "Medellín", 10, time.Now(), false)))
		clk.Advance(time.Minute)
		single := quote.Quote{ProviderID: "dhl", ProviderName: "DHL", Price: 1, Currency: "COP", MinDays: 1, MaxDays: 1, TransportMode: "air"}
		require.NoError(t, repo.Save(ctx, single, mustRequest(t, "Cali", 1, time.Now(), false)))

		all, err := repo.FindAll(ctx, 0)
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, 1.0, all[0].Price)
		assert.Equal(t, "fedex", all[1].ProviderID)

		two, err := repo.FindAll(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, two, 2)
	})
}
