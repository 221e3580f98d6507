package cache_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finboard/internal/provider"
	"finboard/internal/provider/cache"
)

// countingClient counts upstream calls and can be told to fail.
type countingClient struct {
	quoteCalls  atomic.Int64
	seriesCalls atomic.Int64
	fail        atomic.Bool
}

func (c *countingClient) Name() string { return "counting" }

func (c *countingClient) FetchQuote(ctx context.Context, apiKey, symbol string) (provider.Quote, error) {
	n := c.quoteCalls.Add(1)
	if c.fail.Load() {
		return provider.Quote{}, &provider.ProviderError{Provider: "counting", Message: "down"}
	}
	return provider.Quote{Symbol: symbol, Price: float64(n)}, nil
}

func (c *countingClient) FetchSeries(ctx context.Context, apiKey, symbol string, interval provider.Interval) ([]provider.SeriesPoint, error) {
	c.seriesCalls.Add(1)
	return []provider.SeriesPoint{{Close: 1}}, nil
}

func (c *countingClient) FetchTopMovers(ctx context.Context, apiKey string) ([]provider.Quote, error) {
	return nil, nil
}

func TestQuoteServedFromCacheWithinTTL(t *testing.T) {
	t.Parallel()

	upstream := &countingClient{}
	c := &cache.Client{C: upstream, TTL: time.Minute}

	first, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)
	second, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.EqualValues(t, 1, upstream.quoteCalls.Load())
}

func TestDistinctSymbolsMissIndependently(t *testing.T) {
	t.Parallel()

	upstream := &countingClient{}
	c := &cache.Client{C: upstream, TTL: time.Minute}

	_, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)
	_, err = c.FetchQuote(t.Context(), "key", "MSFT")
	require.NoError(t, err)

	require.EqualValues(t, 2, upstream.quoteCalls.Load())
}

func TestExpiredEntryRefetches(t *testing.T) {
	t.Parallel()

	upstream := &countingClient{}
	c := &cache.Client{C: upstream, TTL: 10 * time.Millisecond}

	_, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	q, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)
	require.Equal(t, 2.0, q.Price, "second upstream call must be visible after expiry")
	require.EqualValues(t, 2, upstream.quoteCalls.Load())
}

func TestErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	upstream := &countingClient{}
	upstream.fail.Store(true)
	c := &cache.Client{C: upstream, TTL: time.Minute}

	_, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.Error(t, err)

	upstream.fail.Store(false)
	q, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)
	require.Equal(t, "AAPL", q.Symbol)
	require.EqualValues(t, 2, upstream.quoteCalls.Load())
}

func TestZeroTTLDisablesCaching(t *testing.T) {
	t.Parallel()

	upstream := &countingClient{}
	c := &cache.Client{C: upstream}

	_, err := c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)
	_, err = c.FetchQuote(t.Context(), "key", "AAPL")
	require.NoError(t, err)

	require.EqualValues(t, 2, upstream.quoteCalls.Load())
}

func TestSeriesPassesThrough(t *testing.T) {
	t.Parallel()

	upstream := &countingClient{}
	c := &cache.Client{C: upstream, TTL: time.Minute}

	for range 3 {
		_, err := c.FetchSeries(t.Context(), "key", "AAPL", provider.IntervalDaily)
		require.NoError(t, err)
	}
	require.EqualValues(t, 3, upstream.seriesCalls.Load())
}

func TestMaxItemsCapsCacheSize(t *testing.T) {
	t.Parallel()

	upstream := &countingClient{}
	c := &cache.Client{C: upstream, TTL: time.Minute, MaxItems: 5}

	for i := range 20 {
		_, err := c.FetchQuote(t.Context(), "key", fmt.Sprintf("SYM%d", i))
		require.NoError(t, err)
	}
	require.EqualValues(t, 20, upstream.quoteCalls.Load())
}
