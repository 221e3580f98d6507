package cache

import (
	"context"
	"sync"
	"time"

	"finboard/internal/provider"
)

// entry stores one cached quote with expiry.
type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Client caches quote results per symbol for a TTL, shielding tight
// widget refresh intervals from provider call budgets. Series and
// top-mover requests pass through uncached.
type Client struct {
	C        provider.Client
	TTL      time.Duration
	MaxItems int

	mu    sync.Mutex
	items map[string]entry // key: symbol
}

func (c *Client) Name() string { return c.C.Name() }

func (c *Client) FetchQuote(ctx context.Context, apiKey, symbol string) (provider.Quote, error) {
	if c.TTL <= 0 {
		return c.C.FetchQuote(ctx, apiKey, symbol)
	}

	now := time.Now()
	c.mu.Lock()
	if e, ok := c.items[symbol]; ok && now.Before(e.expiresAt) {
		c.mu.Unlock()
		return e.quote, nil
	}
	c.mu.Unlock()

	q, err := c.C.FetchQuote(ctx, apiKey, symbol)
	if err != nil {
		return provider.Quote{}, err
	}

	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[symbol] = entry{expiresAt: now.Add(c.TTL), quote: q}
	if c.MaxItems > 0 && len(c.items) > c.MaxItems {
		// best-effort cap: drop expired entries first, then arbitrary keys
		for k, v := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			if now.After(v.expiresAt) {
				delete(c.items, k)
			}
		}
		for k := range c.items {
			if len(c.items) <= c.MaxItems {
				break
			}
			delete(c.items, k)
		}
	}
	c.mu.Unlock()
	return q, nil
}

func (c *Client) FetchSeries(ctx context.Context, apiKey, symbol string, interval provider.Interval) ([]provider.SeriesPoint, error) {
	return c.C.FetchSeries(ctx, apiKey, symbol, interval)
}

func (c *Client) FetchTopMovers(ctx context.Context, apiKey string) ([]provider.Quote, error) {
	return c.C.FetchTopMovers(ctx, apiKey)
}
