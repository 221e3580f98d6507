package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Quote is the normalized shape returned by all providers.
// It is never mutated after creation.
type Quote struct {
	Symbol        string    `json:"symbol"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Volume        int64     `json:"volume,omitempty"`
	MarketCap     float64   `json:"market_cap,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// SeriesPoint is one OHLC observation of a time series.
type SeriesPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume,omitempty"`
}

// Interval selects the granularity of a series request.
type Interval string

const (
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// ParseInterval validates a user-supplied interval string.
func ParseInterval(s string) (Interval, error) {
	switch Interval(strings.ToLower(strings.TrimSpace(s))) {
	case IntervalDaily:
		return IntervalDaily, nil
	case IntervalWeekly:
		return IntervalWeekly, nil
	case IntervalMonthly:
		return IntervalMonthly, nil
	}
	return "", fmt.Errorf("invalid interval %q (want daily, weekly or monthly)", s)
}

// MaxSeriesPoints caps series results to the most recent points.
const MaxSeriesPoints = 100

// MaxTopMovers caps top-movers results.
const MaxTopMovers = 10

// Client normalizes calls to one external financial data provider.
// Series results are chronological (oldest first) and capped at
// MaxSeriesPoints; top movers are in provider rank order, at most
// MaxTopMovers entries.
type Client interface {
	Name() string
	FetchQuote(ctx context.Context, apiKey, symbol string) (Quote, error)
	FetchSeries(ctx context.Context, apiKey, symbol string, interval Interval) ([]SeriesPoint, error)
	FetchTopMovers(ctx context.Context, apiKey string) ([]Quote, error)
}

// Registry maps provider names to clients. Built once at startup.
type Registry struct {
	clients map[string]Client
}

func NewRegistry(clients ...Client) *Registry {
	r := &Registry{clients: make(map[string]Client, len(clients))}
	for _, c := range clients {
		r.clients[strings.ToLower(c.Name())] = c
	}
	return r
}

// Lookup returns the client registered under name (case-insensitive).
func (r *Registry) Lookup(name string) (Client, error) {
	c, ok := r.clients[strings.ToLower(name)]
	if !ok {
		return nil, &ProviderError{Provider: name, Message: fmt.Sprintf("unknown provider %q", name)}
	}
	return c, nil
}

// Names lists registered provider names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.clients))
	for name := range r.clients {
		out = append(out, name)
	}
	return out
}
