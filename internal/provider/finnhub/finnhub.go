package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"finboard/internal/provider"
	"finboard/internal/provider/ratelimit"
)

const baseURL = "https://finnhub.io/api/v1"

// Name is the provider key used for registry lookup and credentials.
const Name = "finnhub"

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Finnhub REST API. Only quote lookups are
// routed here; series and market movers live on Alpha Vantage.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	tracker    *ratelimit.Tracker
}

type Option func(*Client)

func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithTracker(t *ratelimit.Tracker) Option {
	return func(c *Client) { c.tracker = t }
}

func New(options ...Option) *Client {
	c := &Client{baseURL: baseURL, httpClient: http.DefaultClient}
	for _, o := range options {
		o(c)
	}
	return c
}

func (c *Client) Name() string { return Name }

// FetchQuote fetches /quote for one symbol.
func (c *Client) FetchQuote(ctx context.Context, apiKey, symbol string) (provider.Quote, error) {
	if apiKey == "" {
		return provider.Quote{}, provider.ErrMissingCredential
	}
	if c.tracker != nil {
		if err := c.tracker.Check(Name); err != nil {
			return provider.Quote{}, err
		}
	}

	params := url.Values{"symbol": {symbol}, "token": {apiKey}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+params.Encode(), nil)
	if err != nil {
		return provider.Quote{}, &provider.TransportError{Provider: Name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return provider.Quote{}, &provider.TransportError{Provider: Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		resetAt := time.Now().Add(time.Minute)
		if c.tracker != nil {
			c.tracker.Exhaust(Name, resetAt)
		}
		return provider.Quote{}, &provider.RateLimitError{Provider: Name, ResetAt: resetAt}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return provider.Quote{}, &provider.ProviderError{Provider: Name, Message: strings.TrimSpace(string(b))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		return provider.Quote{}, &provider.TransportError{Provider: Name, Err: fmt.Errorf("GET /quote -> %d: %s", resp.StatusCode, string(b))}
	}

	var body struct {
		Current       float64 `json:"c"`
		Change        float64 `json:"d"`
		ChangePercent float64 `json:"dp"`
		Timestamp     int64   `json:"t"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return provider.Quote{}, &provider.TransportError{Provider: Name, Err: fmt.Errorf("decode quote: %w", err)}
	}
	// Finnhub answers unknown symbols with an all-zero quote.
	if body.Current == 0 && body.Timestamp == 0 {
		return provider.Quote{}, &provider.ProviderError{Provider: Name, Message: fmt.Sprintf("no quote data for symbol %q", symbol)}
	}

	if c.tracker != nil {
		if rem := resp.Header.Get("X-Ratelimit-Remaining"); rem != "" {
			remaining, remErr := strconv.Atoi(rem)
			resetAt := time.Now().Add(time.Minute)
			if s := resp.Header.Get("X-Ratelimit-Reset"); s != "" {
				if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
					resetAt = time.Unix(epoch, 0)
				}
			}
			if remErr == nil {
				c.tracker.Update(Name, remaining, resetAt)
			}
		}
	}

	return provider.Quote{
		Symbol:        symbol,
		Price:         body.Current,
		Change:        body.Change,
		ChangePercent: body.ChangePercent,
		Timestamp:     time.Unix(body.Timestamp, 0).UTC(),
	}, nil
}

// FetchSeries is not routed to Finnhub.
func (c *Client) FetchSeries(ctx context.Context, apiKey, symbol string, interval provider.Interval) ([]provider.SeriesPoint, error) {
	return nil, &provider.ProviderError{Provider: Name, Message: "time series are not supported by finnhub"}
}

// FetchTopMovers is not routed to Finnhub.
func (c *Client) FetchTopMovers(ctx context.Context, apiKey string) ([]provider.Quote, error) {
	return nil, &provider.ProviderError{Provider: Name, Message: "market movers are not supported by finnhub"}
}
