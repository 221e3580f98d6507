package alphavantage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"finboard/internal/provider"
	"finboard/internal/provider/ratelimit"
)

const baseURL = "https://www.alphavantage.co"

// Name is the provider key used for registry lookup and credentials.
const Name = "alphavantage"

// HTTPClient describes an HTTP client.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Alpha Vantage query API.
type Client struct {
	baseURL    string
	httpClient HTTPClient
	tracker    *ratelimit.Tracker
}

// Option is a configuration option for the client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (tests point it at a local server).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc HTTPClient) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTracker wires a shared rate-limit tracker. Requests are refused
// locally while the tracked budget is exhausted.
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

// FetchQuote fetches a GLOBAL_QUOTE for one symbol.
func (c *Client) FetchQuote(ctx context.Context, apiKey, symbol string) (provider.Quote, error) {
	body, err := c.query(ctx, apiKey, url.Values{"function": {"GLOBAL_QUOTE"}, "symbol": {symbol}})
	if err != nil {
		return provider.Quote{}, err
	}

	var resp struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return provider.Quote{}, &provider.TransportError{Provider: Name, Err: fmt.Errorf("decode quote: %w", err)}
	}
	gq := resp.GlobalQuote
	if len(gq) == 0 {
		return provider.Quote{}, &provider.ProviderError{Provider: Name, Message: fmt.Sprintf("no quote data for symbol %q", symbol)}
	}

	q := provider.Quote{
		Symbol:        gq["01. symbol"],
		Price:         parseFloat(gq["05. price"]),
		Change:        parseFloat(gq["09. change"]),
		ChangePercent: parsePercent(gq["10. change percent"]),
		Volume:        parseInt(gq["06. volume"]),
		Timestamp:     time.Now().UTC(),
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	return q, nil
}

// FetchSeries fetches a daily, weekly or monthly OHLC series. Results
// are chronological regardless of upstream ordering and capped to the
// most recent MaxSeriesPoints entries.
func (c *Client) FetchSeries(ctx context.Context, apiKey, symbol string, interval provider.Interval) ([]provider.SeriesPoint, error) {
	fn, ok := seriesFunctions[interval]
	if !ok {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}
	body, err := c.query(ctx, apiKey, url.Values{"function": {fn}, "symbol": {symbol}})
	if err != nil {
		return nil, err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &provider.TransportError{Provider: Name, Err: fmt.Errorf("decode series: %w", err)}
	}
	var series map[string]seriesEntry
	for key, msg := range raw {
		if !strings.Contains(key, "Time Series") {
			continue
		}
		if err := json.Unmarshal(msg, &series); err != nil {
			return nil, &provider.TransportError{Provider: Name, Err: fmt.Errorf("decode series points: %w", err)}
		}
		break
	}
	if len(series) == 0 {
		return nil, &provider.ProviderError{Provider: Name, Message: fmt.Sprintf("no series data for symbol %q", symbol)}
	}

	points := make([]provider.SeriesPoint, 0, len(series))
	for date, e := range series {
		ts, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		points = append(points, provider.SeriesPoint{
			Timestamp: ts,
			Open:      parseFloat(e.Open),
			High:      parseFloat(e.High),
			Low:       parseFloat(e.Low),
			Close:     parseFloat(e.Close),
			Volume:    parseInt(e.Volume),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Timestamp.Before(points[j].Timestamp) })
	if len(points) > provider.MaxSeriesPoints {
		points = points[len(points)-provider.MaxSeriesPoints:]
	}
	return points, nil
}

// FetchTopMovers fetches TOP_GAINERS_LOSERS and returns the top
// gainers in provider rank order.
func (c *Client) FetchTopMovers(ctx context.Context, apiKey string) ([]provider.Quote, error) {
	body, err := c.query(ctx, apiKey, url.Values{"function": {"TOP_GAINERS_LOSERS"}})
	if err != nil {
		return nil, err
	}

	var resp struct {
		TopGainers []moverEntry `json:"top_gainers"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &provider.TransportError{Provider: Name, Err: fmt.Errorf("decode movers: %w", err)}
	}
	if len(resp.TopGainers) == 0 {
		return nil, &provider.ProviderError{Provider: Name, Message: "no market mover data available"}
	}

	now := time.Now().UTC()
	movers := resp.TopGainers
	if len(movers) > provider.MaxTopMovers {
		movers = movers[:provider.MaxTopMovers]
	}
	out := make([]provider.Quote, 0, len(movers))
	for _, m := range movers {
		out = append(out, provider.Quote{
			Symbol:        m.Ticker,
			Price:         parseFloat(m.Price),
			Change:        parseFloat(m.ChangeAmount),
			ChangePercent: parsePercent(m.ChangePercentage),
			Volume:        parseInt(m.Volume),
			Timestamp:     now,
		})
	}
	return out, nil
}

var seriesFunctions = map[provider.Interval]string{
	provider.IntervalDaily:   "TIME_SERIES_DAILY",
	provider.IntervalWeekly:  "TIME_SERIES_WEEKLY",
	provider.IntervalMonthly: "TIME_SERIES_MONTHLY",
}

type seriesEntry struct {
	Open   string `json:"1. open"`
	High   string `json:"2. high"`
	Low    string `json:"3. low"`
	Close  string `json:"4. close"`
	Volume string `json:"5. volume"`
}

type moverEntry struct {
	Ticker           string `json:"ticker"`
	Price            string `json:"price"`
	ChangeAmount     string `json:"change_amount"`
	ChangePercentage string `json:"change_percentage"`
	Volume           string `json:"volume"`
}

// query performs one GET against /query, checking credentials and the
// rate-limit budget before touching the network, and screening the
// payload for Alpha Vantage's embedded error keys.
func (c *Client) query(ctx context.Context, apiKey string, params url.Values) ([]byte, error) {
	if apiKey == "" {
		return nil, provider.ErrMissingCredential
	}
	if c.tracker != nil {
		if err := c.tracker.Check(Name); err != nil {
			return nil, err
		}
	}

	params.Set("apikey", apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, &provider.TransportError{Provider: Name, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &provider.TransportError{Provider: Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		resetAt := time.Now().Add(time.Minute)
		if s := resp.Header.Get("Retry-After"); s != "" {
			if secs, err := strconv.Atoi(s); err == nil && secs > 0 {
				resetAt = time.Now().Add(time.Duration(secs) * time.Second)
			}
		}
		if c.tracker != nil {
			c.tracker.Exhaust(Name, resetAt)
		}
		return nil, &provider.RateLimitError{Provider: Name, ResetAt: resetAt}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2<<10))
		return nil, &provider.TransportError{Provider: Name, Err: fmt.Errorf("GET /query -> %d: %s", resp.StatusCode, string(b))}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.TransportError{Provider: Name, Err: err}
	}

	// Alpha Vantage signals application errors inside a 200 payload.
	var envelope struct {
		ErrorMessage string `json:"Error Message"`
		Note         string `json:"Note"`
		Information  string `json:"Information"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &provider.TransportError{Provider: Name, Err: fmt.Errorf("decode: %w", err)}
	}
	switch {
	case envelope.ErrorMessage != "":
		return nil, &provider.ProviderError{Provider: Name, Message: envelope.ErrorMessage}
	case envelope.Note != "":
		// Call frequency exhausted; zero the budget so later ticks
		// fail fast without a network round trip.
		if c.tracker != nil {
			c.tracker.Exhaust(Name, time.Now().Add(time.Minute))
		}
		return nil, &provider.ProviderError{Provider: Name, Message: envelope.Note}
	case envelope.Information != "":
		return nil, &provider.ProviderError{Provider: Name, Message: envelope.Information}
	}

	if c.tracker != nil {
		if rem := resp.Header.Get("X-RateLimit-Remaining"); rem != "" {
			remaining, err := strconv.Atoi(rem)
			resetAt := time.Now().Add(time.Minute)
			if s := resp.Header.Get("X-RateLimit-Reset"); s != "" {
				if epoch, err := strconv.ParseInt(s, 10, 64); err == nil {
					resetAt = time.Unix(epoch, 0)
				}
			}
			if err == nil {
				c.tracker.Update(Name, remaining, resetAt)
			}
		}
	}
	return body, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parsePercent(s string) float64 {
	return parseFloat(strings.TrimSuffix(strings.TrimSpace(s), "%"))
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return v
}
