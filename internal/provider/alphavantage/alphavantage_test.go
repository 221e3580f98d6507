package alphavantage_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finboard/internal/provider"
	"finboard/internal/provider/alphavantage"
	"finboard/internal/provider/ratelimit"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*alphavantage.Client, *ratelimit.Tracker) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	tracker := ratelimit.NewTracker()
	c := alphavantage.New(
		alphavantage.WithBaseURL(srv.URL),
		alphavantage.WithHTTPClient(srv.Client()),
		alphavantage.WithTracker(tracker),
	)
	return c, tracker
}

func TestFetchQuote_ParsesGlobalQuote(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "GLOBAL_QUOTE", r.URL.Query().Get("function"))
		require.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		require.Equal(t, "demo", r.URL.Query().Get("apikey"))
		fmt.Fprint(w, `{"Global Quote": {
			"01. symbol": "AAPL",
			"05. price": "189.9100",
			"06. volume": "53712743",
			"09. change": "1.2300",
			"10. change percent": "0.6520%"
		}}`)
	})

	q, err := c.FetchQuote(t.Context(), "demo", "AAPL")
	require.NoError(t, err)
	require.Equal(t, "AAPL", q.Symbol)
	require.InDelta(t, 189.91, q.Price, 1e-9)
	require.InDelta(t, 1.23, q.Change, 1e-9)
	require.InDelta(t, 0.652, q.ChangePercent, 1e-9)
	require.Equal(t, int64(53712743), q.Volume)
	require.False(t, q.Timestamp.IsZero())
}

func TestFetchQuote_MissingKey_NoNetworkCall(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	})

	_, err := c.FetchQuote(t.Context(), "", "AAPL")
	require.ErrorIs(t, err, provider.ErrMissingCredential)
	require.Zero(t, calls.Load())
}

func TestFetchQuote_PayloadErrorMessage(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Error Message": "Invalid API call. Please retry or visit the documentation."}`)
	})

	_, err := c.FetchQuote(t.Context(), "demo", "NOPE")
	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, "Invalid API call. Please retry or visit the documentation.", perr.Message)
}

func TestFetchQuote_NoteExhaustsBudget(t *testing.T) {
	t.Parallel()

	c, tracker := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`)
	})

	_, err := c.FetchQuote(t.Context(), "demo", "AAPL")
	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)

	// The next call must be refused locally before the network.
	err = tracker.Check(alphavantage.Name)
	var rl *provider.RateLimitError
	require.ErrorAs(t, err, &rl)
}

func TestFetchQuote_HTTP429(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := c.FetchQuote(t.Context(), "demo", "AAPL")
	var rl *provider.RateLimitError
	require.ErrorAs(t, err, &rl)
	require.WithinDuration(t, time.Now().Add(30*time.Second), rl.ResetAt, 5*time.Second)
}

func TestFetchQuote_MalformedBody(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html>totally not json</html>`)
	})

	_, err := c.FetchQuote(t.Context(), "demo", "AAPL")
	var terr *provider.TransportError
	require.ErrorAs(t, err, &terr)
}

func TestFetchSeries_ChronologicalAndCapped(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TIME_SERIES_DAILY", r.URL.Query().Get("function"))
		// Build 120 days, newest first in the payload.
		fmt.Fprint(w, `{"Meta Data": {"2. Symbol": "AAPL"}, "Time Series (Daily)": {`)
		day := time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
		for i := 0; i < 120; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			d := day.AddDate(0, 0, -i).Format("2006-01-02")
			fmt.Fprintf(w, `"%s": {"1. open":"1","2. high":"2","3. low":"0.5","4. close":"%d","5. volume":"100"}`, d, i)
		}
		fmt.Fprint(w, `}}`)
	})

	points, err := c.FetchSeries(t.Context(), "demo", "AAPL", provider.IntervalDaily)
	require.NoError(t, err)
	require.Len(t, points, provider.MaxSeriesPoints)
	for i := 1; i < len(points); i++ {
		require.True(t, points[i-1].Timestamp.Before(points[i].Timestamp), "series must be oldest first")
	}
	// Most recent day survives the cap.
	require.Equal(t, time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC), points[len(points)-1].Timestamp)
	require.InDelta(t, 0, points[len(points)-1].Close, 1e-9)
}

func TestFetchTopMovers_CappedAtTen(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "TOP_GAINERS_LOSERS", r.URL.Query().Get("function"))
		fmt.Fprint(w, `{"top_gainers": [`)
		for i := 0; i < 15; i++ {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, `{"ticker":"T%d","price":"10.5","change_amount":"1.5","change_percentage":"16.67%%","volume":"123"}`, i)
		}
		fmt.Fprint(w, `]}`)
	})

	movers, err := c.FetchTopMovers(t.Context(), "demo")
	require.NoError(t, err)
	require.Len(t, movers, provider.MaxTopMovers)
	require.Equal(t, "T0", movers[0].Symbol, "provider rank order must be preserved")
	require.InDelta(t, 16.67, movers[0].ChangePercent, 1e-9)
}

func TestFetchSeries_InvalidInterval(t *testing.T) {
	t.Parallel()

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.FetchSeries(t.Context(), "demo", "AAPL", provider.Interval("hourly"))
	require.Error(t, err)
	require.False(t, errors.As(err, new(*provider.TransportError)))
}
