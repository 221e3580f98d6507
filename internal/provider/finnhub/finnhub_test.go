package finnhub_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"finboard/internal/provider"
	"finboard/internal/provider/finnhub"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *finnhub.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return finnhub.New(finnhub.WithBaseURL(srv.URL), finnhub.WithHTTPClient(srv.Client()))
}

func TestFetchQuote_ParsesQuote(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/quote", r.URL.Path)
		require.Equal(t, "MSFT", r.URL.Query().Get("symbol"))
		require.Equal(t, "tok", r.URL.Query().Get("token"))
		fmt.Fprint(w, `{"c": 420.5, "d": -2.5, "dp": -0.59, "t": 1724900400}`)
	})

	q, err := c.FetchQuote(t.Context(), "tok", "MSFT")
	require.NoError(t, err)
	require.Equal(t, "MSFT", q.Symbol)
	require.InDelta(t, 420.5, q.Price, 1e-9)
	require.InDelta(t, -2.5, q.Change, 1e-9)
	require.InDelta(t, -0.59, q.ChangePercent, 1e-9)
	require.Equal(t, time.Unix(1724900400, 0).UTC(), q.Timestamp)
}

func TestFetchQuote_UnknownSymbolIsProviderError(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"c": 0, "d": null, "dp": null, "t": 0}`)
	})

	_, err := c.FetchQuote(t.Context(), "tok", "NOPE")
	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)
}

func TestFetchQuote_MissingKey(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.FetchQuote(t.Context(), "", "MSFT")
	require.ErrorIs(t, err, provider.ErrMissingCredential)
}

func TestSeriesAndMovers_NotSupported(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := c.FetchSeries(t.Context(), "tok", "MSFT", provider.IntervalDaily)
	var perr *provider.ProviderError
	require.ErrorAs(t, err, &perr)

	_, err = c.FetchTopMovers(t.Context(), "tok")
	require.ErrorAs(t, err, &perr)
}
