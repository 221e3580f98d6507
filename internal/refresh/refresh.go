// Package refresh turns one widget definition into one fetch outcome,
// fanning out per-symbol provider calls and aggregating partial
// failures.
package refresh

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"finboard/internal/dashboard"
	"finboard/internal/provider"
)

//go:generate mockgen -package=refresh_test -destination=mock_client_test.go finboard/internal/provider Client

// Status classifies a widget-level refresh outcome.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailure Status = "failure"
)

// Result is the aggregate outcome of one widget refresh. Quotes keep
// the originally requested symbol order; Warnings carry per-symbol
// failure messages that did not sink the whole refresh.
type Result struct {
	Status   Status
	Quotes   []provider.Quote
	Series   []provider.SeriesPoint
	Warnings []string
	Err      error
}

// Failed reports whether the caller should leave lastUpdated untouched.
func (r Result) Failed() bool { return r.Status == StatusFailure }

// Orchestrator issues the provider calls for a widget and folds the
// outcomes into one Result. It never retries; retry is a user action.
type Orchestrator struct {
	registry *provider.Registry
	logger   *slog.Logger
}

func New(registry *provider.Registry, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{registry: registry, logger: logger}
}

// Refresh resolves the widget's query mode and executes it with the
// given credential. An empty credential fails before any network call.
func (o *Orchestrator) Refresh(ctx context.Context, w dashboard.Widget, apiKey string) Result {
	if apiKey == "" {
		return Result{Status: StatusFailure, Err: provider.ErrMissingCredential}
	}
	client, err := o.registry.Lookup(w.Provider)
	if err != nil {
		return Result{Status: StatusFailure, Err: err}
	}

	switch {
	case w.Type == dashboard.TypeChart:
		return o.refreshSeries(ctx, client, w, apiKey)
	case w.Type == dashboard.TypeCard && w.Config.CardType == dashboard.CardTypeGainers:
		return o.refreshMovers(ctx, client, apiKey)
	default:
		return o.refreshQuotes(ctx, client, w, apiKey)
	}
}

// refreshQuotes fans out one FetchQuote per symbol and waits for every
// outcome; one bad symbol must not blank out the others.
func (o *Orchestrator) refreshQuotes(ctx context.Context, client provider.Client, w dashboard.Widget, apiKey string) Result {
	symbols := w.SymbolList()
	if len(symbols) == 0 {
		return Result{Status: StatusFailure, Err: provider.ErrNoData}
	}

	type outcome struct {
		quote provider.Quote
		err   error
	}
	outcomes := make([]outcome, len(symbols))

	// The group is purely a join barrier: workers record their slot
	// and always return nil, so no failure short-circuits the rest.
	var g errgroup.Group
	for i, sym := range symbols {
		g.Go(func() error {
			q, err := client.FetchQuote(ctx, apiKey, sym)
			outcomes[i] = outcome{quote: q, err: err}
			return nil
		})
	}
	g.Wait()

	quotes := make([]provider.Quote, 0, len(symbols))
	var warnings []string
	for i, out := range outcomes {
		if out.err != nil {
			o.logger.Warn("symbol fetch failed", "widget", w.ID, "symbol", symbols[i], "err", out.err)
			warnings = append(warnings, fmt.Sprintf("%s: %v", symbols[i], out.err))
			continue
		}
		quotes = append(quotes, out.quote)
	}

	switch {
	case len(quotes) == 0:
		return Result{Status: StatusFailure, Warnings: warnings, Err: provider.ErrNoData}
	case len(warnings) > 0:
		return Result{Status: StatusPartial, Quotes: quotes, Warnings: warnings}
	default:
		return Result{Status: StatusSuccess, Quotes: quotes}
	}
}

func (o *Orchestrator) refreshSeries(ctx context.Context, client provider.Client, w dashboard.Widget, apiKey string) Result {
	symbols := w.SymbolList()
	if len(symbols) == 0 {
		return Result{Status: StatusFailure, Err: provider.ErrNoData}
	}
	interval := provider.IntervalDaily
	if w.Config.TimeInterval != "" {
		parsed, err := provider.ParseInterval(w.Config.TimeInterval)
		if err != nil {
			return Result{Status: StatusFailure, Err: err}
		}
		interval = parsed
	}
	points, err := client.FetchSeries(ctx, apiKey, symbols[0], interval)
	if err != nil {
		return Result{Status: StatusFailure, Err: err}
	}
	return Result{Status: StatusSuccess, Series: points}
}

func (o *Orchestrator) refreshMovers(ctx context.Context, client provider.Client, apiKey string) Result {
	quotes, err := client.FetchTopMovers(ctx, apiKey)
	if err != nil {
		return Result{Status: StatusFailure, Err: err}
	}
	return Result{Status: StatusSuccess, Quotes: quotes}
}
