package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"finboard/internal/config"
	"finboard/internal/dashboard"
	"finboard/internal/format"
	"finboard/internal/httpx"
	"finboard/internal/provider"
	"finboard/internal/provider/alphavantage"
	"finboard/internal/provider/cache"
	"finboard/internal/provider/finnhub"
	"finboard/internal/provider/ratelimit"
	"finboard/internal/refresh"
	"finboard/internal/scheduler"
)

// widgetData is the display-side cache of the latest refresh result
// per widget. Refresh outcomes live here, not in the store; only the
// lastUpdated marker flows back into persisted state.
type widgetData struct {
	mu      sync.Mutex
	results map[string]storedResult
}

type storedResult struct {
	Status   refresh.Status         `json:"status"`
	Quotes   []provider.Quote       `json:"quotes,omitempty"`
	Display  []format.QuoteView     `json:"display,omitempty"`
	Series   []provider.SeriesPoint `json:"series,omitempty"`
	Warnings []string               `json:"warnings,omitempty"`
	Error    string                 `json:"error,omitempty"`
	At       time.Time              `json:"at"`
}

func (d *widgetData) store(id string, res refresh.Result) {
	sr := storedResult{
		Status:   res.Status,
		Quotes:   res.Quotes,
		Display:  format.QuoteRows(res.Quotes),
		Series:   res.Series,
		Warnings: res.Warnings,
		At:       time.Now().UTC(),
	}
	if res.Err != nil {
		sr.Error = res.Err.Error()
	}
	d.mu.Lock()
	d.results[id] = sr
	d.mu.Unlock()
}

func (d *widgetData) get(id string) (storedResult, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sr, ok := d.results[id]
	return sr, ok
}

func (d *widgetData) drop(id string) {
	d.mu.Lock()
	delete(d.results, id)
	d.mu.Unlock()
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("FINBOARD_CONFIG"))
	if err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("config", "err", err)
		os.Exit(1)
	}

	var persister dashboard.Persister
	if cfg.Storage.SQLitePath != "" {
		sp, err := dashboard.NewSQLitePersister(cfg.Storage.SQLitePath)
		if err != nil {
			logger.Error("open sqlite state", "err", err)
			os.Exit(1)
		}
		defer sp.Close()
		persister = sp
		logger.Info("state backend", "sqlite", cfg.Storage.SQLitePath)
	} else {
		persister = &dashboard.FilePersister{Path: cfg.Storage.StateFile}
		logger.Info("state backend", "file", cfg.Storage.StateFile)
	}

	store := dashboard.Open(persister, logger)

	// Seed configured credentials that are not already persisted.
	keys := store.APIKeys()
	if cfg.Providers.AlphaVantage.APIKey != "" && keys[alphavantage.Name] == "" {
		store.SetAPIKey(alphavantage.Name, cfg.Providers.AlphaVantage.APIKey)
	}
	if cfg.Providers.Finnhub.APIKey != "" && keys[finnhub.Name] == "" {
		store.SetAPIKey(finnhub.Name, cfg.Providers.Finnhub.APIKey)
	}

	httpClient := httpx.New(time.Duration(cfg.Server.RequestTimeoutSec) * time.Second)
	tracker := ratelimit.NewTracker()

	registry := provider.NewRegistry(
		buildClient(alphavantage.New(
			alphavantage.WithHTTPClient(httpClient),
			alphavantage.WithTracker(tracker),
		), cfg.Providers.AlphaVantage),
		buildClient(finnhub.New(
			finnhub.WithHTTPClient(httpClient),
			finnhub.WithTracker(tracker),
		), cfg.Providers.Finnhub),
	)

	data := &widgetData{results: make(map[string]storedResult)}
	orch := refresh.New(registry, logger)
	sched := scheduler.New(store, orch, scheduler.HandlerFunc(func(w dashboard.Widget, res refresh.Result) {
		data.store(w.ID, res)
	}), logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	sched.Reconcile(store.Widgets())

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/widgets", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, store.Widgets())
	})

	mux.HandleFunc("POST /api/widgets", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Type            dashboard.WidgetType `json:"type"`
			Title           string               `json:"title"`
			Description     string               `json:"description"`
			Symbols         string               `json:"symbols"`
			Provider        string               `json:"provider"`
			APIKey          string               `json:"api_key"`
			RefreshInterval *int                 `json:"refresh_interval"`
			Config          *dashboard.Config    `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		widget := dashboard.New(req.Type, req.Title, req.Symbols)
		widget.Description = req.Description
		widget.APIKey = req.APIKey
		if req.Provider != "" {
			widget.Provider = req.Provider
		}
		if req.RefreshInterval != nil {
			widget.RefreshInterval = *req.RefreshInterval
		}
		if req.Config != nil {
			widget.Config = *req.Config
		}
		if err := store.Add(widget); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		sched.Reconcile(store.Widgets())
		writeJSON(w, http.StatusCreated, widget)
	})

	mux.HandleFunc("PATCH /api/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		var patch dashboard.Patch
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		id := r.PathValue("id")
		if err := store.Update(id, patch); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		sched.Reconcile(store.Widgets())
		widget, ok := store.Widget(id)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, http.StatusOK, widget)
	})

	mux.HandleFunc("DELETE /api/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		store.Remove(id)
		data.drop(id)
		sched.Reconcile(store.Widgets())
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("POST /api/widgets/{id}/refresh", func(w http.ResponseWriter, r *http.Request) {
		res, err := sched.RefreshNow(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		sr, _ := data.get(r.PathValue("id"))
		if res.Failed() {
			writeJSON(w, http.StatusBadGateway, sr)
			return
		}
		writeJSON(w, http.StatusOK, sr)
	})

	mux.HandleFunc("GET /api/widgets/{id}/data", func(w http.ResponseWriter, r *http.Request) {
		sr, ok := data.get(r.PathValue("id"))
		if !ok {
			writeError(w, http.StatusNotFound, errNoData)
			return
		}
		writeJSON(w, http.StatusOK, sr)
	})

	mux.HandleFunc("PUT /api/widgets/order", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			IDs []string `json:"ids"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := store.Reorder(req.IDs); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeJSON(w, http.StatusOK, store.Widgets())
	})

	mux.HandleFunc("PUT /api/keys/{provider}", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Key string `json:"key"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		store.SetAPIKey(r.PathValue("provider"), req.Key)
		sched.Reconcile(store.Widgets())
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("GET /api/export", func(w http.ResponseWriter, r *http.Request) {
		doc, err := store.Export()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", `attachment; filename="finboard-config.json"`)
		w.Write(doc)
	})

	mux.HandleFunc("POST /api/import", func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r, 4<<20)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		replace := r.URL.Query().Get("replace") == "true"
		if err := store.Import(body, replace); err != nil {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		sched.Reconcile(store.Widgets())
		writeJSON(w, http.StatusOK, store.Widgets())
	})

	srv := &http.Server{Addr: ":" + cfg.Server.Port, Handler: mux}
	go func() {
		logger.Info("listening", "port", cfg.Server.Port, "providers", registry.Names())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	sched.Stop()
	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
}

// buildClient applies the optional throttle and cache decorators from
// config around a concrete provider client.
func buildClient(c provider.Client, pc config.ProviderConfig) provider.Client {
	if pc.MaxRequestsPerMinute > 0 {
		rate := float64(pc.MaxRequestsPerMinute) / 60.0
		burst := pc.Burst
		if burst <= 0 {
			burst = 1
		}
		c = &ratelimit.Limited{C: c, TB: ratelimit.NewTokenBucket(rate, burst)}
	}
	if pc.CacheTTLSeconds > 0 {
		c = &cache.Client{C: c, TTL: time.Duration(pc.CacheTTLSeconds) * time.Second}
	}
	return c
}
