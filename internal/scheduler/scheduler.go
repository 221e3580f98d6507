// Package scheduler owns one repeating timer per widget and keeps the
// running set in sync with the store through reconciliation.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"finboard/internal/dashboard"
	"finboard/internal/refresh"
)

// Refresher executes one widget refresh.
type Refresher interface {
	Refresh(ctx context.Context, w dashboard.Widget, apiKey string) refresh.Result
}

// Store is the slice of the dashboard store the scheduler needs: the
// current widget definitions, credential resolution, and the
// lastUpdated marker.
type Store interface {
	Widget(id string) (dashboard.Widget, bool)
	ResolveKey(w dashboard.Widget) string
	TouchLastUpdated(id string, t time.Time)
}

// Handler receives applied refresh results (the widget's display
// state lives outside the scheduler).
type Handler interface {
	HandleResult(w dashboard.Widget, res refresh.Result)
}

// HandlerFunc is a function adapter for Handler.
type HandlerFunc func(dashboard.Widget, refresh.Result)

func (f HandlerFunc) HandleResult(w dashboard.Widget, res refresh.Result) { f(w, res) }

// entry tracks one armed timer. gen changes whenever the timer is
// (re)armed or torn down; a tick whose gen no longer matches discards
// its result. seq orders overlapping ticks within one generation so a
// slow round trip cannot clobber a newer result.
type entry struct {
	cronID      cron.EntryID
	gen         uint64
	seq         uint64
	fingerprint string
}

// Scheduler reconciles desired timers against armed ones and fires
// the refresher on each tick and on arm.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]*entry
	nextGen uint64

	store     Store
	refresher Refresher
	handler   Handler
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

func New(store Store, refresher Refresher, handler Handler, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:      cron.New(),
		entries:   make(map[string]*entry),
		store:     store,
		refresher: refresher,
		handler:   handler,
		logger:    logger,
	}
}

// Start begins timer processing. Reconcile arms the actual timers.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.cron.Start()
	s.logger.Info("scheduler started")
}

// Stop tears down every timer deterministically; no tick fires after
// it returns and in-flight results are discarded.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, e := range s.entries {
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
	}
	s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Reconcile diffs the desired set of running timers against the armed
// set and starts, restarts or stops the delta. Call it after every
// store mutation that may affect polling.
func (s *Scheduler) Reconcile(widgets []dashboard.Widget) {
	desired := make(map[string]dashboard.Widget, len(widgets))
	for _, w := range widgets {
		if w.RefreshInterval >= dashboard.MinRefreshInterval {
			desired[w.ID] = w
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, e := range s.entries {
		if _, ok := desired[id]; ok {
			continue
		}
		s.cron.Remove(e.cronID)
		delete(s.entries, id)
		s.logger.Info("widget timer stopped", "widget", id)
	}

	for id, w := range desired {
		fp := fingerprint(w)
		if e, ok := s.entries[id]; ok {
			if e.fingerprint == fp {
				continue
			}
			// Configuration changed: tear down and re-arm so stale
			// in-flight results from the old timer are ignored.
			s.cron.Remove(e.cronID)
			delete(s.entries, id)
			s.logger.Info("widget timer restarted", "widget", id, "interval", w.RefreshInterval)
		} else {
			s.logger.Info("widget timer started", "widget", id, "interval", w.RefreshInterval)
		}
		s.armLocked(w, fp)
	}
}

// armLocked registers the repeating timer and fires one immediate
// tick. Callers hold s.mu.
func (s *Scheduler) armLocked(w dashboard.Widget, fp string) {
	s.nextGen++
	gen := s.nextGen
	id := w.ID
	cronID, err := s.cron.AddFunc(fmt.Sprintf("@every %ds", w.RefreshInterval), func() {
		s.tick(id, gen)
	})
	if err != nil {
		s.logger.Error("arm widget timer", "widget", id, "err", err)
		return
	}
	s.entries[id] = &entry{cronID: cronID, gen: gen, fingerprint: fp}
	go s.tick(id, gen)
}

// tick runs one scheduled refresh for a widget. Results are applied
// only while the originating generation is still current and no newer
// tick has started since; otherwise they are discarded.
func (s *Scheduler) tick(id string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	e.seq++
	seq := e.seq
	s.mu.Unlock()

	w, ok := s.store.Widget(id)
	if !ok {
		return
	}
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	res := s.refresher.Refresh(ctx, w, s.store.ResolveKey(w))

	s.mu.Lock()
	e, ok = s.entries[id]
	stale := !ok || e.gen != gen || e.seq != seq
	s.mu.Unlock()
	if stale {
		s.logger.Debug("discarding stale refresh result", "widget", id)
		return
	}

	s.apply(w, res)
}

// RefreshNow runs a user-initiated refresh for a widget, bypassing the
// timer state entirely; it works for widgets that never poll. The
// result is applied and returned.
func (s *Scheduler) RefreshNow(ctx context.Context, id string) (refresh.Result, error) {
	w, ok := s.store.Widget(id)
	if !ok {
		return refresh.Result{}, fmt.Errorf("unknown widget id %q", id)
	}
	res := s.refresher.Refresh(ctx, w, s.store.ResolveKey(w))
	s.apply(w, res)
	return res, nil
}

// apply stamps lastUpdated on any outcome that carried data and hands
// the result to the display handler. Failures leave the marker alone;
// the next regular tick retries at the same cadence.
func (s *Scheduler) apply(w dashboard.Widget, res refresh.Result) {
	if !res.Failed() {
		s.store.TouchLastUpdated(w.ID, time.Now().UTC())
	}
	if s.handler != nil {
		s.handler.HandleResult(w, res)
	}
}

// Running reports whether a repeating timer is armed for the widget.
func (s *Scheduler) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[id]
	return ok
}

// fingerprint captures every widget field whose change must restart
// the timer: credentials, symbols, provider, cadence, and the
// query-affecting config options.
func fingerprint(w dashboard.Widget) string {
	return fmt.Sprintf("%s|%s|%s|%d|%s|%s|%s",
		w.APIKey, w.Symbols, w.Provider, w.RefreshInterval,
		w.Type, w.Config.CardType, w.Config.TimeInterval)
}
