package dashboard

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Snapshot is the serializable record persisted between sessions.
// UI-only state (selection, loading flags) is excluded.
type Snapshot struct {
	Widgets []Widget          `json:"widgets"`
	APIKeys map[string]string `json:"api_keys"`
}

// Persister loads and saves dashboard snapshots.
type Persister interface {
	Load() (Snapshot, error)
	Save(Snapshot) error
}

// Store is the single source of truth for the widget list, provider
// credentials and display order. Mutations are applied atomically
// under one lock and persisted synchronously before returning;
// persistence failures are logged, never surfaced; the in-memory
// state stays authoritative for the session.
type Store struct {
	mu        sync.Mutex
	widgets   []Widget
	apiKeys   map[string]string
	selected  string
	persister Persister
	logger    *slog.Logger
}

// Open creates a Store, rehydrating the persisted snapshot when one is
// present and parseable. A broken snapshot falls back to empty state.
func Open(p Persister, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{apiKeys: make(map[string]string), persister: p, logger: logger}
	if p == nil {
		return s
	}
	snap, err := p.Load()
	if err != nil {
		logger.Warn("could not load dashboard snapshot, starting empty", "err", err)
		return s
	}
	s.widgets = snap.Widgets
	if snap.APIKeys != nil {
		s.apiKeys = snap.APIKeys
	}
	return s
}

// Widgets returns a copy of the ordered widget sequence.
func (s *Store) Widgets() []Widget {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Widget, len(s.widgets))
	copy(out, s.widgets)
	return out
}

// Widget returns the widget with the given id.
func (s *Store) Widget(id string) (Widget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.widgets {
		if w.ID == id {
			return w, true
		}
	}
	return Widget{}, false
}

// Add validates and appends a widget, assigning its layout position
// deterministically from the current count.
func (s *Store) Add(w Widget) error {
	if err := w.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w.Position = gridPosition(len(s.widgets))
	if w.Size == (Size{}) {
		w.Size = defaultSize(w.Type)
	}
	s.widgets = append(s.widgets, w)
	s.persistLocked()
	return nil
}

// Remove deletes the widget with the given id. Unknown ids are a
// no-op. A matching selection is cleared.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.widgets[:0]
	removed := false
	for _, w := range s.widgets {
		if w.ID == id {
			removed = true
			continue
		}
		kept = append(kept, w)
	}
	if !removed {
		return
	}
	s.widgets = kept
	if s.selected == id {
		s.selected = ""
	}
	s.persistLocked()
}

// Update shallow-merges the patch into the widget with the given id,
// then validates the result. Unknown ids are a no-op.
func (s *Store) Update(id string, p Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.widgets {
		if w.ID != id {
			continue
		}
		merged := p.apply(w)
		if err := merged.Validate(); err != nil {
			return err
		}
		s.widgets[i] = merged
		s.persistLocked()
		return nil
	}
	return nil
}

// Reorder replaces the display order with the given id sequence. The
// sequence must be a permutation of the current ids; mismatched sets
// are rejected to avoid silently corrupting the dashboard.
func (s *Store) Reorder(ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(ids) != len(s.widgets) {
		return fmt.Errorf("reorder: got %d ids, have %d widgets", len(ids), len(s.widgets))
	}
	byID := make(map[string]Widget, len(s.widgets))
	for _, w := range s.widgets {
		byID[w.ID] = w
	}
	next := make([]Widget, 0, len(ids))
	for _, id := range ids {
		w, ok := byID[id]
		if !ok {
			return fmt.Errorf("reorder: unknown widget id %q", id)
		}
		delete(byID, id)
		next = append(next, w)
	}
	s.widgets = next
	s.persistLocked()
	return nil
}

// SetAPIKey upserts a process-wide provider credential. An empty key
// removes the entry rather than storing an empty string.
func (s *Store) SetAPIKey(providerName, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if key == "" {
		delete(s.apiKeys, providerName)
	} else {
		s.apiKeys[providerName] = key
	}
	s.persistLocked()
}

// APIKeys returns a copy of the credential map.
func (s *Store) APIKeys() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.apiKeys))
	for k, v := range s.apiKeys {
		out[k] = v
	}
	return out
}

// ResolveKey returns the credential a widget's fetches should use: the
// per-widget override when set, otherwise the process-wide key for its
// provider.
func (s *Store) ResolveKey(w Widget) string {
	if w.APIKey != "" {
		return w.APIKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.apiKeys[w.Provider]
}

// Select marks a widget as selected (UI-only, not persisted).
func (s *Store) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
}

// Selected returns the selected widget id, or "".
func (s *Store) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// TouchLastUpdated stamps a widget after a fetch completed with data.
// The snapshot is persisted so the marker survives reloads.
func (s *Store) TouchLastUpdated(id string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.widgets {
		if s.widgets[i].ID == id {
			ts := t
			s.widgets[i].LastUpdated = &ts
			s.persistLocked()
			return
		}
	}
}

// persistLocked writes the current snapshot. Callers hold s.mu.
// Failures are logged only; the mutation has already succeeded in
// memory.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	if err := s.persister.Save(s.snapshotLocked()); err != nil {
		s.logger.Error("persist dashboard snapshot", "err", err)
	}
}

func (s *Store) snapshotLocked() Snapshot {
	widgets := make([]Widget, len(s.widgets))
	copy(widgets, s.widgets)
	keys := make(map[string]string, len(s.apiKeys))
	for k, v := range s.apiKeys {
		keys[k] = v
	}
	return Snapshot{Widgets: widgets, APIKeys: keys}
}
