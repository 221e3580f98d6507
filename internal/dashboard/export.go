package dashboard

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExportDoc is the portable configuration document.
type ExportDoc struct {
	Widgets    []Widget          `json:"widgets"`
	APIKeys    map[string]string `json:"apiKeys"`
	ExportDate time.Time         `json:"exportDate"`
}

// Export serializes the current widget sequence and credential map.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	doc := ExportDoc{
		Widgets:    snap.Widgets,
		APIKeys:    snap.APIKeys,
		ExportDate: time.Now().UTC(),
	}
	return json.MarshalIndent(doc, "", "  ")
}

// Import parses an exported document and applies it. With replace the
// current state is swapped wholesale; otherwise widgets with unknown
// ids are appended and credentials upserted. Every incoming widget is
// validated before anything is applied.
func (s *Store) Import(data []byte, replace bool) error {
	var doc ExportDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse import: %w", err)
	}
	for _, w := range doc.Widgets {
		if w.ID == "" {
			return fmt.Errorf("import: widget %q has no id", w.Title)
		}
		if err := w.Validate(); err != nil {
			return fmt.Errorf("import widget %q: %w", w.ID, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if replace {
		s.widgets = append([]Widget(nil), doc.Widgets...)
		s.apiKeys = make(map[string]string, len(doc.APIKeys))
		s.selected = ""
	} else {
		have := make(map[string]bool, len(s.widgets))
		for _, w := range s.widgets {
			have[w.ID] = true
		}
		for _, w := range doc.Widgets {
			if !have[w.ID] {
				s.widgets = append(s.widgets, w)
			}
		}
	}
	for k, v := range doc.APIKeys {
		if v != "" {
			s.apiKeys[k] = v
		}
	}
	s.persistLocked()
	return nil
}
