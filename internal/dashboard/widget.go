package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// WidgetType selects the rendering mode of a widget.
type WidgetType string

const (
	TypeCard  WidgetType = "card"
	TypeTable WidgetType = "table"
	TypeChart WidgetType = "chart"
)

// MinRefreshInterval is the lowest allowed polling cadence in seconds.
// Zero disables polling entirely; anything in between is rejected.
const MinRefreshInterval = 5

// gridCols is the number of columns used for deterministic layout
// placement of newly added widgets.
const gridCols = 3

// Position and Size are layout hints, opaque to the refresh core.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Config holds variant-specific options keyed by the widget type.
// Only the fields matching the type are meaningful.
type Config struct {
	// table
	ShowSearch     bool `json:"show_search,omitempty"`
	ShowPagination bool `json:"show_pagination,omitempty"`
	ItemsPerPage   int  `json:"items_per_page,omitempty"`

	// card: watchlist, gainers, performance or financial
	CardType  string `json:"card_type,omitempty"`
	ShowTrend bool   `json:"show_trend,omitempty"`

	// chart
	ChartType    string `json:"chart_type,omitempty"`
	TimeInterval string `json:"time_interval,omitempty"`
	ShowVolume   bool   `json:"show_volume,omitempty"`
}

// CardTypeGainers marks a card widget bound to the whole-market
// top-movers query instead of a symbol list.
const CardTypeGainers = "gainers"

// Widget is one user-configured dashboard unit. The ID is stable
// across reorders and edits.
type Widget struct {
	ID              string     `json:"id"`
	Type            WidgetType `json:"type"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Symbols         string     `json:"symbols"` // comma-separated, semantics depend on type
	Provider        string     `json:"provider"`
	APIKey          string     `json:"api_key,omitempty"` // per-widget override
	RefreshInterval int        `json:"refresh_interval"`  // seconds, 0 = no polling
	Config          Config     `json:"config"`
	Position        Position   `json:"position"`
	Size            Size       `json:"size"`
	LastUpdated     *time.Time `json:"last_updated,omitempty"`
}

// New builds a widget with a fresh id and per-type default size.
func New(typ WidgetType, title, symbols string) Widget {
	return Widget{
		ID:              uuid.NewString(),
		Type:            typ,
		Title:           title,
		Symbols:         symbols,
		Provider:        "alphavantage",
		RefreshInterval: 30,
		Size:            defaultSize(typ),
		Config:          defaultConfig(typ),
	}
}

// SymbolList splits the comma-separated symbol field, trimming blanks.
func (w Widget) SymbolList() []string {
	parts := strings.Split(w.Symbols, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate enforces the creation/edit-time invariants. The scheduler
// does not re-check these.
func (w Widget) Validate() error {
	switch w.Type {
	case TypeCard, TypeTable, TypeChart:
	default:
		return fmt.Errorf("invalid widget type %q", w.Type)
	}
	if strings.TrimSpace(w.Title) == "" {
		return fmt.Errorf("widget title must not be empty")
	}
	if len(w.SymbolList()) == 0 && w.Config.CardType != CardTypeGainers {
		return fmt.Errorf("widget symbols must not be empty")
	}
	if w.RefreshInterval != 0 && w.RefreshInterval < MinRefreshInterval {
		return fmt.Errorf("refresh interval must be 0 or at least %d seconds, got %d", MinRefreshInterval, w.RefreshInterval)
	}
	return nil
}

// Patch carries a shallow field merge for updateWidget. Nil fields are
// left untouched on the target.
type Patch struct {
	Type            *WidgetType `json:"type,omitempty"`
	Title           *string     `json:"title,omitempty"`
	Description     *string     `json:"description,omitempty"`
	Symbols         *string     `json:"symbols,omitempty"`
	Provider        *string     `json:"provider,omitempty"`
	APIKey          *string     `json:"api_key,omitempty"`
	RefreshInterval *int        `json:"refresh_interval,omitempty"`
	Config          *Config     `json:"config,omitempty"`
	Position        *Position   `json:"position,omitempty"`
	Size            *Size       `json:"size,omitempty"`
}

// apply merges the patch onto a copy of w and returns it.
func (p Patch) apply(w Widget) Widget {
	if p.Type != nil {
		w.Type = *p.Type
	}
	if p.Title != nil {
		w.Title = *p.Title
	}
	if p.Description != nil {
		w.Description = *p.Description
	}
	if p.Symbols != nil {
		w.Symbols = *p.Symbols
	}
	if p.Provider != nil {
		w.Provider = *p.Provider
	}
	if p.APIKey != nil {
		w.APIKey = *p.APIKey
	}
	if p.RefreshInterval != nil {
		w.RefreshInterval = *p.RefreshInterval
	}
	if p.Config != nil {
		w.Config = *p.Config
	}
	if p.Position != nil {
		w.Position = *p.Position
	}
	if p.Size != nil {
		w.Size = *p.Size
	}
	return w
}

// gridPosition places the n-th widget on a fixed 3-column grid.
func gridPosition(n int) Position {
	return Position{X: n % gridCols, Y: n / gridCols}
}

func defaultSize(typ WidgetType) Size {
	switch typ {
	case TypeTable:
		return Size{Width: 600, Height: 400}
	case TypeChart:
		return Size{Width: 500, Height: 350}
	default:
		return Size{Width: 300, Height: 200}
	}
}

func defaultConfig(typ WidgetType) Config {
	switch typ {
	case TypeTable:
		return Config{ShowSearch: true, ShowPagination: true, ItemsPerPage: 10}
	case TypeChart:
		return Config{ChartType: "line", TimeInterval: "daily"}
	default:
		return Config{CardType: "watchlist", ShowTrend: true}
	}
}
