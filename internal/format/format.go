// Package format renders quote numbers for display surfaces.
package format

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"finboard/internal/provider"
)

// Currency renders a price with two decimals and thousands separators.
func Currency(v float64) string {
	return "$" + humanize.CommafWithDigits(v, 2)
}

// Percent renders a change percentage with an explicit leading sign.
func Percent(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f%%", v)
	}
	return fmt.Sprintf("%.2f%%", v)
}

// Change renders an absolute change with an explicit leading sign.
func Change(v float64) string {
	if v >= 0 {
		return fmt.Sprintf("+%.2f", v)
	}
	return fmt.Sprintf("%.2f", v)
}

// Abbrev shortens large magnitudes (volume, market cap) to 1.2B-style
// figures; small values keep separators only.
func Abbrev(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.1fK", v/1e3)
	default:
		return humanize.Commaf(v)
	}
}

// Direction classifies a change for trend styling.
func Direction(change float64) string {
	switch {
	case change > 0:
		return "up"
	case change < 0:
		return "down"
	default:
		return "flat"
	}
}

// QuoteView is a display-ready rendering of one quote. Zero volume and
// market cap are omitted rather than shown as "0".
type QuoteView struct {
	Symbol        string `json:"symbol"`
	Price         string `json:"price"`
	Change        string `json:"change"`
	ChangePercent string `json:"change_percent"`
	Volume        string `json:"volume,omitempty"`
	MarketCap     string `json:"market_cap,omitempty"`
	Direction     string `json:"direction"`
}

// QuoteRow renders one quote for display surfaces.
func QuoteRow(q provider.Quote) QuoteView {
	v := QuoteView{
		Symbol:        q.Symbol,
		Price:         Currency(q.Price),
		Change:        Change(q.Change),
		ChangePercent: Percent(q.ChangePercent),
		Direction:     Direction(q.Change),
	}
	if q.Volume > 0 {
		v.Volume = Abbrev(float64(q.Volume))
	}
	if q.MarketCap > 0 {
		v.MarketCap = Abbrev(q.MarketCap)
	}
	return v
}

// QuoteRows renders a quote list, preserving order.
func QuoteRows(quotes []provider.Quote) []QuoteView {
	if len(quotes) == 0 {
		return nil
	}
	out := make([]QuoteView, len(quotes))
	for i, q := range quotes {
		out[i] = QuoteRow(q)
	}
	return out
}
