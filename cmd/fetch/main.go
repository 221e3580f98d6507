package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"finboard/internal/format"
	"finboard/internal/httpx"
	"finboard/internal/provider"
	"finboard/internal/provider/alphavantage"
	"finboard/internal/provider/finnhub"
	"finboard/internal/provider/ratelimit"
)

// One-shot fetch tool for poking providers without running the
// dashboard: quotes for a symbol list, one series, or the top movers.
func main() {
	var symbolsCSV string
	var providerName string
	var series bool
	var interval string
	var movers bool
	var pretty bool
	var timeout int
	var apiKey string

	flag.StringVar(&symbolsCSV, "symbols", getenv("SYMBOLS", "AAPL"), "comma-separated symbols")
	flag.StringVar(&providerName, "provider", getenv("PROVIDER", "alphavantage"), "provider: alphavantage or finnhub")
	flag.BoolVar(&series, "series", false, "fetch an OHLC series for the first symbol")
	flag.StringVar(&interval, "interval", "daily", "series interval: daily, weekly or monthly")
	flag.BoolVar(&movers, "movers", false, "fetch top market movers")
	flag.BoolVar(&pretty, "pretty", false, "print quotes as a readable table instead of JSON")
	flag.IntVar(&timeout, "timeout", getenvInt("REQUEST_TIMEOUT_SEC", 10), "request timeout seconds")
	flag.StringVar(&apiKey, "key", "", "api key (defaults to ALPHAVANTAGE_API_KEY / FINNHUB_API_KEY)")
	flag.Parse()

	if apiKey == "" {
		switch providerName {
		case finnhub.Name:
			apiKey = os.Getenv("FINNHUB_API_KEY")
		default:
			apiKey = os.Getenv("ALPHAVANTAGE_API_KEY")
		}
	}

	httpClient := httpx.New(time.Duration(timeout) * time.Second)
	tracker := ratelimit.NewTracker()
	registry := provider.NewRegistry(
		alphavantage.New(alphavantage.WithHTTPClient(httpClient), alphavantage.WithTracker(tracker)),
		finnhub.New(finnhub.WithHTTPClient(httpClient), finnhub.WithTracker(tracker)),
	)
	client, err := registry.Lookup(providerName)
	if err != nil {
		log.Fatalf("provider: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeout+5)*time.Second)
	defer cancel()

	switch {
	case movers:
		quotes, err := client.FetchTopMovers(ctx, apiKey)
		if err != nil {
			log.Fatalf("movers: %v", err)
		}
		printQuotes(quotes, pretty)
	case series:
		symbols := splitCSV(symbolsCSV)
		if len(symbols) == 0 {
			log.Fatal("series: no symbol given")
		}
		iv, err := provider.ParseInterval(interval)
		if err != nil {
			log.Fatalf("series: %v", err)
		}
		points, err := client.FetchSeries(ctx, apiKey, symbols[0], iv)
		if err != nil {
			log.Fatalf("series: %v", err)
		}
		printJSON(points)
	default:
		var quotes []provider.Quote
		for _, sym := range splitCSV(symbolsCSV) {
			q, err := client.FetchQuote(ctx, apiKey, sym)
			if err != nil {
				log.Printf("quote %s: %v", sym, err)
				continue
			}
			quotes = append(quotes, q)
		}
		printQuotes(quotes, pretty)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		log.Fatalf("encode: %v", err)
	}
}

func printQuotes(quotes []provider.Quote, pretty bool) {
	if !pretty {
		printJSON(quotes)
		return
	}
	for _, v := range format.QuoteRows(quotes) {
		fmt.Printf("%-8s %14s %10s %10s %10s %s\n",
			v.Symbol, v.Price, v.Change, v.ChangePercent, v.Volume, v.Direction)
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var x int
		if _, err := fmt.Sscanf(v, "%d", &x); err == nil {
			return x
		}
	}
	return def
}
