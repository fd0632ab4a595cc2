package model

import (
	"context"
	"time"
)

// ── Provider Port Interfaces ──
// These interfaces decouple the indicator/monitor logic from the concrete
// market-data source (FinMind REST, Redis cache, test fakes).

// PriceSeriesProvider supplies daily closes for a symbol from start onwards.
type PriceSeriesProvider interface {
	// FetchPrices returns a normalized, date-ascending series.
	// An empty range yields ErrNotFound; transport or payload failures yield an *UpstreamError.
	FetchPrices(ctx context.Context, symbol string, start time.Time) (PriceSeries, error)
}

// DividendProvider supplies dividend events for a symbol from start onwards.
type DividendProvider interface {
	// FetchDividends returns a date-ascending series; an empty series is not an error.
	FetchDividends(ctx context.Context, symbol string, start time.Time) (DividendSeries, error)
}

// SymbolResolver maps free text (a name or an id) to a symbol id.
type SymbolResolver interface {
	// Resolve returns ErrNotFound when nothing matches.
	Resolve(ctx context.Context, input string) (string, error)
}

// MarketData bundles the providers used by the query and monitor paths.
type MarketData interface {
	PriceSeriesProvider
	DividendProvider
	SymbolResolver
}
