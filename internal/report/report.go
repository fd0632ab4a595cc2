// Package report renders query results and breakout batches as chat text.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stocksignal/internal/analysis"
	"stocksignal/internal/indicator"
	"stocksignal/internal/model"
)

// BreakoutTitle heads every breakout batch.
const BreakoutTitle = "Breakout alert"

// FormatQuery renders a query report.
func FormatQuery(r analysis.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "【%s analysis】 %s\n", r.Symbol, model.DateKey(r.AsOf))
	if r.HasPrevious {
		fmt.Fprintf(&b, "Price: %s %s (prev %s)\n", r.Price.String(), r.Direction, r.Previous.String())
	} else {
		fmt.Fprintf(&b, "Price: %s\n", r.Price.String())
	}
	for _, m := range r.MAs {
		fmt.Fprintf(&b, "%s: %s\n", indicator.Name(m.Window), fmtMA(m.Value))
	}
	fmt.Fprintf(&b, "Trend: %s\n", r.Tier)
	fmt.Fprintf(&b, "Dividend yield: %s%% (%s)", r.Yield.StringFixed(2), r.YieldPolicy)
	return b.String()
}

// FormatQueryError renders the reply for a failed query. Every failure reads
// as "not found" to the user.
func FormatQueryError(input string, err error) string {
	if errors.Is(err, model.ErrNotFound) {
		return fmt.Sprintf("🤔 Cannot find \"%s\". Enter an exact stock name or a numeric code.", input)
	}
	return fmt.Sprintf("❌ No data for \"%s\" right now. Try again later.", input)
}

// FormatBreakouts renders one message for a cycle's events, blocks separated
// by "\n---\n". Empty input yields "".
func FormatBreakouts(events []model.BreakoutEvent) string {
	if len(events) == 0 {
		return ""
	}
	blocks := make([]string, len(events))
	for i, e := range events {
		blocks[i] = fmt.Sprintf("🚀 %s first close above MA60 (%s)\nPrice: %s\nMA60: %s",
			e.Symbol, model.DateKey(e.Date), e.Close.String(), e.MA60.StringFixed(2))
	}
	return strings.Join(blocks, "\n---\n")
}

func fmtMA(v decimal.NullDecimal) string {
	if !v.Valid {
		return "n/a"
	}
	return v.Decimal.StringFixed(2)
}
