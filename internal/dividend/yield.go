// Package dividend estimates an annualized dividend yield from payout history.
package dividend

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stocksignal/internal/model"
)

// PolicyKind selects how the dividend series is reduced to one annual payout.
type PolicyKind int

const (
	// TrailingCountKind sums the last N events.
	TrailingCountKind PolicyKind = iota
	// TrailingYearsKind averages all events over N years.
	TrailingYearsKind
)

// YieldPolicy is the reduction applied by EstimateYield.
type YieldPolicy struct {
	Kind PolicyKind
	N    int
}

// TrailingCount sums the last n events, e.g. n=4 for quarterly payers.
func TrailingCount(n int) YieldPolicy { return YieldPolicy{Kind: TrailingCountKind, N: n} }

// TrailingYears averages every event in the series over y years. The series
// fetch window is expected to span y years.
func TrailingYears(y int) YieldPolicy { return YieldPolicy{Kind: TrailingYearsKind, N: y} }

// LookbackYears is how many years of dividend history the policy needs.
func (p YieldPolicy) LookbackYears() int {
	if p.Kind == TrailingYearsKind && p.N > 0 {
		return p.N
	}
	// A year of quarterly payouts can straddle two calendar years.
	return 2
}

func (p YieldPolicy) String() string {
	switch p.Kind {
	case TrailingYearsKind:
		return "years:" + strconv.Itoa(p.N)
	default:
		return "count:" + strconv.Itoa(p.N)
	}
}

// ParsePolicy parses "count:<n>" or "years:<y>".
func ParsePolicy(s string) (YieldPolicy, error) {
	kind, num, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return YieldPolicy{}, fmt.Errorf("dividend: invalid yield policy %q (want count:N or years:N)", s)
	}
	n, err := strconv.Atoi(num)
	if err != nil || n < 1 {
		return YieldPolicy{}, fmt.Errorf("dividend: invalid yield policy count %q", num)
	}
	switch strings.ToLower(kind) {
	case "count":
		return TrailingCount(n), nil
	case "years":
		return TrailingYears(n), nil
	default:
		return YieldPolicy{}, fmt.Errorf("dividend: unknown yield policy kind %q", kind)
	}
}

var hundred = decimal.NewFromInt(100)

// EstimateYield returns the annual payout divided by price, as a percentage
// rounded to 2 decimal places. It is zero when price <= 0, when the series is
// empty, or when the policy is degenerate. Negative payouts count as zero.
func EstimateYield(dividends model.DividendSeries, price decimal.Decimal, policy YieldPolicy) decimal.Decimal {
	if !price.IsPositive() || len(dividends) == 0 || policy.N < 1 {
		return decimal.Zero
	}

	var payout decimal.Decimal
	switch policy.Kind {
	case TrailingYearsKind:
		payout = sumPayout(dividends).Div(decimal.NewFromInt(int64(policy.N)))
	default:
		tail := dividends
		if len(tail) > policy.N {
			tail = tail[len(tail)-policy.N:]
		}
		payout = sumPayout(tail)
	}

	return payout.Div(price).Mul(hundred).Round(2)
}

func sumPayout(events model.DividendSeries) decimal.Decimal {
	sum := decimal.Zero
	for _, e := range events {
		if p := e.Payout(); p.IsPositive() {
			sum = sum.Add(p)
		}
	}
	return sum
}
