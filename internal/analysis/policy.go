package analysis

import (
	"fmt"

	"stocksignal/internal/dividend"
	"stocksignal/internal/indicator"
)

// Classification reads these windows; other configured windows are reported only.
const (
	ShortWindow = 5
	MidWindow   = 20
	LongWindow  = 60
)

// Policy parameterizes one analysis run.
type Policy struct {
	MAWindows    []int
	YieldPolicy  dividend.YieldPolicy
	LookbackDays int // calendar days of price history to request
}

// MinLookbackDays is the calendar span that reliably holds window trading
// days, allowing for weekends and a run of exchange holidays.
func MinLookbackDays(window int) int {
	return window*3/2 + 10
}

// PolicyBuilder assembles a Policy, starting from the defaults
// (MA 5/20/60, trailing four payouts, 150 days of history).
type PolicyBuilder struct {
	p Policy
}

// NewPolicy starts a builder with defaults.
func NewPolicy() *PolicyBuilder {
	return &PolicyBuilder{p: Policy{
		MAWindows:    []int{ShortWindow, MidWindow, LongWindow},
		YieldPolicy:  dividend.TrailingCount(4),
		LookbackDays: 150,
	}}
}

func (b *PolicyBuilder) WithWindows(windows ...int) *PolicyBuilder {
	b.p.MAWindows = append([]int(nil), windows...)
	return b
}

func (b *PolicyBuilder) WithYieldPolicy(p dividend.YieldPolicy) *PolicyBuilder {
	b.p.YieldPolicy = p
	return b
}

func (b *PolicyBuilder) WithLookbackDays(days int) *PolicyBuilder {
	b.p.LookbackDays = days
	return b
}

// Build validates and returns the policy.
func (b *PolicyBuilder) Build() (Policy, error) {
	p := b.p
	if err := indicator.ValidateWindows(p.MAWindows); err != nil {
		return Policy{}, fmt.Errorf("analysis policy: %w", err)
	}
	if p.YieldPolicy.N < 1 {
		return Policy{}, fmt.Errorf("analysis policy: invalid yield policy %s", p.YieldPolicy)
	}
	largest := 0
	for _, w := range p.MAWindows {
		if w > largest {
			largest = w
		}
	}
	if need := MinLookbackDays(largest); p.LookbackDays < need {
		return Policy{}, fmt.Errorf("analysis policy: lookback %d days too short for MA%d (need >= %d)",
			p.LookbackDays, largest, need)
	}
	return p, nil
}
