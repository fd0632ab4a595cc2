// Package trend maps a price and its moving averages to a discrete trend tier.
package trend

import "github.com/shopspring/decimal"

// Tier is an ordered trend classification. Higher values are more bullish,
// so tiers compare with the usual integer operators.
type Tier int

const (
	Weak Tier = iota
	Stable
	StableMidTerm
	Strong
	StrongSwing
	BullishAligned
)

var tierLabels = map[Tier]string{
	Weak:           "weak",
	Stable:         "stable",
	StableMidTerm:  "stable (mid-term)",
	Strong:         "strong",
	StrongSwing:    "strong swing",
	BullishAligned: "bullish aligned",
}

func (t Tier) String() string {
	if s, ok := tierLabels[t]; ok {
		return s
	}
	return "unknown"
}

// MarshalText encodes the tier as its label.
func (t Tier) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Classify evaluates the tiers from most to least bullish and returns the first
// whose predicate holds. Every comparison is strict, so a price equal to an
// average falls through to a weaker tier. Undefined averages disable the tiers
// that need them.
func Classify(price decimal.Decimal, ma5, ma20, ma60 decimal.NullDecimal) Tier {
	switch {
	case above(price, ma5) && above(ma5.Decimal, ma20) && above(ma20.Decimal, ma60):
		return BullishAligned
	case above(price, ma20) && above(ma20.Decimal, ma60):
		return StrongSwing
	case above(price, ma5) && above(ma5.Decimal, ma20):
		return Strong
	case above(price, ma60):
		return StableMidTerm
	case above(price, ma20):
		return Stable
	default:
		return Weak
	}
}

// above reports x > ma, false when ma is undefined.
func above(x decimal.Decimal, ma decimal.NullDecimal) bool {
	return ma.Valid && x.GreaterThan(ma.Decimal)
}

// Direction is the move of one value relative to the previous one.
type Direction int

const (
	Down Direction = iota
	Up
)

func (d Direction) String() string {
	if d == Up {
		return "▲"
	}
	return "▼"
}

// MarshalText encodes the direction as "up" or "down".
func (d Direction) MarshalText() ([]byte, error) {
	if d == Up {
		return []byte("up"), nil
	}
	return []byte("down"), nil
}

// DirectionArrow returns Up iff current > previous. Equal values map to Down.
func DirectionArrow(current, previous decimal.Decimal) Direction {
	if current.GreaterThan(previous) {
		return Up
	}
	return Down
}
