package indicator

import "github.com/shopspring/decimal"

// SMA calculates Simple Moving Average over a rolling window.
// Uses a preallocated circular buffer so each update is O(1).
type SMA struct {
	period  int
	buf     []decimal.Decimal // preallocated circular buffer
	idx     int               // current write position
	count   int               // total values received
	sum     decimal.Decimal
	current decimal.Decimal
}

// NewSMA creates a new SMA indicator with the given period. Periods below 1 are treated as 1.
func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{
		period: period,
		buf:    make([]decimal.Decimal, period),
	}
}

// Period returns the window length.
func (s *SMA) Period() int { return s.period }

func (s *SMA) Update(price decimal.Decimal) {
	if s.count >= s.period {
		// Subtract the oldest value being overwritten
		s.sum = s.sum.Sub(s.buf[s.idx])
	}

	s.buf[s.idx] = price
	s.sum = s.sum.Add(price)
	s.idx = (s.idx + 1) % s.period
	s.count++

	if s.count >= s.period {
		s.current = s.sum.Div(decimal.NewFromInt(int64(s.period)))
	}
}

func (s *SMA) Value() decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: s.current, Valid: s.Ready()}
}

func (s *SMA) Ready() bool { return s.count >= s.period }

