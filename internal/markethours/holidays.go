package markethours

import "time"

// TWSE market closures beyond weekends.
// Source: TWSE published schedule; lunar dates marked tentative until confirmed.
var twseHolidays = map[int][]struct {
	month time.Month
	day   int
}{
	2025: {
		{time.January, 1},    // Founding Day
		{time.January, 23},   // Pre-New Year closure
		{time.January, 24},   // Pre-New Year closure
		{time.January, 27},   // Lunar New Year
		{time.January, 28},   // Lunar New Year
		{time.January, 29},   // Lunar New Year
		{time.January, 30},   // Lunar New Year
		{time.January, 31},   // Lunar New Year
		{time.February, 28},  // Peace Memorial Day
		{time.April, 3},      // Children's Day (observed)
		{time.April, 4},      // Tomb Sweeping Day
		{time.May, 1},        // Labour Day
		{time.May, 30},       // Dragon Boat Festival (observed)
		{time.September, 29}, // Teachers' Day (observed)
		{time.October, 6},    // Mid-Autumn Festival
		{time.October, 10},   // National Day
		{time.October, 24},   // Retrocession Day
		{time.December, 25},  // Constitution Day
	},
	2026: {
		{time.January, 1},    // Founding Day
		{time.February, 16},  // Lunar New Year's Eve (tentative)
		{time.February, 17},  // Lunar New Year (tentative)
		{time.February, 18},  // Lunar New Year (tentative)
		{time.February, 19},  // Lunar New Year (tentative)
		{time.February, 20},  // Lunar New Year (tentative)
		{time.February, 27},  // Peace Memorial Day (observed)
		{time.April, 3},      // Children's Day (observed)
		{time.April, 6},      // Tomb Sweeping Day (observed)
		{time.May, 1},        // Labour Day
		{time.June, 19},      // Dragon Boat Festival (tentative)
		{time.September, 25}, // Mid-Autumn Festival (tentative)
		{time.September, 28}, // Teachers' Day
		{time.October, 9},    // National Day (observed)
		{time.October, 26},   // Retrocession Day (observed)
		{time.December, 25},  // Constitution Day
	},
}

// pre-compute for fast lookup
var holidaySet map[string]bool

func init() {
	holidaySet = make(map[string]bool)
	for year, days := range twseHolidays {
		for _, h := range days {
			holidaySet[dateKey(year, h.month, h.day)] = true
		}
	}
}

// IsHoliday returns true if the date (in Taipei) is a TWSE holiday.
func IsHoliday(t time.Time) bool {
	tp := t.In(Taipei)
	return holidaySet[dateKey(tp.Year(), tp.Month(), tp.Day())]
}

func dateKey(year int, month time.Month, day int) string {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
