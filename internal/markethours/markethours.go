package markethours

import (
	"fmt"
	"time"

	"stocksignal/internal/model"
)

// Taipei is Taiwan time (UTC+8, no daylight saving).
var Taipei = time.FixedZone("Asia/Taipei", 8*3600)

// TWSE regular session in Taipei time.
const (
	OpenHour    = 9
	OpenMinute  = 0
	CloseHour   = 13
	CloseMinute = 30
)

// Today returns the Taipei calendar date of t as midnight UTC, the form used
// for ledger keys.
func Today(t time.Time) time.Time {
	return model.Day(t.In(Taipei))
}

// IsMarketOpen returns true if t falls within TWSE trading hours
// (9:00 AM - 1:30 PM Taipei, Mon-Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	tp := t.In(Taipei)
	if !IsTradingDay(tp) {
		return false
	}
	hm := tp.Hour()*60 + tp.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsWeekday returns true if t is Mon-Fri in Taipei.
func IsWeekday(t time.Time) bool {
	wd := t.In(Taipei).Weekday()
	return wd >= time.Monday && wd <= time.Friday
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	tp := t.In(Taipei)
	return IsWeekday(tp) && !IsHoliday(tp)
}

// NextOpen returns the next market open. If t is before today's open on a
// trading day, returns today's open.
func NextOpen(t time.Time) time.Time {
	tp := t.In(Taipei)

	todayOpen := time.Date(tp.Year(), tp.Month(), tp.Day(), OpenHour, OpenMinute, 0, 0, Taipei)
	if tp.Before(todayOpen) && IsTradingDay(tp) {
		return todayOpen
	}

	d := tp.AddDate(0, 0, 1)
	for i := 0; i < 14; i++ { // Lunar New Year closures run past a week
		if IsTradingDay(d) {
			return time.Date(d.Year(), d.Month(), d.Day(), OpenHour, OpenMinute, 0, 0, Taipei)
		}
		d = d.AddDate(0, 0, 1)
	}
	return time.Date(tp.Year(), tp.Month(), tp.Day()+1, OpenHour, OpenMinute, 0, 0, Taipei)
}

// PreviousTradingDay returns the trading day before t's Taipei date, in the
// same form as Today.
func PreviousTradingDay(t time.Time) time.Time {
	tp := t.In(Taipei)
	d := time.Date(tp.Year(), tp.Month(), tp.Day()-1, 12, 0, 0, 0, Taipei)
	for i := 0; i < 14 && !IsTradingDay(d); i++ {
		d = d.AddDate(0, 0, -1)
	}
	return Today(d)
}

// TodayClose returns today's market close time (1:30 PM Taipei).
func TodayClose(t time.Time) time.Time {
	tp := t.In(Taipei)
	return time.Date(tp.Year(), tp.Month(), tp.Day(), CloseHour, CloseMinute, 0, 0, Taipei)
}

// TimeUntilClose returns the duration until today's close, 0 once closed.
func TimeUntilClose(t time.Time) time.Duration {
	d := TodayClose(t).Sub(t.In(Taipei))
	if d < 0 {
		return 0
	}
	return d
}

// StatusString returns a human-readable market status.
func StatusString(t time.Time) string {
	if IsMarketOpen(t) {
		return fmt.Sprintf("Market open, closes in %s", fmtDur(TimeUntilClose(t)))
	}
	next := NextOpen(t)
	tp := next.In(Taipei)
	return fmt.Sprintf("Market closed, opens %s %s (%s)",
		tp.Weekday().String()[:3], tp.Format("15:04"), fmtDur(next.Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
