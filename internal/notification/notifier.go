// Package notification delivers breakout batches to external channels
// (Telegram, webhooks, the dashboard feed, the log).
package notification

import (
	"context"
	"errors"
	"fmt"
	"log"

	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
)

// AlertLevel represents the severity of an alert.
type AlertLevel string

const (
	AlertInfo     AlertLevel = "INFO"
	AlertWarning  AlertLevel = "WARNING"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is one outbound message. A monitor cycle sends at most one Alert
// carrying every event it emitted.
type Alert struct {
	Level   AlertLevel            `json:"level"`
	Title   string                `json:"title"`
	Message string                `json:"message"`
	Events  []model.BreakoutEvent `json:"events,omitempty"`
}

// Notifier is the interface for all notification backends.
type Notifier interface {
	// Send delivers an alert. Returns error if delivery fails.
	Send(ctx context.Context, alert Alert) error
}

// LogNotifier logs alerts (useful for development).
type LogNotifier struct{}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) Send(ctx context.Context, alert Alert) error {
	log.Printf("[notify] [%s] %s (%d events): %s", alert.Level, alert.Title, len(alert.Events), alert.Message)
	return nil
}

type sink struct {
	name string
	n    Notifier
}

// Multi fans an alert out to every registered sink. A failing sink does not
// stop delivery to the others.
type Multi struct {
	sinks   []sink
	metrics *metrics.Metrics
}

// NewMulti creates an empty fan-out. m may be nil.
func NewMulti(m *metrics.Metrics) *Multi {
	return &Multi{metrics: m}
}

// Add registers n under name (used as the metrics label).
func (m *Multi) Add(name string, n Notifier) *Multi {
	m.sinks = append(m.sinks, sink{name: name, n: n})
	return m
}

// Len returns the number of sinks.
func (m *Multi) Len() int { return len(m.sinks) }

// Send delivers to all sinks and joins their errors.
func (m *Multi) Send(ctx context.Context, alert Alert) error {
	var errs []error
	for _, s := range m.sinks {
		err := s.n.Send(ctx, alert)
		m.metrics.Notified(s.name, err)
		if err != nil {
			log.Printf("[notify] sink %s failed: %v", s.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
		}
	}
	return errors.Join(errs...)
}
