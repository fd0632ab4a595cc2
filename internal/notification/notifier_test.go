package notification

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
)

func sampleAlert() Alert {
	return Alert{
		Level:   AlertInfo,
		Title:   "Breakout",
		Message: "2330 first close above MA60",
		Events: []model.BreakoutEvent{{
			Symbol: "2330",
			Date:   time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
			Close:  decimal.RequireFromString("61"),
			MA60:   decimal.RequireFromString("60.1"),
		}},
	}
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
	err  error
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if f.err != nil {
		return tgbotapi.Message{}, f.err
	}
	f.sent = append(f.sent, c.(tgbotapi.MessageConfig))
	return tgbotapi.Message{MessageID: len(f.sent)}, nil
}

func TestTelegramNotifier(t *testing.T) {
	fs := &fakeSender{}
	n := NewTelegramNotifier(fs, 42)
	if err := n.Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(fs.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fs.sent))
	}
	msg := fs.sent[0]
	if msg.ChatID != 42 || msg.ParseMode != tgbotapi.ModeMarkdownV2 {
		t.Errorf("msg = %+v", msg)
	}
	if !strings.Contains(msg.Text, "MA60") {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestEscapeMarkdown(t *testing.T) {
	if got := escapeMarkdown("60.10 (ma_60)!"); got != `60\.10 \(ma\_60\)\!` {
		t.Errorf("escapeMarkdown = %q", got)
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content-type = %q", r.Header.Get("Content-Type"))
		}
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), sampleAlert()); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["title"] != "Breakout" || got["ts"] == nil {
		t.Errorf("payload = %v", got)
	}
	events, _ := got["events"].([]any)
	if len(events) != 1 {
		t.Fatalf("events = %v", got["events"])
	}
	if ev := events[0].(map[string]any); ev["symbol"] != "2330" || ev["ma60"] != "60.1" {
		t.Errorf("event = %v", ev)
	}
}

func TestWebhookNotifier_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if err := NewWebhookNotifier(srv.URL).Send(context.Background(), sampleAlert()); err == nil {
		t.Fatal("expected error for 502")
	}
}

type recordingNotifier struct {
	calls int
	err   error
}

func (r *recordingNotifier) Send(context.Context, Alert) error {
	r.calls++
	return r.err
}

func TestMulti_DeliversToAllAndJoinsErrors(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("down")}
	multi := NewMulti(m).Add("bad", bad).Add("ok", ok)

	err := multi.Send(context.Background(), sampleAlert())
	if err == nil || !strings.Contains(err.Error(), "bad: down") {
		t.Fatalf("err = %v", err)
	}
	if ok.calls != 1 || bad.calls != 1 {
		t.Fatalf("calls ok=%d bad=%d, want 1 each", ok.calls, bad.calls)
	}
	if got := testutil.ToFloat64(m.NotifyFailures.WithLabelValues("bad")); got != 1 {
		t.Errorf("failures{bad} = %v", got)
	}
	if got := testutil.ToFloat64(m.NotifySent.WithLabelValues("ok")); got != 1 {
		t.Errorf("sent{ok} = %v", got)
	}
}
