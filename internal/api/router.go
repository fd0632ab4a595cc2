// Package api exposes the query path, ledger housekeeping and the breakout
// feed over HTTP.
package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/pquerna/otp/totp"

	"stocksignal/internal/analysis"
	"stocksignal/internal/gateway"
	"stocksignal/internal/ledger"
	"stocksignal/internal/markethours"
	"stocksignal/internal/model"
	"stocksignal/internal/report"
)

// OTPHeader carries the admin TOTP code for mutating endpoints.
const OTPHeader = "X-Admin-OTP"

// Analyzer produces a report for free-form user input.
type Analyzer interface {
	Analyze(ctx context.Context, input string) (analysis.Report, error)
}

// Deps are the router's collaborators. Hub may be nil, which disables
// /ws/breakouts. An empty AdminTOTPSecret leaves the admin endpoint open.
type Deps struct {
	Analyzer        Analyzer
	Ledger          ledger.Ledger
	Hub             *gateway.Hub
	AdminTOTPSecret string
	RetentionDays   int
	Now             func() time.Time
}

type recordDTO struct {
	Date   string `json:"date"`
	Symbol string `json:"symbol"`
}

// NewRouter sets up HTTP routes for the API server.
func NewRouter(d Deps) *http.ServeMux {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.RetentionDays <= 0 {
		d.RetentionDays = 7
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/health", func(w http.ResponseWriter, r *http.Request) {
		now := d.Now()
		body := map[string]interface{}{
			"status":        "ok",
			"date":          model.DateKey(markethours.Today(now)),
			"trading_day":   markethours.IsTradingDay(now),
			"market_open":   markethours.IsMarketOpen(now),
			"market_status": markethours.StatusString(now),
		}
		if d.Hub != nil {
			body["ws_clients"] = d.Hub.ClientCount()
			body["feed_seq"] = d.Hub.Seq()
		}
		code := http.StatusOK
		if d.Ledger != nil {
			if err := d.Ledger.Ping(r.Context()); err != nil {
				body["status"] = "unhealthy"
				body["ledger_error"] = err.Error()
				code = http.StatusServiceUnavailable
			}
		}
		writeJSON(w, code, body)
	})

	mux.HandleFunc("/api/v1/analyze", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			writeError(w, http.StatusBadRequest, "missing q")
			return
		}
		rep, err := d.Analyzer.Analyze(r.Context(), q)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrUpstream) {
				writeError(w, http.StatusNotFound, report.FormatQueryError(q, err))
				return
			}
			log.Printf("[api] analyze %q: %v", q, err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"report": rep,
			"text":   report.FormatQuery(rep),
		})
	})

	mux.HandleFunc("/api/v1/ledger", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		recs, err := d.Ledger.List(r.Context())
		if err != nil {
			log.Printf("[api] ledger list: %v", err)
			writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
			return
		}
		out := make([]recordDTO, len(recs))
		for i, rec := range recs {
			out[i] = recordDTO{Date: model.DateKey(rec.Date), Symbol: rec.Symbol}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"records": out})
	})

	mux.HandleFunc("/api/v1/ledger/prune", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if d.AdminTOTPSecret != "" && !totp.Validate(r.Header.Get(OTPHeader), d.AdminTOTPSecret) {
			writeError(w, http.StatusUnauthorized, "invalid or missing "+OTPHeader)
			return
		}
		days := d.RetentionDays
		if v := r.URL.Query().Get("days"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "days must be a positive integer")
				return
			}
			days = n
		}
		cutoff := ledger.RetentionCutoff(markethours.Today(d.Now()), days)
		n, err := d.Ledger.Prune(r.Context(), cutoff)
		if err != nil {
			log.Printf("[api] ledger prune: %v", err)
			writeError(w, http.StatusServiceUnavailable, "ledger unavailable")
			return
		}
		log.Printf("[api] pruned %d ledger records before %s", n, model.DateKey(cutoff))
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"removed": n,
			"before":  model.DateKey(cutoff),
		})
	})

	if d.Hub != nil {
		mux.HandleFunc("/ws/breakouts", gateway.Handler(d.Hub))
	}

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	data, err := sonic.Marshal(v)
	if err != nil {
		log.Printf("[api] encode response: %v", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(data)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
