package finmind

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
)

// newTestServer routes by the dataset query parameter.
func newTestServer(t *testing.T, bodies map[string]string) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		body, ok := bodies[r.URL.Query().Get("dataset")]
		if !ok {
			http.Error(w, "unknown dataset", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func newTestClient(srv *httptest.Server) *Client {
	return New(Config{BaseURL: srv.URL, Token: "tkn", MaxFailures: 2, ResetTimeout: time.Minute},
		metrics.NewMetrics(prometheus.NewRegistry()))
}

func TestFetchPrices(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		// Out of order with a duplicate date; the client normalizes.
		w.Write([]byte(`{"msg":"success","status":200,"data":[
			{"date":"2025-03-04","stock_id":"2330","close":1010.5},
			{"date":"2025-03-03","stock_id":"2330","close":1000},
			{"date":"2025-03-04","stock_id":"2330","close":1012}
		]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv)
	series, err := c.FetchPrices(context.Background(), "2330", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("FetchPrices: %v", err)
	}
	if len(series) != 2 {
		t.Fatalf("len = %d, want 2", len(series))
	}
	if err := series.Validate(); err != nil {
		t.Fatalf("series not ordered: %v", err)
	}
	if series[1].Close.String() != "1012" {
		t.Errorf("last close = %s, want 1012", series[1].Close)
	}
	for _, want := range []string{"dataset=TaiwanStockPrice", "data_id=2330", "start_date=2025-01-01", "token=tkn"} {
		if !strings.Contains(gotQuery, want) {
			t.Errorf("query %q missing %q", gotQuery, want)
		}
	}
}

func TestFetchPrices_EmptyIsNotFound(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		DatasetPrice: `{"msg":"success","status":200,"data":[]}`,
	})
	_, err := newTestClient(srv).FetchPrices(context.Background(), "9999", time.Now())
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestFetchPrices_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name string
		code int
		body string
	}{
		{"bad msg", 200, `{"msg":"parameter error","status":400,"data":[]}`},
		{"http error", 500, `oops`},
		{"malformed json", 200, `{"msg":`},
		{"bad date", 200, `{"msg":"success","status":200,"data":[{"date":"03/04/2025","close":1}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newTestClient(srv).FetchPrices(context.Background(), "2330", time.Now())
			if !errors.Is(err, model.ErrUpstream) {
				t.Fatalf("err = %v, want ErrUpstream", err)
			}
			var ue *model.UpstreamError
			if !errors.As(err, &ue) || ue.Op != DatasetPrice {
				t.Fatalf("err = %#v, want *UpstreamError for %s", err, DatasetPrice)
			}
		})
	}
}

func TestFetchDividends_SumsComponents(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		DatasetDividend: `{"msg":"success","status":200,"data":[
			{"date":"2024-06-13","stock_id":"2330","CashEarningsDistribution":3.5,"CashStatutorySurplus":0.5,"StockEarningsDistribution":0,"StockStatutorySurplus":0},
			{"date":"2024-03-14","stock_id":"2330","CashEarningsDistribution":3.0,"CashStatutorySurplus":0,"StockEarningsDistribution":0.2,"StockStatutorySurplus":0.1}
		]}`,
	})
	divs, err := newTestClient(srv).FetchDividends(context.Background(), "2330", time.Now())
	if err != nil {
		t.Fatalf("FetchDividends: %v", err)
	}
	if len(divs) != 2 {
		t.Fatalf("len = %d, want 2", len(divs))
	}
	// sorted ascending: March first
	if divs[0].Cash.String() != "3" || divs[0].Stock.String() != "0.3" {
		t.Errorf("march event = %+v", divs[0])
	}
	if divs[1].Cash.String() != "4" || !divs[1].Stock.IsZero() {
		t.Errorf("june event = %+v", divs[1])
	}
}

func TestFetchDividends_EmptyIsValid(t *testing.T) {
	srv, _ := newTestServer(t, map[string]string{
		DatasetDividend: `{"msg":"success","status":200,"data":[]}`,
	})
	divs, err := newTestClient(srv).FetchDividends(context.Background(), "0050", time.Now())
	if err != nil || len(divs) != 0 {
		t.Fatalf("got %v, %v; want empty, nil", divs, err)
	}
}

func TestResolve(t *testing.T) {
	srv, calls := newTestServer(t, map[string]string{
		DatasetInfo: `{"msg":"success","status":200,"data":[
			{"stock_id":"2330","stock_name":"台積電","industry_category":"半導體業","type":"twse"},
			{"stock_id":"2317","stock_name":"鴻海","industry_category":"其他電子業","type":"twse"}
		]}`,
	})
	c := newTestClient(srv)
	ctx := context.Background()

	id, err := c.Resolve(ctx, " 2454 ")
	if err != nil || id != "2454" {
		t.Fatalf("digits: %q, %v", id, err)
	}
	if atomic.LoadInt32(calls) != 0 {
		t.Fatal("digit input should not hit the instrument list")
	}

	id, err = c.Resolve(ctx, "台積電")
	if err != nil || id != "2330" {
		t.Fatalf("name: %q, %v", id, err)
	}
	if _, err := c.Resolve(ctx, "台積"); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("partial name: err = %v, want ErrNotFound", err)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Errorf("instrument list fetched %d times, want 1 (cached)", *calls)
	}
}

func TestBreakerOpensOnRepeatedFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		c.FetchPrices(ctx, "2330", time.Now())
	}
	if c.Breaker().CurrentState() != StateOpen {
		t.Fatalf("breaker = %v, want open", c.Breaker().CurrentState())
	}
	_, err := c.FetchPrices(ctx, "2330", time.Now())
	if !errors.Is(err, ErrCircuitOpen) || !errors.Is(err, model.ErrUpstream) {
		t.Fatalf("err = %v, want open-circuit upstream error", err)
	}
}

func TestIsSymbolID(t *testing.T) {
	for in, want := range map[string]bool{"2330": true, "00878": true, "": false, "2330A": false, "台積電": false} {
		if got := IsSymbolID(in); got != want {
			t.Errorf("IsSymbolID(%q) = %v, want %v", in, got, want)
		}
	}
}
