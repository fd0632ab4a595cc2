// Package finmind implements the market-data ports over the FinMind v4 REST API.
package finmind

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/shopspring/decimal"

	"stocksignal/internal/metrics"
	"stocksignal/internal/model"
)

// Datasets used by the client.
const (
	DatasetPrice    = "TaiwanStockPrice"
	DatasetDividend = "TaiwanStockDividend"
	DatasetInfo     = "TaiwanStockInfo"
)

const (
	DefaultBaseURL = "https://api.finmindtrade.com/api/v4/data"

	maxBodyBytes = 32 << 20
	infoTTL      = 12 * time.Hour
)

// Config configures the FinMind client.
type Config struct {
	BaseURL      string        // defaults to DefaultBaseURL
	Token        string        // optional; anonymous calls are rate limited harder
	Timeout      time.Duration // per request, default 10s
	MaxFailures  int           // breaker threshold, default 5
	ResetTimeout time.Duration // breaker cool-down, default 30s
	HTTPClient   *http.Client  // optional override
}

// Client fetches prices, dividends and the instrument list. It is safe for concurrent use.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	breaker *Breaker
	metrics *metrics.Metrics

	infoMu      sync.Mutex
	infoByName  map[string]string
	infoFetched time.Time
}

var _ model.MarketData = (*Client)(nil)

// New creates a client. m may be nil.
func New(cfg Config, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}

	b := NewBreaker(cfg.MaxFailures, cfg.ResetTimeout)
	// Empty results are answers, not outages.
	b.IsFailure = func(err error) bool { return !errors.Is(err, model.ErrNotFound) }
	b.OnStateChange = func(from, to State) {
		log.Printf("[finmind] circuit breaker %s -> %s", from, to)
		m.BreakerChanged(int(to))
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		http:    hc,
		breaker: b,
		metrics: m,
	}
}

// Breaker exposes the circuit breaker for health reporting.
func (c *Client) Breaker() *Breaker { return c.breaker }

type envelope[T any] struct {
	Msg    string `json:"msg"`
	Status int    `json:"status"`
	Data   []T    `json:"data"`
}

type priceRow struct {
	Date    string          `json:"date"`
	StockID string          `json:"stock_id"`
	Close   decimal.Decimal `json:"close"`
}

type dividendRow struct {
	Date                      string          `json:"date"`
	StockID                   string          `json:"stock_id"`
	CashEarningsDistribution  decimal.Decimal `json:"CashEarningsDistribution"`
	CashStatutorySurplus      decimal.Decimal `json:"CashStatutorySurplus"`
	StockEarningsDistribution decimal.Decimal `json:"StockEarningsDistribution"`
	StockStatutorySurplus     decimal.Decimal `json:"StockStatutorySurplus"`
}

type infoRow struct {
	StockID   string `json:"stock_id"`
	StockName string `json:"stock_name"`
	Industry  string `json:"industry_category"`
	Type      string `json:"type"`
}

// FetchPrices returns daily closes for symbol from start. An empty result is ErrNotFound.
func (c *Client) FetchPrices(ctx context.Context, symbol string, start time.Time) (model.PriceSeries, error) {
	rows, err := getData[priceRow](ctx, c, DatasetPrice, url.Values{
		"data_id":    {symbol},
		"start_date": {model.DateKey(start)},
	})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("finmind: prices for %s: %w", symbol, model.ErrNotFound)
	}

	series := make(model.PriceSeries, 0, len(rows))
	for _, r := range rows {
		d, err := model.ParseDate(r.Date)
		if err != nil {
			return nil, &model.UpstreamError{Op: DatasetPrice, Err: fmt.Errorf("bad date %q: %w", r.Date, err)}
		}
		series = append(series, model.PricePoint{Date: d, Close: r.Close})
	}
	return series.Normalize(), nil
}

// FetchDividends returns dividend events for symbol from start. Cash and stock
// amounts each combine the earnings and statutory-surplus distributions.
func (c *Client) FetchDividends(ctx context.Context, symbol string, start time.Time) (model.DividendSeries, error) {
	rows, err := getData[dividendRow](ctx, c, DatasetDividend, url.Values{
		"data_id":    {symbol},
		"start_date": {model.DateKey(start)},
	})
	if err != nil {
		return nil, err
	}

	events := make(model.DividendSeries, 0, len(rows))
	for _, r := range rows {
		d, err := model.ParseDate(r.Date)
		if err != nil {
			return nil, &model.UpstreamError{Op: DatasetDividend, Err: fmt.Errorf("bad date %q: %w", r.Date, err)}
		}
		events = append(events, model.DividendEvent{
			Date:  d,
			Cash:  r.CashEarningsDistribution.Add(r.CashStatutorySurplus),
			Stock: r.StockEarningsDistribution.Add(r.StockStatutorySurplus),
		})
	}
	return events.Normalize(), nil
}

// Resolve maps input to a symbol id. All-digit input is taken as the id
// itself; anything else must exactly match a listed stock name.
func (c *Client) Resolve(ctx context.Context, input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("finmind: resolve empty input: %w", model.ErrNotFound)
	}
	if IsSymbolID(input) {
		return input, nil
	}

	names, err := c.instrumentNames(ctx)
	if err != nil {
		return "", err
	}
	id, ok := names[input]
	if !ok {
		return "", fmt.Errorf("finmind: resolve %q: %w", input, model.ErrNotFound)
	}
	return id, nil
}

// IsSymbolID reports whether s is made only of ASCII digits.
func IsSymbolID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// instrumentNames returns the name->id index, refreshing it at most every infoTTL.
func (c *Client) instrumentNames(ctx context.Context) (map[string]string, error) {
	c.infoMu.Lock()
	defer c.infoMu.Unlock()

	if c.infoByName != nil && time.Since(c.infoFetched) < infoTTL {
		return c.infoByName, nil
	}

	rows, err := getData[infoRow](ctx, c, DatasetInfo, url.Values{})
	if err != nil {
		return nil, err
	}
	byName := make(map[string]string, len(rows))
	for _, r := range rows {
		// The list repeats ids across categories; the first entry wins.
		if _, dup := byName[r.StockName]; !dup && r.StockName != "" {
			byName[r.StockName] = r.StockID
		}
	}
	c.infoByName = byName
	c.infoFetched = time.Now()
	log.Printf("[finmind] loaded %d instrument names", len(byName))
	return byName, nil
}

// getData performs one dataset request through the breaker and decodes the envelope.
func getData[T any](ctx context.Context, c *Client, dataset string, params url.Values) ([]T, error) {
	params.Set("dataset", dataset)
	if c.token != "" {
		params.Set("token", c.token)
	}
	reqURL := c.baseURL + "?" + params.Encode()

	var rows []T
	start := time.Now()
	err := c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return &model.UpstreamError{Op: dataset, Err: err}
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return &model.UpstreamError{Op: dataset, Err: err}
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return &model.UpstreamError{Op: dataset, Status: resp.StatusCode, Err: err}
		}
		if resp.StatusCode != http.StatusOK {
			return &model.UpstreamError{Op: dataset, Status: resp.StatusCode, Err: fmt.Errorf("http %s", resp.Status)}
		}

		var env envelope[T]
		if err := sonic.Unmarshal(body, &env); err != nil {
			return &model.UpstreamError{Op: dataset, Status: resp.StatusCode, Err: fmt.Errorf("decode: %w", err)}
		}
		if env.Msg != "success" {
			return &model.UpstreamError{Op: dataset, Status: env.Status, Err: fmt.Errorf("msg %q", env.Msg)}
		}
		rows = env.Data
		return nil
	})
	if errors.Is(err, ErrCircuitOpen) {
		err = &model.UpstreamError{Op: dataset, Err: err}
	}
	c.metrics.ObserveFetch(dataset, time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
