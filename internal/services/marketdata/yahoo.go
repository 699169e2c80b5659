package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"time"

	"RegimeTrader/internal/domain/models"
	xhttp "RegimeTrader/pkg/http"
	"RegimeTrader/pkg/logger"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

var ErrNoData = errors.New("no market data")

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol           string `json:"symbol"`
				ExchangeTimezone string `json:"exchangeTimezoneName"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// YahooClient reads daily OHLCV from the Yahoo Finance chart API.
type YahooClient struct {
	baseURL string
	client  *xhttp.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     *logger.Logger
}

func NewYahooClient(baseURL string, timeout time.Duration, rps float64, log *logger.Logger) *YahooClient {
	if log == nil {
		log = logger.Nop()
	}
	if rps <= 0 {
		rps = 1
	}
	return &YahooClient{
		baseURL: baseURL,
		client:  xhttp.NewClient(xhttp.WithTimeout(timeout)),
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:    "yahoo",
			Timeout: 60 * time.Second,
			ReadyToTrip: func(c gobreaker.Counts) bool {
				return c.ConsecutiveFailures >= 3
			},
		}),
		log: log,
	}
}

// DailyBars returns bars with Time at UTC midnight of each session, in
// [from, to). Rows with a missing price are skipped. VIX is NaN.
func (c *YahooClient) DailyBars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	start := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		var resp chartResponse
		err := c.client.SendAndParse(ctx, &xhttp.RequestOptions{
			Method: xhttp.MethodGet,
			URL:    c.baseURL + "/v8/finance/chart/" + url.PathEscape(symbol),
			Headers: map[string]string{
				"User-Agent": "Mozilla/5.0 (compatible; regimetrader)",
			},
			QueryParams: map[string][]string{
				"period1":  {strconv.FormatInt(from.Unix(), 10)},
				"period2":  {strconv.FormatInt(to.Unix(), 10)},
				"interval": {"1d"},
				"events":   {"history"},
			},
		}, &resp)
		if err != nil {
			return nil, err
		}
		return decodeChart(symbol, &resp)
	})
	if err != nil {
		c.log.Error("yahoo chart request failed", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}
	bars := out.([]models.Bar)
	c.log.Info("yahoo chart ok",
		logger.String("symbol", symbol),
		logger.Int("bars", len(bars)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return bars, nil
}

func decodeChart(symbol string, resp *chartResponse) ([]models.Bar, error) {
	if e := resp.Chart.Error; e != nil {
		return nil, fmt.Errorf("%s: %s", e.Code, e.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrNoData
	}
	r := resp.Chart.Result[0]
	q := r.Indicators.Quote[0]
	loc := time.UTC
	if tz := r.Meta.ExchangeTimezone; tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}

	at := func(xs []*float64, i int) (float64, bool) {
		if i >= len(xs) || xs[i] == nil || math.IsNaN(*xs[i]) {
			return 0, false
		}
		return *xs[i], true
	}

	bars := make([]models.Bar, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		o, ok1 := at(q.Open, i)
		h, ok2 := at(q.High, i)
		l, ok3 := at(q.Low, i)
		cl, ok4 := at(q.Close, i)
		if !(ok1 && ok2 && ok3 && ok4) {
			continue
		}
		v, _ := at(q.Volume, i)
		local := time.Unix(ts, 0).In(loc)
		day := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
		if n := len(bars); n > 0 && !day.After(bars[n-1].Time) {
			continue
		}
		bars = append(bars, models.Bar{
			Symbol: symbol,
			Time:   day,
			Open:   o,
			High:   h,
			Low:    l,
			Close:  cl,
			Volume: v,
			VIX:    math.NaN(),
		})
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return bars, nil
}
