package usecase

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"RegimeTrader/internal/domain/models"
	drepo "RegimeTrader/internal/domain/repository"
	dsvc "RegimeTrader/internal/domain/service"
	"RegimeTrader/internal/repository"
	"RegimeTrader/pkg/logger"
	"RegimeTrader/pkg/util"

	"github.com/markcheno/go-talib"
)

var ErrNotEnoughHistory = errors.New("not enough history to mine")

const (
	atrPeriod        = 14
	sentimentMove    = 0.01
	sentimentBase    = 0.5
	sentimentNoiseSD = 0.1
)

type MineInput struct {
	Symbol    string
	VIXSymbol string
	From, To  time.Time
	Seed      int64
	// Output is the CSV path; empty skips the file.
	Output string
	Store  bool
}

type WeekScore struct {
	Week      time.Time `json:"week"`
	ChangePct float64   `json:"change_pct"`
	VIX       float64   `json:"vix"`
	ATRPct    float64   `json:"atr_pct"`
	Score     float64   `json:"score"`
}

type MineResult struct {
	Symbol string        `json:"symbol"`
	Bars   []models.Bar  `json:"bars"`
	Weeks  []WeekScore   `json:"weeks"`
	Output string        `json:"output,omitempty"`
	Took   time.Duration `json:"took"`
}

// Miner builds a signal-annotated daily bar file: daily prices and VIX from
// market data, one regime score per week, a heuristic sentiment per day.
// Every signal on bar i is derived from data up to bar i-1.
type Miner struct {
	md      dsvc.MarketData
	scorer  dsvc.RegimeScorer
	store   drepo.BarStore
	metrics drepo.Metrics
	log     *logger.Logger
}

func NewMiner(md dsvc.MarketData, scorer dsvc.RegimeScorer, store drepo.BarStore, metrics drepo.Metrics, log *logger.Logger) *Miner {
	if log == nil {
		log = logger.Nop()
	}
	return &Miner{md: md, scorer: scorer, store: store, metrics: metrics, log: log}
}

func (m *Miner) Mine(ctx context.Context, in MineInput) (*MineResult, error) {
	start := time.Now()
	daily, err := m.md.DailyBars(ctx, in.Symbol, in.From, in.To)
	if err != nil {
		m.recordError("mine_prices")
		return nil, fmt.Errorf("fetch %s: %w", in.Symbol, err)
	}
	if len(daily) < 2 {
		return nil, fmt.Errorf("%s: %w (%d bars)", in.Symbol, ErrNotEnoughHistory, len(daily))
	}

	vix := map[string]float64{}
	if in.VIXSymbol != "" {
		vbars, err := m.md.DailyBars(ctx, in.VIXSymbol, in.From, in.To)
		if err != nil {
			m.log.Warn("vix unavailable, continuing without it", logger.String("symbol", in.VIXSymbol), logger.Error(err))
		}
		for _, b := range vbars {
			vix[dayKey(b.Time)] = b.Close
		}
	}
	for i := range daily {
		daily[i].Symbol = in.Symbol
		if v, ok := vix[dayKey(daily[i].Time)]; ok {
			daily[i].VIX = v
		} else {
			daily[i].VIX = math.NaN()
		}
	}

	bins := weeklyBins(daily)
	atr := atrPct(daily)
	weeks := make([]WeekScore, 0, len(bins))
	for _, wb := range bins {
		first, last := daily[wb.first], daily[wb.last]
		ws := WeekScore{
			Week:      wb.label,
			ChangePct: (last.Close - first.Open) / first.Open * 100,
			VIX:       last.VIX,
			ATRPct:    atr[wb.last],
		}
		score, err := m.scorer.Score(ctx, dsvc.RegimeContext{
			Symbol:    in.Symbol,
			AsOf:      last.Time,
			VIX:       ws.VIX,
			ChangePct: ws.ChangePct,
			ATRPct:    ws.ATRPct,
		})
		if err != nil {
			m.recordError("mine_score")
			return nil, fmt.Errorf("score week %s: %w", wb.label.Format("2006-01-02"), err)
		}
		ws.Score = score
		weeks = append(weeks, ws)
		m.log.Debug("week scored",
			logger.Time("week", wb.label),
			logger.Float64("change_pct", ws.ChangePct),
			logger.Float64("score", score),
		)
	}

	out := annotate(daily, bins, weeks, in.Seed)
	res := &MineResult{Symbol: in.Symbol, Bars: out, Weeks: weeks}

	if in.Output != "" {
		if err := repository.WriteBarsFile(in.Output, out); err != nil {
			return nil, err
		}
		res.Output = in.Output
	}
	if in.Store && m.store != nil {
		if err := m.store.StoreBars(ctx, out); err != nil {
			m.recordError("mine_store")
			m.log.Error("store mined bars failed", logger.Error(err))
		}
	}

	res.Took = time.Since(start)
	if m.metrics != nil {
		m.metrics.RecordLatency("mine", res.Took.Seconds())
	}
	m.log.Info("mining finished",
		logger.String("symbol", in.Symbol),
		logger.Int("bars", len(out)),
		logger.Int("weeks", len(weeks)),
		logger.Duration("took", res.Took),
	)
	return res, nil
}

func (m *Miner) recordError(kind string) {
	if m.metrics != nil {
		m.metrics.RecordError(kind)
	}
}

type weekBin struct {
	label       time.Time
	first, last int
}

// weeklyBins groups ascending daily bars into weeks that end on Monday
// (inclusive). The label is the Monday closing the bin.
func weeklyBins(bars []models.Bar) []weekBin {
	var bins []weekBin
	for i, b := range bars {
		label := util.WeekEnd(b.Time)
		if n := len(bins); n > 0 && bins[n-1].label.Equal(label) {
			bins[n-1].last = i
			continue
		}
		bins = append(bins, weekBin{label: label, first: i, last: i})
	}
	return bins
}

// atrPct is ATR(14) as a percent of the close; zero until the ATR is defined.
func atrPct(bars []models.Bar) []float64 {
	out := make([]float64, len(bars))
	if len(bars) <= atrPeriod {
		return out
	}
	high := make([]float64, len(bars))
	low := make([]float64, len(bars))
	closes := make([]float64, len(bars))
	for i, b := range bars {
		high[i], low[i], closes[i] = b.High, b.Low, b.Close
	}
	atr := talib.Atr(high, low, closes, atrPeriod)
	for i := range out {
		if i >= atrPeriod && closes[i] > 0 {
			out[i] = atr[i] / closes[i] * 100
		}
	}
	return out
}

// annotate stamps regime and sentiment on bars[1:]. Bar i takes the score of
// the latest week whose last bar is before i, and a sentiment derived from
// the return into bar i-1.
func annotate(daily []models.Bar, bins []weekBin, weeks []WeekScore, seed int64) []models.Bar {
	rng := rand.New(rand.NewSource(seed))
	out := make([]models.Bar, 0, len(daily)-1)
	w := -1
	for i := 1; i < len(daily); i++ {
		for w+1 < len(bins) && bins[w+1].last < i {
			w++
		}
		b := daily[i]
		b.RegimeScore = 0
		if w >= 0 {
			b.RegimeScore = weeks[w].Score
		}

		base := 0.0
		if i >= 2 {
			ret := daily[i-1].Return(daily[i-2])
			switch {
			case ret > sentimentMove:
				base = sentimentBase
			case ret < -sentimentMove:
				base = -sentimentBase
			}
		}
		b.SentimentScore = math.Max(-1, math.Min(1, base+rng.NormFloat64()*sentimentNoiseSD))
		b.SignalsAsOf = daily[i-1].Time
		out = append(out, b)
	}
	return out
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }
