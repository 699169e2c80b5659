package repository

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"RegimeTrader/internal/domain/models"
	"RegimeTrader/pkg/logger"
	"RegimeTrader/pkg/util"
)

var (
	ErrLookAhead     = models.ErrLookAhead
	ErrMissingColumn = errors.New("missing csv column")
)

// column aliases, matched case-insensitively
var csvColumns = map[string][]string{
	"date":      {"date", "time", "datetime", "timestamp"},
	"open":      {"open"},
	"high":      {"high"},
	"low":       {"low"},
	"close":     {"close"},
	"volume":    {"volume"},
	"vix":       {"vix"},
	"regime":    {"ai_regime_score", "regime_score"},
	"sentiment": {"ai_stock_sentiment", "sentiment_score", "sentiment"},
	"as_of":     {"signals_as_of", "as_of"},
}

var requiredColumns = []string{"date", "open", "high", "low", "close", "regime", "sentiment"}

// CSVBarSource reads the miner's CSV output. It is the look-ahead boundary:
// every bar's signals must be stamped strictly before the bar closes.
type CSVBarSource struct {
	path   string
	period time.Duration
	strict bool
	l      *logger.Logger
}

type CSVOption func(*CSVBarSource)

// WithBarPeriod sets the bar length used to derive close time. Default 24h.
func WithBarPeriod(d time.Duration) CSVOption {
	return func(s *CSVBarSource) {
		if d > 0 {
			s.period = d
		}
	}
}

// WithStrictAsOf rejects rows that carry no signals_as_of stamp. Without it
// such rows are assumed to carry the previous bar's signals.
func WithStrictAsOf(strict bool) CSVOption {
	return func(s *CSVBarSource) { s.strict = strict }
}

func WithCSVLogger(l *logger.Logger) CSVOption {
	return func(s *CSVBarSource) { s.l = l }
}

func (s *CSVBarSource) policy() models.AsOfPolicy {
	return models.AsOfPolicy{Period: s.period, Strict: s.strict}
}

func NewCSVBarSource(path string, opts ...CSVOption) *CSVBarSource {
	s := &CSVBarSource{path: path, period: 24 * time.Hour, l: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Bars loads the file and returns bars in [from, to]. Zero bounds are open.
func (s *CSVBarSource) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open bars csv: %w", err)
	}
	defer f.Close()

	bars, err := s.Decode(ctx, f, symbol)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", s.path, err)
	}
	out := bars[:0]
	for _, b := range bars {
		if !from.IsZero() && b.Time.Before(from) {
			continue
		}
		if !to.IsZero() && b.Time.After(to) {
			continue
		}
		out = append(out, b)
	}
	s.l.Info("csv bars loaded",
		logger.String("path", s.path),
		logger.String("symbol", symbol),
		logger.Int("rows", len(bars)),
		logger.Int("selected", len(out)),
	)
	return out, nil
}

// Decode parses CSV rows into validated, strictly ascending bars.
func (s *CSVBarSource) Decode(ctx context.Context, r io.Reader, symbol string) ([]models.Bar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := indexColumns(header)
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, name)
		}
	}

	var (
		bars   []models.Bar
		lagged int
		line   = 1
	)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		b, err := parseRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		b.Symbol = symbol
		if len(bars) > 0 && !b.Time.After(bars[len(bars)-1].Time) {
			return nil, fmt.Errorf("line %d: bar %s not after %s", line, b.Time.Format(time.RFC3339), bars[len(bars)-1].Time.Format(time.RFC3339))
		}
		var prev time.Time
		if len(bars) > 0 {
			prev = bars[len(bars)-1].Time
		}
		assumed, err := s.policy().Apply(&b, prev)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if assumed {
			lagged++
		}
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	if lagged > 0 {
		s.l.Warn("csv rows without signals_as_of, assuming one-bar lag", logger.Int("rows", lagged))
	}
	return bars, nil
}

func indexColumns(header []string) map[string]int {
	idx := make(map[string]int, len(csvColumns))
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for name, aliases := range csvColumns {
			if _, seen := idx[name]; seen {
				continue
			}
			for _, a := range aliases {
				if h == a {
					idx[name] = i
					break
				}
			}
		}
	}
	return idx
}

func parseRow(rec []string, idx map[string]int) (models.Bar, error) {
	cell := func(name string) string {
		i, ok := idx[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}
	num := func(name string) (float64, error) {
		v, ok := util.ParseFloat(cell(name))
		if !ok {
			return 0, fmt.Errorf("bad %s %q", name, cell(name))
		}
		return v, nil
	}

	var b models.Bar
	t, ok := util.ParseTime(strings.TrimSpace(cell("date")))
	if !ok {
		return b, fmt.Errorf("bad date %q", cell("date"))
	}
	b.Time = t.UTC()

	var err error
	if b.Open, err = num("open"); err != nil {
		return b, err
	}
	if b.High, err = num("high"); err != nil {
		return b, err
	}
	if b.Low, err = num("low"); err != nil {
		return b, err
	}
	if b.Close, err = num("close"); err != nil {
		return b, err
	}
	if b.RegimeScore, err = num("regime"); err != nil {
		return b, err
	}
	if b.SentimentScore, err = num("sentiment"); err != nil {
		return b, err
	}
	if v, ok := util.ParseFloat(cell("volume")); ok {
		b.Volume = v
	}
	b.VIX = math.NaN()
	if v, ok := util.ParseFloat(cell("vix")); ok {
		b.VIX = v
	}

	raw := strings.TrimSpace(cell("as_of"))
	if raw == "" {
		return b, nil
	}
	asOf, ok := util.ParseTime(raw)
	if !ok {
		return b, fmt.Errorf("bad signals_as_of %q", raw)
	}
	b.SignalsAsOf = asOf.UTC()
	return b, nil
}

// WriteBarsCSV writes bars in the column layout Decode reads.
func WriteBarsCSV(w io.Writer, bars []models.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Date", "Open", "High", "Low", "Close", "Volume", "VIX",
		"AI_Regime_Score", "AI_Stock_Sentiment", "Signals_As_Of"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		vix := ""
		if b.HasVIX() {
			vix = f(b.VIX)
		}
		asOf := ""
		if !b.SignalsAsOf.IsZero() {
			asOf = b.SignalsAsOf.UTC().Format(time.RFC3339)
		}
		if err := cw.Write([]string{
			b.Time.UTC().Format(time.RFC3339),
			f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume), vix,
			f(b.RegimeScore), f(b.SentimentScore), asOf,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBarsFile writes bars to path, creating or truncating it.
func WriteBarsFile(path string, bars []models.Bar) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteBarsCSV(f, bars); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
