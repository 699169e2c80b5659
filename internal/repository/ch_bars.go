package repository

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"RegimeTrader/internal/domain/models"
	pkgch "RegimeTrader/pkg/clickhouse"
	"RegimeTrader/pkg/logger"
)

// rows per multi-row INSERT
const chChunkSize = 2000

// CHBarStore keeps bars in ClickHouse. The table is a ReplacingMergeTree on
// (symbol, ts) so re-mining a range overwrites it.
type CHBarStore struct {
	db     *sql.DB
	table  string
	policy models.AsOfPolicy
	l      *logger.Logger
}

func NewCHBarStore(ch *pkgch.Client) *CHBarStore {
	return &CHBarStore{
		db:    ch.DB(),
		table: ch.Database() + "." + pkgch.TableBars,
		l:     logger.Nop(),
	}
}

// SetAsOfPolicy sets the look-ahead rule applied to rows read back.
func (s *CHBarStore) SetAsOfPolicy(p models.AsOfPolicy) { s.policy = p }

// SetLogger injects a structured logger.
func (s *CHBarStore) SetLogger(l *logger.Logger) {
	if l != nil {
		s.l = l
	}
}

const barColumns = "symbol, ts, open, high, low, close, volume, regime_score, sentiment_score, vix, signals_as_of"

func (s *CHBarStore) Bars(ctx context.Context, symbol string, from, to time.Time) ([]models.Bar, error) {
	start := time.Now()
	where := []string{"symbol = ?"}
	args := []interface{}{symbol}
	if !from.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, from.UTC())
	}
	if !to.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, to.UTC())
	}
	q := fmt.Sprintf("SELECT %s FROM %s FINAL WHERE %s ORDER BY ts ASC",
		barColumns, s.table, strings.Join(where, " AND "))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		s.l.Error("clickhouse bars query error", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	out := make([]models.Bar, 0, 256)
	for rows.Next() {
		var (
			b   models.Bar
			vix sql.NullFloat64
		)
		if err := rows.Scan(&b.Symbol, &b.Time, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume,
			&b.RegimeScore, &b.SentimentScore, &vix, &b.SignalsAsOf); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		b.VIX = math.NaN()
		if vix.Valid {
			b.VIX = vix.Float64
		}
		b.Time = b.Time.UTC()
		b.SignalsAsOf = b.SignalsAsOf.UTC()
		// the column is not nullable; an epoch stamp means none was stored
		if b.SignalsAsOf.Unix() <= 0 {
			b.SignalsAsOf = time.Time{}
		}
		var prev time.Time
		if len(out) > 0 {
			prev = out[len(out)-1].Time
		}
		if _, err := s.policy.Apply(&b, prev); err != nil {
			s.l.Error("clickhouse bar rejected", logger.String("symbol", symbol), logger.Error(err))
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	s.l.Debug("clickhouse bars ok",
		logger.String("symbol", symbol),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *CHBarStore) StoreBars(ctx context.Context, bars []models.Bar) error {
	return insertChunked(ctx, s.db, s.table, barColumns, 11, len(bars), func(i int) []interface{} {
		b := bars[i]
		var vix interface{}
		if b.HasVIX() {
			vix = b.VIX
		}
		return []interface{}{b.Symbol, b.Time.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume,
			b.RegimeScore, b.SentimentScore, vix, b.SignalsAsOf.UTC()}
	})
}

// Close is a no-op; the client is owned by the caller.
func (s *CHBarStore) Close() error { return nil }

// insertChunked writes n rows as multi-row VALUES statements of at most
// chChunkSize rows each.
func insertChunked(ctx context.Context, db *sql.DB, table, columns string, width, n int, row func(i int) []interface{}) error {
	if n == 0 {
		return nil
	}
	placeholder := "(" + strings.TrimSuffix(strings.Repeat("?, ", width), ", ") + ")"
	for start := 0; start < n; start += chChunkSize {
		end := start + chChunkSize
		if end > n {
			end = n
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*width)
		for i := start; i < end; i++ {
			values = append(values, placeholder)
			args = append(args, row(i)...)
		}
		q := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", table, columns, strings.Join(values, ","))
		if _, err := db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("insert %s: %w", table, err)
		}
	}
	return nil
}
