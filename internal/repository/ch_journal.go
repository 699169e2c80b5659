package repository

import (
	"context"
	"database/sql"
	"time"

	"RegimeTrader/internal/domain/models"
	pkgch "RegimeTrader/pkg/clickhouse"
	"RegimeTrader/pkg/logger"
)

// CHJournal writes fills, closed trades and equity curves to ClickHouse.
type CHJournal struct {
	db     *sql.DB
	fills  string
	trades string
	equity string
	l      *logger.Logger
}

func NewCHJournal(ch *pkgch.Client) *CHJournal {
	db := ch.Database()
	return &CHJournal{
		db:     ch.DB(),
		fills:  db + "." + pkgch.TableFills,
		trades: db + "." + pkgch.TableTrades,
		equity: db + "." + pkgch.TableEquity,
		l:      logger.Nop(),
	}
}

func (j *CHJournal) SetLogger(l *logger.Logger) {
	if l != nil {
		j.l = l
	}
}

const (
	fillColumns   = "run_id, trade_id, symbol, ts, side, direction, price, units, size, commission, reason"
	tradeColumns  = "id, run_id, symbol, direction, entry_ts, exit_ts, entry_price, exit_price, size, units, pnl, pnl_pct, commission, bars, duration_sec, exit_reason"
	equityColumns = "run_id, symbol, ts, equity, cash, exposure"
)

func (j *CHJournal) RecordFill(ctx context.Context, f models.Fill) error {
	return j.RecordFills(ctx, []models.Fill{f})
}

// RecordFills writes fills in chunked batches.
func (j *CHJournal) RecordFills(ctx context.Context, fills []models.Fill) error {
	return insertChunked(ctx, j.db, j.fills, fillColumns, 11, len(fills), func(i int) []interface{} {
		f := fills[i]
		return []interface{}{f.RunID, f.TradeID, f.Symbol, f.Time.UTC(), f.Side.String(), f.Direction.String(),
			f.Price, f.Units, f.Size, f.Commission, f.Reason}
	})
}

func (j *CHJournal) RecordTrades(ctx context.Context, trades []models.TradeRecord) error {
	start := time.Now()
	err := insertChunked(ctx, j.db, j.trades, tradeColumns, 16, len(trades), func(i int) []interface{} {
		t := trades[i]
		return []interface{}{t.ID, t.RunID, t.Symbol, t.Direction.String(), t.EntryTime.UTC(), t.ExitTime.UTC(),
			t.EntryPrice, t.ExitPrice, t.Size, t.Units, t.PnL, t.PnLPct, t.Commission,
			uint32(t.Bars), int64(t.Duration / time.Second), t.ExitReason}
	})
	if err != nil {
		j.l.Error("clickhouse record trades error", logger.Int("trades", len(trades)), logger.Error(err))
		return err
	}
	j.l.Debug("clickhouse record trades ok",
		logger.Int("trades", len(trades)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return nil
}

func (j *CHJournal) RecordEquity(ctx context.Context, runID, symbol string, points []models.EquityPoint) error {
	return insertChunked(ctx, j.db, j.equity, equityColumns, 6, len(points), func(i int) []interface{} {
		p := points[i]
		return []interface{}{runID, symbol, p.Time.UTC(), p.Equity, p.Cash, p.Exposure}
	})
}

func (j *CHJournal) Close() error { return nil }
