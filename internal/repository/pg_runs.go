package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"RegimeTrader/internal/domain/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExecutor is the part of *pgxpool.Pool the run registry uses.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRunRepository stores one row per finished backtest in Postgres. The
// headline metrics get their own columns for sorting; the full report is
// kept as jsonb.
type PGRunRepository struct {
	db   pgExecutor
	pool *pgxpool.Pool
}

func NewPGRunRepository(pool *pgxpool.Pool) *PGRunRepository {
	return &PGRunRepository{db: pool, pool: pool}
}

var runsSchema = []string{
	`create table if not exists backtest_runs (
		id text primary key,
		symbol text not null,
		strategy text not null,
		from_ts timestamptz not null,
		to_ts timestamptz not null,
		bars int not null,
		created_at timestamptz not null default now(),
		total_return_pct double precision not null,
		sharpe double precision not null,
		max_drawdown_pct double precision not null,
		trades int not null,
		report jsonb not null
	);`,
	`create index if not exists backtest_runs_symbol_created_idx on backtest_runs(symbol, created_at desc);`,
}

// Migrate creates the registry table.
func (r *PGRunRepository) Migrate(ctx context.Context) error {
	for _, stmt := range runsSchema {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate backtest_runs: %w", err)
		}
	}
	return nil
}

func (r *PGRunRepository) SaveRun(ctx context.Context, run models.RunSummary) error {
	report, err := json.Marshal(run.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	_, err = r.db.Exec(ctx, `
		insert into backtest_runs(
			id, symbol, strategy, from_ts, to_ts, bars, created_at,
			total_return_pct, sharpe, max_drawdown_pct, trades, report
		) values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		on conflict (id) do update set report = excluded.report
	`,
		run.ID,
		run.Symbol,
		run.Strategy,
		run.From,
		run.To,
		run.Bars,
		run.CreatedAt,
		run.Report.TotalReturnPct,
		run.Report.Sharpe,
		run.Report.MaxDrawdownPct,
		run.Report.Trades,
		report,
	)
	if err != nil {
		return fmt.Errorf("save run %s: %w", run.ID, err)
	}
	return nil
}

// ListRuns returns the newest runs first. An empty symbol lists all symbols.
func (r *PGRunRepository) ListRuns(ctx context.Context, symbol string, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		select id, symbol, strategy, from_ts, to_ts, bars, created_at, report
		from backtest_runs
		where ($1 = '' or symbol = $1)
		order by created_at desc
		limit $2
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]models.RunSummary, 0, limit)
	for rows.Next() {
		var (
			run    models.RunSummary
			report []byte
		)
		if err := rows.Scan(&run.ID, &run.Symbol, &run.Strategy, &run.From, &run.To, &run.Bars, &run.CreatedAt, &report); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if err := json.Unmarshal(report, &run.Report); err != nil {
			return nil, fmt.Errorf("decode report of %s: %w", run.ID, err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *PGRunRepository) Close() error {
	if r.pool != nil {
		r.pool.Close()
	}
	return nil
}
