package clickhouse

import "fmt"

// Table names used by the bar store and trade journal.
const (
	TableBars   = "bars"
	TableFills  = "fills"
	TableTrades = "trades"
	TableEquity = "equity"
)

// Schema returns the DDL for the warehouse tables of database.
func Schema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            symbol LowCardinality(String),
            ts DateTime64(3, 'UTC'),
            open Float64,
            high Float64,
            low Float64,
            close Float64,
            volume Float64,
            regime_score Float64,
            sentiment_score Float64,
            vix Nullable(Float64),
            signals_as_of DateTime64(3, 'UTC')
        ) ENGINE = ReplacingMergeTree
        ORDER BY (symbol, ts)`, database, TableBars),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            run_id String,
            trade_id String,
            symbol LowCardinality(String),
            ts DateTime64(3, 'UTC'),
            side LowCardinality(String),
            direction LowCardinality(String),
            price Float64,
            units Float64,
            size Float64,
            commission Float64,
            reason LowCardinality(String)
        ) ENGINE = MergeTree
        ORDER BY (run_id, ts)`, database, TableFills),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            id String,
            run_id String,
            symbol LowCardinality(String),
            direction LowCardinality(String),
            entry_ts DateTime64(3, 'UTC'),
            exit_ts DateTime64(3, 'UTC'),
            entry_price Float64,
            exit_price Float64,
            size Float64,
            units Float64,
            pnl Float64,
            pnl_pct Float64,
            commission Float64,
            bars UInt32,
            duration_sec Int64,
            exit_reason LowCardinality(String)
        ) ENGINE = MergeTree
        ORDER BY (run_id, exit_ts)`, database, TableTrades),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
            run_id String,
            symbol LowCardinality(String),
            ts DateTime64(3, 'UTC'),
            equity Float64,
            cash Float64,
            exposure Float64
        ) ENGINE = MergeTree
        ORDER BY (run_id, ts)`, database, TableEquity),
	}
}
