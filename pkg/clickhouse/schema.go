package clickhouse

import "fmt"

// BarsSchema returns the DDL of an OHLCV table keyed by (symbol, interval, ts).
// ReplacingMergeTree collapses re-inserted bars of the same key.
func BarsSchema(database, table string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    symbol   LowCardinality(String),
    interval LowCardinality(String),
    ts       DateTime64(3, 'UTC'),
    open     Float64,
    high     Float64,
    low      Float64,
    close    Float64,
    volume   Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, interval, ts)`, database, table),
	}
}
