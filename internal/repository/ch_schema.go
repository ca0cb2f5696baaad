package repository

import "fmt"

// ClickHouseSchema returns the idempotent DDL for the tables the ClickHouse
// adapters read and write.
func ClickHouseSchema(db string) []string {
	return []string{
		fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.bars (
    symbol      LowCardinality(String),
    timeframe   LowCardinality(String),
    bucket      DateTime64(3, 'UTC'),
    open        Float64,
    high        Float64,
    low         Float64,
    close       Float64,
    tick_volume Float64
) ENGINE = ReplacingMergeTree
ORDER BY (symbol, timeframe, bucket)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.trade_journal (
    ts         DateTime64(6, 'UTC'),
    ticket     Int64,
    symbol     LowCardinality(String),
    signal     LowCardinality(String),
    confidence Float64,
    scores     Map(String, Float64)
) ENGINE = ReplacingMergeTree
ORDER BY (ticket)`, db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.deal_outcomes (
    ticket Int64,
    profit Float64,
    entry  LowCardinality(String),
    symbol LowCardinality(String),
    time   DateTime64(3, 'UTC')
) ENGINE = MergeTree
ORDER BY (time, ticket)`, db),
	}
}
