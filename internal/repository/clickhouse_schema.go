package repository

import "fmt"

// ClickHouse table names, relative to the configured database.
const (
	chLedgerTable   = "transactions"
	chBetsTable     = "bets"
	chSessionsTable = "game_sessions"
	chAuditTable    = "audit_log"
)

// ClickHouseSchema returns the idempotent DDL for every table the
// ClickHouse adapters read or write.
func ClickHouseSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			id String,
			user_id String,
			kind LowCardinality(String),
			amount Decimal(18, 4),
			currency LowCardinality(String),
			method LowCardinality(String),
			status LowCardinality(String),
			priority LowCardinality(String),
			fees Decimal(18, 4),
			external_id String,
			failure_reason String,
			risk String,
			created_at DateTime64(3, 'UTC'),
			updated_at DateTime64(3, 'UTC')
		) ENGINE = ReplacingMergeTree(updated_at)
		ORDER BY (user_id, id)`, database, chLedgerTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			user_id String,
			game_id String,
			stake Float64,
			payout Float64,
			placed_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (user_id, placed_at)`, database, chBetsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			user_id String,
			device_id String,
			ip String,
			started_at DateTime64(3, 'UTC'),
			ended_at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (user_id, started_at)`, database, chSessionsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
			id String,
			transaction_id String,
			user_id String,
			stage LowCardinality(String),
			message String,
			error_kind LowCardinality(String),
			at DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (transaction_id, at)`, database, chAuditTable),
	}
}
