package ledger

import "fmt"

func createBlocksTableQuery(database, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    number UInt64,
    hash String,
    batch_number UInt64,
    timestamp Int64
) ENGINE = ReplacingMergeTree(timestamp)
ORDER BY number
`, database, table)
}

func createBatchesTableQuery(database, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    number UInt64,
    expected_seal_timestamp UInt64,
    committed UInt8
) ENGINE = ReplacingMergeTree
ORDER BY number
`, database, table)
}

func createRecoveryMarkersTableQuery(database, table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    block_number UInt64,
    batch_number UInt64,
    applied_at Int64
) ENGINE = ReplacingMergeTree(applied_at)
ORDER BY block_number
`, database, table)
}

func insertBlockQuery(database, table string) string {
	return fmt.Sprintf("INSERT INTO %s.%s (number, hash, batch_number, timestamp) VALUES (?, ?, ?, ?)\n", database, table)
}

func insertBatchQuery(database, table string) string {
	return fmt.Sprintf("INSERT INTO %s.%s (number, expected_seal_timestamp, committed) VALUES (?, ?, ?)\n", database, table)
}

func insertRecoveryMarkerQuery(database, table string) string {
	return fmt.Sprintf("INSERT INTO %s.%s (block_number, batch_number, applied_at) VALUES (?, ?, ?)\n", database, table)
}

func blockByNumberQuery(database, table string) string {
	return fmt.Sprintf("SELECT number FROM %s.%s WHERE number = ? LIMIT 1\n", database, table)
}

func blockByHashQuery(database, table string) string {
	return fmt.Sprintf("SELECT number FROM %s.%s WHERE hash = ? LIMIT 1\n", database, table)
}

func latestBlockQuery(database, table string) string {
	return fmt.Sprintf("SELECT number FROM %s.%s ORDER BY number DESC LIMIT 1\n", database, table)
}

func earliestBlockQuery(database, table string) string {
	return fmt.Sprintf("SELECT number FROM %s.%s ORDER BY number ASC LIMIT 1\n", database, table)
}

func latestCommittedBatchQuery(database, table string) string {
	return fmt.Sprintf("SELECT number FROM %s.%s WHERE committed = 1 ORDER BY number DESC LIMIT 1\n", database, table)
}

func latestBlockOfBatchQuery(database, table string) string {
	return fmt.Sprintf("SELECT number FROM %s.%s WHERE batch_number <= ? ORDER BY number DESC LIMIT 1\n", database, table)
}

func batchOfBlockQuery(database, table string) string {
	return fmt.Sprintf("SELECT batch_number FROM %s.%s WHERE number = ? LIMIT 1\n", database, table)
}

func batchSealTimestampQuery(database, table string) string {
	return fmt.Sprintf("SELECT expected_seal_timestamp FROM %s.%s WHERE number = ? LIMIT 1\n", database, table)
}

func latestRecoveryMarkerQuery(database, table string) string {
	return fmt.Sprintf("SELECT block_number, batch_number, applied_at FROM %s.%s ORDER BY applied_at DESC LIMIT 1\n", database, table)
}

func dropTableQuery(database, table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s.%s\n", database, table)
}
