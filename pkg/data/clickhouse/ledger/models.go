package ledger

// BlockRow is a sealed block as stored in ClickHouse.
type BlockRow struct {
	Number      uint64
	Hash        string
	BatchNumber uint64
	Timestamp   int64
}

// BatchRow is a sealed batch as stored in ClickHouse.
type BatchRow struct {
	Number                uint64
	ExpectedSealTimestamp uint64
	Committed             bool
}

// RecoveryMarkerRow records an applied snapshot recovery. Blocks and batches
// at or below the marked point are not present locally.
type RecoveryMarkerRow struct {
	BlockNumber uint64
	BatchNumber uint64
	AppliedAt   int64
}
