package domain

import "sync/atomic"

// RunStatistics holds the counters of one pipeline run. A single instance is
// shared by reference with every worker; all updates are atomic.
type RunStatistics struct {
	Documents          atomic.Int64
	ChunksProcessed    atomic.Int64
	ChunksFailed       atomic.Int64
	GenerationAttempts atomic.Int64
	GenerationFailures atomic.Int64
	Timeouts           atomic.Int64
	RepairAttempts     atomic.Int64
	PairsGenerated     atomic.Int64
	PairsUnparseable   atomic.Int64
	PairsInvalid       atomic.Int64
	PairsRejected      atomic.Int64
	DuplicatesRemoved  atomic.Int64
	PairsWritten       atomic.Int64
	HighWritten        atomic.Int64
	MediumWritten      atomic.Int64
}

// Stats is a point-in-time copy of RunStatistics handed to callers.
type Stats struct {
	Documents          int64 `json:"documents"`
	ChunksProcessed    int64 `json:"chunks_processed"`
	ChunksFailed       int64 `json:"chunks_failed"`
	GenerationAttempts int64 `json:"generation_attempts"`
	GenerationFailures int64 `json:"generation_failures"`
	Timeouts           int64 `json:"timeouts"`
	RepairAttempts     int64 `json:"repair_attempts"`
	PairsGenerated     int64 `json:"pairs_generated"`
	PairsUnparseable   int64 `json:"pairs_unparseable"`
	PairsInvalid       int64 `json:"pairs_invalid"`
	PairsRejected      int64 `json:"pairs_rejected"`
	DuplicatesRemoved  int64 `json:"duplicates_removed"`
	PairsWritten       int64 `json:"pairs_written"`
	HighWritten        int64 `json:"high_written"`
	MediumWritten      int64 `json:"medium_written"`
}

// Snapshot copies the current counter values.
func (s *RunStatistics) Snapshot() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		Documents:          s.Documents.Load(),
		ChunksProcessed:    s.ChunksProcessed.Load(),
		ChunksFailed:       s.ChunksFailed.Load(),
		GenerationAttempts: s.GenerationAttempts.Load(),
		GenerationFailures: s.GenerationFailures.Load(),
		Timeouts:           s.Timeouts.Load(),
		RepairAttempts:     s.RepairAttempts.Load(),
		PairsGenerated:     s.PairsGenerated.Load(),
		PairsUnparseable:   s.PairsUnparseable.Load(),
		PairsInvalid:       s.PairsInvalid.Load(),
		PairsRejected:      s.PairsRejected.Load(),
		DuplicatesRemoved:  s.DuplicatesRemoved.Load(),
		PairsWritten:       s.PairsWritten.Load(),
		HighWritten:        s.HighWritten.Load(),
		MediumWritten:      s.MediumWritten.Load(),
	}
}

// RetentionRate is the share of generated pairs that reached the dataset.
func (s Stats) RetentionRate() float64 {
	if s.PairsGenerated == 0 {
		return 0
	}
	return float64(s.PairsWritten) / float64(s.PairsGenerated)
}
