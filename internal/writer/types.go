package writer

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// WriterConfig configures batching.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     100,
		FlushInterval: 2 * time.Second,
	}
}

// WriterMetrics contains writer statistics.
type WriterMetrics struct {
	Received int64 // Frames taken from the input buffer
	Inserts  int64 // Rows written
	Skipped  int64 // Rows counted without a database
	Errors   int64 // Failed batches
	Flushes  int64 // Successful batches
}

// BatchSender is the subset of *pgxpool.Pool used by the writer.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}
