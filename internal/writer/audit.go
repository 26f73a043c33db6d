package writer

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/erp-sync/internal/model"
	"github.com/rickgao/erp-sync/internal/registry"
)

const insertAudit = `
	INSERT INTO sync_audit (client_id, entity, kind, entity_id, payload, received_at)
	VALUES ($1, $2, $3, $4, $5, $6)
`

// auditRow is one sync_audit row.
type auditRow struct {
	ClientID   string
	Entity     string
	Kind       string
	EntityID   *string
	Payload    []byte
	ReceivedAt time.Time
}

// AuditWriter consumes frames from a buffer and writes them to sync_audit.
type AuditWriter struct {
	cfg      WriterConfig
	clientID string
	logger   *slog.Logger

	// Input fed by a wildcard subscription
	input *registry.Buffer[model.Frame]

	// Database; nil counts rows without persisting them
	db BatchSender

	// Batching
	batch       []auditRow
	batchMu     sync.Mutex
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	metrics WriterMetrics
}

// NewAuditWriter creates a new AuditWriter.
func NewAuditWriter(
	cfg WriterConfig,
	clientID string,
	input *registry.Buffer[model.Frame],
	db BatchSender,
	logger *slog.Logger,
) *AuditWriter {
	if logger == nil {
		logger = slog.Default()
	}
	// A nil *pgxpool.Pool inside the interface is still "no database".
	if pool, ok := db.(*pgxpool.Pool); ok && pool == nil {
		db = nil
	}
	defaults := DefaultWriterConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaults.FlushInterval
	}
	return &AuditWriter{
		cfg:      cfg,
		clientID: clientID,
		input:    input,
		db:       db,
		logger:   logger.With("component", "audit_writer"),
		batch:    make([]auditRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming frames.
func (w *AuditWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	w.wg.Add(1)
	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("audit writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"persist", w.db != nil,
	)
	return nil
}

// Stop drains the input, waits for the goroutines and flushes what is left.
// Calls after the first are no-ops.
func (w *AuditWriter) Stop(ctx context.Context) error {
	if w.input.Closed() {
		return nil
	}
	w.logger.Info("stopping audit writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}
	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("audit writer stop timed out")
	}

	// Frames that arrived after the consumer exited.
	for _, frame := range w.input.DrainTo(0) {
		w.handleFrame(frame)
	}
	w.flushWith(ctx)

	w.logger.Info("audit writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *AuditWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

// consumeLoop moves frames from the input buffer into the batch.
func (w *AuditWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case _, ok := <-w.input.Ready():
			for _, frame := range w.input.DrainTo(w.cfg.BatchSize) {
				w.handleFrame(frame)
			}
			// Ready coalesces signals, so keep draining until empty.
			for w.input.Len() > 0 {
				for _, frame := range w.input.DrainTo(w.cfg.BatchSize) {
					w.handleFrame(frame)
				}
			}
			if !ok {
				return
			}
		}
	}
}

// flushLoop periodically flushes the batch.
func (w *AuditWriter) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flushWith(w.ctx)
		}
	}
}

// handleFrame transforms and adds a frame to the batch.
func (w *AuditWriter) handleFrame(frame model.Frame) {
	row := w.transform(frame)

	w.batchMu.Lock()
	w.metrics.Received++
	w.batch = append(w.batch, row)
	shouldFlush := len(w.batch) >= w.cfg.BatchSize
	w.batchMu.Unlock()

	if shouldFlush {
		w.flushWith(w.ctx)
	}
}

// transform converts a frame to an auditRow.
func (w *AuditWriter) transform(frame model.Frame) auditRow {
	payload := frame.Raw
	if len(payload) == 0 || !json.Valid(payload) {
		payload, _ = json.Marshal(frame.Payload)
	}

	var entityID *string
	if id := frame.ID(); id != "" {
		entityID = &id
	}

	receivedAt := frame.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	return auditRow{
		ClientID:   w.clientID,
		Entity:     frame.Entity,
		Kind:       string(frame.Kind),
		EntityID:   entityID,
		Payload:    payload,
		ReceivedAt: receivedAt.UTC(),
	}
}

// flushWith writes the current batch.
func (w *AuditWriter) flushWith(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}

	batch := w.batch
	w.batch = make([]auditRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	if w.db == nil {
		w.batchMu.Lock()
		w.metrics.Skipped += int64(len(batch))
		w.metrics.Flushes++
		w.batchMu.Unlock()
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if ctx.Err() != nil {
		// Stop cancelled the writer context; the final flush still needs one.
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), w.cfg.FlushInterval)
		defer cancel()
	}

	start := time.Now()
	if err := w.batchInsert(ctx, batch); err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch))
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed audit rows",
		"count", len(batch),
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch.
func (w *AuditWriter) batchInsert(ctx context.Context, rows []auditRow) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertAudit, r.ClientID, r.Entity, r.Kind, r.EntityID, r.Payload, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return nil
}
