package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/storefront/internal/checkout"
	"github.com/rickgao/storefront/internal/metrics"
)

const insertAttempt = `
	INSERT INTO checkout_attempts
		(attempt_id, product_id, buyer_id, amount, currency, state, charge_id, order_id, error, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	ON CONFLICT (attempt_id) DO NOTHING
`

// DB is the subset of *pgxpool.Pool the writer uses.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Config holds writer configuration.
type Config struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:    256,
		BatchSize:     50,
		FlushInterval: time.Second,
	}
}

// Stats counts writer activity.
type Stats struct {
	Inserts   int64
	Conflicts int64
	Dropped   int64
	Errors    int64
	Flushes   int64
}

type attemptRow struct {
	AttemptID  string
	ProductID  string
	BuyerID    string
	Amount     int64
	Currency   string
	State      string
	ChargeID   *string
	OrderID    *string
	Error      *string
	StartedAt  *time.Time
	FinishedAt time.Time
}

// Writer buffers checkout attempts and writes them in batches.
type Writer struct {
	cfg     Config
	db      DB
	metrics *metrics.Metrics
	logger  *slog.Logger

	input chan checkout.Attempt

	batch   []attemptRow
	batchMu sync.Mutex
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWriter creates a Writer. m may be nil.
func NewWriter(cfg Config, db DB, m *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	return &Writer{
		cfg:     cfg,
		db:      db,
		metrics: m,
		logger:  logger,
		input:   make(chan checkout.Attempt, cfg.BufferSize),
		batch:   make([]attemptRow, 0, cfg.BatchSize),
	}
}

// Record queues a for writing. It never blocks.
func (w *Writer) Record(a checkout.Attempt) {
	select {
	case w.input <- a:
	default:
		w.batchMu.Lock()
		w.stats.Dropped++
		w.batchMu.Unlock()
		w.metrics.LedgerDropped(1)
		w.logger.Warn("ledger buffer full, dropping checkout attempt", "attempt_id", a.ID, "state", a.State)
	}
}

// Start begins consuming attempts and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.consumeLoop()

	w.logger.Info("ledger writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains queued attempts, flushes them and shuts down.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping ledger writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("ledger writer stop timed out")
		return ctx.Err()
	}

drain:
	for {
		select {
		case a := <-w.input:
			w.add(a)
		default:
			break drain
		}
	}
	w.flush(ctx)

	w.logger.Info("ledger writer stopped")
	return nil
}

// Stats returns current counters.
func (w *Writer) Stats() Stats {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.stats
}

func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case a := <-w.input:
			if w.add(a) {
				w.flush(w.ctx)
			}
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends a to the batch and reports whether the batch is full.
func (w *Writer) add(a checkout.Attempt) bool {
	row := transform(a)

	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(a checkout.Attempt) attemptRow {
	row := attemptRow{
		AttemptID:  a.ID,
		ProductID:  a.ProductID,
		BuyerID:    a.BuyerID,
		Amount:     a.Amount,
		Currency:   a.Currency,
		State:      a.State.String(),
		ChargeID:   nullable(a.ChargeID),
		OrderID:    nullable(a.OrderID),
		Error:      nullable(a.Error),
		FinishedAt: a.FinishedAt.UTC(),
	}
	if !a.StartedAt.IsZero() {
		started := a.StartedAt.UTC()
		row.StartedAt = &started
	}
	return row
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// flush writes the current batch to the database.
func (w *Writer) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]attemptRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("ledger batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.stats.Errors++
		w.stats.Dropped += int64(len(batch))
		w.batchMu.Unlock()
		w.metrics.LedgerDropped(len(batch))
		return
	}

	inserted := len(batch) - conflicts
	w.batchMu.Lock()
	w.stats.Inserts += int64(inserted)
	w.stats.Conflicts += int64(conflicts)
	w.stats.Flushes++
	w.batchMu.Unlock()
	w.metrics.LedgerWritten(inserted)

	w.logger.Debug("flushed checkout attempts",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []attemptRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertAttempt,
			r.AttemptID, r.ProductID, r.BuyerID, r.Amount, r.Currency, r.State,
			r.ChargeID, r.OrderID, r.Error, r.StartedAt, r.FinishedAt,
		)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, r := range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, fmt.Errorf("insert attempt %s: %w", r.AttemptID, err)
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
