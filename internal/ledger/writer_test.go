package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/storefront/internal/checkout"
	"github.com/rickgao/storefront/internal/metrics"
)

// fakeDB records queued batches. Rows whose attempt id was already seen
// affect zero rows, like ON CONFLICT DO NOTHING.
type fakeDB struct {
	mu      sync.Mutex
	seen    map[string]bool
	batches int
	rows    [][]any
	err     error
	execSQL []string
}

func newFakeDB() *fakeDB {
	return &fakeDB{seen: make(map[string]bool)}
}

func (f *fakeDB) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches++

	res := &fakeResults{err: f.err}
	for _, q := range b.QueuedQueries {
		id := q.Arguments[0].(string)
		affected := int64(1)
		if f.seen[id] {
			affected = 0
		}
		f.seen[id] = true
		f.rows = append(f.rows, q.Arguments)
		res.affected = append(res.affected, affected)
	}
	return res
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execSQL = append(f.execSQL, sql)
	return pgconn.NewCommandTag("CREATE TABLE"), f.err
}

func (f *fakeDB) rowCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

type fakeResults struct {
	affected []int64
	i        int
	err      error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	n := r.affected[r.i]
	r.i++
	if n == 0 {
		return pgconn.NewCommandTag("INSERT 0 0"), nil
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not implemented") }
func (r *fakeResults) QueryRow() pgx.Row         { return nil }
func (r *fakeResults) Close() error              { return nil }

func attempt(id string, state checkout.State) checkout.Attempt {
	return checkout.Attempt{
		ID:         id,
		ProductID:  "p1",
		BuyerID:    "buyer-sub",
		Amount:     1999,
		Currency:   "USD",
		State:      state,
		ChargeID:   "ch_1",
		StartedAt:  time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 1, 15, 12, 0, 2, 0, time.UTC),
	}
}

func TestTransform(t *testing.T) {
	a := attempt("a1", checkout.StateSucceeded)
	a.OrderID = "o1"

	row := transform(a)
	assert.Equal(t, "a1", row.AttemptID)
	assert.Equal(t, "succeeded", row.State)
	require.NotNil(t, row.ChargeID)
	assert.Equal(t, "ch_1", *row.ChargeID)
	require.NotNil(t, row.OrderID)
	assert.Nil(t, row.Error)
	require.NotNil(t, row.StartedAt)
	assert.Equal(t, a.FinishedAt, row.FinishedAt)
}

func TestTransformFailedWithoutStart(t *testing.T) {
	a := attempt("a2", checkout.StateFailed)
	a.StartedAt = time.Time{}
	a.ChargeID = ""
	a.Error = "charge: card declined"

	row := transform(a)
	assert.Equal(t, "failed", row.State)
	assert.Nil(t, row.StartedAt)
	assert.Nil(t, row.ChargeID)
	require.NotNil(t, row.Error)
	assert.Equal(t, "charge: card declined", *row.Error)
}

func TestWriterBatchesOnSize(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(Config{BufferSize: 16, BatchSize: 2, FlushInterval: time.Hour}, db, metrics.New(), nil)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	w.Record(attempt("a1", checkout.StateSucceeded))
	w.Record(attempt("a2", checkout.StateFailed))

	require.Eventually(t, func() bool { return db.rowCount() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), w.Stats().Inserts)
}

func TestWriterFlushesOnStop(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(Config{BufferSize: 16, BatchSize: 100, FlushInterval: time.Hour}, db, nil, nil)
	require.NoError(t, w.Start(context.Background()))

	w.Record(attempt("a1", checkout.StateSucceeded))
	w.Record(attempt("a1", checkout.StateSucceeded))
	w.Record(attempt("a2", checkout.StateFailed))

	require.NoError(t, w.Stop(context.Background()))

	stats := w.Stats()
	assert.Equal(t, int64(2), stats.Inserts)
	assert.Equal(t, int64(1), stats.Conflicts, "replayed attempt id must not insert twice")
	assert.Equal(t, 3, db.rowCount())
}

func TestWriterFlushesOnInterval(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(Config{BufferSize: 16, BatchSize: 100, FlushInterval: 10 * time.Millisecond}, db, nil, nil)
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop(context.Background())

	w.Record(attempt("a1", checkout.StateSucceeded))
	require.Eventually(t, func() bool { return db.rowCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRecordDropsWhenFull(t *testing.T) {
	db := newFakeDB()
	w := NewWriter(Config{BufferSize: 1, BatchSize: 10, FlushInterval: time.Hour}, db, metrics.New(), nil)

	// not started: the buffer fills up
	w.Record(attempt("a1", checkout.StateSucceeded))
	w.Record(attempt("a2", checkout.StateSucceeded))
	w.Record(attempt("a3", checkout.StateSucceeded))

	assert.Equal(t, int64(2), w.Stats().Dropped)
}

func TestInsertErrorCountsDropped(t *testing.T) {
	db := newFakeDB()
	db.err = errors.New("connection reset")
	w := NewWriter(Config{BufferSize: 16, BatchSize: 100, FlushInterval: time.Hour}, db, nil, nil)
	require.NoError(t, w.Start(context.Background()))

	w.Record(attempt("a1", checkout.StateSucceeded))
	require.NoError(t, w.Stop(context.Background()))

	stats := w.Stats()
	assert.Equal(t, int64(1), stats.Errors)
	assert.Equal(t, int64(1), stats.Dropped)
	assert.Equal(t, int64(0), stats.Inserts)
}

func TestMigrate(t *testing.T) {
	db := newFakeDB()
	require.NoError(t, Migrate(context.Background(), db))
	require.Len(t, db.execSQL, 1)
	assert.Contains(t, db.execSQL[0], "CREATE TABLE IF NOT EXISTS checkout_attempts")

	db.err = errors.New("permission denied")
	assert.Error(t, Migrate(context.Background(), db))
}

func TestWriterImplementsRecorder(t *testing.T) {
	var _ checkout.Recorder = NewWriter(DefaultConfig(), newFakeDB(), nil, nil)
}
