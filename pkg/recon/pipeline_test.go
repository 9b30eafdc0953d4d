package recon

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/finvault/mybank/pkg/events"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeReconStore applies units to in-memory state with the same conflict
// semantics as the DynamoDB store. conflicts injects version races: each
// one bumps the stored stats version before rejecting the commit, like a
// concurrent consumer winning the write.
type fakeReconStore struct {
	mu        sync.Mutex
	processed map[string]bool
	stats     map[string]*models.DailyStats
	units     []*storage.ReconUnit
	conflicts int

	// markerRace makes the commit report an existing marker even though
	// the up-front gate saw none.
	markerRace bool
}

func newFakeReconStore() *fakeReconStore {
	return &fakeReconStore{
		processed: make(map[string]bool),
		stats:     make(map[string]*models.DailyStats),
	}
}

func (f *fakeReconStore) ExistsProcessed(ctx context.Context, transactionID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.processed[transactionID], nil
}

func (f *fakeReconStore) GetDailyStats(ctx context.Context, date string) (*models.DailyStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats, ok := f.stats[date]
	if !ok {
		return nil, nil
	}
	copied := *stats
	return &copied, nil
}

func (f *fakeReconStore) CommitReconciliation(ctx context.Context, unit *storage.ReconUnit) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.markerRace || f.processed[unit.Marker.TransactionID] {
		return storage.ErrAlreadyProcessed
	}

	if f.conflicts > 0 {
		f.conflicts--
		stored, ok := f.stats[unit.Stats.Date]
		if !ok {
			stored = &models.DailyStats{Date: unit.Stats.Date}
			f.stats[unit.Stats.Date] = stored
		}
		stored.Version++
		return storage.ErrVersionConflict
	}

	stored, ok := f.stats[unit.Stats.Date]
	if unit.StatsIsNew {
		if ok {
			return storage.ErrVersionConflict
		}
	} else {
		if !ok || stored.Version != unit.StatsVersion {
			return storage.ErrVersionConflict
		}
	}

	copied := unit.Stats
	f.stats[unit.Stats.Date] = &copied
	f.processed[unit.Marker.TransactionID] = true
	f.units = append(f.units, unit)
	return nil
}

func newTestPipeline(store storage.ReconStore) *Pipeline {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, "cash-account", logger)
}

func transactionBody(t *testing.T, event events.TransactionCompleted) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	require.NoError(t, err)
	return body
}

func TestHandleTransaction(t *testing.T) {
	occurredAt := time.Date(2026, 3, 14, 15, 9, 2, 0, time.UTC)
	event := events.TransactionCompleted{
		TransactionID:   "tx-1",
		SourceAccountID: "acct-a",
		TargetAccountID: "acct-b",
		Amount:          300,
		Timestamp:       occurredAt,
	}

	t.Run("Success", func(t *testing.T) {
		store := newFakeReconStore()
		pipeline := newTestPipeline(store)

		err := pipeline.HandleTransaction(context.Background(), transactionBody(t, event))

		require.NoError(t, err)
		require.Len(t, store.units, 1)
		unit := store.units[0]

		// The two legs balance to zero.
		assert.Equal(t, int64(0), unit.Debit.Amount+unit.Credit.Amount)
		assert.Equal(t, int64(-300), unit.Debit.Amount)
		assert.Equal(t, "acct-a", unit.Debit.AccountID)
		assert.Equal(t, models.DEBIT, unit.Debit.EntryType)
		assert.Equal(t, int64(300), unit.Credit.Amount)
		assert.Equal(t, "acct-b", unit.Credit.AccountID)
		assert.Equal(t, models.CREDIT, unit.Credit.EntryType)
		assert.Equal(t, "tx-1", unit.Debit.TransactionID)
		assert.Equal(t, "tx-1", unit.Credit.TransactionID)

		assert.Equal(t, "tx-1", unit.Audit.TransactionID)
		assert.Equal(t, "TRANSACTION", unit.Audit.EventType)
		assert.Equal(t, "tx-1", unit.Marker.TransactionID)

		stats := store.stats["2026-03-14"]
		require.NotNil(t, stats)
		assert.Equal(t, int64(1), stats.TotalCount)
		assert.Equal(t, int64(300), stats.TotalVolume)
	})

	t.Run("Duplicate Delivery Is A No-Op", func(t *testing.T) {
		store := newFakeReconStore()
		pipeline := newTestPipeline(store)

		require.NoError(t, pipeline.HandleTransaction(context.Background(), transactionBody(t, event)))
		require.NoError(t, pipeline.HandleTransaction(context.Background(), transactionBody(t, event)))

		assert.Len(t, store.units, 1)
		assert.Equal(t, int64(1), store.stats["2026-03-14"].TotalCount)
	})

	t.Run("Marker Race Inside Commit", func(t *testing.T) {
		// A concurrent delivery lands between the up-front gate and the
		// commit; the conditional marker write rejects the unit and the
		// handler treats it as success.
		store := newFakeReconStore()
		store.markerRace = true
		pipeline := newTestPipeline(store)

		err := pipeline.HandleTransaction(context.Background(), transactionBody(t, event))

		assert.NoError(t, err)
		assert.Empty(t, store.units)
	})

	t.Run("Stats Contention Is Retried", func(t *testing.T) {
		store := newFakeReconStore()
		store.conflicts = 2
		pipeline := newTestPipeline(store)

		err := pipeline.HandleTransaction(context.Background(), transactionBody(t, event))

		require.NoError(t, err)
		require.Len(t, store.units, 1)
		stats := store.stats["2026-03-14"]
		assert.Equal(t, int64(1), stats.TotalCount)
		assert.Equal(t, int64(300), stats.TotalVolume)
	})

	t.Run("Stats Contention Exhausts Retries", func(t *testing.T) {
		store := newFakeReconStore()
		store.conflicts = maxStatsAttempts
		pipeline := newTestPipeline(store)

		err := pipeline.HandleTransaction(context.Background(), transactionBody(t, event))

		assert.Error(t, err)
		assert.Empty(t, store.units)
	})

	t.Run("Malformed Body", func(t *testing.T) {
		store := newFakeReconStore()
		pipeline := newTestPipeline(store)

		err := pipeline.HandleTransaction(context.Background(), []byte("{not json"))

		assert.Error(t, err)
	})
}

func TestHandleDeposit(t *testing.T) {
	occurredAt := time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC)
	event := events.DepositCompleted{
		TransactionID: "dep-1",
		AccountID:     "acct-b",
		Amount:        500,
		Timestamp:     occurredAt,
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)

	store := newFakeReconStore()
	pipeline := newTestPipeline(store)

	require.NoError(t, pipeline.HandleDeposit(context.Background(), body))

	require.Len(t, store.units, 1)
	unit := store.units[0]

	// Deposits debit the internal cash account so the legs still balance.
	assert.Equal(t, "cash-account", unit.Debit.AccountID)
	assert.Equal(t, int64(-500), unit.Debit.Amount)
	assert.Equal(t, "acct-b", unit.Credit.AccountID)
	assert.Equal(t, int64(500), unit.Credit.Amount)
	assert.Equal(t, int64(0), unit.Debit.Amount+unit.Credit.Amount)
	assert.Equal(t, "DEPOSIT", unit.Audit.EventType)
}

func TestDailyStatsAccumulate(t *testing.T) {
	store := newFakeReconStore()
	pipeline := newTestPipeline(store)

	day := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	for i, tx := range []string{"tx-1", "tx-2", "tx-3"} {
		event := events.TransactionCompleted{
			TransactionID:   tx,
			SourceAccountID: "acct-a",
			TargetAccountID: "acct-b",
			Amount:          100,
			Timestamp:       day.Add(time.Duration(i) * time.Hour),
		}
		body, err := json.Marshal(event)
		require.NoError(t, err)
		require.NoError(t, pipeline.HandleTransaction(context.Background(), body))
	}

	stats := store.stats["2026-03-14"]
	require.NotNil(t, stats)
	assert.Equal(t, int64(3), stats.TotalCount)
	assert.Equal(t, int64(300), stats.TotalVolume)

	// A transaction on another UTC date lands in its own bucket.
	event := events.TransactionCompleted{
		TransactionID:   "tx-4",
		SourceAccountID: "acct-a",
		TargetAccountID: "acct-b",
		Amount:          50,
		Timestamp:       time.Date(2026, 3, 15, 0, 0, 1, 0, time.UTC),
	}
	body, err := json.Marshal(event)
	require.NoError(t, err)
	require.NoError(t, pipeline.HandleTransaction(context.Background(), body))

	assert.Equal(t, int64(1), store.stats["2026-03-15"].TotalCount)
	assert.Equal(t, int64(3), store.stats["2026-03-14"].TotalCount)
}

var _ storage.ReconStore = (*fakeReconStore)(nil)
