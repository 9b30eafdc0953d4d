package storage

import (
	"context"

	"github.com/finvault/mybank/pkg/models"
)

// ReconUnit is everything one reconciled event writes: the audit row, the
// two ledger postings, the bumped daily stats and the processed-event
// marker. The store commits it as a single atomic unit.
type ReconUnit struct {
	Audit  models.AuditRecord
	Debit  models.LedgerEntry
	Credit models.LedgerEntry

	// Stats carries the post-increment counters. StatsVersion is the
	// version that was read before incrementing; StatsIsNew marks a date
	// row that does not exist yet.
	Stats        models.DailyStats
	StatsVersion int64
	StatsIsNew   bool

	Marker models.ProcessedEvent
}

// LedgerReader defines the read side of the ledger, for inspection
// endpoints.
type LedgerReader interface {
	// ListLedgerEntries retrieves the postings written for a transaction.
	ListLedgerEntries(ctx context.Context, transactionID string) ([]models.LedgerEntry, error)
}

// ReconStore defines the persistence interface for the reconciliation
// pipeline.
type ReconStore interface {
	// ExistsProcessed reports whether a processed-event marker exists for
	// the transaction id.
	ExistsProcessed(ctx context.Context, transactionID string) (bool, error)

	// GetDailyStats retrieves the stats row for a date, or nil when the
	// date has no row yet.
	GetDailyStats(ctx context.Context, date string) (*models.DailyStats, error)

	// CommitReconciliation writes the whole unit atomically. A stats
	// version race surfaces as ErrVersionConflict; a marker collision
	// surfaces as ErrAlreadyProcessed. In both cases nothing was written.
	CommitReconciliation(ctx context.Context, unit *ReconUnit) error
}
