package storage

import (
	"context"
	"time"

	"github.com/finvault/mybank/pkg/models"
)

// TransferStore defines the interface for transfer record persistence and
// for the atomic transfer commit.
type TransferStore interface {
	// GetTransferRecord retrieves a transfer record by its key (the
	// idempotency key, or the transaction id when none was supplied).
	GetTransferRecord(ctx context.Context, key string) (*models.TransferRecord, error)

	// CreateTransferRecord persists a new PENDING record, failing with
	// ErrRecordExists if the key is already taken.
	CreateTransferRecord(ctx context.Context, record *models.TransferRecord) error

	// FinishTransferRecord moves a PENDING record to a terminal status,
	// failing with ErrRecordFinished if it is no longer PENDING.
	FinishTransferRecord(ctx context.Context, key string, status models.TransferStatus, completedAt time.Time) error

	// CommitTransfer applies the transfer as one atomic unit: debit the
	// source, credit the destination (both conditional on the versions the
	// caller read) and mark the record COMPLETED. Either everything
	// commits or nothing does.
	CommitTransfer(ctx context.Context, record *models.TransferRecord, from, to *models.Account) error

	// GetStuckTransferRecords retrieves records left PENDING for longer
	// than maxAge, for the sweeper.
	GetStuckTransferRecords(ctx context.Context, maxAge time.Duration) ([]models.TransferRecord, error)
}
