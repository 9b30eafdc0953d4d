package bank

import (
	"context"
	"errors"
	"time"

	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
)

// SweepStuckTransfers marks PENDING transfer records older than maxAge as
// FAILED. A record stuck in PENDING means the process died between creating
// the record and committing the balance move; the commit itself is atomic,
// so the balances are untouched and FAILED is the truthful terminal state.
// Returns the number of records swept.
func (s *Service) SweepStuckTransfers(ctx context.Context, maxAge time.Duration) (swept int, err error) {
	records, err := s.transfers.GetStuckTransferRecords(ctx, maxAge)
	if err != nil {
		return 0, err
	}

	for _, record := range records {
		err := s.transfers.FinishTransferRecord(ctx, record.Key, models.FAILED, time.Now().UTC())
		if errors.Is(err, storage.ErrRecordFinished) {
			// Completed or failed between the query and the write.
			continue
		}
		if err != nil {
			return swept, err
		}

		s.logger.Warn("swept stuck transfer record",
			"transaction_id", record.TransactionID,
			"created_at", record.CreatedAt,
		)
		swept++
	}

	return swept, nil
}
