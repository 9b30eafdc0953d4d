package recon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/finvault/mybank/pkg/events"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
	"github.com/google/uuid"
)

// maxStatsAttempts bounds the retry loop around the daily stats version
// check. Each attempt re-reads the row, so exhaustion means sustained
// contention on one calendar date.
const maxStatsAttempts = 5

const (
	transactionEventType = "TRANSACTION"
	depositEventType     = "DEPOSIT"
)

// Pipeline reconciles completion events into the ledger. Every event
// produces one audit row, one DEBIT and one CREDIT posting summing to zero,
// a daily stats bump and a processed-event marker, written as a single
// atomic unit. Processing is idempotent under redelivery: the marker is the
// gate, checked up front and enforced again inside the commit.
type Pipeline struct {
	store  storage.ReconStore
	logger *slog.Logger

	// cashAccountID is the internal account debited for deposits, so that
	// deposit postings balance like transfers do.
	cashAccountID string
}

func New(store storage.ReconStore, cashAccountID string, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:         store,
		cashAccountID: cashAccountID,
		logger:        logger,
	}
}

// HandleTransaction consumes a raw transfer completion event.
func (p *Pipeline) HandleTransaction(ctx context.Context, body []byte) error {
	var event events.TransactionCompleted
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed transaction event: %w", err)
	}

	return p.reconcile(ctx, reconInput{
		transactionID:   event.TransactionID,
		sourceAccountID: event.SourceAccountID,
		targetAccountID: event.TargetAccountID,
		amount:          event.Amount,
		eventType:       transactionEventType,
		occurredAt:      event.Timestamp,
	})
}

// HandleDeposit consumes a raw deposit completion event. The debit leg is
// posted against the internal cash account.
func (p *Pipeline) HandleDeposit(ctx context.Context, body []byte) error {
	var event events.DepositCompleted
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("malformed deposit event: %w", err)
	}

	return p.reconcile(ctx, reconInput{
		transactionID:   event.TransactionID,
		sourceAccountID: p.cashAccountID,
		targetAccountID: event.AccountID,
		amount:          event.Amount,
		eventType:       depositEventType,
		occurredAt:      event.Timestamp,
	})
}

type reconInput struct {
	transactionID   string
	sourceAccountID string
	targetAccountID string
	amount          int64
	eventType       string
	occurredAt      time.Time
}

// reconcile applies one event's side effects exactly once. Duplicate
// deliveries return nil without writing anything; stats version races
// re-read and retry the whole unit.
func (p *Pipeline) reconcile(ctx context.Context, in reconInput) error {
	processed, err := p.store.ExistsProcessed(ctx, in.transactionID)
	if err != nil {
		return err
	}
	if processed {
		p.logger.Info("skipping already processed event",
			"transaction_id", in.transactionID,
			"event_type", in.eventType,
		)
		return nil
	}

	date := models.StatsDate(in.occurredAt)

	for attempt := 0; attempt < maxStatsAttempts; attempt++ {
		unit, err := p.buildUnit(ctx, in, date)
		if err != nil {
			return err
		}

		err = p.store.CommitReconciliation(ctx, unit)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if errors.Is(err, storage.ErrAlreadyProcessed) {
			// A concurrent delivery committed first.
			return nil
		}
		if err != nil {
			return fmt.Errorf("reconciliation commit failed: %w", err)
		}

		p.logger.Info("reconciled event",
			"transaction_id", in.transactionID,
			"event_type", in.eventType,
			"amount", in.amount,
			"date", date,
		)
		return nil
	}

	return fmt.Errorf("daily stats contention for %s reconciling %s", date, in.transactionID)
}

// buildUnit assembles the atomic write set for one event, reading the
// current stats row to compute the post-increment counters.
func (p *Pipeline) buildUnit(ctx context.Context, in reconInput, date string) (*storage.ReconUnit, error) {
	stats, err := p.store.GetDailyStats(ctx, date)
	if err != nil {
		return nil, err
	}

	unit := &storage.ReconUnit{
		Audit: models.AuditRecord{
			ID:              uuid.New().String(),
			TransactionID:   in.transactionID,
			SourceAccountID: in.sourceAccountID,
			TargetAccountID: in.targetAccountID,
			Amount:          in.amount,
			EventType:       in.eventType,
			Timestamp:       time.Now().UTC(),
		},
		Debit: models.LedgerEntry{
			EntryID:       uuid.New().String(),
			TransactionID: in.transactionID,
			AccountID:     in.sourceAccountID,
			Amount:        -in.amount,
			EntryType:     models.DEBIT,
			Timestamp:     in.occurredAt,
		},
		Credit: models.LedgerEntry{
			EntryID:       uuid.New().String(),
			TransactionID: in.transactionID,
			AccountID:     in.targetAccountID,
			Amount:        in.amount,
			EntryType:     models.CREDIT,
			Timestamp:     in.occurredAt,
		},
		Marker: models.ProcessedEvent{
			TransactionID: in.transactionID,
			ProcessedAt:   time.Now().UTC(),
		},
	}

	if stats == nil {
		unit.StatsIsNew = true
		unit.Stats = models.DailyStats{
			Date:        date,
			TotalCount:  1,
			TotalVolume: in.amount,
			Version:     1,
		}
		return unit, nil
	}

	unit.StatsVersion = stats.Version
	unit.Stats = models.DailyStats{
		Date:        date,
		TotalCount:  stats.TotalCount + 1,
		TotalVolume: stats.TotalVolume + in.amount,
		Version:     stats.Version + 1,
	}
	return unit, nil
}
