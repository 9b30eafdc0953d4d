package bank

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/finvault/mybank/pkg/audit"
	"github.com/finvault/mybank/pkg/events"
	"github.com/finvault/mybank/pkg/metrics"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
	"github.com/google/uuid"
)

// TransferRequest describes a balance movement between two accounts. The
// idempotency key is optional; when present, repeated submissions replay
// the original outcome instead of re-executing.
type TransferRequest struct {
	FromAccountID  string `json:"from_account_id"`
	ToAccountID    string `json:"to_account_id"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TransferResponse reports the terminal state of a transfer record.
type TransferResponse struct {
	TransactionID string                `json:"transaction_id"`
	FromAccountID string                `json:"from_account_id"`
	ToAccountID   string                `json:"to_account_id"`
	Amount        int64                 `json:"amount"`
	Timestamp     time.Time             `json:"timestamp"`
	Status        models.TransferStatus `json:"status"`
}

// transferOutcome is the explicit result of the locking/mutation step.
// Exactly one of completed, alreadyFinished or reason is meaningful: the
// caller persists FAILED for a reason, replays the record state for
// alreadyFinished, and publishes for completed.
type transferOutcome struct {
	completed       bool
	alreadyFinished bool
	reason          error
}

func completed() transferOutcome          { return transferOutcome{completed: true} }
func failed(reason error) transferOutcome { return transferOutcome{reason: reason} }
func alreadyFinished() transferOutcome    { return transferOutcome{alreadyFinished: true} }

// Transfer executes a balance movement with idempotency, deterministic
// ordering and an always-terminal record:
//
//  1. An existing record for the idempotency key short-circuits to its
//     recorded state without touching balances.
//  2. A PENDING record is created before any account is read, so a crash
//     mid-operation leaves discoverable evidence.
//  3. The commit debits, credits and completes the record in one atomic
//     unit.
//  4. Any failure after record creation marks the record FAILED before the
//     error surfaces.
func (s *Service) Transfer(ctx context.Context, req TransferRequest) (resp *TransferResponse, err error) {
	start := time.Now()
	defer func() { audit.Record(s.logger, "TRANSFER", req.FromAccountID, start, err) }()

	if req.IdempotencyKey != "" {
		record, err := s.transfers.GetTransferRecord(ctx, req.IdempotencyKey)
		if err == nil {
			metrics.TransfersTotal.WithLabelValues("replayed").Inc()
			return responseFromRecord(record), nil
		}
		if !errors.Is(err, storage.ErrRecordNotFound) {
			return nil, err
		}
	}

	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, ErrSameAccountTransfer
	}

	transactionID := uuid.New().String()
	key := req.IdempotencyKey
	if key == "" {
		key = transactionID
	}

	record := &models.TransferRecord{
		Key:           key,
		TransactionID: transactionID,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount,
		Status:        models.PENDING,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.transfers.CreateTransferRecord(ctx, record); err != nil {
		if errors.Is(err, storage.ErrRecordExists) {
			// A concurrent request with the same key won the race; serve
			// its record instead of executing a second mutation.
			existing, getErr := s.transfers.GetTransferRecord(ctx, key)
			if getErr != nil {
				return nil, getErr
			}
			metrics.TransfersTotal.WithLabelValues("replayed").Inc()
			return responseFromRecord(existing), nil
		}
		return nil, err
	}

	outcome := s.executeTransfer(ctx, record)

	switch {
	case outcome.completed:
		metrics.TransfersTotal.WithLabelValues("completed").Inc()
		s.publishTransaction(ctx, record)
		return responseFromRecord(record), nil

	case outcome.alreadyFinished:
		finished, getErr := s.transfers.GetTransferRecord(ctx, key)
		if getErr != nil {
			return nil, getErr
		}
		metrics.TransfersTotal.WithLabelValues("replayed").Inc()
		return responseFromRecord(finished), nil

	default:
		metrics.TransfersTotal.WithLabelValues("failed").Inc()
		if finishErr := s.transfers.FinishTransferRecord(ctx, key, models.FAILED, time.Now().UTC()); finishErr != nil {
			s.logger.Error("failed to mark transfer record FAILED",
				"transaction_id", transactionID,
				"error", finishErr,
			)
		}
		return nil, outcome.reason
	}
}

// executeTransfer runs the read-validate-commit loop. Reads happen in
// sorted account id order, and the commit is conditional on both versions;
// a lost race re-reads and retries until the attempt budget runs out.
func (s *Service) executeTransfer(ctx context.Context, record *models.TransferRecord) transferOutcome {
	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		from, to, err := s.loadTransferPair(ctx, record.FromAccountID, record.ToAccountID)
		if err != nil {
			return failed(err)
		}

		if from.Status != models.ACTIVE {
			return failed(fmt.Errorf("source account %s has status %s: %w", from.ID, from.Status, ErrAccountNotActive))
		}
		if to.Status != models.ACTIVE {
			return failed(fmt.Errorf("destination account %s has status %s: %w", to.ID, to.Status, ErrAccountNotActive))
		}
		if from.Balance-record.Amount < 0 {
			return failed(ErrInsufficientFunds)
		}

		err = s.transfers.CommitTransfer(ctx, record, from, to)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if errors.Is(err, storage.ErrRecordFinished) {
			return alreadyFinished()
		}
		if err != nil {
			return failed(fmt.Errorf("transfer commit failed: %w", err))
		}

		return completed()
	}

	// The record is about to be marked FAILED, so resubmitting with the
	// same key would only replay that verdict.
	return failed(fmt.Errorf("transfer not applied, retry with a new idempotency key: %w", ErrLockConflict))
}

// loadTransferPair reads both accounts in sorted id order and hands them
// back in from/to roles. The sorted order is the deadlock-avoidance
// discipline: concurrent transfers over overlapping accounts always touch
// them in the same relative order.
func (s *Service) loadTransferPair(ctx context.Context, fromID, toID string) (*models.Account, *models.Account, error) {
	firstID, secondID := fromID, toID
	if secondID < firstID {
		firstID, secondID = secondID, firstID
	}

	first, err := s.accounts.GetAccount(ctx, firstID)
	if err != nil {
		return nil, nil, err
	}
	second, err := s.accounts.GetAccount(ctx, secondID)
	if err != nil {
		return nil, nil, err
	}

	if first.ID == fromID {
		return first, second, nil
	}
	return second, first, nil
}

// publishTransaction emits the completion event for a committed transfer,
// keyed by the record's transaction identity. Failure is logged, never
// fatal: balances are already durable.
func (s *Service) publishTransaction(ctx context.Context, record *models.TransferRecord) {
	if s.publisher == nil {
		return
	}

	timestamp := time.Now().UTC()
	if record.CompletedAt != nil {
		timestamp = *record.CompletedAt
	}

	event := events.TransactionCompleted{
		TransactionID:   record.TransactionID,
		SourceAccountID: record.FromAccountID,
		TargetAccountID: record.ToAccountID,
		Amount:          record.Amount,
		Timestamp:       timestamp,
	}

	if err := s.publisher.Publish(ctx, events.TransactionTopic, event.TransactionID, event); err != nil {
		s.logger.Error("failed to publish transaction event",
			"transaction_id", record.TransactionID,
			"error", err,
		)
	}
}

// responseFromRecord reconstructs the client-facing response from a
// record's current state, for both fresh completions and replays.
func responseFromRecord(record *models.TransferRecord) *TransferResponse {
	timestamp := record.CreatedAt
	if record.CompletedAt != nil {
		timestamp = *record.CompletedAt
	}

	return &TransferResponse{
		TransactionID: record.TransactionID,
		FromAccountID: record.FromAccountID,
		ToAccountID:   record.ToAccountID,
		Amount:        record.Amount,
		Timestamp:     timestamp,
		Status:        record.Status,
	}
}
