package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/finvault/mybank/pkg/audit"
	"github.com/finvault/mybank/pkg/events"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
	"github.com/google/uuid"
)

// maxCommitAttempts bounds the compare-and-swap retry loop around balance
// writes. Exhaustion surfaces ErrLockConflict, which the caller may retry.
const maxCommitAttempts = 3

// Service is the transfer engine. It owns every balance mutation: accounts
// are only ever written here, under the store's version CAS discipline, and
// every completed movement emits a completion event for the reconciliation
// pipeline.
type Service struct {
	accounts  storage.AccountStore
	transfers storage.TransferStore
	publisher events.Publisher
	logger    *slog.Logger
}

// New creates a transfer engine. The publisher may be nil for wirings that
// never complete transfers or deposits (the sweeper).
func New(accounts storage.AccountStore, transfers storage.TransferStore, publisher events.Publisher, logger *slog.Logger) *Service {
	return &Service{
		accounts:  accounts,
		transfers: transfers,
		publisher: publisher,
		logger:    logger,
	}
}

// CreateAccount opens a new ACTIVE account with a non-negative opening
// balance.
func (s *Service) CreateAccount(ctx context.Context, ownerName string, openingBalance int64) (account *models.Account, err error) {
	start := time.Now()
	defer func() { audit.Record(s.logger, "CREATE_ACCOUNT", "", start, err) }()

	ownerName = strings.TrimSpace(ownerName)
	if len(ownerName) < 3 {
		return nil, ErrInvalidOwnerName
	}
	if openingBalance < 0 {
		return nil, ErrInvalidOpeningBalance
	}

	account = &models.Account{
		ID:        uuid.New().String(),
		OwnerName: ownerName,
		Balance:   openingBalance,
		Status:    models.ACTIVE,
		Version:   1,
		CreatedAt: time.Now().UTC(),
	}

	return s.accounts.CreateAccount(ctx, account)
}

// GetAccount retrieves an account by id.
func (s *Service) GetAccount(ctx context.Context, id string) (account *models.Account, err error) {
	start := time.Now()
	defer func() { audit.Record(s.logger, "GET_ACCOUNT", id, start, err) }()

	return s.accounts.GetAccount(ctx, id)
}

// Deposit adds amount to an ACTIVE account and publishes a deposit
// completion event. The event is best effort: the balance write is already
// durable, so a publish failure is logged and swallowed.
func (s *Service) Deposit(ctx context.Context, id string, amount int64) (account *models.Account, err error) {
	start := time.Now()
	defer func() { audit.Record(s.logger, "DEPOSIT", id, start, err) }()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		acct, err := s.accounts.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		if acct.Status != models.ACTIVE {
			return nil, fmt.Errorf("account %s has status %s: %w", id, acct.Status, ErrAccountNotActive)
		}

		newBalance := acct.Balance + amount
		err = s.accounts.UpdateBalance(ctx, id, newBalance, acct.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		acct.Balance = newBalance
		acct.Version++
		s.publishDeposit(ctx, id, amount)
		return acct, nil
	}

	return nil, ErrLockConflict
}

// Withdraw removes amount from an ACTIVE account. The resulting balance
// must stay non-negative.
func (s *Service) Withdraw(ctx context.Context, id string, amount int64) (account *models.Account, err error) {
	start := time.Now()
	defer func() { audit.Record(s.logger, "WITHDRAWAL", id, start, err) }()

	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		acct, err := s.accounts.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		if acct.Status != models.ACTIVE {
			return nil, fmt.Errorf("account %s has status %s: %w", id, acct.Status, ErrAccountNotActive)
		}

		newBalance := acct.Balance - amount
		if newBalance < 0 {
			return nil, ErrInsufficientFunds
		}

		err = s.accounts.UpdateBalance(ctx, id, newBalance, acct.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		acct.Balance = newBalance
		acct.Version++
		return acct, nil
	}

	return nil, ErrLockConflict
}

// ChangeStatus transitions an account's status. CLOSED is terminal and
// requires a zero balance at the moment of transition; ACTIVE and FROZEN
// move freely between each other.
func (s *Service) ChangeStatus(ctx context.Context, id string, status models.AccountStatus) (account *models.Account, err error) {
	start := time.Now()
	defer func() { audit.Record(s.logger, "CHANGE_ACCOUNT_STATUS", id, start, err) }()

	for attempt := 0; attempt < maxCommitAttempts; attempt++ {
		acct, err := s.accounts.GetAccount(ctx, id)
		if err != nil {
			return nil, err
		}
		if acct.Status == models.CLOSED {
			return nil, fmt.Errorf("account %s is closed: %w", id, ErrActionNotAllowed)
		}
		if status == models.CLOSED && acct.Balance != 0 {
			return nil, fmt.Errorf("account %s balance must be zero to close: %w", id, ErrActionNotAllowed)
		}

		err = s.accounts.UpdateStatus(ctx, id, status, acct.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		acct.Status = status
		acct.Version++
		return acct, nil
	}

	return nil, ErrLockConflict
}

// publishDeposit emits a deposit completion event with a fresh transaction
// identity.
func (s *Service) publishDeposit(ctx context.Context, accountID string, amount int64) {
	if s.publisher == nil {
		return
	}

	event := events.DepositCompleted{
		TransactionID: uuid.New().String(),
		AccountID:     accountID,
		Amount:        amount,
		Timestamp:     time.Now().UTC(),
	}

	if err := s.publisher.Publish(ctx, events.DepositTopic, event.TransactionID, event); err != nil {
		s.logger.Error("failed to publish deposit event",
			"transaction_id", event.TransactionID,
			"account_id", accountID,
			"error", err,
		)
	}
}
