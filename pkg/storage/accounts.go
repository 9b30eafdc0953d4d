package storage

import (
	"context"

	"github.com/finvault/mybank/pkg/models"
)

// AccountStore defines the interface for account persistence.
//
// The store has no held row locks; exclusive access is realized as
// compare-and-swap on the account's version. Every write names the version
// it read, and a concurrent mutation surfaces as ErrVersionConflict.
type AccountStore interface {
	// GetAccount retrieves an account by its id.
	GetAccount(ctx context.Context, id string) (*models.Account, error)

	// CreateAccount persists a new account, failing if the id is taken.
	CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error)

	// UpdateBalance writes a new balance for the account, conditional on
	// the version the caller read.
	UpdateBalance(ctx context.Context, id string, newBalance int64, expectedVersion int64) error

	// UpdateStatus writes a new status for the account, conditional on the
	// version the caller read.
	UpdateStatus(ctx context.Context, id string, status models.AccountStatus, expectedVersion int64) error
}
