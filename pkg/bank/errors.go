package bank

import (
	"errors"

	"github.com/finvault/mybank/pkg/storage"
)

var (
	// ErrInvalidAmount is returned when an operation amount is zero or
	// negative.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInvalidOwnerName is returned when an account owner name is too
	// short.
	ErrInvalidOwnerName = errors.New("owner name must have at least 3 characters")

	// ErrInvalidOpeningBalance is returned when an opening balance is
	// negative.
	ErrInvalidOpeningBalance = errors.New("opening balance must not be negative")

	// ErrAccountNotFound is returned when a referenced account does not
	// exist.
	ErrAccountNotFound = storage.ErrAccountNotFound

	// ErrAccountNotActive is returned when a mutating operation targets a
	// FROZEN or CLOSED account.
	ErrAccountNotActive = errors.New("account is not active")

	// ErrInsufficientFunds is returned when a withdrawal or transfer would
	// take the source balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrSameAccountTransfer is returned when a transfer names the same
	// account on both sides.
	ErrSameAccountTransfer = errors.New("cannot transfer to the same account")

	// ErrActionNotAllowed is returned when a status transition violates
	// the account lifecycle rules.
	ErrActionNotAllowed = errors.New("action not allowed")

	// ErrLockConflict is returned when the commit retry budget is
	// exhausted by concurrent mutations. Deposits, withdrawals and status
	// changes are safe to resubmit as-is. A keyed transfer is not: its
	// record is already FAILED, so a resubmission with the same key
	// replays that verdict; Transfer wraps this error with the retry
	// guidance.
	ErrLockConflict = errors.New("account contention")
)
