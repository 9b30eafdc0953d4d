package models

import (
	"time"
)

// AccountStatus defines the lifecycle states of an account.
type AccountStatus string

const (
	ACTIVE AccountStatus = "ACTIVE"
	FROZEN AccountStatus = "FROZEN"
	CLOSED AccountStatus = "CLOSED"
)

// TransferStatus defines the possible states of a transfer record.
// A record moves PENDING -> COMPLETED or PENDING -> FAILED exactly once.
type TransferStatus string

const (
	PENDING   TransferStatus = "PENDING"
	COMPLETED TransferStatus = "COMPLETED"
	FAILED    TransferStatus = "FAILED"
)

// EntryType tags the two legs of a double-entry posting.
type EntryType string

const (
	DEBIT  EntryType = "DEBIT"
	CREDIT EntryType = "CREDIT"
)

// Account represents the internal domain model for a bank account.
// Balance is held in minor units (exact fixed point, never floating point)
// and must stay >= 0 at every committed state. Version backs the
// compare-and-swap discipline for every balance or status mutation.
type Account struct {
	ID        string        `json:"id" dynamodbav:"id"`
	OwnerName string        `json:"owner_name" dynamodbav:"owner_name"`
	Balance   int64         `json:"balance" dynamodbav:"balance"`
	Status    AccountStatus `json:"status" dynamodbav:"status"`
	Version   int64         `json:"version" dynamodbav:"version"`
	CreatedAt time.Time     `json:"created_at" dynamodbav:"created_at"`
}

// TransferRecord is the durable idempotency record for a transfer.
// Key is the client-supplied idempotency key when one was given, otherwise
// the generated transaction id; either way it is the table's primary key,
// which is what makes duplicate submissions collide.
//
// CreatedAt is stored as epoch seconds so the stuck-record index sorts
// numerically; string timestamps with variable-width fractions do not sort
// chronologically.
type TransferRecord struct {
	Key           string         `json:"key" dynamodbav:"id"`
	TransactionID string         `json:"transaction_id" dynamodbav:"transaction_id"`
	FromAccountID string         `json:"from_account_id" dynamodbav:"from_account_id"`
	ToAccountID   string         `json:"to_account_id" dynamodbav:"to_account_id"`
	Amount        int64          `json:"amount" dynamodbav:"amount"`
	Status        TransferStatus `json:"status" dynamodbav:"status"`
	CreatedAt     time.Time      `json:"created_at" dynamodbav:"created_at,unixtime"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty" dynamodbav:"completed_at,omitempty"`
}

// LedgerEntry represents a single leg in the double-entry ledger.
// Amount is signed: negative for DEBIT, positive for CREDIT, and the two
// legs of a transaction always sum to zero.
type LedgerEntry struct {
	EntryID       string    `json:"entry_id" dynamodbav:"entry_id"`
	TransactionID string    `json:"transaction_id" dynamodbav:"transaction_id"`
	AccountID     string    `json:"account_id" dynamodbav:"account_id"`
	Amount        int64     `json:"amount" dynamodbav:"amount"`
	EntryType     EntryType `json:"entry_type" dynamodbav:"entry_type"`
	Timestamp     time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// DailyStats accumulates reconciled traffic per UTC calendar date.
// Count and volume only ever increase; Version guards concurrent bumps.
type DailyStats struct {
	Date        string `json:"date" dynamodbav:"date"`
	TotalCount  int64  `json:"total_count" dynamodbav:"total_count"`
	TotalVolume int64  `json:"total_volume" dynamodbav:"total_volume"`
	Version     int64  `json:"version" dynamodbav:"version"`
}

// ProcessedEvent marks a completion event as reconciled. Its existence is
// the sole source of truth for "this event's side effects were applied".
type ProcessedEvent struct {
	TransactionID string    `json:"transaction_id" dynamodbav:"transaction_id"`
	ProcessedAt   time.Time `json:"processed_at" dynamodbav:"processed_at"`
}

// AuditRecord is the informational audit row written alongside the ledger
// postings during reconciliation.
type AuditRecord struct {
	ID              string    `json:"id" dynamodbav:"id"`
	TransactionID   string    `json:"transaction_id" dynamodbav:"transaction_id"`
	SourceAccountID string    `json:"source_account_id" dynamodbav:"source_account_id"`
	TargetAccountID string    `json:"target_account_id" dynamodbav:"target_account_id"`
	Amount          int64     `json:"amount" dynamodbav:"amount"`
	EventType       string    `json:"event_type" dynamodbav:"event_type"`
	Timestamp       time.Time `json:"timestamp" dynamodbav:"timestamp"`
}

// StatsDate formats a timestamp as the daily_stats partition key.
// Reconciliation always buckets by the UTC calendar date.
func StatsDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
