package events

import (
	"context"
	"time"
)

// Topic names for completion events. Each topic has a paired dead-letter
// topic derived by suffixing.
const (
	TransactionTopic = "bank-transactions"
	DepositTopic     = "bank-deposits"

	deadLetterSuffix = "-dlt"
)

// DeadLetterTopic returns the dead-letter topic paired with the given topic.
func DeadLetterTopic(topic string) string {
	return topic + deadLetterSuffix
}

// TransactionCompleted is the immutable fact published after a transfer
// commits. TransactionID is the transfer record's transaction identity and
// doubles as the event's partition key, so redeliveries of the same
// transaction always route to the same consumer.
type TransactionCompleted struct {
	TransactionID   string    `json:"transaction_id"`
	SourceAccountID string    `json:"source_account_id"`
	TargetAccountID string    `json:"target_account_id"`
	Amount          int64     `json:"amount"`
	Timestamp       time.Time `json:"timestamp"`
}

// DepositCompleted is published after a deposit commits.
type DepositCompleted struct {
	TransactionID string    `json:"transaction_id"`
	AccountID     string    `json:"account_id"`
	Amount        int64     `json:"amount"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher sends a completion event to a topic. Implementations provide
// at-least-once delivery; consumers must be idempotent. The transfer engine
// treats publish failures as non-fatal: the balance mutation is already
// durable when Publish is called.
type Publisher interface {
	Publish(ctx context.Context, topic, partitionKey string, payload any) error
}
