package dynamodb

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/finvault/mybank/pkg/storage"
)

// DynamoDBAPI is the subset of the DynamoDB client used by the store.
// Kept as an interface so tests can substitute a mock.
type DynamoDBAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Tables names the DynamoDB tables backing the store.
type Tables struct {
	Accounts        string
	TransferRecords string
	Ledger          string
	ProcessedEvents string
	DailyStats      string
	AuditLog        string
}

// Store implements the storage interfaces using AWS DynamoDB.
//
// There is no row locking here: exclusive access is compare-and-swap on a
// version attribute, and multi-row atomic units use TransactWriteItems.
type Store struct {
	Client DynamoDBAPI
	Tables Tables
}

// New creates a new Store.
func New(client DynamoDBAPI, tables Tables) *Store {
	return &Store{Client: client, Tables: tables}
}

// Make sure we conform to the interface
var _ storage.Storage = (*Store)(nil)

// isConditionalCheckFailed reports whether err is a single-item conditional
// write failure.
func isConditionalCheckFailed(err error) bool {
	var condFailed *types.ConditionalCheckFailedException
	return errors.As(err, &condFailed)
}

// canceledReasons extracts the per-item cancellation reasons from a failed
// TransactWriteItems call, or nil when the failure was not a cancellation.
func canceledReasons(err error) []types.CancellationReason {
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return canceled.CancellationReasons
	}
	return nil
}

// reasonIsConditionalCheckFailed reports whether the reason at index i in a
// cancellation list is a failed condition expression.
func reasonIsConditionalCheckFailed(reasons []types.CancellationReason, i int) bool {
	if i >= len(reasons) || reasons[i].Code == nil {
		return false
	}
	return *reasons[i].Code == "ConditionalCheckFailed"
}
