package dynamodb

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
	"github.com/finvault/mybank/pkg/storage/dynamodb/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestExistsProcessed(t *testing.T) {
	t.Run("Exists", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		markerAV, _ := attributevalue.MarshalMap(models.ProcessedEvent{TransactionID: "tx-1"})
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: markerAV}, nil)

		store := New(mockClient, testTables())
		exists, err := store.ExistsProcessed(context.Background(), "tx-1")

		assert.NoError(t, err)
		assert.True(t, exists)
		mockClient.AssertExpectations(t)
	})

	t.Run("Missing", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nil}, nil)

		store := New(mockClient, testTables())
		exists, err := store.ExistsProcessed(context.Background(), "tx-1")

		assert.NoError(t, err)
		assert.False(t, exists)
		mockClient.AssertExpectations(t)
	})
}

func TestGetDailyStats(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		stats := models.DailyStats{Date: "2026-03-14", TotalCount: 5, TotalVolume: 1200, Version: 5}
		statsAV, _ := attributevalue.MarshalMap(stats)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: statsAV}, nil)

		store := New(mockClient, testTables())
		retrieved, err := store.GetDailyStats(context.Background(), "2026-03-14")

		require.NoError(t, err)
		require.NotNil(t, retrieved)
		assert.Equal(t, int64(5), retrieved.TotalCount)
		mockClient.AssertExpectations(t)
	})

	t.Run("No Row Yet", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nil}, nil)

		store := New(mockClient, testTables())
		retrieved, err := store.GetDailyStats(context.Background(), "2026-03-14")

		assert.NoError(t, err)
		assert.Nil(t, retrieved)
		mockClient.AssertExpectations(t)
	})
}

func TestListLedgerEntries(t *testing.T) {
	entries := []models.LedgerEntry{
		{EntryID: "e-1", TransactionID: "tx-1", AccountID: "acct-a", Amount: -300, EntryType: models.DEBIT},
		{EntryID: "e-2", TransactionID: "tx-1", AccountID: "acct-b", Amount: 300, EntryType: models.CREDIT},
	}

	mockClient := new(mocks.DynamoDBAPI)
	items := make([]map[string]types.AttributeValue, len(entries))
	for i, entry := range entries {
		items[i], _ = attributevalue.MarshalMap(entry)
	}
	mockClient.On("Query", mock.Anything, mock.MatchedBy(func(input *dynamodb.QueryInput) bool {
		return *input.IndexName == ledgerTransactionGSI
	})).Return(&dynamodb.QueryOutput{Items: items}, nil)

	store := New(mockClient, testTables())
	listed, err := store.ListLedgerEntries(context.Background(), "tx-1")

	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, int64(0), listed[0].Amount+listed[1].Amount)
	mockClient.AssertExpectations(t)
}

func TestCommitReconciliation(t *testing.T) {
	newUnit := func(isNew bool) *storage.ReconUnit {
		return &storage.ReconUnit{
			Audit:      models.AuditRecord{ID: "audit-1", TransactionID: "tx-1", Amount: 300, EventType: "TRANSACTION"},
			Debit:      models.LedgerEntry{EntryID: "e-1", TransactionID: "tx-1", AccountID: "acct-a", Amount: -300, EntryType: models.DEBIT},
			Credit:     models.LedgerEntry{EntryID: "e-2", TransactionID: "tx-1", AccountID: "acct-b", Amount: 300, EntryType: models.CREDIT},
			Stats:      models.DailyStats{Date: "2026-03-14", TotalCount: 1, TotalVolume: 300, Version: 1},
			StatsIsNew: isNew,
			Marker:     models.ProcessedEvent{TransactionID: "tx-1", ProcessedAt: time.Now().UTC()},
		}
	}

	t.Run("Success With New Stats Row", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(input *dynamodb.TransactWriteItemsInput) bool {
			if len(input.TransactItems) != 5 {
				return false
			}
			// Fresh dates create the stats row conditionally.
			stats := input.TransactItems[3]
			return stats.Put != nil && *stats.Put.TableName == "daily_stats"
		})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

		store := New(mockClient, testTables())
		err := store.CommitReconciliation(context.Background(), newUnit(true))

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Success With Existing Stats Row", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("TransactWriteItems", mock.Anything, mock.MatchedBy(func(input *dynamodb.TransactWriteItemsInput) bool {
			stats := input.TransactItems[3]
			return stats.Update != nil && *stats.Update.ConditionExpression == "version = :version"
		})).Return(&dynamodb.TransactWriteItemsOutput{}, nil)

		store := New(mockClient, testTables())
		unit := newUnit(false)
		unit.StatsVersion = 4
		unit.Stats.Version = 5
		err := store.CommitReconciliation(context.Background(), unit)

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Duplicate Marker", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).
			Return(nil, canceledWith("None", "None", "None", "None", "ConditionalCheckFailed"))

		store := New(mockClient, testTables())
		err := store.CommitReconciliation(context.Background(), newUnit(true))

		assert.ErrorIs(t, err, storage.ErrAlreadyProcessed)
		mockClient.AssertExpectations(t)
	})

	t.Run("Stats Version Conflict", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("TransactWriteItems", mock.Anything, mock.Anything).
			Return(nil, canceledWith("None", "None", "None", "ConditionalCheckFailed", "None"))

		store := New(mockClient, testTables())
		err := store.CommitReconciliation(context.Background(), newUnit(false))

		assert.ErrorIs(t, err, storage.ErrVersionConflict)
		mockClient.AssertExpectations(t)
	})
}
