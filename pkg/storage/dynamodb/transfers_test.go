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
)

func TestGetTransferRecord(t *testing.T) {
	record := &models.TransferRecord{
		Key:           "idem-1",
		TransactionID: "tx-1",
		FromAccountID: "acct-a",
		ToAccountID:   "acct-b",
		Amount:        300,
		Status:        models.COMPLETED,
	}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		recordAV, _ := attributevalue.MarshalMap(record)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: recordAV}, nil)

		store := New(mockClient, testTables())
		retrieved, err := store.GetTransferRecord(context.Background(), "idem-1")

		assert.NoError(t, err)
		assert.Equal(t, record.TransactionID, retrieved.TransactionID)
		assert.Equal(t, record.Status, retrieved.Status)
		mockClient.AssertExpectations(t)
	})

	t.Run("Not Found", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("GetItem", mock.Anything, mock.Anything).Return(&dynamodb.GetItemOutput{Item: nil}, nil)

		store := New(mockClient, testTables())
		_, err := store.GetTransferRecord(context.Background(), "idem-1")

		assert.ErrorIs(t, err, storage.ErrRecordNotFound)
		mockClient.AssertExpectations(t)
	})
}

func TestCreateTransferRecord(t *testing.T) {
	record := &models.TransferRecord{Key: "idem-1", TransactionID: "tx-1", Status: models.PENDING}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.MatchedBy(func(input *dynamodb.PutItemInput) bool {
			return *input.ConditionExpression == "attribute_not_exists(id)"
		})).Return(&dynamodb.PutItemOutput{}, nil)

		store := New(mockClient, testTables())
		err := store.CreateTransferRecord(context.Background(), record)

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Key Already Exists", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("PutItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		store := New(mockClient, testTables())
		err := store.CreateTransferRecord(context.Background(), record)

		assert.ErrorIs(t, err, storage.ErrRecordExists)
		mockClient.AssertExpectations(t)
	})
}

func TestFinishTransferRecord(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("UpdateItem", mock.Anything, mock.MatchedBy(func(input *dynamodb.UpdateItemInput) bool {
			return *input.ConditionExpression == "#status = :pending"
		})).Return(&dynamodb.UpdateItemOutput{}, nil)

		store := New(mockClient, testTables())
		err := store.FinishTransferRecord(context.Background(), "idem-1", models.FAILED, time.Now().UTC())

		assert.NoError(t, err)
		mockClient.AssertExpectations(t)
	})

	t.Run("Already Finished", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("UpdateItem", mock.Anything, mock.Anything).Return(nil, &types.ConditionalCheckFailedException{})

		store := New(mockClient, testTables())
		err := store.FinishTransferRecord(context.Background(), "idem-1", models.FAILED, time.Now().UTC())

		assert.ErrorIs(t, err, storage.ErrRecordFinished)
		mockClient.AssertExpectations(t)
	})
}

func TestGetStuckTransferRecords(t *testing.T) {
	records := []models.TransferRecord{
		{Key: "idem-1", TransactionID: "tx-1", Status: models.PENDING},
		{Key: "idem-2", TransactionID: "tx-2", Status: models.PENDING},
	}

	t.Run("Success", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		items := make([]map[string]types.AttributeValue, len(records))
		for i, record := range records {
			items[i], _ = attributevalue.MarshalMap(record)
		}
		mockClient.On("Query", mock.Anything, mock.MatchedBy(func(input *dynamodb.QueryInput) bool {
			if *input.IndexName != stuckRecordGSI {
				return false
			}
			// The cutoff must be a number so the index range condition
			// sorts chronologically.
			_, ok := input.ExpressionAttributeValues[":cutoff"].(*types.AttributeValueMemberN)
			return ok
		})).Return(&dynamodb.QueryOutput{Items: items}, nil)

		store := New(mockClient, testTables())
		stuck, err := store.GetStuckTransferRecords(context.Background(), 20*time.Minute)

		assert.NoError(t, err)
		assert.Len(t, stuck, 2)
		assert.Equal(t, "tx-1", stuck[0].TransactionID)
		mockClient.AssertExpectations(t)
	})

	t.Run("Empty", func(t *testing.T) {
		mockClient := new(mocks.DynamoDBAPI)
		mockClient.On("Query", mock.Anything, mock.Anything).Return(&dynamodb.QueryOutput{}, nil)

		store := New(mockClient, testTables())
		stuck, err := store.GetStuckTransferRecords(context.Background(), 20*time.Minute)

		assert.NoError(t, err)
		assert.Empty(t, stuck)
		mockClient.AssertExpectations(t)
	})
}
