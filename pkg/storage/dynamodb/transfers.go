package dynamodb

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
)

const stuckRecordGSI = "status-created_at-index"

// GetTransferRecord retrieves a transfer record from DynamoDB by its key.
func (s *Store) GetTransferRecord(ctx context.Context, key string) (*models.TransferRecord, error) {
	keyAV, err := attributevalue.MarshalMap(map[string]string{"id": key})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record key: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.TransferRecords),
		Key:       keyAV,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get transfer record from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, storage.ErrRecordNotFound
	}

	var record models.TransferRecord
	if err := attributevalue.UnmarshalMap(result.Item, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal transfer record: %w", err)
	}

	return &record, nil
}

// CreateTransferRecord persists a new PENDING record. The conditional put
// on the key is what enforces idempotency-key uniqueness.
func (s *Store) CreateTransferRecord(ctx context.Context, record *models.TransferRecord) error {
	recordAV, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("failed to marshal transfer record: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.Tables.TransferRecords),
		Item:                recordAV,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	}

	_, err = s.Client.PutItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return storage.ErrRecordExists
		}
		return fmt.Errorf("failed to create transfer record in DynamoDB: %w", err)
	}

	return nil
}

// FinishTransferRecord moves a PENDING record to a terminal status. The
// condition on PENDING makes the transition one-way: a record that is
// already terminal surfaces storage.ErrRecordFinished and is not touched.
func (s *Store) FinishTransferRecord(ctx context.Context, key string, status models.TransferStatus, completedAt time.Time) error {
	completedAtAV, err := attributevalue.Marshal(completedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal completion timestamp: %w", err)
	}

	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Tables.TransferRecords),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: key},
		},
		UpdateExpression:    aws.String("SET #status = :status, completed_at = :completed_at"),
		ConditionExpression: aws.String("#status = :pending"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":       &types.AttributeValueMemberS{Value: string(status)},
			":pending":      &types.AttributeValueMemberS{Value: string(models.PENDING)},
			":completed_at": completedAtAV,
		},
	}

	_, err = s.Client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return storage.ErrRecordFinished
		}
		return fmt.Errorf("failed to finish transfer record %s: %w", key, err)
	}

	return nil
}

// GetStuckTransferRecords retrieves records that have been PENDING for
// longer than maxAge, via the status/created_at index. The range condition
// is numeric: created_at is stored as epoch seconds.
func (s *Store) GetStuckTransferRecords(ctx context.Context, maxAge time.Duration) ([]models.TransferRecord, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.TransferRecords),
		IndexName:              aws.String(stuckRecordGSI),
		KeyConditionExpression: aws.String("#status = :status AND created_at < :cutoff"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(models.PENDING)},
			":cutoff": &types.AttributeValueMemberN{Value: strconv.FormatInt(cutoff.Unix(), 10)},
		},
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query for stuck transfer records: %w", err)
	}

	var records []models.TransferRecord
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stuck transfer records: %w", err)
	}

	return records, nil
}
