package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
)

// CommitTransfer applies a transfer as one TransactWriteItems call: debit
// the source account, credit the destination, and flip the record from
// PENDING to COMPLETED. The two account updates are ordered by account id
// so that concurrent transfers over the same pair always present the items
// in the same relative order.
//
// Each account update is conditional on the version the engine read, so a
// concurrent mutation of either account cancels the whole unit and
// surfaces as storage.ErrVersionConflict for the engine's retry loop.
func (s *Store) CommitTransfer(ctx context.Context, record *models.TransferRecord, from, to *models.Account) error {
	completedAt := time.Now().UTC()
	completedAtAV, err := attributevalue.Marshal(completedAt)
	if err != nil {
		return fmt.Errorf("failed to marshal completion timestamp: %w", err)
	}

	debit := accountBalanceUpdate(s.Tables.Accounts, from.ID, from.Balance-record.Amount, from.Version)
	credit := accountBalanceUpdate(s.Tables.Accounts, to.ID, to.Balance+record.Amount, to.Version)

	// Deterministic item order by account id. DynamoDB rejects duplicate
	// keys in one transaction regardless, but the sorted order keeps the
	// commit shape identical for every transfer over the same pair.
	first, second := debit, credit
	if to.ID < from.ID {
		first, second = credit, debit
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{Update: first},
			{Update: second},
			{
				// Mark the record COMPLETED in the same unit as the
				// balance mutations.
				Update: &types.Update{
					TableName: aws.String(s.Tables.TransferRecords),
					Key: map[string]types.AttributeValue{
						"id": &types.AttributeValueMemberS{Value: record.Key},
					},
					UpdateExpression:    aws.String("SET #status = :completed, completed_at = :completed_at"),
					ConditionExpression: aws.String("#status = :pending"),
					ExpressionAttributeNames: map[string]string{
						"#status": "status",
					},
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":completed":    &types.AttributeValueMemberS{Value: string(models.COMPLETED)},
						":pending":      &types.AttributeValueMemberS{Value: string(models.PENDING)},
						":completed_at": completedAtAV,
					},
				},
			},
		},
	}

	_, err = s.Client.TransactWriteItems(ctx, input)
	if err != nil {
		if reasons := canceledReasons(err); reasons != nil {
			if reasonIsConditionalCheckFailed(reasons, 0) || reasonIsConditionalCheckFailed(reasons, 1) {
				return storage.ErrVersionConflict
			}
			if reasonIsConditionalCheckFailed(reasons, 2) {
				return storage.ErrRecordFinished
			}
		}
		return fmt.Errorf("failed to execute transfer commit: %w", err)
	}

	record.Status = models.COMPLETED
	record.CompletedAt = &completedAt
	return nil
}

// accountBalanceUpdate builds the conditional balance write for one side of
// the transfer.
func accountBalanceUpdate(table, id string, newBalance, expectedVersion int64) *types.Update {
	return &types.Update{
		TableName: aws.String(table),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET balance = :balance, version = version + :inc"),
		ConditionExpression: aws.String("attribute_exists(id) AND version = :version"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":balance": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", newBalance)},
			":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
			":inc":     &types.AttributeValueMemberN{Value: "1"},
		},
	}
}
