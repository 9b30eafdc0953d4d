package dynamodb

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/finvault/mybank/pkg/models"
	"github.com/finvault/mybank/pkg/storage"
)

// GetAccount retrieves an account from DynamoDB by its id.
func (s *Store) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"id": id})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account id: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.Accounts),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get account from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, storage.ErrAccountNotFound
	}

	var account models.Account
	if err := attributevalue.UnmarshalMap(result.Item, &account); err != nil {
		return nil, fmt.Errorf("failed to unmarshal account: %w", err)
	}

	return &account, nil
}

// CreateAccount creates a new account record in DynamoDB.
func (s *Store) CreateAccount(ctx context.Context, account *models.Account) (*models.Account, error) {
	accountAV, err := attributevalue.MarshalMap(account)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal account: %w", err)
	}

	input := &dynamodb.PutItemInput{
		TableName:           aws.String(s.Tables.Accounts),
		Item:                accountAV,
		ConditionExpression: aws.String("attribute_not_exists(id)"), // Prevent overwriting existing accounts.
	}

	_, err = s.Client.PutItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return nil, fmt.Errorf("account %s already exists", account.ID)
		}
		return nil, fmt.Errorf("failed to create account in DynamoDB: %w", err)
	}

	return account, nil
}

// UpdateBalance writes a new balance conditional on the version the caller
// read. A lost race surfaces as storage.ErrVersionConflict.
func (s *Store) UpdateBalance(ctx context.Context, id string, newBalance int64, expectedVersion int64) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Tables.Accounts),
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

	_, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return storage.ErrVersionConflict
		}
		return fmt.Errorf("failed to update balance for account %s: %w", id, err)
	}

	return nil
}

// UpdateStatus writes a new status conditional on the version the caller
// read.
func (s *Store) UpdateStatus(ctx context.Context, id string, status models.AccountStatus, expectedVersion int64) error {
	input := &dynamodb.UpdateItemInput{
		TableName: aws.String(s.Tables.Accounts),
		Key: map[string]types.AttributeValue{
			"id": &types.AttributeValueMemberS{Value: id},
		},
		UpdateExpression:    aws.String("SET #status = :status, version = version + :inc"),
		ConditionExpression: aws.String("attribute_exists(id) AND version = :version"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(status)},
			":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", expectedVersion)},
			":inc":     &types.AttributeValueMemberN{Value: "1"},
		},
	}

	_, err := s.Client.UpdateItem(ctx, input)
	if err != nil {
		if isConditionalCheckFailed(err) {
			return storage.ErrVersionConflict
		}
		return fmt.Errorf("failed to update status for account %s: %w", id, err)
	}

	return nil
}
