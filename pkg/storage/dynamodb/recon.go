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

// ExistsProcessed reports whether a processed-event marker exists for the
// transaction id.
func (s *Store) ExistsProcessed(ctx context.Context, transactionID string) (bool, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"transaction_id": transactionID})
	if err != nil {
		return false, fmt.Errorf("failed to marshal transaction id: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.ProcessedEvents),
		Key:       key,
	})
	if err != nil {
		return false, fmt.Errorf("failed to get processed-event marker from DynamoDB: %w", err)
	}

	return result.Item != nil, nil
}

// GetDailyStats retrieves the stats row for a date, or nil when the date
// has no row yet.
func (s *Store) GetDailyStats(ctx context.Context, date string) (*models.DailyStats, error) {
	key, err := attributevalue.MarshalMap(map[string]string{"date": date})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal stats date: %w", err)
	}

	result, err := s.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Tables.DailyStats),
		Key:       key,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get daily stats from DynamoDB: %w", err)
	}

	if result.Item == nil {
		return nil, nil
	}

	var stats models.DailyStats
	if err := attributevalue.UnmarshalMap(result.Item, &stats); err != nil {
		return nil, fmt.Errorf("failed to unmarshal daily stats: %w", err)
	}

	return &stats, nil
}

const ledgerTransactionGSI = "transaction_id-index"

// ListLedgerEntries retrieves the postings written for a transaction via
// the transaction id index.
func (s *Store) ListLedgerEntries(ctx context.Context, transactionID string) ([]models.LedgerEntry, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(s.Tables.Ledger),
		IndexName:              aws.String(ledgerTransactionGSI),
		KeyConditionExpression: aws.String("transaction_id = :txn"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":txn": &types.AttributeValueMemberS{Value: transactionID},
		},
	}

	result, err := s.Client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to query for ledger entries: %w", err)
	}

	var entries []models.LedgerEntry
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &entries); err != nil {
		return nil, fmt.Errorf("failed to unmarshal ledger entries: %w", err)
	}

	return entries, nil
}

// CommitReconciliation writes one reconciled event's audit row, both ledger
// postings, the bumped daily stats and the processed-event marker as a
// single TransactWriteItems call. The marker put is conditional on absence,
// so even a duplicate that raced past the pipeline's gate cancels the whole
// unit instead of double-posting.
func (s *Store) CommitReconciliation(ctx context.Context, unit *storage.ReconUnit) error {
	auditAV, err := attributevalue.MarshalMap(unit.Audit)
	if err != nil {
		return fmt.Errorf("failed to marshal audit record: %w", err)
	}
	debitAV, err := attributevalue.MarshalMap(unit.Debit)
	if err != nil {
		return fmt.Errorf("failed to marshal debit entry: %w", err)
	}
	creditAV, err := attributevalue.MarshalMap(unit.Credit)
	if err != nil {
		return fmt.Errorf("failed to marshal credit entry: %w", err)
	}
	markerAV, err := attributevalue.MarshalMap(unit.Marker)
	if err != nil {
		return fmt.Errorf("failed to marshal processed-event marker: %w", err)
	}

	statsItem, err := s.statsWrite(unit)
	if err != nil {
		return err
	}

	input := &dynamodb.TransactWriteItemsInput{
		TransactItems: []types.TransactWriteItem{
			{
				Put: &types.Put{
					TableName:           aws.String(s.Tables.AuditLog),
					Item:                auditAV,
					ConditionExpression: aws.String("attribute_not_exists(id)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.Tables.Ledger),
					Item:                debitAV,
					ConditionExpression: aws.String("attribute_not_exists(entry_id)"),
				},
			},
			{
				Put: &types.Put{
					TableName:           aws.String(s.Tables.Ledger),
					Item:                creditAV,
					ConditionExpression: aws.String("attribute_not_exists(entry_id)"),
				},
			},
			statsItem,
			{
				Put: &types.Put{
					TableName:           aws.String(s.Tables.ProcessedEvents),
					Item:                markerAV,
					ConditionExpression: aws.String("attribute_not_exists(transaction_id)"),
				},
			},
		},
	}

	_, err = s.Client.TransactWriteItems(ctx, input)
	if err != nil {
		if reasons := canceledReasons(err); reasons != nil {
			// Item order: audit, debit, credit, stats, marker.
			if reasonIsConditionalCheckFailed(reasons, 4) {
				return storage.ErrAlreadyProcessed
			}
			if reasonIsConditionalCheckFailed(reasons, 3) {
				return storage.ErrVersionConflict
			}
		}
		return fmt.Errorf("failed to execute reconciliation commit: %w", err)
	}

	return nil
}

// statsWrite builds the daily-stats item for the reconciliation unit: a
// conditional create for a fresh date, or a version-checked counter write
// for an existing row.
func (s *Store) statsWrite(unit *storage.ReconUnit) (types.TransactWriteItem, error) {
	if unit.StatsIsNew {
		statsAV, err := attributevalue.MarshalMap(unit.Stats)
		if err != nil {
			return types.TransactWriteItem{}, fmt.Errorf("failed to marshal daily stats: %w", err)
		}
		return types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(s.Tables.DailyStats),
				Item:                statsAV,
				ConditionExpression: aws.String("attribute_not_exists(#date)"),
				ExpressionAttributeNames: map[string]string{
					"#date": "date",
				},
			},
		}, nil
	}

	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(s.Tables.DailyStats),
			Key: map[string]types.AttributeValue{
				"date": &types.AttributeValueMemberS{Value: unit.Stats.Date},
			},
			UpdateExpression:    aws.String("SET total_count = :count, total_volume = :volume, version = version + :inc"),
			ConditionExpression: aws.String("version = :version"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":count":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", unit.Stats.TotalCount)},
				":volume":  &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", unit.Stats.TotalVolume)},
				":version": &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", unit.StatsVersion)},
				":inc":     &types.AttributeValueMemberN{Value: "1"},
			},
		},
	}, nil
}
