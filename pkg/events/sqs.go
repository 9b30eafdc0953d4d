package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// SQSAPI is the subset of the SQS client the publisher needs.
type SQSAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher implements Publisher on top of SQS FIFO queues. Each logical
// topic maps to a queue URL; the partition key becomes the message group id,
// which preserves per-key ordering, and the deduplication id, which
// suppresses duplicate publishes of the same transaction.
type SQSPublisher struct {
	Client    SQSAPI
	QueueURLs map[string]string
}

// NewSQSPublisher creates a publisher over the given topic -> queue URL map.
func NewSQSPublisher(client SQSAPI, queueURLs map[string]string) *SQSPublisher {
	return &SQSPublisher{Client: client, QueueURLs: queueURLs}
}

// Make sure we conform to the interface
var _ Publisher = (*SQSPublisher)(nil)

// Publish marshals the payload and sends it to the queue backing the topic.
func (p *SQSPublisher) Publish(ctx context.Context, topic, partitionKey string, payload any) error {
	queueURL, ok := p.QueueURLs[topic]
	if !ok {
		return fmt.Errorf("no queue configured for topic %q", topic)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event for topic %q: %w", topic, err)
	}

	_, err = p.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(queueURL),
		MessageBody:            aws.String(string(body)),
		MessageGroupId:         aws.String(partitionKey),
		MessageDeduplicationId: aws.String(partitionKey),
	})
	if err != nil {
		return fmt.Errorf("failed to send event to %q: %w", topic, err)
	}

	return nil
}
