package consumer

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/finvault/mybank/pkg/metrics"
)

// SQSAPI is the subset of the SQS client the consumer uses.
type SQSAPI interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	ChangeMessageVisibility(ctx context.Context, params *sqs.ChangeMessageVisibilityInput, optFns ...func(*sqs.Options)) (*sqs.ChangeMessageVisibilityOutput, error)
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Handler processes one raw message body. A nil return acknowledges the
// message; an error schedules a redelivery until the attempt budget runs
// out, after which the message is dead-lettered.
type Handler func(ctx context.Context, body []byte) error

const (
	defaultMaxAttempts = 3
	defaultBaseBackoff = time.Second
	defaultWorkers     = 4

	waitTimeSeconds    = 20
	maxMessagesPerPoll = 10
)

// Consumer long-polls one queue and dispatches message bodies to a handler
// over a bounded worker pool. Delivery is at-least-once; the handler must
// be idempotent.
type Consumer struct {
	Client             SQSAPI
	QueueURL           string
	DeadLetterQueueURL string
	QueueName          string
	Handler            Handler
	Logger             *slog.Logger

	// MaxAttempts counts deliveries, not retries: the third failed delivery
	// dead-letters the message.
	MaxAttempts int32
	BaseBackoff time.Duration
	Workers     int
}

// Run polls until ctx is canceled, then drains in-flight handlers before
// returning.
func (c *Consumer) Run(ctx context.Context) error {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = defaultBaseBackoff
	}
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}

	work := make(chan types.Message)

	var wg sync.WaitGroup
	for i := 0; i < c.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range work {
				c.process(ctx, msg)
			}
		}()
	}

	for {
		if ctx.Err() != nil {
			break
		}

		out, err := c.Client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.QueueURL),
			MaxNumberOfMessages: maxMessagesPerPoll,
			WaitTimeSeconds:     waitTimeSeconds,
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{
				types.MessageSystemAttributeNameApproximateReceiveCount,
			},
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			c.Logger.Error("receive failed", "queue", c.QueueName, "error", err)
			time.Sleep(c.BaseBackoff)
			continue
		}

		for _, msg := range out.Messages {
			work <- msg
		}
	}

	close(work)
	wg.Wait()
	return ctx.Err()
}

// process runs the handler for one delivery and settles the message:
// delete on success, dead-letter after the final attempt, otherwise
// shorten the visibility timeout to schedule an exponential-backoff
// redelivery.
func (c *Consumer) process(ctx context.Context, msg types.Message) {
	attempts := receiveCount(msg)

	err := c.Handler(ctx, []byte(aws.ToString(msg.Body)))
	if err == nil {
		metrics.EventsProcessedTotal.WithLabelValues(c.QueueName, "ok").Inc()
		c.delete(ctx, msg)
		return
	}

	if attempts >= c.MaxAttempts {
		c.Logger.Error("dead-lettering message",
			"queue", c.QueueName,
			"attempts", attempts,
			"error", err,
		)
		metrics.EventsProcessedTotal.WithLabelValues(c.QueueName, "dead_letter").Inc()
		c.deadLetter(ctx, msg)
		return
	}

	backoff := c.BaseBackoff << (attempts - 1)
	c.Logger.Warn("handler failed, scheduling retry",
		"queue", c.QueueName,
		"attempts", attempts,
		"backoff", backoff,
		"error", err,
	)
	metrics.EventsProcessedTotal.WithLabelValues(c.QueueName, "retry").Inc()

	_, cvErr := c.Client.ChangeMessageVisibility(ctx, &sqs.ChangeMessageVisibilityInput{
		QueueUrl:          aws.String(c.QueueURL),
		ReceiptHandle:     msg.ReceiptHandle,
		VisibilityTimeout: int32(backoff / time.Second),
	})
	if cvErr != nil {
		c.Logger.Error("failed to adjust visibility", "queue", c.QueueName, "error", cvErr)
	}
}

// deadLetter copies the message to the paired dead-letter queue and
// deletes the original. The copy keeps the message group so ordering
// survives inspection and replay.
func (c *Consumer) deadLetter(ctx context.Context, msg types.Message) {
	_, err := c.Client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:               aws.String(c.DeadLetterQueueURL),
		MessageBody:            msg.Body,
		MessageGroupId:         aws.String(c.QueueName),
		MessageDeduplicationId: msg.MessageId,
	})
	if err != nil {
		// Leave the message to redeliver rather than drop it.
		c.Logger.Error("failed to dead-letter message", "queue", c.QueueName, "error", err)
		return
	}

	c.delete(ctx, msg)
}

func (c *Consumer) delete(ctx context.Context, msg types.Message) {
	_, err := c.Client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.QueueURL),
		ReceiptHandle: msg.ReceiptHandle,
	})
	if err != nil {
		c.Logger.Error("failed to delete message", "queue", c.QueueName, "error", err)
	}
}

func receiveCount(msg types.Message) int32 {
	raw, ok := msg.Attributes[string(types.MessageSystemAttributeNameApproximateReceiveCount)]
	if !ok {
		return 1
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 1
	}
	return int32(n)
}
