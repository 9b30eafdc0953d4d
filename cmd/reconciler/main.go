package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/finvault/mybank/pkg/consumer"
	"github.com/finvault/mybank/pkg/events"
	"github.com/finvault/mybank/pkg/recon"
	dydbstore "github.com/finvault/mybank/pkg/storage/dynamodb"
	"github.com/joho/godotenv"
)

func main() {
	// Load environment variables from .env file
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	// AWS Session
	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	dbClient := dynamodb.NewFromConfig(cfg)
	store := dydbstore.New(dbClient, tablesFromEnv())

	pipeline := recon.New(store, mustEnv("CASH_ACCOUNT_ID"), logger)

	sqsClient := sqs.NewFromConfig(cfg)
	consumers := []*consumer.Consumer{
		{
			Client:             sqsClient,
			QueueURL:           mustEnv("SQS_TRANSACTIONS_QUEUE_URL"),
			DeadLetterQueueURL: mustEnv("SQS_TRANSACTIONS_DLQ_URL"),
			QueueName:          events.TransactionTopic,
			Handler:            pipeline.HandleTransaction,
			Logger:             logger,
		},
		{
			Client:             sqsClient,
			QueueURL:           mustEnv("SQS_DEPOSITS_QUEUE_URL"),
			DeadLetterQueueURL: mustEnv("SQS_DEPOSITS_DLQ_URL"),
			QueueName:          events.DepositTopic,
			Handler:            pipeline.HandleDeposit,
			Logger:             logger,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("Starting reconciliation consumers...")

	var wg sync.WaitGroup
	for _, c := range consumers {
		wg.Add(1)
		go func(c *consumer.Consumer) {
			defer wg.Done()
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped", "queue", c.QueueName, "error", err)
			}
		}(c)
	}

	wg.Wait()
	log.Println("Reconciliation consumers stopped.")
}

func tablesFromEnv() dydbstore.Tables {
	return dydbstore.Tables{
		Accounts:        mustEnv("DYNAMODB_ACCOUNTS_TABLE_NAME"),
		TransferRecords: mustEnv("DYNAMODB_TRANSFER_RECORDS_TABLE_NAME"),
		Ledger:          mustEnv("DYNAMODB_LEDGER_TABLE_NAME"),
		ProcessedEvents: mustEnv("DYNAMODB_PROCESSED_EVENTS_TABLE_NAME"),
		DailyStats:      mustEnv("DYNAMODB_DAILY_STATS_TABLE_NAME"),
		AuditLog:        mustEnv("DYNAMODB_AUDIT_LOG_TABLE_NAME"),
	}
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable not set", key)
	}
	return value
}
