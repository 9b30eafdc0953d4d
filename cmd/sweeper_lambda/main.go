package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/finvault/mybank/pkg/bank"
	dydbstore "github.com/finvault/mybank/pkg/storage/dynamodb"
	"github.com/joho/godotenv"
)

var service *bank.Service

const stuckTransferThreshold = 20 * time.Minute

func init() {
	// Load environment variables for local testing.
	godotenv.Load()

	cfg, err := config.LoadDefaultConfig(context.TODO())
	if err != nil {
		log.Fatalf("unable to load SDK config, %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	dbClient := dynamodb.NewFromConfig(cfg)
	store := dydbstore.New(dbClient, dydbstore.Tables{
		Accounts:        mustEnv("DYNAMODB_ACCOUNTS_TABLE_NAME"),
		TransferRecords: mustEnv("DYNAMODB_TRANSFER_RECORDS_TABLE_NAME"),
		Ledger:          mustEnv("DYNAMODB_LEDGER_TABLE_NAME"),
		ProcessedEvents: mustEnv("DYNAMODB_PROCESSED_EVENTS_TABLE_NAME"),
		DailyStats:      mustEnv("DYNAMODB_DAILY_STATS_TABLE_NAME"),
		AuditLog:        mustEnv("DYNAMODB_AUDIT_LOG_TABLE_NAME"),
	})

	// The sweeper never completes transfers, so it publishes nothing.
	service = bank.New(store, store, nil, logger)
}

// HandleRequest is triggered by an EventBridge Schedule. It fails transfer
// records stuck in PENDING longer than the threshold.
func HandleRequest(ctx context.Context) error {
	log.Println("Starting sweep for stuck transfer records...")

	swept, err := service.SweepStuckTransfers(ctx, stuckTransferThreshold)
	if err != nil {
		log.Printf("ERROR: sweep failed: %v", err)
		return err
	}

	log.Printf("Sweep finished, %d records marked FAILED", swept)
	return nil
}

func main() {
	lambda.Start(HandleRequest)
}

func mustEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		log.Fatalf("%s environment variable not set", key)
	}
	return value
}
