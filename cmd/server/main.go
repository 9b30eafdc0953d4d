package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/finvault/mybank/pkg/bank"
	"github.com/finvault/mybank/pkg/events"
	"github.com/finvault/mybank/pkg/handlers"
	appmiddleware "github.com/finvault/mybank/pkg/middleware"
	dydbstore "github.com/finvault/mybank/pkg/storage/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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

	// SQS Client and event publisher
	sqsClient := sqs.NewFromConfig(cfg)
	publisher := events.NewSQSPublisher(sqsClient, map[string]string{
		events.TransactionTopic: mustEnv("SQS_TRANSACTIONS_QUEUE_URL"),
		events.DepositTopic:     mustEnv("SQS_DEPOSITS_QUEUE_URL"),
	})

	service := bank.New(store, store, publisher, logger)
	handler := handlers.NewApiHandler(service, store)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(appmiddleware.RequestLogger(logger))
	router.Use(middleware.Recoverer)

	handler.Routes(router)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	port := os.Getenv("HTTP_PORT")
	if port == "" {
		port = "8080" // Default port if not specified
	}

	log.Printf("Starting server on port %s", port)

	err = http.ListenAndServe(":"+port, router)
	if err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
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
