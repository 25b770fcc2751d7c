// Command relay runs the catalog reactions out of process: it consumes the
// Kafka envelope mirror and applies the same reactor the in-process
// dispatcher uses. Reactions are idempotent by envelope ID, so running the
// relay alongside marketplaced double-delivers harmlessly.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/example/marketplace/internal/infrastructure/kafka"
	"github.com/example/marketplace/internal/reaction"
	"github.com/example/marketplace/internal/store"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Configuration from environment variables
	mongoURI := getEnv("MONGO_URI", "mongodb://localhost:27017")
	mongoDB := getEnv("MONGO_DATABASE", "marketplace")
	kafkaBrokersStr := getEnv("KAFKA_BROKERS", "localhost:9092")
	kafkaBrokers := strings.Split(kafkaBrokersStr, ",")
	kafkaTopic := getEnv("KAFKA_TOPIC", "marketplace-events")
	consumerGroup := getEnv("KAFKA_CONSUMER_GROUP", "relay")

	log.Println("[Relay] ========================================")
	log.Println("[Relay] Marketplace Reaction Relay")
	log.Println("[Relay] ========================================")
	log.Printf("[Relay] Kafka: %v", kafkaBrokers)
	log.Printf("[Relay] Topic: %s", kafkaTopic)
	log.Printf("[Relay] Group: %s", consumerGroup)

	connectCtx, connectCancel := context.WithTimeout(ctx, 10*time.Second)
	client, err := store.ConnectMongo(connectCtx, mongoURI)
	connectCancel()
	if err != nil {
		log.Fatalf("[Relay] Failed to connect to MongoDB: %v", err)
	}
	defer client.Disconnect(context.Background())
	db := client.Database(mongoDB)
	log.Println("[Relay] Connected to MongoDB")

	reactor := reaction.NewReactor(
		store.NewMongoProducts(db),
		store.NewMongoDiscounts(db),
		store.NewMongoCarts(db),
		store.NewMongoFavorites(db),
		store.NewMongoAffected(db),
		store.NewMongoProcessed(db),
	)

	consumer := kafka.NewConsumer(kafkaBrokers, kafkaTopic, consumerGroup)
	defer consumer.Close()

	go func() {
		log.Println("[Relay] Starting envelope consumer...")
		if err := consumer.Consume(ctx, reactor.Handle); err != nil {
			if ctx.Err() == nil {
				log.Printf("[Relay] Consumer error: %v", err)
			}
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[Relay] Shutting down...")
	cancel()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
