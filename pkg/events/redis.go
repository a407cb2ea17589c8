package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/marketloop/wallet-service/pkg/config"
	"github.com/marketloop/wallet-service/pkg/logger"
)

const (
	WalletEventQueue = "wallet_events"
	FailedQueue      = "failed_wallet_events"
)

// WalletEvent is pushed onto the platform queue whenever a transaction
// reaches a terminal status, so order/notification services can react
// without polling the ledger.
type WalletEvent struct {
	Event         string    `json:"event"` // transaction.completed | transaction.failed | transaction.rolled_back
	TransactionID string    `json:"transaction_id"`
	WalletID      string    `json:"wallet_id"`
	OwnerID       string    `json:"owner_id"`
	ReferenceType string    `json:"reference_type"`
	ReferenceID   string    `json:"reference_id"`
	Type          string    `json:"type"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	Timestamp     time.Time `json:"timestamp"`
}

// Publisher is what the wallet service sees; tests substitute a recorder.
type Publisher interface {
	PublishEvent(ctx context.Context, event WalletEvent) error
}

type RedisClient struct {
	Client *redis.Client
}

func NewRedisClient(cfg config.Config) *RedisClient {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("Failed to parse Redis url", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
		opt = &redis.Options{
			Addr:     cfg.RedisURL,
			Password: cfg.RedisPassword,
			DB:       0,
		}
	}

	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		logger.Error("Failed to connect to Redis", logger.Fields{"error": err.Error(), "url": cfg.RedisURL})
	} else {
		logger.Info("Connected to Redis", logger.Fields{"url": cfg.RedisURL})
	}

	return &RedisClient{Client: rdb}
}

func (r *RedisClient) PublishEvent(ctx context.Context, event WalletEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %v", err)
	}

	if err := r.Client.RPush(ctx, WalletEventQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to redis: %v", err)
	}

	return nil
}

func (r *RedisClient) PushToDLQ(ctx context.Context, data []byte) error {
	if err := r.Client.RPush(ctx, FailedQueue, data).Err(); err != nil {
		return fmt.Errorf("failed to push event to DLQ: %v", err)
	}
	return nil
}

// StartRequeueWorker periodically drains the DLQ back onto the main queue so
// events a consumer parked get another delivery attempt. Runs until the
// context is cancelled.
func (r *RedisClient) StartRequeueWorker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				logger.Info("DLQ requeue worker stopped")
				return
			case <-ticker.C:
				r.requeueFailed(ctx)
			}
		}
	}()
}

func (r *RedisClient) requeueFailed(ctx context.Context) {
	for {
		data, err := r.Client.LPop(ctx, FailedQueue).Bytes()
		if err == redis.Nil {
			return
		}
		if err != nil {
			logger.Error("Failed to pop from DLQ", logger.Fields{"error": err.Error()})
			return
		}

		if err := r.Client.RPush(ctx, WalletEventQueue, data).Err(); err != nil {
			logger.Error("Failed to requeue event, returning to DLQ", logger.Fields{"error": err.Error()})
			if dlqErr := r.PushToDLQ(ctx, data); dlqErr != nil {
				logger.Error("Dropped event after requeue failure", logger.Fields{"error": dlqErr.Error()})
			}
			return
		}
	}
}
