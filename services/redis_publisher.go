package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

const (
	redisKeyPrefix     = "stock:"
	redisChannelPrefix = "prices."
)

// PriceUpdate is the payload stored under stock:<ticker> and published on prices.<ticker>
type PriceUpdate struct {
	Ticker    string  `json:"ticker"`
	Price     float64 `json:"price"`
	Timestamp int64   `json:"timestamp"`
}

// RedisPricePublisher mirrors each refresh round into Redis for other consumers.
type RedisPricePublisher struct {
	client *redis.Client
	now    func() time.Time
}

var _ PriceSink = (*RedisPricePublisher)(nil)

// NewRedisClient creates a Redis client and checks the connection
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return client, nil
}

// NewRedisPricePublisher wraps an existing client.
func NewRedisPricePublisher(client *redis.Client) *RedisPricePublisher {
	return &RedisPricePublisher{client: client, now: time.Now}
}

// Publish stores the latest price per ticker and announces it, in one pipeline.
func (p *RedisPricePublisher) Publish(ctx context.Context, prices map[string]decimal.Decimal) error {
	if len(prices) == 0 {
		return nil
	}

	ts := p.now().Unix()
	pipe := p.client.Pipeline()
	for ticker, price := range prices {
		payload, err := json.Marshal(PriceUpdate{Ticker: ticker, Price: price.InexactFloat64(), Timestamp: ts})
		if err != nil {
			return fmt.Errorf("json marshal error: %w", err)
		}
		pipe.Set(ctx, redisKeyPrefix+ticker, payload, 0)
		pipe.Publish(ctx, redisChannelPrefix+ticker, payload)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis publish error: %w", err)
	}
	return nil
}

// Latest returns the last mirrored price for ticker, or false on a cache miss.
func (p *RedisPricePublisher) Latest(ctx context.Context, ticker string) (PriceUpdate, bool, error) {
	var update PriceUpdate

	data, err := p.client.Get(ctx, redisKeyPrefix+ticker).Bytes()
	if err == redis.Nil {
		return update, false, nil
	}
	if err != nil {
		return update, false, fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(data, &update); err != nil {
		return update, false, fmt.Errorf("json unmarshal error: %w", err)
	}
	return update, true, nil
}
