// Package redis is the low-latency tick cache: the realtime ingester fans
// normalized ticks into per-area streams and pubsub channels so the live
// runner can follow the market without polling Postgres.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"nordpool-dataplane/internal/model"
)

const (
	// Stream trimming: roughly a trading session of order flow per area.
	tickStreamMaxLen = 200000
	latestTTL        = 30 * time.Minute
)

// Config configures the tick cache connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int
}

// Cache publishes and serves recent ticks through Redis streams.
type Cache struct {
	client *goredis.Client
}

// Client returns the underlying client for health checks.
func (c *Cache) Client() *goredis.Client { return c.client }

// New connects to Redis and pings the server.
func New(cfg Config) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Cache{client: client}, nil
}

func streamKey(area string) string { return "ticks:" + area }
func pubsubKey(area string) string { return "pub:ticks:" + area }
func latestKey(area, contractID string) string {
	return "tick:latest:" + area + ":" + contractID
}

// PublishTicks pipelines a batch into the area stream: XADD per tick, SET
// of the per-contract latest tick, and one PUBLISH per tick for live
// subscribers. The returned error is advisory: the hot store is the
// durable copy, so callers log it and carry on rather than fail ingestion.
func (c *Cache) PublishTicks(ctx context.Context, area string, ticks []model.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for i := range ticks {
		t := &ticks[i]
		data := string(t.JSON())

		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: streamKey(area),
			MaxLen: tickStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Set(ctx, latestKey(area, t.ContractID), data, latestTTL)
		pipe.Publish(ctx, pubsubKey(area), data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		log.Printf("[redis] tick pipeline error (%d ticks): %v", len(ticks), err)
		return fmt.Errorf("redis publish ticks: %w", err)
	}
	return nil
}

// LatestTick returns the last cached tick of a contract, or (nil, nil)
// when nothing recent is cached.
func (c *Cache) LatestTick(ctx context.Context, area, contractID string) (*model.Tick, error) {
	data, err := c.client.Get(ctx, latestKey(area, contractID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get latest tick: %w", err)
	}
	var t model.Tick
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("redis unmarshal tick: %w", err)
	}
	return &t, nil
}

// TailTicks returns up to n most recent ticks of an area, oldest first.
func (c *Cache) TailTicks(ctx context.Context, area string, n int64) ([]model.Tick, error) {
	msgs, err := c.client.XRevRangeN(ctx, streamKey(area), "+", "-", n).Result()
	if err != nil {
		return nil, fmt.Errorf("redis xrevrange %s: %w", streamKey(area), err)
	}
	out := make([]model.Tick, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		data, ok := msgs[i].Values["data"].(string)
		if !ok {
			continue
		}
		var t model.Tick
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			log.Printf("[redis] unmarshal tick from stream: %v", err)
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// SubscribeTicks follows the area's pubsub channel and forwards parsed
// ticks to out. Blocks until ctx is cancelled. A slow consumer drops
// ticks rather than stalling the subscription.
func (c *Cache) SubscribeTicks(ctx context.Context, area string, out chan<- model.Tick) error {
	pubsub := c.client.Subscribe(ctx, pubsubKey(area))
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe %s: %w", pubsubKey(area), err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var t model.Tick
			if err := json.Unmarshal([]byte(msg.Payload), &t); err != nil {
				continue
			}
			select {
			case out <- t:
			default:
			}
		}
	}
}

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
