// Package events publishes scrape run outcomes to a Redis stream.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Event types.
const (
	TypeScrapeCompleted = "scrape.completed"
	TypeScrapeFailed    = "scrape.failed"
)

// DefaultStream is used when no stream name is configured.
const DefaultStream = "stream:scrape_runs"

// RedisClient is the subset of the Redis client the publisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// Event describes one finished scrape run.
type Event struct {
	ID         string    `json:"event_id"`
	Type       string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
	URL        string    `json:"url"`
	Platform   string    `json:"platform,omitempty"`
	TotalCount int       `json:"total_count"`
	Reason     string    `json:"reason,omitempty"`
	ScrapeID   int64     `json:"scrape_id,omitempty"`
}

// Publisher appends events to a stream. A nil *Publisher discards events.
type Publisher struct {
	client RedisClient
	stream string
	logger *slog.Logger
}

// NewPublisher wraps an existing client.
func NewPublisher(client RedisClient, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		client: client,
		stream: stream,
		logger: slog.With("component", "events"),
	}
}

// Connect dials Redis and verifies the connection.
func Connect(ctx context.Context, addr, password string, db int, stream string) (*Publisher, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("events: connect redis %s: %w", addr, err)
	}
	return NewPublisher(client, stream), nil
}

// Publish stamps ev with an id and time when missing and appends it to the stream.
func (p *Publisher) Publish(ctx context.Context, ev Event) error {
	if p == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"data":       string(data),
			"event_id":   ev.ID,
			"event_type": ev.Type,
			"url":        ev.URL,
			"timestamp":  fmt.Sprintf("%d", ev.OccurredAt.UnixNano()),
		},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("events: xadd %s: %w", p.stream, err)
	}

	p.logger.Debug("event published", "event_id", ev.ID, "event_type", ev.Type, "url", ev.URL)
	return nil
}

// Close releases the Redis connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	return p.client.Close()
}
