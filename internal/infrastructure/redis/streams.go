package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/marketplace/internal/domain/outbox"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	PayoutStream = "payouts:processing"
	DLQStream    = "payouts:dlq"
)

// SettlementMessage asks the worker to submit one payout to its provider.
type SettlementMessage struct {
	StreamID  string
	PayoutID  uuid.UUID
	EventType string
	Attempt   int
}

type StreamProducer struct {
	client redis.Cmdable
}

func NewStreamProducer(client redis.Cmdable) *StreamProducer {
	return &StreamProducer{client: client}
}

// Publish relays an outbox entry to the payout stream. It satisfies the
// outbox relay's publisher port.
func (p *StreamProducer) Publish(ctx context.Context, entry *outbox.Entry) error {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: PayoutStream,
		Values: map[string]any{
			"payout_id":  entry.AggregateID.String(),
			"event_type": entry.EventType,
			"attempt":    attemptOf(entry.Payload),
			"payload":    string(payload),
			"timestamp":  time.Now().Unix(),
		},
	}

	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish payout event: %w", err)
	}
	return nil
}

// PublishToDLQ parks a message the worker could not process.
func (p *StreamProducer) PublishToDLQ(ctx context.Context, msg redis.XMessage, reason string) error {
	values := make(map[string]any, len(msg.Values)+2)
	for k, v := range msg.Values {
		values[k] = v
	}
	values["reason"] = reason
	values["original_id"] = msg.ID

	if _, err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: DLQStream, Values: values}).Result(); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}
	return nil
}

func attemptOf(payload map[string]any) int {
	switch v := payload["attempt"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 1
}

// ParseSettlementMessage decodes a payout stream entry.
func ParseSettlementMessage(msg redis.XMessage) (SettlementMessage, error) {
	raw, _ := msg.Values["payout_id"].(string)
	id, err := uuid.Parse(raw)
	if err != nil {
		return SettlementMessage{}, fmt.Errorf("message %s: invalid payout_id %q", msg.ID, raw)
	}

	attempt := 1
	if s, ok := msg.Values["attempt"].(string); ok && s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return SettlementMessage{}, fmt.Errorf("message %s: invalid attempt %q", msg.ID, s)
		}
		attempt = n
	}

	eventType, _ := msg.Values["event_type"].(string)
	return SettlementMessage{
		StreamID:  msg.ID,
		PayoutID:  id,
		EventType: eventType,
		Attempt:   attempt,
	}, nil
}

type StreamConsumer struct {
	client        redis.Cmdable
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client redis.Cmdable,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

// CreateGroup creates the consumer group and the stream if needed.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read returns the next batch of new messages, or nil when the block
// duration passes without any.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var messages []redis.XMessage
	for _, s := range streams {
		messages = append(messages, s.Messages...)
	}
	return messages, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer left pending for longer
// than minIdle.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	messages, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return messages, nil
}
