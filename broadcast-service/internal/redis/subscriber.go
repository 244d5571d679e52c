package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// Options configures the connection.
type Options struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// Subscriber wraps Redis Pub/Sub functionality
type Subscriber struct {
	client *redis.Client
	pubsub *redis.PubSub
	log    zerolog.Logger
}

// NewSubscriber creates a new Redis Pub/Sub subscriber
func NewSubscriber(opts Options, log zerolog.Logger) (*Subscriber, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Subscriber{client: rdb, log: log}, nil
}

// SubscribeToPattern subscribes to every channel matching pattern.
// "vault_events:*" covers all topics.
func (s *Subscriber) SubscribeToPattern(ctx context.Context, pattern string) error {
	s.pubsub = s.client.PSubscribe(ctx, pattern)
	_, err := s.pubsub.Receive(ctx)
	return err
}

// Listen forwards parsed messages to messageChan until ctx is done.
// This is a blocking operation - run in a goroutine
func (s *Subscriber) Listen(ctx context.Context, messageChan chan<- *Message) error {
	if s.pubsub == nil {
		return fmt.Errorf("not subscribed to any channel")
	}

	ch := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("pubsub channel closed")
			}
			parsed, err := parseMessage(msg.Channel, msg.Payload)
			if err != nil {
				s.log.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping message")
				continue
			}
			select {
			case messageChan <- parsed:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Message represents a parsed Pub/Sub message
type Message struct {
	Topic   string
	Payload string // Raw JSON payload
	Event   models.VaultEvent
}

func parseMessage(channel, payload string) (*Message, error) {
	topic := extractTopicFromChannel(channel)
	if topic == "" {
		return nil, fmt.Errorf("channel %q carries no topic", channel)
	}
	var event models.VaultEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	return &Message{Topic: topic, Payload: payload, Event: event}, nil
}

// extractTopicFromChannel extracts the topic from a channel name
// Example: "vault_events:auction:1" -> "auction:1"
func extractTopicFromChannel(channel string) string {
	topic, ok := strings.CutPrefix(channel, models.EventChannelPrefix)
	if !ok {
		return ""
	}
	return topic
}

// Close closes the subscriber
func (s *Subscriber) Close() error {
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
	return s.client.Close()
}
