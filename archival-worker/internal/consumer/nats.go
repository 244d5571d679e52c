package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/Gideonite22/clarity-trend-vault/archival-worker/internal/database"
	"github.com/Gideonite22/clarity-trend-vault/shared/eventstream"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// errPoison marks messages that can never be processed.
var errPoison = errors.New("poison message")

// EventStore persists archived events.
type EventStore interface {
	InsertEvent(ctx context.Context, event *models.VaultEvent) (bool, error)
}

// NATSConsumer consumes vault events from JetStream and persists them
type NATSConsumer struct {
	conn  *nats.Conn
	js    jetstream.JetStream
	store EventStore
	log   zerolog.Logger
}

// NewNATSConsumer connects to NATS and makes sure the stream exists
func NewNATSConsumer(ctx context.Context, natsURL string, store EventStore, log zerolog.Logger) (*NATSConsumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, eventstream.Config()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}

	return &NATSConsumer{
		conn:  conn,
		js:    js,
		store: store,
		log:   log,
	}, nil
}

// Start binds the durable consumer and processes messages until ctx is done.
func (c *NATSConsumer) Start(ctx context.Context) error {
	cons, err := c.js.CreateOrUpdateConsumer(ctx, models.EventStream, eventstream.ConsumerConfig())
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := cons.Consume(func(msg jetstream.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to consume: %w", err)
	}
	defer cc.Stop()

	c.log.Info().
		Str("stream", models.EventStream).
		Str("consumer", eventstream.ArchivalConsumer).
		Msg("consuming vault events")

	<-ctx.Done()
	return nil
}

// handleMessage acks archived events, terminates poison messages and naks
// everything else for redelivery.
func (c *NATSConsumer) handleMessage(ctx context.Context, msg jetstream.Msg) {
	err := c.process(ctx, msg.Data())
	switch {
	case err == nil:
		if ackErr := msg.Ack(); ackErr != nil {
			c.log.Warn().Err(ackErr).Msg("failed to ack message")
		}
	case errors.Is(err, errPoison):
		c.log.Error().Err(err).Str("subject", msg.Subject()).Msg("dropping message")
		_ = msg.Term()
	default:
		c.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("archival failed, redelivering")
		_ = msg.Nak()
	}
}

func (c *NATSConsumer) process(ctx context.Context, data []byte) error {
	var event models.VaultEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if event.EventID == "" || event.Kind == "" {
		return fmt.Errorf("%w: event id and kind are required", errPoison)
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	inserted, err := c.store.InsertEvent(dbCtx, &event)
	if errors.Is(err, database.ErrInvalidEvent) {
		return fmt.Errorf("%w: %v", errPoison, err)
	}
	if err != nil {
		return fmt.Errorf("persist event %s: %w", event.EventID, err)
	}

	logEvent := c.log.Debug()
	if !inserted {
		logEvent = c.log.Info().Bool("duplicate", true)
	}
	logEvent.
		Str("event_id", event.EventID).
		Str("kind", string(event.Kind)).
		Uint64("height", event.BlockHeight).
		Msg("event archived")
	return nil
}

// Close closes the NATS connection
func (c *NATSConsumer) Close() error {
	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		return err
	}
	return nil
}
