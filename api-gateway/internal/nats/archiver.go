// Package nats publishes vault events to JetStream for archival.
package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	natsio "github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/Gideonite22/clarity-trend-vault/shared/eventstream"
	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

const defaultPublishTimeout = 5 * time.Second

// Archiver publishes events to JetStream with at-least-once delivery.
type Archiver struct {
	js      jetstream.JetStream
	timeout time.Duration
	log     zerolog.Logger
}

// NewArchiver creates the JetStream context and makes sure the stream exists.
func NewArchiver(ctx context.Context, nc *natsio.Conn, log zerolog.Logger) (*Archiver, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := js.CreateOrUpdateStream(ctx, eventstream.Config()); err != nil {
		return nil, fmt.Errorf("failed to create/update stream: %w", err)
	}
	log.Info().Str("stream", models.EventStream).Msg("jetstream stream ready")

	return &Archiver{js: js, timeout: defaultPublishTimeout, log: log}, nil
}

// Archive publishes event on its kind subject and waits for the server ack.
// The event id is the message id, so retried publishes are deduplicated.
func (a *Archiver) Archive(ctx context.Context, event *models.VaultEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	ack, err := a.js.Publish(ctx, event.Subject(), data, jetstream.WithMsgID(event.EventID))
	if err != nil {
		return fmt.Errorf("failed to publish to JetStream: %w", err)
	}
	a.log.Debug().
		Str("subject", event.Subject()).
		Uint64("seq", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("event archived")
	return nil
}
