// Package eventstream declares the JetStream stream shared by the gateway
// (publisher) and the archival worker (consumer).
package eventstream

import (
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/Gideonite22/clarity-trend-vault/shared/models"
)

// ArchivalConsumer is the durable consumer name of the archival worker.
const ArchivalConsumer = "archival-worker"

// Subjects matches every event kind.
const Subjects = models.EventSubjectPrefix + ">"

// Config describes the archival stream. Both sides declare it so either may
// start first.
func Config() jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        models.EventStream,
		Description: "Stream for vault events archival",
		Subjects:    []string{Subjects},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.WorkQueuePolicy, // Each message consumed once
		MaxAge:      24 * time.Hour,
		Duplicates:  10 * time.Minute, // dedup window for Nats-Msg-Id
		Replicas:    1,
	}
}

// ConsumerConfig is the durable pull consumer the archival worker binds to.
func ConsumerConfig() jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:       ArchivalConsumer,
		Description:   "Persists vault events to PostgreSQL",
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    10,
		FilterSubject: Subjects,
	}
}
