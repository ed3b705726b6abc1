// Package events publishes activity lifecycle notices (started, ended)
// for operational visibility. Logging-only: this engine has no message
// broker to hand events to.
package events

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"
)

// Event is a single lifecycle notice.
type Event struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher emits lifecycle events, each stamped with a real uuid.
type Publisher struct {
	logger *log.Logger
}

// NewPublisher returns a Publisher writing to the default logger.
func NewPublisher() *Publisher {
	return &Publisher{logger: log.Default()}
}

// Publish logs a structured lifecycle event under topic.
func (p *Publisher) Publish(ctx context.Context, topic string, payload any) error {
	event := Event{
		ID:        uuid.NewString(),
		Topic:     topic,
		Payload:   payload,
		Timestamp: time.Now(),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.logger.Printf("[EVENT] %s: %s", topic, string(data))
	return nil
}
