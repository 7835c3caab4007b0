// Package events publishes token lifecycle notifications through Watermill.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// TopicTokens carries every TokenEvent.
const TopicTokens = "authkeeper.tokens"

type Kind string

const (
	KindRevoked   Kind = "token.revoked"
	KindUnrevoked Kind = "token.unrevoked"
	KindDeleted   Kind = "token.deleted"
	KindPruned    Kind = "token.pruned"
)

// TokenEvent describes a change to one or more token records.
type TokenEvent struct {
	Kind         Kind      `json:"kind"`
	UserIdentity string    `json:"user_identity,omitempty"`
	JTIs         []string  `json:"jtis,omitempty"`
	Count        int64     `json:"count"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// WatermillPublisher sends TokenEvents as JSON messages to a Watermill publisher.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillPublisher(publisher message.Publisher) *WatermillPublisher {
	return &WatermillPublisher{
		publisher: publisher,
		topic:     TopicTokens,
	}
}

// PublishTokenEvent marshals e and publishes it on TopicTokens.
func (p *WatermillPublisher) PublishTokenEvent(ctx context.Context, e TokenEvent) error {
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("kind", string(e.Kind))
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close releases the underlying publisher.
func (p *WatermillPublisher) Close() error {
	return p.publisher.Close()
}
