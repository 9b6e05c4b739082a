// Package events publishes session lifecycle notifications so resource
// services can drop cached sessions without polling the auth store.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/aussiebroadwan/walletauth/pkg/idx"
)

// DefaultTopic is where every auth event is published.
const DefaultTopic = "walletauth.sessions"

const (
	TypeSessionCreated    = "auth.session.created"
	TypeSessionRotated    = "auth.session.rotated"
	TypeSessionRevoked    = "auth.session.revoked"
	TypeSessionRevokedAll = "auth.session.revoked_all"
	TypeRefreshReused     = "auth.refresh.reused"
)

// Event is the JSON payload of every published message.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Address    string    `json:"address"`
	SessionID  string    `json:"session_id,omitempty"`
	TokenID    string    `json:"token_id,omitempty"`
	Count      int64     `json:"count,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher sends auth events somewhere.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// WatermillPublisher publishes events through any watermill backend.
type WatermillPublisher struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillPublisher(publisher message.Publisher, topic string) *WatermillPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	return &WatermillPublisher{publisher: publisher, topic: topic}
}

func (p *WatermillPublisher) Publish(ctx context.Context, e Event) error {
	if e.ID == "" {
		e.ID = idx.New().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set("type", e.Type)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(p.topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

func (p *WatermillPublisher) Close() error { return p.publisher.Close() }

// Decode reads an Event back out of a message.
func Decode(msg *message.Message) (Event, error) {
	var e Event
	if err := json.Unmarshal(msg.Payload, &e); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	return e, nil
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
