// Package events publishes account lifecycle events and consumes them for
// follow-up work such as avatar blob cleanup.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/mategroup/sso/internal/mq"
)

type Type string

const (
	AccountRegistered Type = "account.registered"
	AccountUpdated    Type = "account.updated"
	AccountDeleted    Type = "account.deleted"
)

const typeAttribute = "type"

// Event is the JSON body published on the account events channel.
type Event struct {
	Type       Type      `json:"type"`
	UserID     string    `json:"userId"`
	AvatarPath string    `json:"avatarPath,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Broker is the publishing half of mq.MQ.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Publisher sends events best effort. A nil broker disables publishing.
type Publisher struct {
	broker  Broker
	channel string
	logger  *slog.Logger
	now     func() time.Time
}

func NewPublisher(broker Broker, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{broker: broker, channel: channel, logger: logger, now: time.Now}
}

// Enabled reports whether events reach a broker.
func (p *Publisher) Enabled() bool {
	return p != nil && p.broker != nil
}

// Publish never fails the caller: errors are logged and dropped.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if !p.Enabled() {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = p.now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("encode account event", "type", event.Type, "error", err)
		return
	}
	id, err := p.broker.Publish(ctx, p.channel, data, map[string]string{typeAttribute: string(event.Type)})
	if err != nil {
		p.logger.Warn("publish account event", "type", event.Type, "user_id", event.UserID, "error", err)
		return
	}
	p.logger.Debug("published account event", "type", event.Type, "message_id", id)
}

// Decode parses an event from a broker message.
func Decode(msg mq.Message) (Event, error) {
	var event Event
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		return Event{}, err
	}
	if event.Type == "" && msg.Attributes != nil {
		event.Type = Type(msg.Attributes[typeAttribute])
	}
	return event, nil
}
