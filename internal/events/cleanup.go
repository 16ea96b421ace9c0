package events

import (
	"context"
	"log/slog"

	"github.com/mategroup/sso/internal/mq"
)

// BlobDeleter removes an object by key.
type BlobDeleter interface {
	Delete(ctx context.Context, key string) error
}

// Subscriber is the consuming half of mq.MQ.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// CleanupConsumer deletes the avatar blob of deleted accounts.
type CleanupConsumer struct {
	blobs   BlobDeleter
	channel string
	logger  *slog.Logger
}

func NewCleanupConsumer(blobs BlobDeleter, channel string, logger *slog.Logger) *CleanupConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanupConsumer{blobs: blobs, channel: channel, logger: logger}
}

// Run blocks consuming the events channel until ctx is done.
func (c *CleanupConsumer) Run(ctx context.Context, sub Subscriber) error {
	c.logger.Info("cleanup consumer started", "channel", c.channel)
	return sub.Subscribe(ctx, c.channel, c.Handle)
}

// Handle processes one message. Returning an error asks the broker to redeliver.
func (c *CleanupConsumer) Handle(ctx context.Context, msg mq.Message) error {
	event, err := Decode(msg)
	if err != nil {
		// Malformed payloads will never succeed; ack them.
		c.logger.Warn("dropping malformed account event", "message_id", msg.ID, "error", err)
		return nil
	}
	if event.Type != AccountDeleted || event.AvatarPath == "" {
		return nil
	}

	if err := c.blobs.Delete(ctx, event.AvatarPath); err != nil {
		if msg.Redelivered {
			// RabbitMQ drops a message that fails after redelivery.
			c.logger.Error("avatar cleanup failed on redelivery, blob may be orphaned",
				"message_id", msg.ID,
				"user_id", event.UserID,
				"path", event.AvatarPath,
				"error", err,
			)
			return err
		}
		c.logger.Warn("delete avatar blob, requesting redelivery",
			"user_id", event.UserID,
			"path", event.AvatarPath,
			"error", err,
		)
		return err
	}
	c.logger.Info("deleted avatar blob", "user_id", event.UserID, "path", event.AvatarPath)
	return nil
}
