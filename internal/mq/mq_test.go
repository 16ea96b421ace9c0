package mq

import (
	"context"
	"testing"

	"github.com/mategroup/sso/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDisabled(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{})
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: "kafka"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDisabled)
}

func TestOpenRabbitRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), config.MQConfig{Backend: config.MQRabbitMQ})
	require.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(amqp.Table{
		"type":  "account.deleted",
		"raw":   []byte("bytes"),
		"count": int32(3),
	})
	assert.Equal(t, map[string]string{"type": "account.deleted", "raw": "bytes", "count": "3"}, attrs)
}

func TestSubscriptionName(t *testing.T) {
	assert.Equal(t, "sso-account-events-sub", subscriptionName("sso-account-events", ""))
	assert.Equal(t, "sso-account-events-worker", subscriptionName("sso-account-events", "-worker"))
}

func TestRequeueOnFailure(t *testing.T) {
	assert.True(t, requeueOnFailure(false))
	assert.False(t, requeueOnFailure(true))
}
