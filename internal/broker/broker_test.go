package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyedEvent struct{ chat string }

func (k keyedEvent) PartitionKey() string { return k.chat }

func TestNewFallsBackToNoop(t *testing.T) {
	p := New(Options{Kind: "none"})
	assert.Equal(t, "noop", Mode(p))
	assert.Equal(t, "disabled", NoopReason(p))

	p = New(Options{Kind: "amqp"})
	assert.Equal(t, "noop", Mode(p))
	assert.Equal(t, "empty amqp url", NoopReason(p))

	p = New(Options{Kind: "kafka"})
	assert.Equal(t, "noop", Mode(p))

	p = New(Options{Kind: "carrier-pigeon"})
	assert.Equal(t, "noop", Mode(p))
}

func TestNoopPublish(t *testing.T) {
	p := Noop("test")
	require.NoError(t, p.Publish(context.Background(), RoutingMessageCreated, map[string]int{"id": 1}, nil))
	require.NoError(t, p.Close())
}

func TestKafkaWriterMode(t *testing.T) {
	p := NewKafkaPublisher([]string{"localhost:9092"}, "chatline.messages")
	assert.Equal(t, "kafka", Mode(p))
	assert.Equal(t, "", NoopReason(p))
	require.NoError(t, p.Close())
}

func TestBuildHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{}, BuildHeaders("", ""))
	assert.Equal(t, map[string]string{HeaderRequestID: "req-1", HeaderTraceID: "abc"}, BuildHeaders("req-1", "abc"))
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "chat:7", partitionKey(RoutingMessageCreated, keyedEvent{chat: "chat:7"}))
	assert.Equal(t, RoutingAudit, partitionKey(RoutingAudit, struct{}{}))
}
