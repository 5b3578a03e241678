// Package broker relays domain events to a message broker. RabbitMQ and Kafka
// are supported; when neither is reachable a logging noop publisher is used so
// the service keeps serving without a broker.
package broker

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"
)

// Routing keys published by the service.
const (
	RoutingMessageCreated = "message.created"
	RoutingMessageUpdated = "message.updated"
	RoutingMessageDeleted = "message.deleted"
	RoutingReceipt        = "message.receipt"
	RoutingAudit          = "audit.log"
)

// Publisher publishes JSON events under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error
	Close() error
}

// Options selects and configures the broker backend.
type Options struct {
	Kind         string
	AMQPURL      string
	AMQPExchange string
	KafkaBrokers []string
	KafkaTopic   string
}

// New builds the publisher named by opts.Kind, falling back to noop on any
// connection failure.
func New(opts Options) Publisher {
	switch strings.ToLower(opts.Kind) {
	case "amqp", "rabbitmq":
		return NewAMQPPublisher(opts.AMQPURL, opts.AMQPExchange)
	case "kafka":
		return NewKafkaPublisher(opts.KafkaBrokers, opts.KafkaTopic)
	case "", "none", "noop":
		return Noop("disabled")
	default:
		log.Warn().Str("kind", opts.Kind).Msg("unknown events broker, using noop")
		return Noop("unknown broker " + opts.Kind)
	}
}

// Noop returns a publisher that only logs.
func Noop(reason string) Publisher {
	return noopPublisher{reason: reason}
}

type noopPublisher struct {
	reason string
}

func (p noopPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	log.Debug().
		Str("routing_key", routingKey).
		Str("request_id", headers[HeaderRequestID]).
		Str("reason", p.reason).
		Msg("broker noop publish")
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

// Mode reports the publisher backend for logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case *kafkaPublisher:
		return "kafka"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}

// NoopReason returns why a noop publisher was chosen, or "".
func NoopReason(p Publisher) string {
	if n, ok := p.(noopPublisher); ok {
		return n.reason
	}
	return ""
}

// Header keys carried alongside published events.
const (
	HeaderRequestID = "x-request-id"
	HeaderTraceID   = "trace_id"
)

// BuildHeaders returns the non-empty correlation headers.
func BuildHeaders(requestID, traceID string) map[string]string {
	headers := map[string]string{}
	if requestID != "" {
		headers[HeaderRequestID] = requestID
	}
	if traceID != "" {
		headers[HeaderTraceID] = traceID
	}
	return headers
}
