package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

type kafkaPublisher struct {
	w *kafka.Writer
}

// NewKafkaPublisher builds an async Kafka writer. The routing key becomes the
// record key so one chat's events stay on one partition.
func NewKafkaPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		log.Warn().Msg("kafka disabled, using noop: no brokers")
		return Noop("no kafka brokers")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("count", len(messages)).Msg("kafka async write failed")
			}
		},
	}
	log.Info().Strs("brokers", brokers).Str("topic", topic).Msg("kafka writer ready")
	return &kafkaPublisher{w: w}
}

func (p *kafkaPublisher) Publish(ctx context.Context, routingKey string, event any, headers map[string]string) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msgHeaders := make([]kafka.Header, 0, len(headers)+1)
	msgHeaders = append(msgHeaders, kafka.Header{Key: "routing_key", Value: []byte(routingKey)})
	for key, value := range headers {
		msgHeaders = append(msgHeaders, kafka.Header{Key: key, Value: []byte(value)})
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:     []byte(partitionKey(routingKey, event)),
		Value:   body,
		Headers: msgHeaders,
		Time:    time.Now(),
	})
}

func (p *kafkaPublisher) Close() error {
	return p.w.Close()
}

// Keyed is implemented by events that carry their own partition key.
type Keyed interface {
	PartitionKey() string
}

func partitionKey(routingKey string, event any) string {
	if k, ok := event.(Keyed); ok {
		return k.PartitionKey()
	}
	return routingKey
}
