// Package events publishes sync lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"github.com/johnrirwin/topicbuddy/internal/models"
)

// Publisher delivers sync events. Implementations must be safe for use from
// the sync goroutine while the HTTP server is running.
type Publisher interface {
	Publish(ctx context.Context, event models.SyncEvent) error
	Close() error
}

// KafkaConfig holds producer settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// KafkaPublisher writes events as JSON messages keyed by persona id.
type KafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to the brokers.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_6_0_0
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Timeout = 5 * time.Second

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	return newKafkaPublisherWithProducer(producer, cfg.Topic), nil
}

func newKafkaPublisherWithProducer(producer sarama.SyncProducer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// Publish stamps missing ids and timestamps, then sends the event.
func (p *KafkaPublisher) Publish(ctx context.Context, event models.SyncEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	event = stamp(event)
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(strconv.FormatInt(event.PersonaID, 10)),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("event_type"), Value: []byte(event.Type)},
		},
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return fmt.Errorf("send %s event: %w", event.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}

// NopPublisher drops every event. Used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, models.SyncEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

func stamp(event models.SyncEvent) models.SyncEvent {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	return event
}
