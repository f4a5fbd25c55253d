package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/slotbook/slotbook-api/internal/domain/events"
)

// messageWriter is the part of *kafka.Writer the producer uses
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer writes JSON messages to Kafka
type Producer struct {
	brokers []string
	writer  messageWriter
}

func NewProducer(brokers []string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           50 * time.Millisecond,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
	return &Producer{brokers: brokers, writer: writer}
}

// Publish writes payload as JSON under key
func (p *Producer) Publish(ctx context.Context, topic, key string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: data,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to Kafka: %w", err)
	}

	log.Debug().Str("topic", topic).Str("key", key).Msg("Published to Kafka")
	return nil
}

// BookingSink returns a deliver func for events.Forward. Messages are keyed
// by booking ID so every change of one booking lands on the same partition
// in order.
func (p *Producer) BookingSink(topic string) func(context.Context, events.Event) error {
	return func(ctx context.Context, e events.Event) error {
		return p.Publish(ctx, topic, e.BookingID.String(), e)
	}
}

func (p *Producer) Close() error {
	if p.writer != nil {
		return p.writer.Close()
	}
	return nil
}
