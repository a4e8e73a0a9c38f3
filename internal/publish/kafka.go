package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"driver-scheduler/internal/models"
)

// DefaultPublishTimeout bounds a single publish call
const DefaultPublishTimeout = 5 * time.Second

// messageWriter is the part of *kafka.Writer the publisher needs
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ResultPublisher sends finished schedule results to a Kafka topic,
// keyed by run id
type ResultPublisher struct {
	writer  messageWriter
	topic   string
	timeout time.Duration
}

func NewResultPublisher(brokers []string, topic string) *ResultPublisher {
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
	}
	log.Printf("[KAFKA] Publishing schedule results: brokers=%v topic=%s", brokers, topic)
	return newResultPublisher(w, topic)
}

func newResultPublisher(w messageWriter, topic string) *ResultPublisher {
	return &ResultPublisher{writer: w, topic: topic, timeout: DefaultPublishTimeout}
}

// Publish writes the result as JSON. The caller's context still applies on
// top of the publisher's own timeout.
func (p *ResultPublisher) Publish(ctx context.Context, result *models.ScheduleResult) error {
	if result == nil {
		return fmt.Errorf("publish: nil result")
	}

	value, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result %s: %w", result.RunID, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(result.RunID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "status", Value: []byte(result.Status)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish result %s to %s: %w", result.RunID, p.topic, err)
	}

	log.Printf("[KAFKA] Published result: run_id=%s topic=%s bytes=%d", result.RunID, p.topic, len(value))
	return nil
}

func (p *ResultPublisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
