package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes location events to a Kafka topic keyed by driver ID,
// so one driver's events stay ordered within a partition.
type KafkaPublisher struct {
	writer messageWriter
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
// Writes are asynchronous: PublishLocation only enqueues, and delivery
// failures are reported to logger once the batch completes.
func NewKafkaPublisher(brokers []string, topic string, logger logrus.FieldLogger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkago.Writer{
			Addr:         kafkago.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkago.Hash{},
			RequiredAcks: kafkago.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion:   completionLogger(logger, topic),
		},
	}
}

func completionLogger(logger logrus.FieldLogger, topic string) func([]kafkago.Message, error) {
	return func(messages []kafkago.Message, err error) {
		if err == nil {
			return
		}
		logger.WithError(err).WithFields(logrus.Fields{
			"topic":    topic,
			"messages": len(messages),
		}).Warn("location events not delivered")
	}
}

// PublishLocation sends one event.
func (p *KafkaPublisher) PublishLocation(ctx context.Context, event LocationUpdated) error {
	msg, err := locationMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish location for driver %s: %w", event.DriverID, err)
	}
	return nil
}

// Close flushes pending messages and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func locationMessage(event LocationUpdated) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Key:   []byte(event.DriverID),
		Value: data,
		Time:  event.RecordedAt,
	}, nil
}
