package events

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogPublisher logs events instead of sending them. Used when no brokers are configured.
type LogPublisher struct {
	logger logrus.FieldLogger
}

// NewLogPublisher creates a publisher that writes to logger.
func NewLogPublisher(logger logrus.FieldLogger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) PublishLocation(_ context.Context, event LocationUpdated) error {
	p.logger.WithFields(logrus.Fields{
		"event":       "driver.location.updated",
		"driver_id":   event.DriverID,
		"delivery_id": event.DeliveryID,
		"longitude":   event.Longitude,
		"latitude":    event.Latitude,
		"status":      event.Status,
		"applied":     event.Applied,
	}).Debug("location event")
	return nil
}

func (p *LogPublisher) Close() error { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = (*LogPublisher)(nil)
)
