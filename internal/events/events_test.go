package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type fakeWriter struct {
	messages []kafkago.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() LocationUpdated {
	return LocationUpdated{
		DriverID:   "driver-1",
		DeliveryID: "delivery-9",
		Longitude:  2.3522,
		Latitude:   48.8566,
		Status:     "available",
		Applied:    true,
		RecordedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_KeysByDriver(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer}

	if err := publisher.PublishLocation(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(writer.messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(writer.messages))
	}

	msg := writer.messages[0]
	if string(msg.Key) != "driver-1" {
		t.Errorf("expected key driver-1, got %q", msg.Key)
	}

	var decoded map[string]any
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("value is not JSON: %v", err)
	}
	if decoded["deliveryId"] != "delivery-9" || decoded["longitude"] != 2.3522 {
		t.Errorf("unexpected payload %v", decoded)
	}
}

func TestKafkaPublisher_WrapsWriteError(t *testing.T) {
	t.Parallel()

	boom := errors.New("broker down")
	publisher := &KafkaPublisher{writer: &fakeWriter{err: boom}}

	err := publisher.PublishLocation(context.Background(), sampleEvent())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
}

func TestKafkaPublisher_Close(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	publisher := &KafkaPublisher{writer: writer}
	if err := publisher.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !writer.closed {
		t.Error("expected writer to be closed")
	}
}

func TestNewKafkaPublisher_WritesAsync(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	publisher := NewKafkaPublisher([]string{"localhost:9092"}, "driver-locations", logger)

	writer, ok := publisher.writer.(*kafkago.Writer)
	if !ok {
		t.Fatalf("expected *kafkago.Writer, got %T", publisher.writer)
	}
	if !writer.Async {
		t.Error("expected an async writer so publishing never blocks a location update")
	}
	if writer.Completion == nil {
		t.Fatal("expected a completion callback")
	}

	writer.Completion([]kafkago.Message{{Key: []byte("driver-1")}}, nil)
	if len(hook.AllEntries()) != 0 {
		t.Errorf("expected no log for a delivered batch, got %d entries", len(hook.AllEntries()))
	}

	writer.Completion([]kafkago.Message{{Key: []byte("driver-1")}, {Key: []byte("driver-2")}}, errors.New("broker down"))
	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a failed batch to be logged")
	}
	if entry.Level != logrus.WarnLevel || entry.Data["messages"] != 2 || entry.Data["topic"] != "driver-locations" {
		t.Errorf("unexpected log entry: %v %v", entry.Level, entry.Data)
	}
}

func TestLogPublisher_LogsFields(t *testing.T) {
	t.Parallel()

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	publisher := NewLogPublisher(logger)

	if err := publisher.PublishLocation(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a log entry")
	}
	if entry.Data["driver_id"] != "driver-1" {
		t.Errorf("expected driver_id field, got %v", entry.Data)
	}
}
