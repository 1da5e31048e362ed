package republish

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kjstillabower/weather-bridge/internal/models"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

// TestKafka_Publish verifies the message key, timestamp, header and JSON value.
func TestKafka_Publish(t *testing.T) {
	w := &fakeWriter{}
	k := newKafkaWithWriter(KafkaConfig{Topic: "weather.reports"}, w, nil)

	obsTime := time.Date(2024, 5, 1, 14, 53, 14, 0, time.UTC)
	report := models.Report{StationID: "KMAHANOV10", ObservationTimeUTC: obsTime, Units: models.UnitsMetric, Humidity: 65}
	if err := k.Publish(context.Background(), report); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(w.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(w.msgs))
	}
	msg := w.msgs[0]
	if string(msg.Key) != "KMAHANOV10" {
		t.Errorf("Key = %q", msg.Key)
	}
	if !msg.Time.Equal(obsTime) {
		t.Errorf("Time = %v, want %v", msg.Time, obsTime)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "metric" {
		t.Errorf("Headers = %+v", msg.Headers)
	}
	var got models.Report
	if err := json.Unmarshal(msg.Value, &got); err != nil || got.Humidity != 65 {
		t.Errorf("Value = %s (%v)", msg.Value, err)
	}

	if err := k.Close(); err != nil || !w.closed {
		t.Errorf("Close() = %v, closed = %v", err, w.closed)
	}
}

func TestKafka_PublishError(t *testing.T) {
	k := newKafkaWithWriter(KafkaConfig{Topic: "weather.reports"}, &fakeWriter{err: errors.New("leader not available")}, nil)
	if err := k.Publish(context.Background(), models.Report{StationID: "S"}); err == nil {
		t.Error("expected write error")
	}
}

func TestNewKafka_Validation(t *testing.T) {
	if _, err := NewKafka(KafkaConfig{Topic: "t"}, nil); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Error("expected error without topic")
	}
	k, err := NewKafka(KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "t"}, nil)
	if err != nil {
		t.Fatalf("NewKafka() error = %v", err)
	}
	_ = k.Close()
}
