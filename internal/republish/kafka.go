package republish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/models"
)

// MessageWriter is the part of kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// Kafka writes report JSON keyed by station id, so one station's reports stay ordered
// within a partition.
type Kafka struct {
	cfg    KafkaConfig
	writer MessageWriter
	logger *zap.Logger
}

func NewKafka(cfg KafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: cfg.WriteTimeout,
		Async:        false,
	}
	return newKafkaWithWriter(cfg, w, logger), nil
}

func newKafkaWithWriter(cfg KafkaConfig, w MessageWriter, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{cfg: cfg, writer: w, logger: logger}
}

func (k *Kafka) Name() string { return "kafka" }

func (k *Kafka) Publish(ctx context.Context, report models.Report) error {
	value, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("kafka: marshal report: %w", err)
	}
	ts := report.ObservationTimeUTC
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	msg := kafka.Message{
		Key:   []byte(report.StationID),
		Value: value,
		Time:  ts,
		Headers: []kafka.Header{
			{Key: "units", Value: []byte(report.Units)},
		},
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write to %s: %w", k.cfg.Topic, err)
	}
	return nil
}

func (k *Kafka) Close() error {
	if err := k.writer.Close(); err != nil {
		return fmt.Errorf("kafka: close writer: %w", err)
	}
	k.logger.Info("kafka writer closed", zap.String("topic", k.cfg.Topic))
	return nil
}
