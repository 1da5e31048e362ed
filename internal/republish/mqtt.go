package republish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-bridge/internal/models"
)

const defaultPublishTimeout = 5 * time.Second

var ErrMQTTStopped = errors.New("mqtt client stopped")

// Publisher is the part of mqtt.Client used to publish.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

type MQTTConfig struct {
	Broker         string // tcp://host:port
	ClientID       string
	Username       string
	Password       string
	TopicPrefix    string
	QoS            byte
	Retain         bool
	PublishTimeout time.Duration
}

// MQTT publishes the report JSON to <prefix>/<station>/report for smart-home consumers.
type MQTT struct {
	cfg    MQTTConfig
	client mqtt.Client
	pub    Publisher
	logger *zap.Logger

	mu        sync.RWMutex
	connected bool

	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewMQTT(cfg MQTTConfig, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &MQTT{
		cfg:    withMQTTDefaults(cfg),
		logger: logger,
		stopCh: make(chan struct{}),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(m.cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)

	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		m.setConnected(true)
		logger.Info("mqtt connected", zap.String("broker", cfg.Broker))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.setConnected(false)
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	m.client = mqtt.NewClient(opts)
	m.pub = m.client
	return m
}

// newMQTTWithPublisher builds a sink around pub without a broker connection.
func newMQTTWithPublisher(cfg MQTTConfig, pub Publisher, logger *zap.Logger) *MQTT {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MQTT{cfg: withMQTTDefaults(cfg), pub: pub, logger: logger, connected: true, stopCh: make(chan struct{})}
}

func withMQTTDefaults(cfg MQTTConfig) MQTTConfig {
	if cfg.ClientID == "" {
		cfg.ClientID = "weather-bridge"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "weather"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = defaultPublishTimeout
	}
	return cfg
}

func (m *MQTT) Name() string { return "mqtt" }

// Connect waits for the initial broker connection, honoring ctx and Close.
func (m *MQTT) Connect(ctx context.Context) error {
	select {
	case <-m.stopCh:
		return ErrMQTTStopped
	default:
	}
	if m.IsConnected() || m.client == nil {
		return nil
	}

	token := m.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.stopCh:
			return ErrMQTTStopped
		default:
		}
	}
}

// Topic returns the report topic for a station.
func (m *MQTT) Topic(stationID string) string {
	return path.Join(m.cfg.TopicPrefix, stationID, "report")
}

func (m *MQTT) Publish(ctx context.Context, report models.Report) error {
	if !m.IsConnected() {
		return errors.New("mqtt: not connected")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("mqtt: marshal report: %w", err)
	}

	token := m.pub.Publish(m.Topic(report.StationID), m.cfg.QoS, m.cfg.Retain, payload)
	timer := time.NewTimer(m.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish: %w", err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("mqtt publish: timeout after %s", m.cfg.PublishTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MQTT) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connected
}

func (m *MQTT) setConnected(v bool) {
	m.mu.Lock()
	m.connected = v
	m.mu.Unlock()
}

// Close stops pending Connect calls and disconnects from the broker.
func (m *MQTT) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.client != nil && m.client.IsConnectionOpen() {
			m.client.Disconnect(250)
		}
		m.setConnected(false)
		m.logger.Info("mqtt disconnected")
	})
}
