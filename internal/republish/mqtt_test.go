package republish

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/kjstillabower/weather-bridge/internal/models"
)

type fakeToken struct {
	done chan struct{}
	err  error
}

func completedToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool {
	<-t.done
	return true
}

func (t *fakeToken) WaitTimeout(d time.Duration) bool {
	select {
	case <-t.done:
		return true
	case <-time.After(d):
		return false
	}
}

func (t *fakeToken) Done() <-chan struct{} { return t.done }
func (t *fakeToken) Error() error          { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakePublisher struct {
	mu    sync.Mutex
	msgs  []published
	token mqtt.Token
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, _ := payload.([]byte)
	p.msgs = append(p.msgs, published{topic: topic, qos: qos, retained: retained, payload: b})
	if p.token != nil {
		return p.token
	}
	return completedToken(nil)
}

// TestMQTT_Publish verifies topic layout, retain/QoS flags and the JSON payload.
func TestMQTT_Publish(t *testing.T) {
	pub := &fakePublisher{}
	m := newMQTTWithPublisher(MQTTConfig{TopicPrefix: "home/weather", QoS: 1, Retain: true}, pub, nil)

	report := models.Report{StationID: "KMAHANOV10", Temperature: 12.5, Units: models.UnitsSI}
	if err := m.Publish(context.Background(), report); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.topic != "home/weather/KMAHANOV10/report" || msg.qos != 1 || !msg.retained {
		t.Errorf("published %s qos=%d retained=%v", msg.topic, msg.qos, msg.retained)
	}
	var got models.Report
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if got.StationID != "KMAHANOV10" || got.Temperature != 12.5 {
		t.Errorf("payload = %+v", got)
	}
}

// TestMQTT_PublishErrors verifies token errors, timeouts and disconnected state surface as errors.
func TestMQTT_PublishErrors(t *testing.T) {
	report := models.Report{StationID: "KMAHANOV10"}

	failing := newMQTTWithPublisher(MQTTConfig{}, &fakePublisher{token: completedToken(errors.New("not authorized"))}, nil)
	if err := failing.Publish(context.Background(), report); err == nil {
		t.Error("expected token error")
	}

	pending := &fakeToken{done: make(chan struct{})}
	slow := newMQTTWithPublisher(MQTTConfig{PublishTimeout: 20 * time.Millisecond}, &fakePublisher{token: pending}, nil)
	if err := slow.Publish(context.Background(), report); err == nil {
		t.Error("expected timeout error")
	}

	closed := newMQTTWithPublisher(MQTTConfig{}, &fakePublisher{}, nil)
	closed.Close()
	if err := closed.Publish(context.Background(), report); err == nil {
		t.Error("expected error after Close")
	}
	if err := closed.Connect(context.Background()); !errors.Is(err, ErrMQTTStopped) {
		t.Errorf("Connect() after Close = %v, want ErrMQTTStopped", err)
	}
}

func TestMQTT_DefaultTopic(t *testing.T) {
	m := newMQTTWithPublisher(MQTTConfig{}, &fakePublisher{}, nil)
	if got := m.Topic("KMAHANOV10"); got != "weather/KMAHANOV10/report" {
		t.Errorf("Topic() = %q", got)
	}
}
