package mqttbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"edgegrid/internal/events"
)

type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Publisher forwards change events to <prefix>/events/<entity>/<kind>.
type Publisher struct {
	client  publisher
	prefix  string
	timeout time.Duration
	log     *slog.Logger
}

var _ events.Sink = (*Publisher)(nil)

func NewPublisher(client publisher, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{client: client, prefix: prefix, timeout: 5 * time.Second, log: logger}
}

func EventTopic(prefix string, e events.Event) string {
	return prefix + "/events/" + e.Entity + "/" + string(e.Kind)
}

func (p *Publisher) Publish(_ context.Context, e events.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		p.log.Error("encode event", "kind", e.Kind, "err", err)
		return
	}
	topic := EventTopic(p.prefix, e)
	token := p.client.Publish(topic, 1, false, b)
	if !token.WaitTimeout(p.timeout) {
		p.log.Warn("mqtt publish timed out", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "err", err)
	}
}
