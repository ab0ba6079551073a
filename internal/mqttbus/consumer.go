package mqttbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Handler processes one inbound payload. Errors are logged and the message
// is dropped; the feed is expected to resend state.
type Handler func(ctx context.Context, topic string, payload []byte) error

type subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Consumer routes messages from a fixed set of topics to handlers.
type Consumer struct {
	client subscriber
	routes map[string]Handler
	log    *slog.Logger
}

func NewConsumer(client subscriber, routes map[string]Handler, logger *slog.Logger) *Consumer {
	return &Consumer{client: client, routes: routes, log: logger}
}

// Run subscribes every route and blocks until ctx is done.
func (c *Consumer) Run(ctx context.Context) error {
	topics := make([]string, 0, len(c.routes))
	for topic, h := range c.routes {
		topic, h := topic, h
		token := c.client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
			if err := h(ctx, msg.Topic(), msg.Payload()); err != nil {
				c.log.Warn("feed message rejected", "topic", msg.Topic(), "err", err)
			}
		})
		if token.Wait() && token.Error() != nil {
			return fmt.Errorf("subscribe %s: %w", topic, token.Error())
		}
		c.log.Info("subscribed", "topic", topic)
		topics = append(topics, topic)
	}
	<-ctx.Done()
	if len(topics) > 0 {
		c.client.Unsubscribe(topics...).WaitTimeout(time.Second)
	}
	return nil
}
