// Package mqttbus connects the control core to the field MQTT broker: the
// external event feed comes in, change events go out.
package mqttbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	MaxRetries  int
}

// Connect dials the broker with exponential backoff and disconnects once ctx
// is done.
func Connect(ctx context.Context, cfg Config, logger *slog.Logger) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("mqtt connection lost", "err", err)
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	retries := cfg.MaxRetries
	if retries <= 0 {
		retries = 5
	}

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			logger.Warn("mqtt connect failed", "broker", cfg.Broker, "err", token.Error())
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(retries-1)), ctx))
	if err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	logger.Info("mqtt connected", "broker", cfg.Broker)

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		logger.Info("mqtt disconnected")
	}()
	return client, nil
}
