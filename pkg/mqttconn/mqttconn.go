package mqttconn

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	ClientID string `yaml:"client_id"`
}

// Connect establishes the broker connection, retrying with exponential
// backoff. The connection is torn down when ctx is cancelled.
func Connect(ctx context.Context, cfg Config, log *zap.Logger) (mqtt.Client, error) {
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Host, cfg.Port)

	opts := mqtt.NewClientOptions()
	opts.AddBroker(addr)
	opts.SetUsername(cfg.User)
	opts.SetPassword(cfg.Password)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 10 * time.Second

	var client mqtt.Client
	err := backoff.Retry(func() error {
		client = mqtt.NewClient(opts)
		if token := client.Connect(); token.Wait() && token.Error() != nil {
			log.Warn("mqtt connect failed, retrying", zap.Error(token.Error()))
			return token.Error()
		}
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, 4), ctx))
	if err != nil {
		return nil, fmt.Errorf("mqtt connect after retries: %w", err)
	}

	log.Info("connected to mqtt broker", zap.String("addr", addr))

	go func() {
		<-ctx.Done()
		client.Disconnect(250)
		log.Info("mqtt connection closed")
	}()

	return client, nil
}
