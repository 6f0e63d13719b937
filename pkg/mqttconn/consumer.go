package mqttconn

import (
	"context"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Handler processes one inbound message. Errors are logged by the consumer;
// they never stop the subscription.
type Handler func(topic string, payload []byte) error

// Subscription binds a topic filter to the delivery guarantee it needs.
type Subscription struct {
	Topic string
	QoS   byte
}

// Consumer subscribes to a set of topic filters and dispatches messages to a
// single handler. Run blocks until the context is cancelled.
type Consumer interface {
	SetHandler(h Handler)
	Run(ctx context.Context)
}

type consumer struct {
	client  mqtt.Client
	subs    []Subscription
	handler Handler
	log     *zap.Logger
}

func NewConsumer(client mqtt.Client, subs []Subscription, log *zap.Logger) Consumer {
	return &consumer{client: client, subs: subs, log: log}
}

func (c *consumer) SetHandler(h Handler) { c.handler = h }

func (c *consumer) Run(ctx context.Context) {
	for _, sub := range c.subs {
		sub := sub
		token := c.client.Subscribe(sub.Topic, sub.QoS, func(_ mqtt.Client, msg mqtt.Message) {
			if c.handler == nil {
				c.log.Warn("no handler set", zap.String("topic", msg.Topic()))
				return
			}
			if err := c.handler(msg.Topic(), msg.Payload()); err != nil {
				c.log.Error("message handling failed",
					zap.String("topic", msg.Topic()), zap.Error(err))
			}
		})
		token.Wait()
		if token.Error() != nil {
			c.log.Error("subscribe failed",
				zap.String("topic", sub.Topic), zap.Error(token.Error()))
			continue
		}
		c.log.Info("subscribed", zap.String("topic", sub.Topic), zap.Uint8("qos", sub.QoS))
	}

	<-ctx.Done()

	for _, sub := range c.subs {
		c.client.Unsubscribe(sub.Topic).Wait()
	}
}
