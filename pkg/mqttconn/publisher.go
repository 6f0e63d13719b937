package mqttconn

import (
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Publisher publishes payloads to arbitrary topics. Success means the send
// was accepted by the client, not that any device received it.
type Publisher interface {
	Publish(topic string, qos byte, payload []byte) error
	Close()
}

type publisher struct {
	client mqtt.Client
}

func NewPublisher(client mqtt.Client) Publisher {
	return &publisher{client: client}
}

func (p *publisher) Publish(topic string, qos byte, payload []byte) error {
	token := p.client.Publish(topic, qos, false, payload)
	token.Wait()
	if token.Error() != nil {
		return fmt.Errorf("publish to %s: %w", topic, token.Error())
	}
	return nil
}

func (p *publisher) Close() {
	if p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
