// Package dispatch publishes control envelopes to device command topics.
// A returned ack means the send was accepted for transmission, not that the
// device received or executed the command; device acknowledgments arrive
// separately on the control-response topic.
package dispatch

import (
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
	"github.com/agrosense/irrigation-coordinator/pkg/mqttconn"
)

const commandTopicTmpl = "control/%s/command"

// Commands go out at-least-once; devices dedupe on correlation id.
const commandQoS = 1

type Dispatcher struct {
	pub mqttconn.Publisher
	now func() time.Time
	log *zap.Logger
}

func NewDispatcher(pub mqttconn.Publisher, log *zap.Logger) *Dispatcher {
	return &Dispatcher{pub: pub, now: time.Now, log: log}
}

// Send stamps the envelope with server time and publishes it on the device's
// command topic. Failures are reported as ErrDispatch.
func (d *Dispatcher) Send(deviceID string, env model.CommandEnvelope) error {
	env.ServerTime = d.now().UTC()
	if env.IssuedAt.IsZero() {
		env.IssuedAt = env.ServerTime
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("%w: encode command: %v", model.ErrDispatch, err)
	}

	topic := fmt.Sprintf(commandTopicTmpl, deviceID)
	if err := d.pub.Publish(topic, commandQoS, payload); err != nil {
		return fmt.Errorf("%w: %v", model.ErrDispatch, err)
	}

	d.log.Info("command dispatched",
		zap.String("device_id", deviceID),
		zap.String("action", string(env.Action)),
		zap.String("correlation_id", env.CorrelationID))
	return nil
}
