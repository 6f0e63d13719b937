package dispatch

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agrosense/irrigation-coordinator/internal/model"
)

type fakePublisher struct {
	err     error
	topic   string
	qos     byte
	payload []byte
}

func (f *fakePublisher) Publish(topic string, qos byte, payload []byte) error {
	if f.err != nil {
		return f.err
	}
	f.topic, f.qos, f.payload = topic, qos, payload
	return nil
}

func (f *fakePublisher) Close() {}

func TestSendPublishesOnCommandTopic(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, zap.NewNop())
	d.now = func() time.Time { return time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC) }

	err := d.Send("dev-1", model.CommandEnvelope{
		Action:        model.CommandStart,
		Duration:      30,
		CorrelationID: "sess-1",
	})
	require.NoError(t, err)

	assert.Equal(t, "control/dev-1/command", pub.topic)
	assert.Equal(t, byte(1), pub.qos)

	var env model.CommandEnvelope
	require.NoError(t, json.Unmarshal(pub.payload, &env))
	assert.Equal(t, model.CommandStart, env.Action)
	assert.Equal(t, 30, env.Duration)
	assert.Equal(t, "sess-1", env.CorrelationID)
	assert.Equal(t, d.now(), env.ServerTime)
	assert.Equal(t, d.now(), env.IssuedAt, "issued-at defaults to server time")
}

func TestSendBrokerFailureIsDispatchError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	d := NewDispatcher(pub, zap.NewNop())

	err := d.Send("dev-1", model.CommandEnvelope{Action: model.CommandStop})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrDispatch)
}
