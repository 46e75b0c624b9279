// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package mqtt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dmx-life/internal/api"
	"dmx-life/internal/config"
	"dmx-life/internal/controller"
	"dmx-life/internal/dmx"
	"dmx-life/internal/output"
)

const testYAML = `
fixtures:
  - name: Spot
    type: Generic
    start_channel: 1
scenes:
  - name: Half
    channels: [128]
`

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (doneToken) Error() error { return nil }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

// fakeBroker records publishes in place of a broker connection
type fakeBroker struct {
	mu           sync.Mutex
	msgs         []published
	disconnected int
}

func (f *fakeBroker) IsConnected() bool      { return true }
func (f *fakeBroker) IsConnectionOpen() bool { return true }
func (f *fakeBroker) Connect() mqtt.Token    { return doneToken{} }

func (f *fakeBroker) Disconnect(uint) {
	f.mu.Lock()
	f.disconnected++
	f.mu.Unlock()
}

func (f *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = p
	case string:
		data = []byte(p)
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, published{topic: topic, retained: retained, payload: data})
	f.mu.Unlock()
	return doneToken{}
}

func (f *fakeBroker) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token { return doneToken{} }
func (f *fakeBroker) SubscribeMultiple(map[string]byte, mqtt.MessageHandler) mqtt.Token {
	return doneToken{}
}
func (f *fakeBroker) Unsubscribe(...string) mqtt.Token        { return doneToken{} }
func (f *fakeBroker) AddRoute(string, mqtt.MessageHandler)    {}
func (f *fakeBroker) OptionsReader() mqtt.ClientOptionsReader { return mqtt.ClientOptionsReader{} }

func (f *fakeBroker) on(topic string) []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []published
	for _, m := range f.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return false }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 1 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

func newTestClient(t *testing.T) (*Client, *fakeBroker, *controller.Controller, *[]*output.Mock) {
	t.Helper()
	cfg, err := config.Parse([]byte(testYAML))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	built := &[]*output.Mock{}
	engine := dmx.NewEngine(dmx.NewMonitor(logger), logger)
	ctrl := controller.New(config.NewStaticStore(cfg, logger), engine, logger,
		controller.WithFactory(output.MockFactory(built)))
	require.NoError(t, ctrl.Start())
	t.Cleanup(func() { ctrl.Close() })

	broker := &fakeBroker{}
	c := NewClient(config.MQTTConfig{Broker: "tcp://localhost:1883"}, ctrl, logger)
	c.client = broker
	return c, broker, ctrl, built
}

func TestNewClientDefaults(t *testing.T) {
	c, _, _, _ := newTestClient(t)
	assert.Equal(t, "dmx", c.cfg.TopicPrefix)
	assert.True(t, strings.HasPrefix(c.cfg.ClientID, "dmx-life-"))
	assert.Equal(t, "dmx/cmd", c.topic(topicCmd))
}

func TestHandleCommandPublishesResponse(t *testing.T) {
	c, broker, ctrl, _ := newTestClient(t)

	c.handleCommand(broker, fakeMessage{topic: "dmx/cmd", payload: []byte(`{"cmd":"activate","scene":"Half"}`)})

	msgs := broker.on("dmx/response")
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].retained)

	var resp api.Response
	require.NoError(t, json.Unmarshal(msgs[0].payload, &resp))
	assert.Equal(t, "ok", resp.Type, resp.Error)
	assert.Equal(t, "Half", ctrl.Status().ActiveScene)
}

func TestHandleCommandInvalidPayload(t *testing.T) {
	c, broker, _, _ := newTestClient(t)

	c.handleCommand(broker, fakeMessage{topic: "dmx/cmd", payload: []byte(`{"cmd":`)})

	msgs := broker.on("dmx/response")
	require.Len(t, msgs, 1)
	var resp api.Response
	require.NoError(t, json.Unmarshal(msgs[0].payload, &resp))
	assert.Equal(t, "error", resp.Type)
}

func TestForwardEventsPublishesConnectionEdges(t *testing.T) {
	c, broker, ctrl, built := newTestClient(t)
	go c.forwardEvents(ctrl.Subscribe())
	defer c.Stop()

	require.NoError(t, ctrl.Activate("Half"))

	require.Eventually(t, func() bool {
		return len(broker.on("dmx/event")) > 0 && len(broker.on("dmx/connection")) == 1
	}, 2*time.Second, 10*time.Millisecond)

	first := broker.on("dmx/connection")[0]
	assert.True(t, first.retained)
	var msg ConnectionMessage
	require.NoError(t, json.Unmarshal(first.payload, &msg))
	assert.True(t, msg.Data.Connected)

	(*built)[0].SetSendError(errors.New("cable unplugged"))

	require.Eventually(t, func() bool {
		return len(broker.on("dmx/connection")) == 2
	}, 2*time.Second, 10*time.Millisecond)

	lost := broker.on("dmx/connection")[1]
	assert.True(t, lost.retained)
	require.NoError(t, json.Unmarshal(lost.payload, &msg))
	assert.False(t, msg.Data.Connected)
	assert.Equal(t, "connection", msg.Type)
}

func TestPublishStatusRetained(t *testing.T) {
	c, broker, _, _ := newTestClient(t)

	c.publishStatus()

	status := broker.on("dmx/status")
	require.Len(t, status, 1)
	assert.True(t, status[0].retained)
	assert.Len(t, broker.on("dmx/connection"), 1)
}

func TestStopTwice(t *testing.T) {
	c, broker, _, _ := newTestClient(t)

	assert.NotPanics(t, func() {
		c.Stop()
		c.Stop()
	})
	assert.Equal(t, 1, broker.disconnected)
}
