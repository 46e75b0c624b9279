// SPDX-License-Identifier: BSD-3-Clause
// Copyright (c) 2025 Pierre Jay

package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"dmx-life/internal/api"
	"dmx-life/internal/config"
	"dmx-life/internal/controller"
	"dmx-life/internal/dmx"
)

const defaultPrefix = "dmx"

// Topics under the configured prefix
const (
	topicCmd        = "/cmd"
	topicResponse   = "/response"
	topicEvent      = "/event"
	topicStatus     = "/status"
	topicConnection = "/connection"
)

// Client bridges the unified API and state events onto an MQTT broker
type Client struct {
	cfg      config.MQTTConfig
	api      *api.Handler
	ctrl     *controller.Controller
	logger   *slog.Logger
	client   mqtt.Client
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewClient creates a new MQTT client. An empty client ID gets a random suffix
// so several instances can share a broker.
func NewClient(cfg config.MQTTConfig, ctrl *controller.Controller, logger *slog.Logger) *Client {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = defaultPrefix
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "dmx-life-" + uuid.NewString()[:8]
	}

	return &Client{
		cfg:      cfg,
		api:      api.NewHandler(ctrl),
		ctrl:     ctrl,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start connects to broker and subscribes to topics
func (c *Client) Start() error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID(c.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}

	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)

	c.client = mqtt.NewClient(opts)
	token := c.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return err
	}

	go c.forwardEvents(c.ctrl.Subscribe())

	c.logger.Info("MQTT client started", "broker", c.cfg.Broker, "prefix", c.cfg.TopicPrefix)
	return nil
}

// Stop disconnects from broker. Calling it again is a no-op.
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		if c.client != nil && c.client.IsConnected() {
			c.client.Disconnect(1000)
		}
		c.logger.Info("MQTT client stopped")
	})
}

func (c *Client) topic(suffix string) string {
	return c.cfg.TopicPrefix + suffix
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("MQTT connected")

	cmdTopic := c.topic(topicCmd)
	client.Subscribe(cmdTopic, 1, c.handleCommand)
	c.logger.Debug("MQTT subscribed", "topic", cmdTopic)

	c.publishStatus()
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.logger.Warn("MQTT connection lost", "error", err)
}

// handleCommand runs a unified API request and publishes the response
func (c *Client) handleCommand(client mqtt.Client, msg mqtt.Message) {
	c.logger.Debug("MQTT command received", "topic", msg.Topic(), "payload", string(msg.Payload()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp := c.api.HandleJSON(ctx, msg.Payload())

	client.Publish(c.topic(topicResponse), 0, false, resp)
}

// forwardEvents publishes controller state messages until Stop
func (c *Client) forwardEvents(updates chan []byte) {
	defer c.ctrl.Unsubscribe(updates)

	var lastConnected *bool
	for {
		select {
		case data, ok := <-updates:
			if !ok {
				return
			}
			c.publish(c.topic(topicEvent), false, data)

			// Connection edges also go to a retained topic
			st := c.ctrl.ConnectionStatus()
			if lastConnected == nil || *lastConnected != st.Connected {
				c.publishConnection(st)
				lastConnected = &st.Connected
			}
		case <-c.stopChan:
			return
		}
	}
}

func (c *Client) publish(topic string, retained bool, data []byte) {
	if c.client == nil || !c.client.IsConnected() {
		return
	}
	c.client.Publish(topic, 0, retained, data)
}

// StatusMessage is published retained on connect
type StatusMessage struct {
	Type string            `json:"type"`
	Data controller.Status `json:"data"`
}

// ConnectionMessage is published retained on every connection edge
type ConnectionMessage struct {
	Type string               `json:"type"`
	Data dmx.ConnectionStatus `json:"data"`
}

func (c *Client) publishStatus() {
	data, _ := json.Marshal(StatusMessage{Type: "status", Data: c.ctrl.Status()})
	c.publish(c.topic(topicStatus), true, data)
	c.publishConnection(c.ctrl.ConnectionStatus())
}

func (c *Client) publishConnection(st dmx.ConnectionStatus) {
	data, _ := json.Marshal(ConnectionMessage{Type: "connection", Data: st})
	c.publish(c.topic(topicConnection), true, data)
}
