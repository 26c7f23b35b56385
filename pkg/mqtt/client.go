// Copyright 2025 The R1FS Agent Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

var errNotStarted = errors.New("mqtt client not started")

type pahoClient struct {
	cfg *ClientConfig
	log log.Logger
	cm  *autopaho.ConnectionManager

	mu   sync.RWMutex
	subs map[string]subscription

	connected atomic.Bool
}

type subscription struct {
	qos     byte
	handler MessageHandler
}

// NewClient creates a Client for cfg. Defaults are applied to cfg in place.
func NewClient(cfg *ClientConfig) (Client, error) {
	if cfg == nil {
		return nil, errors.New("mqtt config is required")
	}
	setDefaultConfig(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mqtt config: %w", err)
	}

	return &pahoClient{
		cfg:  cfg,
		log:  cfg.Logger,
		subs: make(map[string]subscription),
	}, nil
}

func (c *pahoClient) Start(ctx context.Context) error {
	broker, err := url.Parse(c.cfg.BrokerURL)
	if err != nil {
		return err
	}

	conf := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{broker},
		KeepAlive:                     c.cfg.KeepAlive,
		CleanStartOnInitialConnection: c.cfg.CleanStart,
		SessionExpiryInterval:         c.cfg.SessionExpiry,
		ReconnectBackoff:              autopaho.NewConstantBackoff(c.cfg.ReconnectDelay),
		ConnectTimeout:                c.cfg.ConnectTimeout,
		ConnectUsername:               c.cfg.Username,
		ConnectPassword:               []byte(c.cfg.Password),
		WillMessage:                   c.will(),
		OnConnectionUp:                c.onConnectionUp,
		OnConnectError: func(err error) {
			c.connected.Store(false)
			c.log.Warn("MQTT connection attempt failed", "broker", c.cfg.BrokerURL, "error", err.Error())
		},
		ClientConfig: paho.ClientConfig{
			ClientID: c.cfg.ClientID,
			OnClientError: func(err error) {
				c.connected.Store(false)
				c.log.Error(err, "MQTT client error")
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				c.connected.Store(false)
				c.log.Warn("MQTT broker closed the session", "reasonCode", d.ReasonCode)
			},
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){c.dispatch},
		},
	}
	if isTLS(broker) {
		conf.TlsCfg = &tls.Config{InsecureSkipVerify: c.cfg.InsecureSkipVerify}
	}

	c.log.Info("Connecting to MQTT broker", "broker", c.cfg.BrokerURL, "clientID", c.cfg.ClientID)
	cm, err := autopaho.NewConnection(ctx, conf)
	if err != nil {
		return err
	}
	c.cm = cm
	return nil
}

func (c *pahoClient) Disconnect(ctx context.Context) {
	if c.cm == nil {
		return
	}
	if err := c.cm.Disconnect(ctx); err != nil {
		c.log.Debug("MQTT disconnect", "error", err.Error())
	}
	c.connected.Store(false)
}

func (c *pahoClient) Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error {
	if c.cm == nil {
		return errNotStarted
	}
	_, err := c.cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     byte(qos),
		Retain:  retain,
		Payload: payload,
	})
	return err
}

// Subscribe records the handler first so that a session coming up later
// picks the filter up in onConnectionUp.
func (c *pahoClient) Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.mu.Lock()
	c.subs[topic] = subscription{qos: byte(qos), handler: handler}
	c.mu.Unlock()

	if !c.connected.Load() {
		c.log.Debug("Subscription deferred until connected", "topic", topic)
		return nil
	}
	if _, err := c.cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: topic, QoS: byte(qos)}},
	}); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

func (c *pahoClient) Unsubscribe(ctx context.Context, topic string) error {
	if c.cm == nil {
		return errNotStarted
	}

	c.mu.Lock()
	delete(c.subs, topic)
	c.mu.Unlock()

	_, err := c.cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{topic}})
	return err
}

func (c *pahoClient) AwaitConnection(ctx context.Context) error {
	if c.cm == nil {
		return errNotStarted
	}
	return c.cm.AwaitConnection(ctx)
}

func (c *pahoClient) IsConnected() bool {
	return c.connected.Load()
}

// onConnectionUp restores every recorded subscription with a single packet.
func (c *pahoClient) onConnectionUp(cm *autopaho.ConnectionManager, _ *paho.Connack) {
	c.connected.Store(true)

	c.mu.RLock()
	opts := make([]paho.SubscribeOptions, 0, len(c.subs))
	for topic, s := range c.subs {
		opts = append(opts, paho.SubscribeOptions{Topic: topic, QoS: s.qos})
	}
	c.mu.RUnlock()

	c.log.Info("MQTT session up", "subscriptions", len(opts))
	if len(opts) == 0 {
		return
	}
	if _, err := cm.Subscribe(context.Background(), &paho.Subscribe{Subscriptions: opts}); err != nil {
		c.log.Error(err, "Failed to restore subscriptions")
	}
}

// dispatch hands an incoming message to every handler whose filter matches.
// Handlers run on their own goroutine so the paho reader never blocks.
func (c *pahoClient) dispatch(p paho.PublishReceived) (bool, error) {
	topic := p.Packet.Topic

	c.mu.RLock()
	var handlers []MessageHandler
	for filter, s := range c.subs {
		if topicsMatch(topicFilter(filter), topic) {
			handlers = append(handlers, s.handler)
		}
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.log.Debug("Message on unhandled topic", "topic", topic)
		return false, nil
	}
	for _, h := range handlers {
		go h(context.Background(), topic, p.Packet.Payload)
	}
	return true, nil
}

func (c *pahoClient) will() *paho.WillMessage {
	if c.cfg.WillTopic == "" {
		return nil
	}
	return &paho.WillMessage{
		Topic:   c.cfg.WillTopic,
		Payload: c.cfg.WillPayload,
		QoS:     c.cfg.WillQoS,
		Retain:  c.cfg.WillRetain,
	}
}

func isTLS(u *url.URL) bool {
	switch u.Scheme {
	case "ssl", "tls", "mqtts", "wss":
		return true
	}
	return false
}

// topicsMatch reports whether topic matches filter, honouring the + and #
// wildcards.
func topicsMatch(filter, topic string) bool {
	if filter == topic {
		return true
	}
	if !strings.ContainsAny(filter, "+#") {
		return false
	}

	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		switch {
		case part == "#":
			return true
		case i >= len(tp):
			return false
		case part != "+" && part != tp[i]:
			return false
		}
	}
	return len(fp) == len(tp)
}

// topicFilter strips a $share/{group}/ prefix.
func topicFilter(filter string) string {
	if rest, ok := strings.CutPrefix(filter, "$share/"); ok {
		if _, f, ok := strings.Cut(rest, "/"); ok {
			return f
		}
	}
	return filter
}
