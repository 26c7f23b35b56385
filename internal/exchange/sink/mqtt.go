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

package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/r1fs-io/r1fs-agent/internal/exchange"
	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
	"github.com/r1fs-io/r1fs-agent/pkg/mqtt"
	"github.com/r1fs-io/r1fs-agent/pkg/mqtt/topic"
)

var _ exchange.Sink = (*MQTT)(nil)

// Queue accepts content ids for the next poll.
type Queue interface {
	Append(ids ...store.ContentID) (int, error)
}

// MQTT announces every publication as a retained message on
// {root}/status/{node}. With a queue attached it also subscribes to the
// other nodes' announcements and queues their status ids, so agents fetch
// each other's status documents.
type MQTT struct {
	client mqtt.Client
	topics *topic.Builder
	queue  Queue
	log    log.Logger

	mu         sync.Mutex
	self       string
	subscribed bool
}

// NewMQTT creates the sink. queue may be nil to only announce.
func NewMQTT(client mqtt.Client, root string, queue Queue) *MQTT {
	return &MQTT{
		client: client,
		topics: topic.NewBuilder(root),
		queue:  queue,
		log:    log.WithName("mqtt"),
	}
}

func (s *MQTT) Name() string { return "mqtt" }

func (s *MQTT) Record(ctx context.Context, pub *exchange.Publication) error {
	h := HandleFor(pub)
	payload, err := json.Marshal(h)
	if err != nil {
		return err
	}

	if err := s.client.Publish(ctx, s.topics.Status(h.Node), 1, true, payload); err != nil {
		return fmt.Errorf("announce %s: %w", h.CID, err)
	}

	// The own node id is only known once a status has been published.
	return s.follow(ctx, h.Node)
}

func (s *MQTT) follow(ctx context.Context, self string) error {
	s.mu.Lock()
	s.self = self
	if s.queue == nil || s.subscribed {
		s.mu.Unlock()
		return nil
	}
	s.subscribed = true
	s.mu.Unlock()

	if err := s.client.Subscribe(ctx, s.topics.StatusWildcard(), 1, s.handleAnnouncement); err != nil {
		s.mu.Lock()
		s.subscribed = false
		s.mu.Unlock()
		return fmt.Errorf("subscribe to peer announcements: %w", err)
	}
	s.log.Info("Following peer status announcements", "topic", s.topics.StatusWildcard())
	return nil
}

// Unfollow drops the subscription to peer announcements, if any.
func (s *MQTT) Unfollow(ctx context.Context) error {
	s.mu.Lock()
	subscribed := s.subscribed
	s.subscribed = false
	s.mu.Unlock()
	if !subscribed {
		return nil
	}

	if err := s.client.Unsubscribe(ctx, s.topics.StatusWildcard()); err != nil {
		return fmt.Errorf("unsubscribe from peer announcements: %w", err)
	}
	s.log.Info("Stopped following peer status announcements")
	return nil
}

func (s *MQTT) handleAnnouncement(_ context.Context, t string, payload []byte) {
	node, ok := s.topics.NodeFromStatus(t)
	if !ok {
		return
	}
	s.mu.Lock()
	self := s.self
	s.mu.Unlock()
	if node == self {
		return
	}

	var h Handle
	if err := json.Unmarshal(payload, &h); err != nil {
		s.log.Warn("Ignoring malformed announcement", "topic", t, "error", err.Error())
		return
	}
	id, err := store.ParseContentID(h.CID)
	if err != nil {
		s.log.Warn("Ignoring announcement with invalid cid", "topic", t, "error", err.Error())
		return
	}

	added, err := s.queue.Append(id)
	if err != nil {
		s.log.Error(err, "Failed to queue announced status", "node", node, "cid", id)
		return
	}
	if added > 0 {
		s.log.Info("Queued peer status", "node", node, "cid", id, "name", h.Name)
	}
}
