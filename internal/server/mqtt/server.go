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
	"time"

	"github.com/r1fs-io/r1fs-agent/pkg/log"
	pkgmqtt "github.com/r1fs-io/r1fs-agent/pkg/mqtt"
	"github.com/r1fs-io/r1fs-agent/pkg/mqtt/topic"
)

// Retained presence payloads.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
)

// Server owns the broker connection for the lifetime of the agent and keeps
// the node's retained presence marker current. Announcements themselves are
// published by the status sink over the same client.
type Server struct {
	client   pkgmqtt.Client
	topics   *topic.Builder
	clientID string
	log      log.Logger

	shutdownHooks []func(context.Context) error
}

func NewServer(client pkgmqtt.Client, builder *topic.Builder, clientID string) *Server {
	return &Server{
		client:   client,
		topics:   builder,
		clientID: clientID,
		log:      log.WithName("mqtt"),
	}
}

// WillConfig sets the last-will on cfg so the broker marks the node offline
// when the connection drops without a clean disconnect.
func WillConfig(cfg *pkgmqtt.ClientConfig, builder *topic.Builder) {
	cfg.WillTopic = builder.Presence(cfg.ClientID)
	cfg.WillPayload = []byte(PresenceOffline)
	cfg.WillQoS = 1
	cfg.WillRetain = true
}

// OnShutdown registers fn to run while the connection is still up, before the
// offline marker is published. Hooks run in registration order.
func (s *Server) OnShutdown(fn func(context.Context) error) {
	s.shutdownHooks = append(s.shutdownHooks, fn)
}

// Start connects to the broker and blocks until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	// Start the connection manager (non-blocking).
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		// Fresh context so the offline marker and disconnect packet still go out.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if s.client.IsConnected() {
			for _, hook := range s.shutdownHooks {
				if err := hook(shutdownCtx); err != nil {
					s.log.Warn("Shutdown hook failed", "error", err.Error())
				}
			}
			if err := s.publishPresence(shutdownCtx, PresenceOffline); err != nil {
				s.log.Warn("Failed to clear presence", "error", err.Error())
			}
		}
		s.client.Disconnect(shutdownCtx)
	}()

	s.log.Info("Waiting for MQTT connection...")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	s.log.Info("MQTT Connected", "clientID", s.clientID)

	if err := s.publishPresence(ctx, PresenceOnline); err != nil {
		s.log.Warn("Failed to announce presence", "error", err.Error())
	}

	<-ctx.Done()
	return nil
}

func (s *Server) publishPresence(ctx context.Context, state string) error {
	return s.client.Publish(ctx, s.topics.Presence(s.clientID), 1, true, []byte(state))
}
