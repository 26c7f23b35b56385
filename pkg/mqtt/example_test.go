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

package mqtt_test

import (
	"context"
	"fmt"
	"time"

	"github.com/r1fs-io/r1fs-agent/pkg/log"
	"github.com/r1fs-io/r1fs-agent/pkg/mqtt"
	"github.com/r1fs-io/r1fs-agent/pkg/mqtt/topic"
)

// ExampleClient shows how an agent announces a status id and listens for
// the announcements of its peers.
func ExampleClient() {
	topics := topic.NewBuilder("r1fs/v1")

	client, err := mqtt.NewClient(&mqtt.ClientConfig{
		BrokerURL:      "tcp://localhost:1883",
		ClientID:       "r1fs-agent-example",
		KeepAlive:      60,
		ConnectTimeout: 5 * time.Second,
		CleanStart:     true,
	})
	if err != nil {
		log.Error(err, "Failed to create MQTT client")
		return
	}

	ctx := context.Background()
	if err := client.Start(ctx); err != nil {
		log.Error(err, "Failed to start MQTT client")
		return
	}
	defer client.Disconnect(ctx)

	// Handlers run on their own goroutine.
	onStatus := func(ctx context.Context, t string, payload []byte) {
		fmt.Printf("announcement on %s: %s\n", t, payload)
	}
	if err := client.Subscribe(ctx, topics.StatusWildcard(), 1, onStatus); err != nil {
		log.Error(err, "Failed to subscribe")
	}

	announce := []byte(`{"node":"node-a","cid":"QmStatus","name":"status_20250101_000000.yaml"}`)
	if err := client.Publish(ctx, topics.Status("node-a"), 1, false, announce); err != nil {
		log.Error(err, "Failed to publish")
	}
}
