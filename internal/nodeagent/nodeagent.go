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

// Package nodeagent wires the exchange loop, the storage daemon and the
// optional MQTT, S3 and HTTP surfaces into one process.
package nodeagent

import (
	"context"
	"time"

	"github.com/r1fs-io/r1fs-agent/internal/exchange"
	"github.com/r1fs-io/r1fs-agent/internal/exchange/bootstrap"
	"github.com/r1fs-io/r1fs-agent/internal/exchange/sink"
	"github.com/r1fs-io/r1fs-agent/internal/server"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

const daemonStopTimeout = 10 * time.Second

type NodeAgent struct {
	agent    *exchange.Agent
	launcher *bootstrap.DaemonLauncher
	bucket   *sink.S3
	manager  *server.Manager
}

// Run blocks until ctx is done or a component fails. A daemon started by the
// agent is stopped on the way out.
func (n *NodeAgent) Run(ctx context.Context) error {
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), daemonStopTimeout)
		defer cancel()
		if err := n.launcher.Stop(stopCtx); err != nil {
			log.Error(err, "Failed to stop storage daemon")
		}
		_ = log.Sync()
	}()

	if n.bucket != nil {
		// The sink keeps failing until the bucket exists, which only costs log lines.
		if err := n.bucket.EnsureBucket(ctx); err != nil {
			log.Error(err, "Failed to prepare status bucket")
		}
	}

	return n.manager.Start(ctx)
}

// Ready reports whether the storage daemon has been bootstrapped.
func (n *NodeAgent) Ready() bool {
	return n.agent.Ready()
}

// Status returns the handle of the last published status, or nil.
func (n *NodeAgent) Status() any {
	pub := n.agent.LastPublication()
	if pub == nil {
		return nil
	}
	return sink.HandleFor(pub)
}
