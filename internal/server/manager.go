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

// Package server runs the agent's long-lived components side by side.
package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

// Server is a component that runs until ctx is done.
type Server interface {
	Start(ctx context.Context) error
}

// RunFunc adapts a plain run function to Server.
type RunFunc func(ctx context.Context) error

func (f RunFunc) Start(ctx context.Context) error { return f(ctx) }

// Manager manages the lifecycle of all servers.
type Manager struct {
	servers []Server
}

func NewManager(servers ...Server) *Manager {
	return &Manager{servers: servers}
}

// Add registers another server. Must be called before Start.
func (m *Manager) Add(s Server) {
	m.servers = append(m.servers, s)
}

// Start launches all servers in parallel. The first failure stops the others.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...", "count", len(m.servers))
	return g.Wait()
}
