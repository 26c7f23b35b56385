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

package exchange

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"

	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

type Config struct {
	Store    store.Store
	Commands *CommandFile

	// Gate defaults to an open gate, for daemons managed outside the agent.
	Gate Gate

	Poller PollerConfig

	// Format is one of the options.Format* values.
	Format string
	// Every publishes on one cycle out of Every.
	Every int

	Interval      time.Duration
	ShutdownGrace time.Duration

	Sinks []Sink

	// Clock defaults to the real clock.
	Clock clock.WithTickerAndDelayedExecution
}

func (cfg *Config) NewAgent() (*Agent, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Commands == nil {
		return nil, errors.New("command file is required")
	}
	if cfg.Interval <= 0 {
		return nil, errors.New("interval must be positive")
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.RealClock{}
	}
	gate := cfg.Gate
	if gate == nil {
		gate = openGate{}
	}
	format := cfg.Format
	if format == "" {
		format = options.FormatYAML
	}
	every := cfg.Every
	if every < 1 {
		every = 1
	}

	publisher, err := NewPublisher(cfg.Store, format, clk, cfg.Sinks...)
	if err != nil {
		return nil, err
	}

	peers, _ := cfg.Store.(store.PeerCounter)

	return &Agent{
		gate:      gate,
		peers:     peers,
		poller:    NewPoller(cfg.Store, cfg.Commands, cfg.Poller, clk),
		publisher: publisher,
		clock:     clk,
		log:       log.WithName("agent"),
		interval:  cfg.Interval,
		grace:     cfg.ShutdownGrace,
		every:     uint64(every),
	}, nil
}

type openGate struct{}

func (openGate) Wait(context.Context) error { return nil }
func (openGate) Ready() bool                { return true }
