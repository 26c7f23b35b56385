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

// Package exchange implements the command/status exchange loop: poll the
// command file, resolve each id through the store, publish a status snapshot.
package exchange

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"

	"github.com/r1fs-io/r1fs-agent/internal/pkg/metrics"
	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

// Gate holds the loop back until the storage daemon is bootstrapped.
type Gate interface {
	Wait(ctx context.Context) error
	Ready() bool
}

// Agent runs the exchange loop.
type Agent struct {
	gate      Gate
	poller    *Poller
	publisher *Publisher
	peers     store.PeerCounter
	clock     clock.WithTickerAndDelayedExecution
	log       log.Logger

	interval time.Duration
	grace    time.Duration
	every    uint64

	cycle   uint64
	pending []ResolvedCommand
	last    atomic.Pointer[Publication]
}

// Run waits for the bootstrap gate and then cycles until ctx is done.
// A cycle that is running when ctx ends gets the shutdown grace period to finish.
func (a *Agent) Run(ctx context.Context) error {
	a.log.Info("Starting r1fs-agent", "interval", a.interval, "format", a.publisher.format,
		"commandFile", a.poller.commands.Path())

	if err := a.gate.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			a.log.Info("Shutting down before bootstrap completed")
			return nil
		}
		return fmt.Errorf("bootstrap: %w", err)
	}

	ticker := a.clock.NewTicker(a.interval)
	defer ticker.Stop()

	// Perform an initial cycle immediately once the daemon is up.
	a.runCycle(ctx)

	for {
		select {
		case <-ticker.C():
			if ctx.Err() != nil {
				continue
			}
			// A tick that fired during a long cycle is held once, so there is no catch-up.
			a.runCycle(ctx)
		case <-ctx.Done():
			a.log.Info("Shutting down r1fs-agent", "cycles", a.cycle)
			return nil
		}
	}
}

// Ready reports whether the gate is open.
func (a *Agent) Ready() bool {
	return a.gate.Ready()
}

// LastPublication returns the most recent successful publication, or nil.
func (a *Agent) LastPublication() *Publication {
	return a.last.Load()
}

func (a *Agent) runCycle(parent context.Context) {
	a.cycle++
	cycle := Cycle{Seq: a.cycle, ID: uuid.NewString()}
	logger := a.log.WithValues("cycle", cycle.Seq, "cycleID", cycle.ID)
	start := a.clock.Now()

	result := metrics.ResultFailed
	defer func() {
		if r := recover(); r != nil {
			result = metrics.ResultPanicked
			a.pending = nil
			a.poller.Release()
			logger.Error(fmt.Errorf("panic: %v", r), "Cycle aborted", "stack", string(debug.Stack()))
		}
		metrics.CyclesTotal.WithLabelValues(result).Inc()
		metrics.CycleDuration.Observe(a.clock.Since(start).Seconds())
		logger.Debug("Cycle finished", "result", result, "duration", a.clock.Since(start).String())
	}()

	// The cycle does not stop on shutdown right away; it is cancelled once the grace period is over.
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()
	stop := context.AfterFunc(parent, func() {
		logger.Info("Shutdown requested, finishing the running cycle", "grace", a.grace)
		a.clock.AfterFunc(a.grace, cancel)
	})
	defer stop()

	resolved, err := a.poller.Poll(ctx)
	if err != nil {
		logger.Error(err, "Failed to poll commands")
	}
	a.pending = append(a.pending, resolved...)
	a.observePeers(ctx, logger)

	// Nothing is removed from the command file until a status carrying the
	// results is published, so an interrupted cycle leaves its commands queued.
	if parent.Err() != nil {
		result = metrics.ResultInterrupted
		logger.Info("Cycle interrupted, status not published")
		return
	}
	if (cycle.Seq-1)%a.every != 0 {
		result = metrics.ResultSkipped
		return
	}

	pub, err := a.publisher.Publish(ctx, cycle, a.pending)
	a.pending = nil
	if err != nil {
		a.poller.Release()
		logger.Error(err, "Failed to publish status, retrying next cycle")
		return
	}

	a.last.Store(pub)
	result = metrics.ResultPublished

	if err := a.poller.Commit(); err != nil {
		logger.Error(err, "Failed to consume published commands")
	}
}

func (a *Agent) observePeers(ctx context.Context, logger log.Logger) {
	if a.peers == nil {
		return
	}
	n, err := a.peers.SwarmPeers(ctx)
	if err != nil {
		logger.Debug("Failed to count swarm peers", "error", err.Error())
		return
	}
	metrics.SwarmPeers.Set(float64(n))
	logger.Debug("Swarm peers", "count", n)
}
