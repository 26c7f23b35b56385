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

// Package bootstrap holds the exchange loop back until the private swarm
// configuration shows up, then starts the storage daemon exactly once.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/looplab/fsm"
	"k8s.io/utils/clock"

	"github.com/r1fs-io/r1fs-agent/internal/pkg/metrics"
	fsmutil "github.com/r1fs-io/r1fs-agent/internal/pkg/util/fsm"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

const (
	StateWaiting = "waiting"
	StateReady   = "ready"

	// EventConfigured fires when a complete artifact is found.
	EventConfigured = "configured"
)

// Gate is a two-state machine: waiting until the artifact is complete and the
// daemon launched, then ready for good.
type Gate struct {
	*fsm.FSM

	path     string
	launcher Launcher
	clock    clock.WithTicker
	interval time.Duration
	log      log.Logger
}

func NewGate(path string, launcher Launcher, clk clock.WithTicker, interval time.Duration) *Gate {
	g := &Gate{
		path:     path,
		launcher: launcher,
		clock:    clk,
		interval: interval,
		log:      log.WithName("bootstrap"),
	}

	events := fsm.Events{
		{Name: EventConfigured, Src: []string{StateWaiting}, Dst: StateReady},
	}
	callbacks := fsm.Callbacks{
		// Guard: a failed launch keeps the gate waiting.
		"before_" + EventConfigured: fsmutil.WrapGuard(g.GuardLaunch),
		"enter_" + StateReady:       fsmutil.WrapEvent(g.ActionEnterReady),
	}

	g.FSM = fsm.NewFSM(StateWaiting, events, callbacks)
	metrics.GateReady.Set(0)
	return g
}

// GuardLaunch starts the daemon for the artifact carried by the event.
func (g *Gate) GuardLaunch(ctx context.Context, e *fsm.Event) error {
	a := e.Args[0].(*Artifact)

	g.log.Info("Bootstrap configuration found, launching storage daemon", "artifact", a.String())
	if err := g.launcher.Launch(ctx, a); err != nil {
		metrics.DaemonLaunches.WithLabelValues("failed").Inc()
		return fmt.Errorf("launch storage daemon: %w", err)
	}
	metrics.DaemonLaunches.WithLabelValues("success").Inc()
	return nil
}

// ActionEnterReady records the open gate.
func (g *Gate) ActionEnterReady(ctx context.Context, e *fsm.Event) error {
	metrics.GateReady.Set(1)
	g.log.Info("Bootstrap gate open")
	return nil
}

// Ready reports whether the gate has opened.
func (g *Gate) Ready() bool {
	return g.Is(StateReady)
}

// Check looks at the artifact once. A missing or incomplete artifact is not
// an error; a launch failure is, and the next Check retries it.
func (g *Gate) Check(ctx context.Context) (bool, error) {
	if g.Ready() {
		return true, nil
	}

	a, err := LoadArtifact(g.path)
	if errors.Is(err, ErrConfigMissing) {
		g.log.Debug("Waiting for bootstrap configuration", "reason", err.Error())
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := g.Event(ctx, EventConfigured, a); err != nil {
		return false, err
	}
	return true, nil
}

// Wait checks immediately, then on every tick or change in the artifact's
// directory, until the gate opens or ctx is done.
func (g *Gate) Wait(ctx context.Context) error {
	var events <-chan fsnotify.Event
	var watchErrs <-chan error

	if watcher, err := g.watch(); err != nil {
		g.log.Warn("File watch unavailable, relying on polling", "error", err.Error())
	} else {
		defer watcher.Close()
		events, watchErrs = watcher.Events, watcher.Errors
	}

	ticker := g.clock.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		ready, err := g.Check(ctx)
		if ready {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Error(err, "Bootstrap attempt failed, will retry", "file", g.path)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		case ev, ok := <-events:
			if !ok {
				events, watchErrs = nil, nil
				continue
			}
			g.log.Debug("Configuration directory changed", "file", ev.Name, "op", ev.Op.String())
		case err, ok := <-watchErrs:
			if !ok {
				events, watchErrs = nil, nil
				continue
			}
			g.log.Warn("File watch error", "error", fmt.Sprint(err))
		}
	}
}

func (g *Gate) watch() (*fsnotify.Watcher, error) {
	dir := filepath.Dir(g.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	return watcher, nil
}
