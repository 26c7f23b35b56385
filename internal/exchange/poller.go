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
	"fmt"
	"time"

	"k8s.io/utils/clock"

	"github.com/r1fs-io/r1fs-agent/internal/pkg/metrics"
	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

// PollerConfig tunes how commands are resolved.
type PollerConfig struct {
	// ResolveTimeout bounds pin plus fetch of a single id.
	ResolveTimeout time.Duration
	// PreviewLimit caps the text kept per payload.
	PreviewLimit int
	// Consume removes resolved ids from the command file once their status is published.
	Consume bool
}

// Poller resolves the ids listed in the command file.
type Poller struct {
	store    store.Store
	commands *CommandFile
	cfg      PollerConfig
	clock    clock.PassiveClock
	log      log.Logger

	// batch is the latest read of the command file; held are the tokens
	// resolved since the last commit. Both are only tracked with Consume.
	batch *Batch
	held  map[string]struct{}
}

func NewPoller(s store.Store, commands *CommandFile, cfg PollerConfig, clk clock.PassiveClock) *Poller {
	if cfg.PreviewLimit <= 0 {
		cfg.PreviewLimit = 4096
	}
	if cfg.ResolveTimeout <= 0 {
		cfg.ResolveTimeout = 10 * time.Second
	}
	return &Poller{
		store:    s,
		commands: commands,
		cfg:      cfg,
		clock:    clk,
		log:      log.WithName("poller"),
		held:     map[string]struct{}{},
	}
}

// Poll reads the command file and resolves every command in file order.
// One failing id never aborts the batch; it is recorded with ClassError.
// An absent or empty command file is the idle state and yields no commands.
// With Consume, commands resolved since the last Commit are not resolved again.
func (p *Poller) Poll(ctx context.Context) ([]ResolvedCommand, error) {
	batch, err := p.commands.Read()
	if err != nil {
		return nil, fmt.Errorf("read command file %s: %w", p.commands.Path(), err)
	}
	if p.cfg.Consume {
		p.batch = batch
	}

	var todo []Command
	for _, cmd := range batch.Commands {
		if _, ok := p.held[cmd.Token()]; !ok {
			todo = append(todo, cmd)
		}
	}
	if len(todo) == 0 {
		p.log.Debug("No commands pending", "file", p.commands.Path())
		return nil, nil
	}

	p.log.Info("Resolving commands", "count", len(todo))

	resolved := make([]ResolvedCommand, 0, len(todo))
	for _, cmd := range todo {
		rc := p.resolve(ctx, cmd)
		resolved = append(resolved, rc)
		metrics.CommandsResolved.WithLabelValues(string(rc.Class)).Inc()

		// Malformed lines can never succeed, so only store failures are retried.
		if p.cfg.Consume && (!rc.Failed() || cmd.Err != nil) {
			p.held[cmd.Token()] = struct{}{}
		}
	}

	return resolved, nil
}

// Commit removes the commands resolved since the last Commit from the command
// file. Call it once their results are part of a published status.
func (p *Poller) Commit() error {
	batch, held := p.batch, p.held
	p.batch, p.held = nil, map[string]struct{}{}
	if !p.cfg.Consume || batch == nil || len(batch.Commands) == 0 {
		return nil
	}

	var keep []Command
	for _, cmd := range batch.Commands {
		if _, ok := held[cmd.Token()]; !ok && cmd.Err == nil {
			keep = append(keep, cmd)
		}
	}
	if err := p.commands.Settle(batch, keep); err != nil {
		return fmt.Errorf("rewrite command file %s: %w", p.commands.Path(), err)
	}
	return nil
}

// Release forgets the commands resolved since the last Commit, leaving them
// in the command file to be resolved again.
func (p *Poller) Release() {
	p.batch, p.held = nil, map[string]struct{}{}
}

func (p *Poller) resolve(ctx context.Context, cmd Command) ResolvedCommand {
	logger := p.log.WithValues("line", cmd.Line)

	if cmd.Err != nil {
		logger.Warn("Skipping malformed command", "raw", cmd.Raw, "error", cmd.Err.Error())
		return ResolvedCommand{
			ID:         cmd.Token(),
			Class:      ClassError,
			Error:      cmd.Err.Error(),
			ResolvedAt: p.clock.Now(),
		}
	}
	if cmd.Secret() != "" {
		logger.Warn("Ignoring secret token, encrypted content is not supported", "cid", cmd.ID)
	}

	failed := func(step string, err error) ResolvedCommand {
		logger.Warn("Failed to resolve command", "cid", cmd.ID, "step", step, "error", err.Error())
		return ResolvedCommand{
			ID:         cmd.ID.String(),
			Class:      ClassError,
			Error:      fmt.Sprintf("%s: %v", step, err),
			ResolvedAt: p.clock.Now(),
		}
	}

	rctx, cancel := context.WithTimeout(ctx, p.cfg.ResolveTimeout)
	defer cancel()

	if err := p.store.Pin(rctx, cmd.ID); err != nil {
		return failed("pin", err)
	}
	obj, err := p.store.Get(rctx, cmd.ID)
	if err != nil {
		return failed("get", err)
	}
	rc, err := classify(obj, p.cfg.PreviewLimit)
	if err != nil {
		return failed("read", err)
	}
	rc.ResolvedAt = p.clock.Now()

	logger.Info("Resolved command", "cid", cmd.ID, "name", rc.Name, "class", rc.Class, "size", rc.Size)
	return rc
}
