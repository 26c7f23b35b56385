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

// statusTimeLayout names status documents status_YYYYMMDD_HHMMSS.<ext>.
const statusTimeLayout = "20060102_150405"

// Cycle identifies one iteration of the exchange loop.
type Cycle struct {
	Seq uint64
	ID  string
}

// Publication is the durable outcome of a published status.
type Publication struct {
	ID        store.ContentID
	Name      string
	Format    string
	Node      NodeInfo
	Cycle     Cycle
	Timestamp time.Time
	Status    *Status
}

// Sink records where a status was published so other processes can find it.
type Sink interface {
	Name() string
	Record(ctx context.Context, pub *Publication) error
}

// Publisher assembles the status snapshot and adds it to the store.
type Publisher struct {
	store  store.Store
	format string
	sinks  []Sink
	clock  clock.PassiveClock
	log    log.Logger
}

func NewPublisher(s store.Store, format string, clk clock.PassiveClock, sinks ...Sink) (*Publisher, error) {
	if _, err := CodecFor(format, 1); err != nil {
		return nil, err
	}
	return &Publisher{
		store:  s,
		format: format,
		sinks:  sinks,
		clock:  clk,
		log:    log.WithName("publisher"),
	}, nil
}

// AddSink registers another sink. Not safe to call while a cycle is running.
func (p *Publisher) AddSink(s Sink) {
	p.sinks = append(p.sinks, s)
}

// Publish snapshots the node, pins the serialized document and notifies every sink.
// Any store failure aborts the publication; sink failures are only logged.
func (p *Publisher) Publish(ctx context.Context, cycle Cycle, resolved []ResolvedCommand) (*Publication, error) {
	ident, err := p.store.NodeIdentity(ctx)
	if err != nil {
		return nil, fmt.Errorf("query node identity: %w", err)
	}
	pinned, err := p.store.ListPinned(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pinned content: %w", err)
	}

	now := p.clock.Now().UTC()
	status := &Status{
		Timestamp: now,
		Node:      nodeInfo(ident),
		Pinned:    make([]string, 0, len(pinned)),
		Resolved:  resolved,
		Cycle:     cycle.Seq,
		CycleID:   cycle.ID,
	}
	for _, id := range pinned {
		status.Pinned = append(status.Pinned, id.String())
	}
	if status.Resolved == nil {
		status.Resolved = []ResolvedCommand{}
	}

	codec, err := CodecFor(p.format, cycle.Seq)
	if err != nil {
		return nil, err
	}
	data, err := codec.Marshal(status)
	if err != nil {
		return nil, fmt.Errorf("encode status as %s: %w", codec.Name(), err)
	}

	name := fmt.Sprintf("status_%s.%s", now.Format(statusTimeLayout), codec.Ext())
	id, err := p.store.Add(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("add %s: %w", name, err)
	}
	if err := p.store.Pin(ctx, id); err != nil {
		return nil, fmt.Errorf("pin %s: %w", id, err)
	}

	pub := &Publication{
		ID:        id,
		Name:      name,
		Format:    codec.Name(),
		Node:      status.Node,
		Cycle:     cycle,
		Timestamp: now,
		Status:    status,
	}
	p.log.Info("Published status", "cid", id, "name", name, "format", codec.Name(), "bytes", len(data),
		"pinned", len(status.Pinned), "resolved", len(resolved))

	for _, s := range p.sinks {
		if err := s.Record(ctx, pub); err != nil {
			metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
			p.log.Error(err, "Status sink failed", "sink", s.Name(), "cid", id)
		}
	}
	metrics.LastPublished.Set(float64(now.Unix()))

	return pub, nil
}
