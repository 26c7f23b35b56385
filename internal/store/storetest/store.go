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

// Package storetest provides an in-memory store.Store for tests.
package storetest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/r1fs-io/r1fs-agent/internal/store"
)

type entry struct {
	name    string
	data    []byte
	wrapped bool
}

// Store keeps content in memory. Ids are real CIDv0 values derived from the
// wrapped name and content, so identical adds yield identical ids.
type Store struct {
	mu          sync.Mutex
	objects     map[store.ContentID]entry
	pins        map[store.ContentID]struct{}
	unavailable bool
	identity    store.Identity
	calls       map[string]int

	// MaxAddSize mirrors the daemon adapter's limit. Zero disables it.
	MaxAddSize int64
	// Peers is the swarm size SwarmPeers reports.
	Peers int
}

var (
	_ store.Store       = (*Store)(nil)
	_ store.PeerCounter = (*Store)(nil)
)

// New returns an empty, reachable store whose node id is nodeID.
func New(nodeID string) *Store {
	return &Store{
		objects:  map[store.ContentID]entry{},
		pins:     map[store.ContentID]struct{}{},
		identity: store.Identity{ID: nodeID, AgentVersion: "storetest/1.0"},
		calls:    map[string]int{},
	}
}

// SetUnavailable makes every call fail with store.ErrStoreUnavailable while down is true.
func (s *Store) SetUnavailable(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unavailable = down
}

// Calls reports how often op ("add", "pin", "get", "list", "id", "peers") was invoked.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// PutUnwrapped stores data without the single-file wrapper, so Get reports corrupt wrapping.
func (s *Store) PutUnwrapped(data []byte) store.ContentID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := sum(data)
	s.objects[id] = entry{data: append([]byte(nil), data...)}
	return id
}

// Missing returns a well-formed id that the store does not hold.
func Missing(seed string) store.ContentID {
	return sum([]byte("missing:" + seed))
}

func (s *Store) enter(ctx context.Context, op string) error {
	s.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.unavailable {
		return fmt.Errorf("%w: %s: connection refused", store.ErrStoreUnavailable, op)
	}
	return nil
}

func (s *Store) Add(ctx context.Context, name string, data []byte) (store.ContentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "add"); err != nil {
		return "", err
	}
	if err := store.ValidateName(name); err != nil {
		return "", err
	}
	if s.MaxAddSize > 0 && int64(len(data)) > s.MaxAddSize {
		return "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", store.ErrStoreRejected, len(data), s.MaxAddSize)
	}

	id := sum(append([]byte(name+"\x00"), data...))
	s.objects[id] = entry{name: name, data: append([]byte(nil), data...), wrapped: true}
	return id, nil
}

func (s *Store) Pin(ctx context.Context, id store.ContentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "pin"); err != nil {
		return err
	}
	if _, ok := s.objects[id]; !ok {
		return fmt.Errorf("%w: pin/add: %s", store.ErrNotFound, id)
	}
	s.pins[id] = struct{}{}
	return nil
}

func (s *Store) Get(ctx context.Context, id store.ContentID) (*store.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "get"); err != nil {
		return nil, err
	}
	e, ok := s.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: ls: %s", store.ErrNotFound, id)
	}
	if !e.wrapped {
		return nil, fmt.Errorf("%w: %s does not wrap a named file", store.ErrCorruptWrapping, id)
	}

	return &store.Object{
		ID:   id,
		Name: e.name,
		Size: int64(len(e.data)),
		Body: io.NopCloser(bytes.NewReader(e.data)),
	}, nil
}

func (s *Store) ListPinned(ctx context.Context) ([]store.ContentID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "list"); err != nil {
		return nil, err
	}
	ids := make([]store.ContentID, 0, len(s.pins))
	for id := range s.pins {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (s *Store) NodeIdentity(ctx context.Context) (*store.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "id"); err != nil {
		return nil, err
	}
	id := s.identity
	return &id, nil
}

func (s *Store) SwarmPeers(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx, "peers"); err != nil {
		return 0, err
	}
	return s.Peers, nil
}

func sum(data []byte) store.ContentID {
	c, err := cid.V0Builder{}.Sum(data)
	if err != nil {
		panic(fmt.Sprintf("storetest: hashing failed: %v", err))
	}
	return store.ContentID(c.String())
}
