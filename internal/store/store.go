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

// Package store is the adapter between the exchange loop and the external
// content-addressed storage daemon. Content is always stored wrapped in a
// directory holding a single named file so the name survives a round trip.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ipfs/go-cid"
)

// Failure taxonomy. Adapter errors wrap one of these; test with errors.Is.
var (
	// ErrStoreUnavailable means the daemon could not be reached or could not serve the call.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound means the content id could not be resolved.
	ErrNotFound = errors.New("content not found")

	// ErrStoreRejected means the daemon, or the adapter's own limits, refused the content.
	ErrStoreRejected = errors.New("content rejected")

	// ErrCorruptWrapping means the unit behind an id is not a single-file wrapper.
	ErrCorruptWrapping = errors.New("corrupt wrapping")
)

// ContentID is the opaque handle the store returns for stored content.
type ContentID string

func (id ContentID) String() string { return string(id) }

// ParseContentID accepts a bare CID or an /ipfs/ path and returns the CID.
func ParseContentID(s string) (ContentID, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "/ipfs/")
	s = strings.TrimPrefix(s, "ipfs://")
	if s == "" {
		return "", errors.New("empty content id")
	}

	c, err := cid.Decode(s)
	if err != nil {
		return "", fmt.Errorf("invalid content id %q: %w", s, err)
	}

	return ContentID(c.String()), nil
}

// Identity describes the daemon node.
type Identity struct {
	ID           string   `json:"id" msgpack:"id"`
	Addresses    []string `json:"addresses,omitempty" msgpack:"addresses,omitempty"`
	AgentVersion string   `json:"agentVersion,omitempty" msgpack:"agentVersion,omitempty"`
}

// Object is the unwrapped file behind a content id. Body streams the file
// content and must be closed; callers read only as much as they need.
type Object struct {
	ID   ContentID
	Name string
	Size int64
	Body io.ReadCloser
}

// Store is the contract the exchange loop relies on. All calls are
// synchronous, may block on I/O and do not retry.
type Store interface {
	// Add wraps data in a directory holding one file called name and stores it.
	Add(ctx context.Context, name string, data []byte) (ContentID, error)

	// Pin marks id for retention. Pinning an already pinned id is not an error.
	Pin(ctx context.Context, id ContentID) error

	// Get resolves id and unwraps the single file it holds.
	Get(ctx context.Context, id ContentID) (*Object, error)

	// ListPinned returns the pinned ids, sorted and without duplicates.
	ListPinned(ctx context.Context) ([]ContentID, error)

	// NodeIdentity returns the daemon's stable identity.
	NodeIdentity(ctx context.Context) (*Identity, error)
}

// PeerCounter is implemented by stores that can report their swarm size.
type PeerCounter interface {
	SwarmPeers(ctx context.Context) (int, error)
}

// ReadAll drains and closes obj.Body.
func ReadAll(obj *Object) ([]byte, error) {
	defer obj.Body.Close()
	return io.ReadAll(obj.Body)
}

// ValidateName checks that name can be used as the wrapped file name.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: invalid file name %q", ErrStoreRejected, name)
	case strings.ContainsAny(name, "/\\\x00"):
		return fmt.Errorf("%w: file name %q must not contain path separators", ErrStoreRejected, name)
	}
	return nil
}
