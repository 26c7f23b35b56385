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
	"strings"
	"time"

	"github.com/r1fs-io/r1fs-agent/internal/store"
)

// Class is the outcome of resolving one command.
type Class string

const (
	ClassText   Class = "text"
	ClassBinary Class = "binary"
	ClassError  Class = "error"
)

// Command is one line of the command file.
type Command struct {
	// Line is the 1-based line number in the command file.
	Line int
	// ID is empty when the line does not carry a valid content id.
	ID store.ContentID
	// Raw is the trimmed line as read.
	Raw string
	// Err explains why ID is empty.
	Err error
}

// Token returns the first whitespace-delimited token of the line.
func (c Command) Token() string {
	if f := strings.Fields(c.Raw); len(f) > 0 {
		return f[0]
	}
	return ""
}

// Secret returns the second token of the line, the key a sender may attach
// to encrypted content.
func (c Command) Secret() string {
	if f := strings.Fields(c.Raw); len(f) > 1 {
		return f[1]
	}
	return ""
}

// ResolvedCommand records what a command turned out to be.
type ResolvedCommand struct {
	ID         string    `json:"id" msgpack:"id"`
	Class      Class     `json:"class" msgpack:"class"`
	Name       string    `json:"name,omitempty" msgpack:"name,omitempty"`
	Preview    string    `json:"preview,omitempty" msgpack:"preview,omitempty"`
	Truncated  bool      `json:"truncated,omitempty" msgpack:"truncated,omitempty"`
	Size       int64     `json:"size" msgpack:"size"`
	Error      string    `json:"error,omitempty" msgpack:"error,omitempty"`
	ResolvedAt time.Time `json:"resolvedAt" msgpack:"resolvedAt"`
}

// Failed reports whether the command could not be resolved.
func (r ResolvedCommand) Failed() bool { return r.Class == ClassError }

// NodeInfo identifies the publishing node inside a status document.
type NodeInfo struct {
	ID           string `json:"id" msgpack:"id"`
	Address      string `json:"address,omitempty" msgpack:"address,omitempty"`
	AgentVersion string `json:"agentVersion,omitempty" msgpack:"agentVersion,omitempty"`
}

// Status is the snapshot published once per cycle.
type Status struct {
	Timestamp time.Time         `json:"timestamp" msgpack:"timestamp"`
	Node      NodeInfo          `json:"node" msgpack:"node"`
	Pinned    []string          `json:"pinned" msgpack:"pinned"`
	Resolved  []ResolvedCommand `json:"resolved" msgpack:"resolved"`
	Cycle     uint64            `json:"cycle" msgpack:"cycle"`
	CycleID   string            `json:"cycleID" msgpack:"cycleID"`
}

// nodeInfo picks the first routable address, falling back to the first one reported.
func nodeInfo(ident *store.Identity) NodeInfo {
	info := NodeInfo{ID: ident.ID, AgentVersion: ident.AgentVersion}
	for _, addr := range ident.Addresses {
		if strings.Contains(addr, "/127.0.0.1/") || strings.Contains(addr, "/::1/") {
			continue
		}
		info.Address = addr
		return info
	}
	if len(ident.Addresses) > 0 {
		info.Address = ident.Addresses[0]
	}
	return info
}
