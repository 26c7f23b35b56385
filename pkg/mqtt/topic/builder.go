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

package topic

import (
	"fmt"
	"strings"
)

// Topic segments shared by every r1fs-agent. Changing them breaks
// discovery between agents running different versions.
const (
	// SuffixStatus carries status announcements.
	// Structure: {root}/status/{nodeID}
	SuffixStatus = "status"

	// SuffixPresence carries the retained online/offline marker.
	// Structure: {root}/presence/{nodeID}
	SuffixPresence = "presence"
)

// Builder constructs topic strings under a root namespace such as "r1fs/v1".
type Builder struct {
	root string
}

// NewBuilder creates a Builder. Surrounding slashes in root are ignored.
func NewBuilder(root string) *Builder {
	return &Builder{root: strings.Trim(root, "/")}
}

// Status is the topic a node announces its published status ids on.
func (b *Builder) Status(nodeID string) string {
	return b.build(SuffixStatus, nodeID)
}

// StatusWildcard subscribes to every node's announcements.
func (b *Builder) StatusWildcard() string {
	return b.build(SuffixStatus, Wildcard)
}

// Presence is the retained liveness topic of a node.
func (b *Builder) Presence(nodeID string) string {
	return b.build(SuffixPresence, nodeID)
}

// NodeFromStatus extracts the node id from a concrete status topic.
func (b *Builder) NodeFromStatus(topic string) (string, bool) {
	prefix := b.root + "/" + SuffixStatus + "/"
	if !strings.HasPrefix(topic, prefix) {
		return "", false
	}
	node := strings.TrimPrefix(topic, prefix)
	if node == "" || strings.Contains(node, "/") {
		return "", false
	}
	return node, true
}

func (b *Builder) build(suffix, id string) string {
	return fmt.Sprintf("%s/%s/%s", b.root, suffix, id)
}
