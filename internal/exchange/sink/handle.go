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

// Package sink advertises published status ids to other processes: an
// append-only ids file, the log, an S3 bucket and MQTT.
package sink

import (
	"time"

	"github.com/r1fs-io/r1fs-agent/internal/exchange"
)

// Handle is the advertised pointer to a published status document.
type Handle struct {
	Node      string    `json:"node"`
	CID       string    `json:"cid"`
	Name      string    `json:"name"`
	Format    string    `json:"format,omitempty"`
	Cycle     uint64    `json:"cycle,omitempty"`
	CycleID   string    `json:"cycleID,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// HandleFor extracts the handle of a publication.
func HandleFor(pub *exchange.Publication) Handle {
	return Handle{
		Node:      pub.Node.ID,
		CID:       pub.ID.String(),
		Name:      pub.Name,
		Format:    pub.Format,
		Cycle:     pub.Cycle.Seq,
		CycleID:   pub.Cycle.ID,
		Timestamp: pub.Timestamp,
	}
}
