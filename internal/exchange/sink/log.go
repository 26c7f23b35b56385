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

package sink

import (
	"context"

	"github.com/r1fs-io/r1fs-agent/internal/exchange"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

var _ exchange.Sink = (*Log)(nil)

// Log emits one structured line per publication for log-scraping consumers.
type Log struct {
	log log.Logger
}

func NewLog(l log.Logger) *Log {
	if l == nil {
		l = log.WithName("status")
	}
	return &Log{log: l}
}

func (s *Log) Name() string { return "log" }

func (s *Log) Record(_ context.Context, pub *exchange.Publication) error {
	s.log.Info("Status available", "cid", pub.ID, "name", pub.Name, "node", pub.Node.ID, "cycle", pub.Cycle.Seq)
	return nil
}
