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
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/r1fs-io/r1fs-agent/internal/exchange"
)

var _ exchange.Sink = (*IDFile)(nil)

// IDFile appends one "<cid> <name> <timestamp>" line per publication to a
// file on the shared volume.
type IDFile struct {
	path string
	mu   sync.Mutex
}

func NewIDFile(path string) *IDFile {
	return &IDFile{path: path}
}

func (s *IDFile) Name() string { return "file" }

func (s *IDFile) Record(_ context.Context, pub *exchange.Publication) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}

	line := fmt.Sprintf("%s %s %s\n", pub.ID, pub.Name, pub.Timestamp.UTC().Format(time.RFC3339))
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadIDFile returns the handles recorded in an ids file, oldest first.
// Lines that do not parse are skipped.
func ReadIDFile(path string) ([]Handle, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var handles []Handle
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		h := Handle{CID: fields[0], Name: fields[1]}
		if len(fields) > 2 {
			h.Timestamp, _ = time.Parse(time.RFC3339, fields[2])
		}
		handles = append(handles, h)
	}
	return handles, sc.Err()
}
