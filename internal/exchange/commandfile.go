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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/renameio"

	"github.com/r1fs-io/r1fs-agent/internal/store"
)

const commandFileHeader = `# r1fs command file
# One content id per line. Blank lines and lines starting with # are ignored,
# as is anything after the id on the same line.
`

// CommandFile is the shared-volume file other processes drop content ids into.
// All access from this process goes through one CommandFile so that appends
// from the MQTT subscriber and rewrites by the poller do not interleave.
type CommandFile struct {
	path string
	mu   sync.Mutex
}

// Batch is the result of one read of the command file.
type Batch struct {
	Commands []Command
	// lines is how many physical lines the read covered.
	lines int
}

func NewCommandFile(path string) *CommandFile {
	return &CommandFile{path: path}
}

func (f *CommandFile) Path() string { return f.path }

// Init writes the commented template if the file does not exist yet.
func (f *CommandFile) Init() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, err := os.Stat(f.path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return false, err
	}
	if err := renameio.WriteFile(f.path, []byte(commandFileHeader), 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// Read parses the file. A missing file yields an empty batch.
func (f *CommandFile) Read() (*Batch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return &Batch{}, nil
	}
	if err != nil {
		return nil, err
	}

	return ParseCommands(data), nil
}

// ParseCommands turns command file content into commands, one per non-blank,
// non-comment line. Lines whose first token is not a content id are kept
// with Err set.
func ParseCommands(data []byte) *Batch {
	lines := splitLines(data)
	b := &Batch{lines: len(lines)}

	for i, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		cmd := Command{Line: i + 1, Raw: line}
		cmd.ID, cmd.Err = store.ParseContentID(cmd.Token())
		b.Commands = append(b.Commands, cmd)
	}

	return b
}

// Settle rewrites the file after a cycle: the header, then the lines in keep,
// then whatever was appended after b was read.
func (f *CommandFile) Settle(b *Batch, keep []Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := os.ReadFile(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	var buf bytes.Buffer
	buf.WriteString(commandFileHeader)
	for _, cmd := range keep {
		buf.WriteString(cmd.Raw)
		buf.WriteByte('\n')
	}
	if lines := splitLines(current); len(lines) > b.lines {
		for _, line := range lines[b.lines:] {
			if line = strings.TrimSpace(line); line != "" {
				buf.WriteString(line)
				buf.WriteByte('\n')
			}
		}
	}

	if bytes.Equal(buf.Bytes(), current) {
		return nil
	}
	if current == nil && buf.Len() == len(commandFileHeader) {
		// Removed by someone else and nothing left to keep.
		return nil
	}

	return renameio.WriteFile(f.path, buf.Bytes(), 0o644)
}

// Append queues ids that are not already listed. It returns how many were added.
func (f *CommandFile) Append(ids ...store.ContentID) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return 0, err
	}
	fh, err := os.OpenFile(f.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	data, err := io.ReadAll(fh)
	if err != nil {
		return 0, err
	}

	listed := map[store.ContentID]struct{}{}
	for _, cmd := range ParseCommands(data).Commands {
		listed[cmd.ID] = struct{}{}
	}

	var buf bytes.Buffer
	if len(data) > 0 && data[len(data)-1] != '\n' {
		buf.WriteByte('\n')
	}
	added := 0
	for _, id := range ids {
		if _, ok := listed[id]; ok || id == "" {
			continue
		}
		listed[id] = struct{}{}
		buf.WriteString(id.String())
		buf.WriteByte('\n')
		added++
	}
	if added == 0 {
		return 0, nil
	}

	// The read left the offset at the end of the file.
	if _, err := fh.Write(buf.Bytes()); err != nil {
		return 0, fmt.Errorf("append to %s: %w", f.path, err)
	}
	return added, fh.Sync()
}

func splitLines(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	s := strings.TrimSuffix(string(data), "\n")
	return strings.Split(s, "\n")
}
