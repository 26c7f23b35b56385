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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/r1fs-io/r1fs-agent/internal/store/storetest"
)

func TestParseCommands(t *testing.T) {
	a, b := storetest.Missing("a"), storetest.Missing("b")
	data := "# header\n\n" + a.String() + "\n   \nnot-a-cid\n  " + b.String() + " trailing words\n# " + a.String() + "\n"

	batch := ParseCommands([]byte(data))
	if len(batch.Commands) != 3 {
		t.Fatalf("got %d commands, want 3: %+v", len(batch.Commands), batch.Commands)
	}

	if got := batch.Commands[0]; got.ID != a || got.Err != nil || got.Line != 3 {
		t.Errorf("first command = %+v", got)
	}
	if got := batch.Commands[1]; got.Err == nil || got.ID != "" || got.Token() != "not-a-cid" {
		t.Errorf("malformed command = %+v", got)
	}
	if got := batch.Commands[2]; got.ID != b || got.Raw != b.String()+" trailing words" {
		t.Errorf("command with trailing tokens = %+v", got)
	}

	if got := ParseCommands(nil); len(got.Commands) != 0 {
		t.Errorf("empty input yielded %d commands", len(got.Commands))
	}
}

func TestCommandFileInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared", "commands.txt")
	f := NewCommandFile(path)

	created, err := f.Init()
	if err != nil || !created {
		t.Fatalf("Init() = (%v, %v), want (true, nil)", created, err)
	}
	batch, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Commands) != 0 {
		t.Errorf("template yields %d commands", len(batch.Commands))
	}

	id := storetest.Missing("x")
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	created, err = f.Init()
	if err != nil || created {
		t.Errorf("Init() on existing file = (%v, %v), want (false, nil)", created, err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != id.String()+"\n" {
		t.Errorf("Init() overwrote the file: %q", data)
	}
}

func TestCommandFileReadMissing(t *testing.T) {
	f := NewCommandFile(filepath.Join(t.TempDir(), "absent.txt"))
	batch, err := f.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(batch.Commands) != 0 {
		t.Errorf("missing file yielded %d commands", len(batch.Commands))
	}
}

func TestCommandFileSettle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.txt")
	f := NewCommandFile(path)

	ok, failed, late := storetest.Missing("ok"), storetest.Missing("failed"), storetest.Missing("late")
	content := ok.String() + "\nbogus\n" + failed.String() + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	batch, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}

	// Another process appends while the batch is being resolved.
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fh.WriteString(late.String() + "\n"); err != nil {
		t.Fatal(err)
	}
	fh.Close()

	if err := f.Settle(batch, batch.Commands[2:]); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}

	after, err := f.Read()
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, cmd := range after.Commands {
		ids = append(ids, cmd.Raw)
	}
	want := []string{failed.String(), late.String()}
	if strings.Join(ids, ",") != strings.Join(want, ",") {
		t.Errorf("remaining = %v, want %v", ids, want)
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), commandFileHeader) {
		t.Errorf("settled file lost its header: %q", data)
	}
}

func TestCommandFileSettleRemoved(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.txt")
	f := NewCommandFile(path)
	if err := os.WriteFile(path, []byte(storetest.Missing("a").String()+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	batch, _ := f.Read()
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if err := f.Settle(batch, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("Settle() recreated a removed file with nothing to keep")
	}
}

func TestCommandFileAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.txt")
	f := NewCommandFile(path)

	a, b := storetest.Missing("a"), storetest.Missing("b")
	// No trailing newline on the last line.
	if err := os.WriteFile(path, []byte("# queued\n"+a.String()), 0o644); err != nil {
		t.Fatal(err)
	}

	added, err := f.Append(a, b, b)
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	batch, _ := f.Read()
	if len(batch.Commands) != 2 || batch.Commands[0].ID != a || batch.Commands[1].ID != b {
		t.Errorf("commands after append = %+v", batch.Commands)
	}

	added, err = f.Append(b)
	if err != nil || added != 0 {
		t.Errorf("Append(listed) = (%d, %v), want (0, nil)", added, err)
	}
}
