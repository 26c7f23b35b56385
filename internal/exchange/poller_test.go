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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/internal/store/storetest"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func mustAdd(t *testing.T, s store.Store, name string, data []byte) store.ContentID {
	t.Helper()
	id, err := s.Add(context.Background(), name, data)
	if err != nil {
		t.Fatalf("Add(%s) error = %v", name, err)
	}
	return id
}

func writeCommands(t *testing.T, path string, lines ...string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestPoller(t *testing.T, s store.Store, cfg PollerConfig) (*Poller, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "commands.txt")
	return NewPoller(s, NewCommandFile(path), cfg, clocktesting.NewFakePassiveClock(testNow)), path
}

func TestPollResolvesInFileOrder(t *testing.T) {
	s := storetest.New("node-a")
	text := mustAdd(t, s, "status.json", []byte(`{"a":1}`))
	bin := mustAdd(t, s, "image.bin", make([]byte, 2048))
	missing := storetest.Missing("gone")
	broken := s.PutUnwrapped([]byte("raw block"))

	p, path := newTestPoller(t, s, PollerConfig{})
	writeCommands(t, path,
		"# comment",
		text.String(),
		"",
		bin.String()+" extra tokens",
		missing.String(),
		"not-a-cid",
		broken.String(),
	)

	resolved, err := p.Poll(context.Background())
	if err != nil {
		t.Fatalf("Poll() error = %v", err)
	}
	if len(resolved) != 5 {
		t.Fatalf("got %d resolved commands, want 5", len(resolved))
	}

	if rc := resolved[0]; rc.Class != ClassText || rc.Preview != `{"a":1}` || rc.Name != "status.json" {
		t.Errorf("text command = %+v", rc)
	}
	if rc := resolved[1]; rc.Class != ClassBinary || rc.Size != 2048 || rc.Preview != "" {
		t.Errorf("binary command = %+v", rc)
	}
	if rc := resolved[2]; rc.Class != ClassError || rc.ID != missing.String() || !strings.HasPrefix(rc.Error, "pin:") {
		t.Errorf("missing command = %+v", rc)
	}
	if rc := resolved[3]; rc.Class != ClassError || rc.ID != "not-a-cid" {
		t.Errorf("malformed command = %+v", rc)
	}
	if rc := resolved[4]; rc.Class != ClassError || !strings.HasPrefix(rc.Error, "get:") {
		t.Errorf("corrupt wrapping command = %+v", rc)
	}
	for _, rc := range resolved {
		if !rc.ResolvedAt.Equal(testNow) {
			t.Errorf("%s resolved at %v, want %v", rc.ID, rc.ResolvedAt, testNow)
		}
	}

	// The malformed line is never sent to the store.
	if got := s.Calls("pin"); got != 4 {
		t.Errorf("pin calls = %d, want 4", got)
	}

	// Without consume the file is left alone.
	batch, _ := p.commands.Read()
	if len(batch.Commands) != 5 {
		t.Errorf("command file now has %d commands, want 5", len(batch.Commands))
	}
}

func TestPollIdle(t *testing.T) {
	s := storetest.New("node-a")
	p, path := newTestPoller(t, s, PollerConfig{Consume: true})

	resolved, err := p.Poll(context.Background())
	if err != nil || resolved != nil {
		t.Errorf("Poll() on missing file = (%v, %v)", resolved, err)
	}

	writeCommands(t, path, "# only comments", "")
	resolved, err = p.Poll(context.Background())
	if err != nil || len(resolved) != 0 {
		t.Errorf("Poll() on empty file = (%v, %v)", resolved, err)
	}
	if s.Calls("pin")+s.Calls("get") != 0 {
		t.Error("idle poll touched the store")
	}
}

func TestPollConsumeKeepsRetryableFailures(t *testing.T) {
	s := storetest.New("node-a")
	ok := mustAdd(t, s, "notes.txt", []byte("hello"))
	missing := storetest.Missing("later")

	p, path := newTestPoller(t, s, PollerConfig{Consume: true})
	writeCommands(t, path, ok.String(), "garbage", missing.String())

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if batch, _ := p.commands.Read(); len(batch.Commands) != 3 {
		t.Fatalf("Poll() rewrote the command file before Commit(): %+v", batch.Commands)
	}
	if err := p.Commit(); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	batch, _ := p.commands.Read()
	if len(batch.Commands) != 1 || batch.Commands[0].ID != missing {
		t.Fatalf("after consume = %+v, want only %s", batch.Commands, missing)
	}

	// Consumed ids stay pinned.
	pinned, _ := s.ListPinned(context.Background())
	if len(pinned) != 1 || pinned[0] != ok {
		t.Errorf("pinned = %v, want [%s]", pinned, ok)
	}

	// Once the content shows up the retried id resolves and the file drains.
	later := mustAdd(t, s, "later.txt", []byte("late"))
	writeCommands(t, path, later.String())
	resolved, err := p.Poll(context.Background())
	if err != nil || len(resolved) != 1 || resolved[0].Failed() {
		t.Fatalf("second Poll() = (%+v, %v)", resolved, err)
	}
	if err := p.Commit(); err != nil {
		t.Fatal(err)
	}
	batch, _ = p.commands.Read()
	if len(batch.Commands) != 0 {
		t.Errorf("file not drained: %+v", batch.Commands)
	}
}

func TestPollStoreUnavailable(t *testing.T) {
	s := storetest.New("node-a")
	id := mustAdd(t, s, "a.txt", []byte("a"))
	s.SetUnavailable(true)

	p, path := newTestPoller(t, s, PollerConfig{Consume: true})
	writeCommands(t, path, id.String())

	resolved, err := p.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 1 || !resolved[0].Failed() || !strings.Contains(resolved[0].Error, "unavailable") {
		t.Errorf("resolved = %+v", resolved)
	}
	if err := p.Commit(); err != nil {
		t.Fatal(err)
	}
	batch, _ := p.commands.Read()
	if len(batch.Commands) != 1 {
		t.Error("unavailable store consumed the command")
	}
}

func TestPollHoldsResolvedUntilCommit(t *testing.T) {
	s := storetest.New("node-a")
	first := mustAdd(t, s, "1.txt", []byte("1"))
	p, path := newTestPoller(t, s, PollerConfig{Consume: true})
	writeCommands(t, path, first.String(), "garbage")

	if resolved, _ := p.Poll(context.Background()); len(resolved) != 2 {
		t.Fatalf("first Poll() resolved %d commands, want 2", len(resolved))
	}

	// A later poll before Commit only resolves what was added since.
	second := mustAdd(t, s, "2.txt", []byte("2"))
	writeCommands(t, path, first.String(), "garbage", second.String())
	resolved, err := p.Poll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != 1 || resolved[0].ID != second.String() {
		t.Fatalf("second Poll() = %+v, want only %s", resolved, second)
	}
	if got := s.Calls("pin"); got != 2 {
		t.Errorf("pin calls = %d, want 2", got)
	}

	if err := p.Commit(); err != nil {
		t.Fatal(err)
	}
	if batch, _ := p.commands.Read(); len(batch.Commands) != 0 {
		t.Errorf("after Commit() = %+v, want none", batch.Commands)
	}
}

func TestPollReleaseResolvesAgain(t *testing.T) {
	s := storetest.New("node-a")
	id := mustAdd(t, s, "a.txt", []byte("a"))
	p, path := newTestPoller(t, s, PollerConfig{Consume: true})
	writeCommands(t, path, id.String())

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Release()

	resolved, err := p.Poll(context.Background())
	if err != nil || len(resolved) != 1 || resolved[0].ID != id.String() {
		t.Fatalf("Poll() after Release() = (%+v, %v)", resolved, err)
	}
	if batch, _ := p.commands.Read(); len(batch.Commands) != 1 {
		t.Error("Release() rewrote the command file")
	}
}

func TestPollWarnsOnSecretToken(t *testing.T) {
	s := storetest.New("node-a")
	id := mustAdd(t, s, "a.txt", []byte("a"))
	p, path := newTestPoller(t, s, PollerConfig{})
	core, logs := observer.New(zapcore.DebugLevel)
	p.log = log.NewFromZap(zap.New(core))
	writeCommands(t, path, id.String()+" s3cr3t", id.String())

	if _, err := p.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}

	warned := logs.FilterLevelExact(zapcore.WarnLevel).FilterMessageSnippet("secret").All()
	if len(warned) != 1 {
		t.Fatalf("got %d secret warnings, want 1", len(warned))
	}
	for _, entry := range logs.All() {
		for _, f := range entry.Context {
			if f.String == "s3cr3t" {
				t.Errorf("secret logged in %q", entry.Message)
			}
		}
	}
}
