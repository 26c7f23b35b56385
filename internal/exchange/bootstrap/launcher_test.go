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

package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"k8s.io/utils/clock"
)

type fakeDaemon struct {
	mu          sync.Mutex
	pingsToFail int
	pings       int
	removed     int
	connected   []string
	connectErr  error
}

func (d *fakeDaemon) Ping(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pings++
	if d.pings <= d.pingsToFail {
		return errors.New("connection refused")
	}
	return nil
}

func (d *fakeDaemon) RemoveBootstrapPeers(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.removed++
	return nil
}

func (d *fakeDaemon) ConnectPeer(_ context.Context, addr string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = append(d.connected, addr)
	return d.connectErr
}

func TestLaunchJoinsRunningDaemon(t *testing.T) {
	tests := []struct {
		name          string
		keepBootstrap bool
		wantRemoved   int
	}{
		{"private swarm", false, 1},
		{"keep bootstrap", true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &fakeDaemon{}
			l := NewDaemonLauncher(d, DaemonConfig{
				Binary:        "/nonexistent/ipfs",
				Repo:          t.TempDir(),
				KeepBootstrap: tt.keepBootstrap,
			}, clock.RealClock{})

			if err := l.Launch(context.Background(), &Artifact{SwarmKey: testKey(t), Relay: testRelay}); err != nil {
				t.Fatalf("Launch() error = %v", err)
			}
			if d.removed != tt.wantRemoved {
				t.Errorf("bootstrap removals = %d, want %d", d.removed, tt.wantRemoved)
			}
			if len(d.connected) != 1 || d.connected[0] != testRelay {
				t.Errorf("connected = %v, want [%s]", d.connected, testRelay)
			}
		})
	}
}

func TestLaunchFailures(t *testing.T) {
	t.Run("relay unreachable", func(t *testing.T) {
		d := &fakeDaemon{connectErr: errors.New("dial backoff")}
		l := NewDaemonLauncher(d, DaemonConfig{Binary: "ipfs", Repo: t.TempDir()}, clock.RealClock{})
		if err := l.Launch(context.Background(), &Artifact{SwarmKey: testKey(t), Relay: testRelay}); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		d := &fakeDaemon{pingsToFail: 1}
		repo := t.TempDir()
		l := NewDaemonLauncher(d, DaemonConfig{Binary: "/nonexistent/ipfs", Repo: repo}, clock.RealClock{})
		if err := l.Launch(context.Background(), &Artifact{SwarmKey: "bm9wZQ==", Relay: testRelay}); err == nil {
			t.Fatal("expected error")
		}
		if _, err := os.Stat(filepath.Join(repo, "swarm.key")); !errors.Is(err, os.ErrNotExist) {
			t.Error("swarm.key written for an invalid key")
		}
	})

	t.Run("binary missing", func(t *testing.T) {
		d := &fakeDaemon{pingsToFail: 1}
		l := NewDaemonLauncher(d, DaemonConfig{Binary: "/nonexistent/ipfs", Repo: filepath.Join(t.TempDir(), "repo")}, clock.RealClock{})
		if err := l.Launch(context.Background(), &Artifact{SwarmKey: testKey(t), Relay: testRelay}); err == nil {
			t.Fatal("expected error")
		}
		if len(d.connected) != 0 {
			t.Error("connected to relay without a daemon")
		}
	})
}

func TestLaunchStartsDaemon(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses a shell script as the daemon binary")
	}

	dir := t.TempDir()
	binary := filepath.Join(dir, "ipfs")
	script := "#!/bin/sh\ncase \"$1\" in\ninit) touch \"$IPFS_PATH/config\" ;;\ndaemon) exec sleep 30 ;;\nesac\n"
	if err := os.WriteFile(binary, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	repo := filepath.Join(dir, "repo")

	// Down for the initial probe and the first readiness poll.
	d := &fakeDaemon{pingsToFail: 2}
	l := NewDaemonLauncher(d, DaemonConfig{Binary: binary, Repo: repo, StartTimeout: 10 * time.Second}, clock.RealClock{})

	key := testKey(t)
	if err := l.Launch(context.Background(), &Artifact{SwarmKey: key, Relay: testRelay}); err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.Stop(ctx)
	})

	if _, err := os.Stat(filepath.Join(repo, "config")); err != nil {
		t.Errorf("repo not initialized: %v", err)
	}
	info, err := os.Stat(filepath.Join(repo, "swarm.key"))
	if err != nil {
		t.Fatalf("swarm.key missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("swarm.key mode = %o, want 600", perm)
	}
	if len(d.connected) != 1 {
		t.Errorf("relay connects = %d, want 1", len(d.connected))
	}
}
