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
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio"
	"k8s.io/utils/clock"

	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

// Launcher starts the storage daemon for a bootstrap artifact.
type Launcher interface {
	Launch(ctx context.Context, a *Artifact) error
}

// LauncherFunc adapts a function to Launcher.
type LauncherFunc func(ctx context.Context, a *Artifact) error

func (f LauncherFunc) Launch(ctx context.Context, a *Artifact) error { return f(ctx, a) }

// DaemonAPI is the part of the daemon client the launcher needs.
type DaemonAPI interface {
	Ping(ctx context.Context) error
	RemoveBootstrapPeers(ctx context.Context) error
	ConnectPeer(ctx context.Context, addr string) error
}

// DaemonConfig describes how to run the daemon binary.
type DaemonConfig struct {
	Binary        string
	Repo          string
	StartTimeout  time.Duration
	KeepBootstrap bool
}

// DaemonLauncher brings up a Kubo daemon in a private swarm: swarm.key, init,
// daemon start, then bootstrap cleanup and relay connect over the API.
type DaemonLauncher struct {
	api   DaemonAPI
	cfg   DaemonConfig
	clock clock.Clock
	log   log.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{}
}

var _ Launcher = (*DaemonLauncher)(nil)

func NewDaemonLauncher(api DaemonAPI, cfg DaemonConfig, clk clock.Clock) *DaemonLauncher {
	if cfg.StartTimeout <= 0 {
		cfg.StartTimeout = 30 * time.Second
	}
	return &DaemonLauncher{
		api:   api,
		cfg:   cfg,
		clock: clk,
		log:   log.WithName("launcher"),
	}
}

func (l *DaemonLauncher) Launch(ctx context.Context, a *Artifact) error {
	if err := l.api.Ping(ctx); err == nil {
		l.log.Info("Storage daemon already answers, joining the relay only")
		return l.join(ctx, a)
	}

	key, err := a.DecodeSwarmKey()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(l.cfg.Repo, 0o700); err != nil {
		return fmt.Errorf("create repo %s: %w", l.cfg.Repo, err)
	}

	if _, err := os.Stat(filepath.Join(l.cfg.Repo, "config")); errors.Is(err, os.ErrNotExist) {
		l.log.Info("Initializing daemon repository", "repo", l.cfg.Repo)
		out, err := l.command(ctx, "init").CombinedOutput()
		if err != nil {
			return fmt.Errorf("%s init: %w: %s", l.cfg.Binary, err, strings.TrimSpace(string(out)))
		}
	}

	if err := renameio.WriteFile(filepath.Join(l.cfg.Repo, "swarm.key"), key, 0o600); err != nil {
		return fmt.Errorf("write swarm.key: %w", err)
	}

	if err := l.start(); err != nil {
		return err
	}
	if err := l.waitReady(ctx); err != nil {
		return err
	}

	return l.join(ctx, a)
}

// Stop interrupts the daemon if this launcher started it.
func (l *DaemonLauncher) Stop(ctx context.Context) error {
	l.mu.Lock()
	cmd, exited := l.cmd, l.exited
	l.mu.Unlock()
	if cmd == nil {
		return nil
	}

	l.log.Info("Stopping storage daemon", "pid", cmd.Process.Pid)
	if err := cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	select {
	case <-exited:
		return nil
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		return ctx.Err()
	}
}

func (l *DaemonLauncher) start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cmd != nil {
		select {
		case <-l.exited:
		default:
			return nil // still running, the API just has not come up yet
		}
	}

	logFile, err := os.OpenFile(filepath.Join(l.cfg.Repo, "daemon.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open daemon log: %w", err)
	}

	// The daemon outlives the launch call, so it is not bound to its context.
	cmd := l.command(context.Background(), "daemon")
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	if err := cmd.Start(); err != nil {
		logFile.Close()
		return fmt.Errorf("start %s daemon: %w", l.cfg.Binary, err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		logFile.Close()
		close(exited)
		l.log.Warn("Storage daemon exited", "pid", cmd.Process.Pid, "error", fmt.Sprint(err))
	}()

	l.cmd, l.exited = cmd, exited
	l.log.Info("Started storage daemon", "pid", cmd.Process.Pid, "repo", l.cfg.Repo)
	return nil
}

func (l *DaemonLauncher) waitReady(ctx context.Context) error {
	l.mu.Lock()
	exited := l.exited
	l.mu.Unlock()

	deadline := l.clock.Now().Add(l.cfg.StartTimeout)
	for {
		if err := l.api.Ping(ctx); err == nil {
			return nil
		}
		if l.clock.Now().After(deadline) {
			return fmt.Errorf("daemon api not ready after %s", l.cfg.StartTimeout)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-exited:
			return errors.New("daemon exited before its api came up, see daemon.log in the repo")
		case <-l.clock.After(500 * time.Millisecond):
		}
	}
}

func (l *DaemonLauncher) join(ctx context.Context, a *Artifact) error {
	if !l.cfg.KeepBootstrap {
		if err := l.api.RemoveBootstrapPeers(ctx); err != nil {
			return fmt.Errorf("remove bootstrap peers: %w", err)
		}
	}
	if err := l.api.ConnectPeer(ctx, a.Relay); err != nil {
		return fmt.Errorf("connect relay: %w", err)
	}
	l.log.Info("Joined private swarm", "relay", a.Relay)
	return nil
}

func (l *DaemonLauncher) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, l.cfg.Binary, args...)
	cmd.Env = append(os.Environ(), "IPFS_PATH="+l.cfg.Repo)
	return cmd
}
