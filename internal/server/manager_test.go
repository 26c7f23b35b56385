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

package server

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManagerStopsAllOnFailure(t *testing.T) {
	boom := errors.New("boom")
	stopped := make(chan struct{})

	m := NewManager(RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		close(stopped)
		return nil
	}))
	m.Add(RunFunc(func(context.Context) error { return boom }))

	if err := m.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want %v", err, boom)
	}
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sibling server was not stopped")
	}
}

func TestManagerReturnsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager(
		RunFunc(func(ctx context.Context) error { <-ctx.Done(); return nil }),
		RunFunc(func(ctx context.Context) error { <-ctx.Done(); return nil }),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- m.Start(ctx) }()
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Start() did not return after cancel")
	}
}
