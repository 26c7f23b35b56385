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
	"errors"
	"testing"
	"time"

	clocktesting "k8s.io/utils/clock/testing"

	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/internal/store/storetest"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

type recordingSink struct {
	name string
	err  error
	pubs []*Publication
}

func (s *recordingSink) Name() string { return s.name }

func (s *recordingSink) Record(_ context.Context, pub *Publication) error {
	s.pubs = append(s.pubs, pub)
	return s.err
}

// fetchStatus reads a published document back through the store.
func fetchStatus(t *testing.T, s store.Store, id store.ContentID) (*Status, string) {
	t.Helper()
	obj, err := s.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	data, err := store.ReadAll(obj)
	if err != nil {
		t.Fatal(err)
	}
	c, err := CodecForName(obj.Name)
	if err != nil {
		t.Fatal(err)
	}
	var status Status
	if err := c.Unmarshal(data, &status); err != nil {
		t.Fatalf("decode %s: %v", obj.Name, err)
	}
	return &status, obj.Name
}

func TestPublish(t *testing.T) {
	ctx := context.Background()
	s := storetest.New("12D3KooWnode")
	earlier := mustAdd(t, s, "kept.txt", []byte("kept"))
	if err := s.Pin(ctx, earlier); err != nil {
		t.Fatal(err)
	}

	failing := &recordingSink{name: "broken", err: errors.New("boom")}
	recorder := &recordingSink{name: "recorder"}
	p, err := NewPublisher(s, options.FormatJSON, clocktesting.NewFakePassiveClock(testNow), failing)
	if err != nil {
		t.Fatal(err)
	}
	p.AddSink(recorder)

	resolved := []ResolvedCommand{{ID: earlier.String(), Class: ClassText, Name: "kept.txt", Preview: "kept", Size: 4}}
	pub, err := p.Publish(ctx, Cycle{Seq: 1, ID: "first"}, resolved)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	if pub.Name != "status_20250601_120000.json" || pub.Format != "json" {
		t.Errorf("publication = %s (%s)", pub.Name, pub.Format)
	}
	if len(recorder.pubs) != 1 || recorder.pubs[0].ID != pub.ID {
		t.Errorf("sinks after a failing one were not notified")
	}

	status, _ := fetchStatus(t, s, pub.ID)
	if status.Node.ID != "12D3KooWnode" || status.CycleID != "first" || !status.Timestamp.Equal(testNow) {
		t.Errorf("status = %+v", status)
	}
	if len(status.Resolved) != 1 || status.Resolved[0].Preview != "kept" {
		t.Errorf("resolved = %+v", status.Resolved)
	}
	// The pinned list is taken before the document itself is pinned.
	if len(status.Pinned) != 1 || status.Pinned[0] != earlier.String() {
		t.Errorf("pinned = %v", status.Pinned)
	}

	pinned, _ := s.ListPinned(ctx)
	if len(pinned) != 2 {
		t.Errorf("status document not pinned: %v", pinned)
	}
}

func TestPublishEmptyResolved(t *testing.T) {
	s := storetest.New("node")
	p, _ := NewPublisher(s, options.FormatYAML, clocktesting.NewFakePassiveClock(testNow))

	pub, err := p.Publish(context.Background(), Cycle{Seq: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if pub.Status.Resolved == nil || len(pub.Status.Resolved) != 0 {
		t.Errorf("resolved = %#v, want an empty list", pub.Status.Resolved)
	}
}

func TestPublishAlternatesFormats(t *testing.T) {
	s := storetest.New("node")
	clk := clocktesting.NewFakePassiveClock(testNow)
	p, _ := NewPublisher(s, options.FormatAlternate, clk)

	want := []string{"yaml", "msgpack", "yaml"}
	for i, ext := range want {
		clk.SetTime(testNow.Add(time.Duration(i) * time.Second))
		pub, err := p.Publish(context.Background(), Cycle{Seq: uint64(i + 1)}, nil)
		if err != nil {
			t.Fatal(err)
		}
		if pub.Format != ext {
			t.Errorf("cycle %d published %s, want %s", i+1, pub.Format, ext)
		}
		if status, _ := fetchStatus(t, s, pub.ID); status.Cycle != uint64(i+1) {
			t.Errorf("cycle %d document says cycle %d", i+1, status.Cycle)
		}
	}
}

func TestPublishStoreFailure(t *testing.T) {
	s := storetest.New("node")
	s.SetUnavailable(true)
	sink := &recordingSink{name: "recorder"}
	p, _ := NewPublisher(s, options.FormatJSON, clocktesting.NewFakePassiveClock(testNow), sink)

	if _, err := p.Publish(context.Background(), Cycle{Seq: 1}, nil); !errors.Is(err, store.ErrStoreUnavailable) {
		t.Errorf("Publish() error = %v, want ErrStoreUnavailable", err)
	}
	if len(sink.pubs) != 0 {
		t.Error("sink notified of a failed publication")
	}
	if s.Calls("add") != 0 {
		t.Error("document added although the node identity was unavailable")
	}
}

func TestNewPublisherRejectsUnknownFormat(t *testing.T) {
	if _, err := NewPublisher(storetest.New("node"), "xml", clocktesting.NewFakePassiveClock(testNow)); err == nil {
		t.Error("NewPublisher(xml) succeeded")
	}
}
