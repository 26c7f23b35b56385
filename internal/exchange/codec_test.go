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
	"io"
	"strings"
	"testing"
	"time"

	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

func TestCodecFor(t *testing.T) {
	tests := []struct {
		format  string
		cycle   uint64
		want    string
		wantErr bool
	}{
		{format: options.FormatJSON, cycle: 1, want: "json"},
		{format: options.FormatYAML, cycle: 2, want: "yaml"},
		{format: options.FormatMsgpack, cycle: 3, want: "msgpack"},
		{format: options.FormatAlternate, cycle: 1, want: "yaml"},
		{format: options.FormatAlternate, cycle: 2, want: "msgpack"},
		{format: options.FormatAlternate, cycle: 7, want: "yaml"},
		{format: "xml", cycle: 1, wantErr: true},
	}

	for _, tt := range tests {
		c, err := CodecFor(tt.format, tt.cycle)
		if (err != nil) != tt.wantErr {
			t.Errorf("CodecFor(%q, %d) error = %v, wantErr %v", tt.format, tt.cycle, err, tt.wantErr)
			continue
		}
		if err == nil && c.Ext() != tt.want {
			t.Errorf("CodecFor(%q, %d) = %s, want %s", tt.format, tt.cycle, c.Ext(), tt.want)
		}
	}
}

func TestCodecsDecodeStatus(t *testing.T) {
	status := &Status{
		Timestamp: time.Date(2025, 3, 1, 8, 30, 0, 0, time.UTC),
		Node:      NodeInfo{ID: "12D3KooWnode", Address: "/ip4/10.0.0.2/tcp/4001"},
		Pinned:    []string{"QmA", "QmB"},
		Resolved: []ResolvedCommand{
			{ID: "QmA", Class: ClassText, Name: "a.txt", Preview: "hello", Size: 5},
			{ID: "bogus", Class: ClassError, Error: "invalid content id"},
		},
		Cycle:   4,
		CycleID: "c-4",
	}

	for _, name := range []string{"s.json", "s.yaml", "s.yml", "s.msgpack"} {
		c, err := CodecForName(name)
		if err != nil {
			t.Fatalf("CodecForName(%q) error = %v", name, err)
		}
		data, err := c.Marshal(status)
		if err != nil {
			t.Fatalf("%s: Marshal() error = %v", c.Name(), err)
		}
		var got Status
		if err := c.Unmarshal(data, &got); err != nil {
			t.Fatalf("%s: Unmarshal() error = %v", c.Name(), err)
		}
		if got.Node.ID != status.Node.ID || len(got.Resolved) != 2 || got.Resolved[0].Preview != "hello" ||
			got.Resolved[1].Class != ClassError || got.Cycle != 4 || !got.Timestamp.Equal(status.Timestamp) {
			t.Errorf("%s: decoded %+v", c.Name(), got)
		}
	}

	if _, err := CodecForName("status.bin"); err == nil {
		t.Error("CodecForName(status.bin) succeeded")
	}
}

func TestYAMLUsesJSONFieldNames(t *testing.T) {
	data, err := yamlCodec{}.Marshal(&Status{CycleID: "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "cycleID: abc") {
		t.Errorf("yaml document = %s", data)
	}
}

func TestClassify(t *testing.T) {
	obj := func(name string, data []byte) *store.Object {
		return &store.Object{
			ID:   "QmTest",
			Name: name,
			Size: int64(len(data)),
			Body: io.NopCloser(bytes.NewReader(data)),
		}
	}

	tests := []struct {
		name          string
		data          []byte
		limit         int
		wantClass     Class
		wantPreview   string
		wantTruncated bool
	}{
		{name: "status.json", data: []byte(`{"a":1}`), limit: 64, wantClass: ClassText, wantPreview: `{"a":1}`},
		{name: "NOTES.TXT", data: []byte("upper case ext"), limit: 64, wantClass: ClassText, wantPreview: "upper case ext"},
		{name: "image.bin", data: make([]byte, 2048), limit: 64, wantClass: ClassBinary},
		{name: "noext", data: []byte("text without extension"), limit: 64, wantClass: ClassBinary},
		{name: "empty.txt", data: nil, limit: 64, wantClass: ClassText},
		{name: "long.txt", data: []byte("abcdefghij"), limit: 4, wantClass: ClassText, wantPreview: "abcd", wantTruncated: true},
		// "é" is two bytes; cutting after its first byte drops it entirely.
		{name: "rune.txt", data: []byte("abé"), limit: 3, wantClass: ClassText, wantPreview: "ab", wantTruncated: true},
		{name: "latin1.txt", data: []byte{'o', 'k', 0xff}, limit: 64, wantClass: ClassText, wantPreview: "ok�"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc, err := classify(obj(tt.name, tt.data), tt.limit)
			if err != nil {
				t.Fatalf("classify() error = %v", err)
			}
			if rc.Class != tt.wantClass {
				t.Errorf("class = %s, want %s", rc.Class, tt.wantClass)
			}
			if rc.Preview != tt.wantPreview {
				t.Errorf("preview = %q, want %q", rc.Preview, tt.wantPreview)
			}
			if rc.Truncated != tt.wantTruncated {
				t.Errorf("truncated = %v, want %v", rc.Truncated, tt.wantTruncated)
			}
			if rc.Size != int64(len(tt.data)) {
				t.Errorf("size = %d, want %d", rc.Size, len(tt.data))
			}
		})
	}
}
