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
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack"
	"sigs.k8s.io/yaml"

	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

// Codec serializes status documents. Every codec is deterministic for a given value.
type Codec interface {
	Name() string
	// Ext is the file extension used for the published document, without the dot.
	Ext() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return options.FormatJSON }
func (jsonCodec) Ext() string  { return "json" }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// yamlCodec goes through the json tags, so yaml and json documents share field names.
type yamlCodec struct{}

func (yamlCodec) Name() string { return options.FormatYAML }
func (yamlCodec) Ext() string  { return "yaml" }

func (yamlCodec) Marshal(v any) ([]byte, error) {
	return yaml.Marshal(v)
}

func (yamlCodec) Unmarshal(data []byte, v any) error {
	return yaml.Unmarshal(data, v)
}

type msgpackCodec struct{}

func (msgpackCodec) Name() string { return options.FormatMsgpack }
func (msgpackCodec) Ext() string  { return "msgpack" }

func (msgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (msgpackCodec) Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

var codecs = map[string]Codec{
	options.FormatJSON:    jsonCodec{},
	options.FormatYAML:    yamlCodec{},
	options.FormatMsgpack: msgpackCodec{},
}

// CodecFor returns the codec used for the given cycle. The alternate format
// uses yaml on odd cycles and msgpack on even ones.
func CodecFor(format string, cycle uint64) (Codec, error) {
	if format == options.FormatAlternate {
		if cycle%2 == 1 {
			return yamlCodec{}, nil
		}
		return msgpackCodec{}, nil
	}

	c, ok := codecs[format]
	if !ok {
		return nil, fmt.Errorf("unknown status format %q", format)
	}
	return c, nil
}

// CodecForName picks the codec from a published document's file name.
func CodecForName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(name), ".")) {
	case "json":
		return jsonCodec{}, nil
	case "yaml", "yml":
		return yamlCodec{}, nil
	case "msgpack", "mpk":
		return msgpackCodec{}, nil
	}
	return nil, fmt.Errorf("no status codec for %q", name)
}
