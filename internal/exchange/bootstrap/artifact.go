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
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-ini/ini"
	"github.com/google/renameio"
)

// ErrConfigMissing means the artifact is absent or incomplete. The gate keeps waiting.
var ErrConfigMissing = errors.New("bootstrap configuration missing")

const (
	SectionIPFS = "ipfs"
	KeySwarmKey = "EE_SWARM_KEY_CONTENT_BASE64"
	KeyRelay    = "EE_IPFS_RELAY"
)

// Artifact is the private-swarm configuration dropped by the operator.
type Artifact struct {
	// SwarmKey is the base64 encoded swarm.key file.
	SwarmKey string
	// Relay is the multiaddress of the relay node to join.
	Relay string
}

// String never prints the swarm key.
func (a *Artifact) String() string {
	return fmt.Sprintf("relay=%s swarmKey=<redacted>", a.Relay)
}

// DecodeSwarmKey returns the swarm.key file content.
func (a *Artifact) DecodeSwarmKey() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(a.SwarmKey)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid base64: %w", KeySwarmKey, err)
	}
	if !bytes.HasPrefix(key, []byte(swarmKeyHeader)) {
		return nil, fmt.Errorf("%s does not hold a swarm key", KeySwarmKey)
	}
	return key, nil
}

// LoadArtifact reads the ini artifact at path. A missing file, a missing
// [ipfs] section or an empty value all report ErrConfigMissing.
func LoadArtifact(path string) (*Artifact, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s does not exist", ErrConfigMissing, path)
	}

	cfg, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	sec, err := cfg.GetSection(SectionIPFS)
	if err != nil {
		return nil, fmt.Errorf("%w: no [%s] section in %s", ErrConfigMissing, SectionIPFS, path)
	}

	a := &Artifact{
		SwarmKey: strings.TrimSpace(sec.Key(KeySwarmKey).String()),
		Relay:    strings.TrimSpace(sec.Key(KeyRelay).String()),
	}
	switch {
	case a.SwarmKey == "":
		return nil, fmt.Errorf("%w: %s is empty", ErrConfigMissing, KeySwarmKey)
	case a.Relay == "":
		return nil, fmt.Errorf("%w: %s is empty", ErrConfigMissing, KeyRelay)
	}

	if _, err := a.DecodeSwarmKey(); err != nil {
		return nil, err
	}
	return a, nil
}

// WriteTemplate creates an artifact with empty values if path does not exist.
func WriteTemplate(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, err
	}

	cfg := ini.Empty()
	sec, err := cfg.NewSection(SectionIPFS)
	if err != nil {
		return false, err
	}
	sec.Comment = "Private swarm bootstrap. The agent starts the storage daemon once both values are set."
	key, err := sec.NewKey(KeySwarmKey, "")
	if err != nil {
		return false, err
	}
	key.Comment = "base64 of the swarm.key file, see r1fs-agent keygen"
	relay, err := sec.NewKey(KeyRelay, "")
	if err != nil {
		return false, err
	}
	relay.Comment = "relay multiaddress, e.g. /ip4/203.0.113.7/tcp/4001/p2p/12D3KooW..."

	var buf bytes.Buffer
	if _, err := cfg.WriteTo(&buf); err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, err
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return false, err
	}
	return true, nil
}
