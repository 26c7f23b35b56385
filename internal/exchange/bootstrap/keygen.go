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
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const swarmKeyHeader = "/key/swarm/psk/1.0.0/\n/base16/\n"

// GenerateSwarmKey returns a fresh 256-bit private network key in swarm.key
// format together with the base64 form expected in the artifact.
func GenerateSwarmKey() (key []byte, encoded string, err error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, "", fmt.Errorf("generate swarm key: %w", err)
	}

	key = []byte(swarmKeyHeader + hex.EncodeToString(secret) + "\n")
	return key, base64.StdEncoding.EncodeToString(key), nil
}
