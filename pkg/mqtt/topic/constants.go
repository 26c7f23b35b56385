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

package topic

// Standard MQTT wildcard definitions.
const (
	// Wildcard matches exactly one level: "r1fs/v1/status/+" matches "r1fs/v1/status/node-a".
	Wildcard = "+"

	// MultiWildcard matches the current level and everything below it; it must come last.
	MultiWildcard = "#"
)
