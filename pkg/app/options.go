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

package app

import (
	cliflag "k8s.io/component-base/cli/flag"
)

// NamedFlagSetOptions is implemented by a command's top-level options.
type NamedFlagSetOptions interface {
	// Flags returns the command's flags grouped by section.
	Flags() cliflag.NamedFlagSets

	// Complete fills in defaults that depend on other fields or the environment.
	Complete() error

	// Validate returns every problem found, aggregated.
	Validate() error
}
