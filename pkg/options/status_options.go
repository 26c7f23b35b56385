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

package options

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StatusOptions)(nil)

// Status document formats.
const (
	FormatJSON      = "json"
	FormatYAML      = "yaml"
	FormatMsgpack   = "msgpack"
	FormatAlternate = "alternate"
)

// StatusOptions configures the status snapshot published every cycle.
type StatusOptions struct {
	// Format is json, yaml, msgpack, or alternate (yaml and msgpack on even and odd cycles).
	Format string `json:"format" mapstructure:"format"`

	// Every publishes on one cycle out of Every.
	Every int `json:"every" mapstructure:"every"`
}

func NewStatusOptions() *StatusOptions {
	return &StatusOptions{
		Format: FormatYAML,
		Every:  1,
	}
}

func (o *StatusOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	switch o.Format {
	case FormatJSON, FormatYAML, FormatMsgpack, FormatAlternate:
	default:
		errs = append(errs, fmt.Errorf("--status.format must be one of json, yaml, msgpack, alternate; got %q", o.Format))
	}
	if o.Every < 1 {
		errs = append(errs, errors.New("--status.every must be at least 1"))
	}

	return errs
}

func (o *StatusOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Format, "status.format", o.Format, "Status document format: json, yaml, msgpack or alternate.")
	fs.IntVar(&o.Every, "status.every", o.Every, "Publish a status document every N cycles.")
}
