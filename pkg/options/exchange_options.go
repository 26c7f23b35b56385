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
	"path/filepath"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ExchangeOptions)(nil)

// ExchangeOptions configures the command/status exchange loop.
// Relative file names are resolved against WorkDir, the shared volume.
type ExchangeOptions struct {
	WorkDir      string `json:"workdir" mapstructure:"workdir"`
	CommandFile  string `json:"command-file" mapstructure:"command-file"`
	ConfigFile   string `json:"config-file" mapstructure:"config-file"`
	StatusIDFile string `json:"status-id-file" mapstructure:"status-id-file"`

	Interval       time.Duration `json:"interval" mapstructure:"interval"`
	ResolveTimeout time.Duration `json:"resolve-timeout" mapstructure:"resolve-timeout"`
	ShutdownGrace  time.Duration `json:"shutdown-grace" mapstructure:"shutdown-grace"`

	// PreviewLimit caps the bytes kept from a text payload.
	PreviewLimit int `json:"preview-limit" mapstructure:"preview-limit"`

	// Consume rewrites the command file after each cycle, keeping only failed lines.
	Consume bool `json:"consume" mapstructure:"consume"`

	// InitFiles writes commented templates for missing command and config files.
	InitFiles bool `json:"init-files" mapstructure:"init-files"`
}

func NewExchangeOptions() *ExchangeOptions {
	return &ExchangeOptions{
		WorkDir:        "_local_cache",
		CommandFile:    "commands.txt",
		ConfigFile:     "ipfs.ini",
		StatusIDFile:   "generated_cids.txt",
		Interval:       15 * time.Second,
		ResolveTimeout: 10 * time.Second,
		ShutdownGrace:  5 * time.Second,
		PreviewLimit:   4096,
		Consume:        true,
		InitFiles:      true,
	}
}

func (o *ExchangeOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}
	if o.CommandFile == "" {
		errs = append(errs, errors.New("--exchange.command-file must not be empty"))
	}
	if o.ConfigFile == "" {
		errs = append(errs, errors.New("--exchange.config-file must not be empty"))
	}
	if o.Interval <= 0 {
		errs = append(errs, errors.New("--exchange.interval must be positive"))
	}
	if o.ResolveTimeout <= 0 {
		errs = append(errs, errors.New("--exchange.resolve-timeout must be positive"))
	}
	if o.ShutdownGrace < 0 {
		errs = append(errs, errors.New("--exchange.shutdown-grace must not be negative"))
	}
	if o.PreviewLimit <= 0 {
		errs = append(errs, errors.New("--exchange.preview-limit must be positive"))
	}

	return errs
}

func (o *ExchangeOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.WorkDir, "exchange.workdir", o.WorkDir, "Shared directory holding the command, config and status id files.")
	fs.StringVar(&o.CommandFile, "exchange.command-file", o.CommandFile, "Command file with one content id per line.")
	fs.StringVar(&o.ConfigFile, "exchange.config-file", o.ConfigFile, "Bootstrap artifact with the swarm key and relay address.")
	fs.StringVar(&o.StatusIDFile, "exchange.status-id-file", o.StatusIDFile, "File receiving one line per published status id (empty disables).")
	fs.DurationVar(&o.Interval, "exchange.interval", o.Interval, "Cycle interval for polling commands and publishing status.")
	fs.DurationVar(&o.ResolveTimeout, "exchange.resolve-timeout", o.ResolveTimeout, "How long a single content id may take to pin and fetch.")
	fs.DurationVar(&o.ShutdownGrace, "exchange.shutdown-grace", o.ShutdownGrace, "How long an in-flight cycle may continue after a termination signal.")
	fs.IntVar(&o.PreviewLimit, "exchange.preview-limit", o.PreviewLimit, "Maximum bytes of a text payload kept as preview.")
	fs.BoolVar(&o.Consume, "exchange.consume", o.Consume, "Remove resolved ids from the command file after each cycle.")
	fs.BoolVar(&o.InitFiles, "exchange.init-files", o.InitFiles, "Create commented templates for missing command and config files.")
}

// Path resolves name against WorkDir unless it is already absolute.
func (o *ExchangeOptions) Path(name string) string {
	if name == "" || filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(o.WorkDir, name)
}
