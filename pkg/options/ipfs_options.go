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
	"math"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/spf13/pflag"
)

var _ IOptions = (*IpfsOptions)(nil)

// IpfsOptions configures access to the storage daemon and how it is launched.
type IpfsOptions struct {
	// APIURL is the daemon's RPC endpoint, without the /api/v0 suffix.
	APIURL string `json:"api-url" mapstructure:"api-url"`

	// Timeout bounds every RPC call that is not a content resolution.
	Timeout time.Duration `json:"timeout" mapstructure:"timeout"`

	// MaxAddSize rejects larger payloads before they reach the daemon, e.g. "64MB".
	// Empty or "0" disables the check.
	MaxAddSize string `json:"max-add-size" mapstructure:"max-add-size"`

	// Binary is the daemon executable used for init and daemon start.
	Binary string `json:"binary" mapstructure:"binary"`

	// RepoPath is the daemon repository (IPFS_PATH). Empty means ~/.ipfs.
	RepoPath string `json:"repo-path" mapstructure:"repo-path"`

	// StartTimeout bounds how long the launcher waits for the API after starting the daemon.
	StartTimeout time.Duration `json:"start-timeout" mapstructure:"start-timeout"`

	// KeepBootstrap leaves the public bootstrap list untouched.
	KeepBootstrap bool `json:"keep-bootstrap" mapstructure:"keep-bootstrap"`
}

func NewIpfsOptions() *IpfsOptions {
	return &IpfsOptions{
		APIURL:       "http://127.0.0.1:5001",
		Timeout:      30 * time.Second,
		MaxAddSize:   "64MB",
		Binary:       "ipfs",
		StartTimeout: 30 * time.Second,
	}
}

func (o *IpfsOptions) Validate() []error {
	if o == nil {
		return nil
	}

	errs := []error{}

	u, err := url.Parse(o.APIURL)
	if err != nil {
		errs = append(errs, fmt.Errorf("--ipfs.api-url: %w", err))
	} else if u.Scheme != "http" && u.Scheme != "https" {
		errs = append(errs, fmt.Errorf("--ipfs.api-url must be an http(s) url, got %q", o.APIURL))
	}
	if o.Timeout <= 0 {
		errs = append(errs, errors.New("--ipfs.timeout must be positive"))
	}
	if _, err := o.AddLimit(); err != nil {
		errs = append(errs, fmt.Errorf("--ipfs.max-add-size: %w", err))
	}
	if o.Binary == "" {
		errs = append(errs, errors.New("--ipfs.binary must not be empty"))
	}

	return errs
}

func (o *IpfsOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.APIURL, "ipfs.api-url", o.APIURL, "Base URL of the storage daemon RPC API.")
	fs.DurationVar(&o.Timeout, "ipfs.timeout", o.Timeout, "Timeout for daemon RPC calls.")
	fs.StringVar(&o.MaxAddSize, "ipfs.max-add-size", o.MaxAddSize, "Largest payload accepted by add, e.g. 512KB or 64MB (0 disables the limit).")
	fs.StringVar(&o.Binary, "ipfs.binary", o.Binary, "Daemon executable used to initialize and start the node.")
	fs.StringVar(&o.RepoPath, "ipfs.repo-path", o.RepoPath, "Daemon repository path (defaults to ~/.ipfs).")
	fs.DurationVar(&o.StartTimeout, "ipfs.start-timeout", o.StartTimeout, "How long to wait for the daemon API after starting it.")
	fs.BoolVar(&o.KeepBootstrap, "ipfs.keep-bootstrap", o.KeepBootstrap, "Do not remove public bootstrap peers when joining the private swarm.")
}

// AddLimit returns MaxAddSize in bytes. Zero means unlimited.
func (o *IpfsOptions) AddLimit() (int64, error) {
	if o.MaxAddSize == "" {
		return 0, nil
	}
	size, err := datasize.ParseString(o.MaxAddSize)
	if err != nil {
		return 0, err
	}
	if size.Bytes() > math.MaxInt64 {
		return 0, fmt.Errorf("%s is too large", o.MaxAddSize)
	}
	return int64(size.Bytes()), nil
}

// Repo returns the daemon repository path, resolving the default.
func (o *IpfsOptions) Repo() string {
	if o.RepoPath != "" {
		return o.RepoPath
	}
	if env := os.Getenv("IPFS_PATH"); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".ipfs"
	}
	return filepath.Join(home, ".ipfs")
}
