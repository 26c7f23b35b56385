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
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"github.com/r1fs-io/r1fs-agent/cmd/r1fs-agent/app/options"
	"github.com/r1fs-io/r1fs-agent/internal/exchange"
	"github.com/r1fs-io/r1fs-agent/internal/exchange/bootstrap"
	"github.com/r1fs-io/r1fs-agent/internal/exchange/sink"
	"github.com/r1fs-io/r1fs-agent/internal/store"
	"github.com/r1fs-io/r1fs-agent/pkg/app"
)

const previewWidth = 60

var stdout io.Writer = os.Stdout

func keygenCommand() *app.Command {
	return &app.Command{
		Use:   "keygen",
		Short: "Generate a private swarm key for the bootstrap artifact",
		Run: func(context.Context, []string) error {
			_, encoded, err := bootstrap.GenerateSwarmKey()
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "[%s]\n%s = %s\n%s = \n",
				bootstrap.SectionIPFS, bootstrap.KeySwarmKey, encoded, bootstrap.KeyRelay)
			return nil
		},
	}
}

func inspectCommand(opts *options.AgentOptions) *app.Command {
	return &app.Command{
		Use:   "inspect CID",
		Short: "Fetch a published status document and print it",
		Args:  cobra.ExactArgs(1),
		Run: func(ctx context.Context, args []string) error {
			id, err := store.ParseContentID(args[0])
			if err != nil {
				return err
			}
			s, err := newStore(opts)
			if err != nil {
				return err
			}
			return inspect(ctx, s, id, stdout)
		},
	}
}

func latestCommand(opts *options.AgentOptions) *app.Command {
	return &app.Command{
		Use:   "latest NODE",
		Short: "Print the last status document a node mirrored to the S3 bucket",
		Args:  cobra.ExactArgs(1),
		Run: func(ctx context.Context, args []string) error {
			if !opts.S3Options.Enabled {
				return fmt.Errorf("--s3.enabled is required to look up mirrored statuses")
			}
			bucket, err := sink.NewS3(opts.S3Options)
			if err != nil {
				return err
			}
			s, err := newStore(opts)
			if err != nil {
				return err
			}
			return latest(ctx, bucket, s, args[0], stdout)
		},
	}
}

func pinsCommand(opts *options.AgentOptions) *app.Command {
	return &app.Command{
		Use:   "pins",
		Short: "List the content pinned by the local daemon",
		Run: func(ctx context.Context, _ []string) error {
			s, err := newStore(opts)
			if err != nil {
				return err
			}
			return pins(ctx, s, stdout)
		},
	}
}

func historyCommand(opts *options.AgentOptions) *app.Command {
	return &app.Command{
		Use:   "history",
		Short: "List the status documents this node has published",
		Run: func(context.Context, []string) error {
			ex := opts.ExchangeOptions
			if ex.StatusIDFile == "" {
				return fmt.Errorf("--exchange.status-id-file is disabled")
			}
			return history(ex.Path(ex.StatusIDFile), stdout)
		},
	}
}

func newStore(opts *options.AgentOptions) (store.Store, error) {
	cfg, err := opts.Config()
	if err != nil {
		return nil, err
	}
	return cfg.NewStore()
}

// inspect prints the header of a status document followed by one row per resolved command.
func inspect(ctx context.Context, s store.Store, id store.ContentID, w io.Writer) error {
	obj, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	data, err := store.ReadAll(obj)
	if err != nil {
		return err
	}
	codec, err := exchange.CodecForName(obj.Name)
	if err != nil {
		return err
	}
	var status exchange.Status
	if err := codec.Unmarshal(data, &status); err != nil {
		return fmt.Errorf("decode %s: %w", obj.Name, err)
	}

	header := uitable.New()
	header.AddRow("Document:", obj.Name)
	header.AddRow("Node:", status.Node.ID)
	header.AddRow("Address:", status.Node.Address)
	header.AddRow("Published:", status.Timestamp.Format(time.RFC3339))
	header.AddRow("Cycle:", fmt.Sprintf("%d (%s)", status.Cycle, status.CycleID))
	header.AddRow("Pinned:", len(status.Pinned))
	fmt.Fprintln(w, header)
	fmt.Fprintln(w)

	table := uitable.New()
	table.MaxColWidth = previewWidth
	table.AddRow("ID", "CLASS", "NAME", "SIZE", "DETAIL")
	for _, rc := range status.Resolved {
		detail := rc.Preview
		if rc.Failed() {
			detail = rc.Error
		}
		table.AddRow(rc.ID, rc.Class, rc.Name, rc.Size, detail)
	}
	fmt.Fprintln(w, table)
	return nil
}

type handleLookup interface {
	Latest(ctx context.Context, node string) (*sink.Handle, error)
}

func latest(ctx context.Context, bucket handleLookup, s store.Store, node string, w io.Writer) error {
	h, err := bucket.Latest(ctx, node)
	if err != nil {
		return fmt.Errorf("look up latest status of %s: %w", node, err)
	}
	id, err := store.ParseContentID(h.CID)
	if err != nil {
		return err
	}
	return inspect(ctx, s, id, w)
}

// pins prints the node identity followed by one pinned id per line.
func pins(ctx context.Context, s store.Store, w io.Writer) error {
	ident, err := s.NodeIdentity(ctx)
	if err != nil {
		return err
	}
	ids, err := s.ListPinned(ctx)
	if err != nil {
		return err
	}

	header := uitable.New()
	header.AddRow("Node:", ident.ID)
	header.AddRow("Agent:", ident.AgentVersion)
	header.AddRow("Pinned:", len(ids))
	fmt.Fprintln(w, header)
	fmt.Fprintln(w)
	for _, id := range ids {
		fmt.Fprintln(w, id)
	}
	return nil
}

func history(path string, w io.Writer) error {
	handles, err := sink.ReadIDFile(path)
	if err != nil {
		return err
	}

	table := uitable.New()
	table.AddRow("CID", "NAME", "PUBLISHED")
	for _, h := range handles {
		table.AddRow(h.CID, h.Name, h.Timestamp.Local().Format(time.DateTime))
	}
	fmt.Fprintln(w, table)
	return nil
}
