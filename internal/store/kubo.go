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

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/ipfs/boxo/files"
	shell "github.com/ipfs/go-ipfs-api"

	"github.com/r1fs-io/r1fs-agent/pkg/log"
)

// unixfs link types reported by ls.
const (
	linkTypeRaw  = 0
	linkTypeFile = 2
)

// callKind decides how a daemon-side failure is classified.
type callKind int

const (
	// kindControl covers identity, listing and swarm management calls.
	kindControl callKind = iota
	// kindResolve covers calls that must locate content: pin, ls, cat.
	kindResolve
	// kindWrite covers add.
	kindWrite
)

var (
	_ Store       = (*KuboClient)(nil)
	_ PeerCounter = (*KuboClient)(nil)
)

// KuboClient talks to a Kubo-compatible daemon over its RPC API.
type KuboClient struct {
	endpoint   string
	client     *http.Client
	sh         *shell.Shell
	timeout    time.Duration
	maxAddSize int64
	log        log.Logger
}

// KuboOption customizes a KuboClient.
type KuboOption func(*KuboClient)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) KuboOption {
	return func(c *KuboClient) { c.client = hc }
}

// WithTimeout bounds calls whose context carries no deadline.
func WithTimeout(d time.Duration) KuboOption {
	return func(c *KuboClient) { c.timeout = d }
}

// WithMaxAddSize rejects larger payloads in Add. Zero disables the limit.
func WithMaxAddSize(n int64) KuboOption {
	return func(c *KuboClient) { c.maxAddSize = n }
}

// WithLogger sets the logger used for call tracing.
func WithLogger(l log.Logger) KuboOption {
	return func(c *KuboClient) { c.log = l }
}

// NewKuboClient creates a client for the daemon API at apiAddr, either an
// http URL such as http://127.0.0.1:5001 or a multiaddr such as
// /ip4/127.0.0.1/tcp/5001.
func NewKuboClient(apiAddr string, opts ...KuboOption) (*KuboClient, error) {
	endpoint, err := apiEndpoint(apiAddr)
	if err != nil {
		return nil, err
	}

	c := &KuboClient{
		endpoint: endpoint,
		client:   &http.Client{},
		timeout:  30 * time.Second,
		log:      log.WithName("store"),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sh = shell.NewShellWithClient(c.endpoint, c.client)

	return c, nil
}

// apiEndpoint normalizes the daemon address to what the shell expects:
// a multiaddr, or a URL without the /api/v0 suffix.
func apiEndpoint(apiAddr string) (string, error) {
	if strings.HasPrefix(apiAddr, "/") {
		return apiAddr, nil
	}

	u, err := url.Parse(strings.TrimSuffix(apiAddr, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid daemon api url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid daemon api url %q: scheme and host are required", apiAddr)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/api/v0"), "/")

	return u.String(), nil
}

type addEntry struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size string `json:"Size"`
}

func (c *KuboClient) Add(ctx context.Context, name string, data []byte) (ContentID, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	if c.maxAddSize > 0 && int64(len(data)) > c.maxAddSize {
		return "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrStoreRejected, len(data), c.maxAddSize)
	}

	dir := files.NewMapDirectory(map[string]files.Node{name: files.NewBytesFile(data)})
	body := files.NewMultiFileReader(dir, true, false)

	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.sh.Request("add").
		Option("wrap-with-directory", true).
		Option("pin", false).
		Option("progress", false).
		Body(body).
		Send(ctx)
	if err != nil {
		return "", transportError(kindWrite, "add", err)
	}
	defer resp.Close()
	if resp.Error != nil {
		return "", replyError(kindWrite, "add", resp.Error)
	}

	var wrapper ContentID
	dec := json.NewDecoder(resp.Output)
	for {
		var e addEntry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", c.classify(kindWrite, "add", err)
		}
		// The wrapping directory is reported last, with an empty name.
		if e.Name == "" {
			wrapper = ContentID(e.Hash)
		}
	}
	if wrapper == "" {
		return "", fmt.Errorf("%w: add reply carried no wrapping directory", ErrStoreUnavailable)
	}

	c.log.Debug("Added content", "cid", wrapper, "name", name, "bytes", len(data))
	return wrapper, nil
}

func (c *KuboClient) Pin(ctx context.Context, id ContentID) error {
	if err := c.exec(ctx, kindResolve, "pin/add", nil, nil, id.String()); err != nil {
		return err
	}

	c.log.Debug("Pinned content", "cid", id)
	return nil
}

type lsLink struct {
	Name string `json:"Name"`
	Hash string `json:"Hash"`
	Size int64  `json:"Size"`
	Type int    `json:"Type"`
}

type lsReply struct {
	Objects []struct {
		Hash  string   `json:"Hash"`
		Links []lsLink `json:"Links"`
	} `json:"Objects"`
}

func (c *KuboClient) Get(ctx context.Context, id ContentID) (*Object, error) {
	var ls lsReply
	if err := c.exec(ctx, kindResolve, "ls", nil, &ls, id.String()); err != nil {
		return nil, err
	}

	if len(ls.Objects) != 1 {
		return nil, fmt.Errorf("%w: %s resolved to %d objects", ErrCorruptWrapping, id, len(ls.Objects))
	}
	links := ls.Objects[0].Links
	if len(links) != 1 {
		return nil, fmt.Errorf("%w: %s holds %d entries, want exactly one file", ErrCorruptWrapping, id, len(links))
	}
	file := links[0]
	if file.Name == "" || (file.Type != linkTypeFile && file.Type != linkTypeRaw) {
		return nil, fmt.Errorf("%w: %s does not wrap a named file", ErrCorruptWrapping, id)
	}

	callCtx, cancel := c.callContext(ctx)
	resp, err := c.sh.Request("cat", file.Hash).Send(callCtx)
	if err != nil {
		cancel()
		return nil, transportError(kindResolve, "cat", err)
	}
	if resp.Error != nil {
		_ = resp.Close()
		cancel()
		return nil, replyError(kindResolve, "cat", resp.Error)
	}

	return &Object{
		ID:   id,
		Name: file.Name,
		Size: file.Size,
		Body: &cancelOnClose{ReadCloser: resp.Output, cancel: cancel},
	}, nil
}

type pinLsReply struct {
	Keys map[string]shell.PinInfo `json:"Keys"`
}

func (c *KuboClient) ListPinned(ctx context.Context) ([]ContentID, error) {
	var reply pinLsReply
	opts := map[string]any{"type": shell.RecursivePin}
	if err := c.exec(ctx, kindControl, "pin/ls", opts, &reply); err != nil {
		return nil, err
	}

	ids := make([]ContentID, 0, len(reply.Keys))
	for k := range reply.Keys {
		ids = append(ids, ContentID(k))
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}

func (c *KuboClient) NodeIdentity(ctx context.Context) (*Identity, error) {
	var reply shell.IdOutput
	if err := c.exec(ctx, kindControl, "id", nil, &reply); err != nil {
		return nil, err
	}
	if reply.ID == "" {
		return nil, fmt.Errorf("%w: daemon reported an empty node id", ErrStoreUnavailable)
	}

	return &Identity{
		ID:           reply.ID,
		Addresses:    reply.Addresses,
		AgentVersion: reply.AgentVersion,
	}, nil
}

// Ping reports whether the daemon API answers.
func (c *KuboClient) Ping(ctx context.Context) error {
	var v struct {
		Version string `json:"Version"`
	}
	return c.exec(ctx, kindControl, "version", nil, &v)
}

// SwarmPeers returns how many peers the daemon is connected to.
func (c *KuboClient) SwarmPeers(ctx context.Context) (int, error) {
	var reply struct {
		Peers []struct {
			Peer string `json:"Peer"`
		} `json:"Peers"`
	}
	if err := c.exec(ctx, kindControl, "swarm/peers", nil, &reply); err != nil {
		return 0, err
	}
	return len(reply.Peers), nil
}

// RemoveBootstrapPeers clears the daemon's bootstrap list so it only talks to the private swarm.
func (c *KuboClient) RemoveBootstrapPeers(ctx context.Context) error {
	var reply struct {
		Peers []string `json:"Peers"`
	}
	if err := c.exec(ctx, kindControl, "bootstrap/rm/all", nil, &reply); err != nil {
		return err
	}
	c.log.Info("Removed bootstrap peers", "count", len(reply.Peers))
	return nil
}

// ConnectPeer dials addr, typically the relay multiaddress.
func (c *KuboClient) ConnectPeer(ctx context.Context, addr string) error {
	var reply struct {
		Strings []string `json:"Strings"`
	}
	if err := c.exec(ctx, kindControl, "swarm/connect", nil, &reply, addr); err != nil {
		return err
	}
	for _, s := range reply.Strings {
		if strings.Contains(strings.ToLower(s), "success") {
			return nil
		}
	}
	return fmt.Errorf("%w: connect %s: %s", ErrStoreUnavailable, addr, strings.Join(reply.Strings, "; "))
}

// exec runs one RPC call and decodes its JSON reply into out, if out is set.
func (c *KuboClient) exec(ctx context.Context, kind callKind, cmd string, opts map[string]any, out any, args ...string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req := c.sh.Request(cmd, args...)
	for k, v := range opts {
		req.Option(k, v)
	}
	if err := req.Exec(ctx, out); err != nil {
		return c.classify(kind, cmd, err)
	}
	return nil
}

func (c *KuboClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

func (c *KuboClient) classify(kind callKind, cmd string, err error) error {
	var de *shell.Error
	if errors.As(err, &de) {
		return replyError(kind, cmd, de)
	}
	var se *json.SyntaxError
	if errors.As(err, &se) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: decode %s reply: %v", ErrStoreUnavailable, cmd, err)
	}
	return transportError(kind, cmd, err)
}

func transportError(kind callKind, cmd string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", cmd, err)
	case errors.Is(err, context.DeadlineExceeded) && kind == kindResolve:
		// The daemon is up but could not locate the content in time.
		return fmt.Errorf("%w: %s: not resolvable before deadline", ErrNotFound, cmd)
	default:
		return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, cmd, err)
	}
}

// The shell reports HTTP 404 and replies it cannot decode with these messages.
const (
	msgCommandNotFound = "command not found"
	msgUnknownEncoding = "unknown ipfs-shell error encoding"
)

func replyError(kind callKind, cmd string, de *shell.Error) error {
	msg := strings.TrimSpace(de.Message)

	// Without a daemon verdict we are not talking to a working RPC endpoint.
	if msg == msgCommandNotFound || strings.HasPrefix(msg, msgUnknownEncoding) {
		return fmt.Errorf("%w: %s: %s", ErrStoreUnavailable, cmd, msg)
	}

	switch kind {
	case kindResolve:
		return fmt.Errorf("%w: %s: %s", ErrNotFound, cmd, msg)
	case kindWrite:
		return fmt.Errorf("%w: %s: %s", ErrStoreRejected, cmd, msg)
	default:
		return fmt.Errorf("%w: %s: %s", ErrStoreUnavailable, cmd, msg)
	}
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelOnClose) Close() error {
	err := r.ReadCloser.Close()
	r.cancel()
	return err
}
