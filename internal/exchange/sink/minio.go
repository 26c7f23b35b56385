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

package sink

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/r1fs-io/r1fs-agent/internal/exchange"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

var _ exchange.Sink = (*S3)(nil)

// S3 mirrors status handles into a bucket:
// <prefix>/<node>/latest and <prefix>/<node>/<cid>.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	log    log.Logger
}

// NewS3 creates the sink from S3 options.
func NewS3(opts *options.S3Options) (*S3, error) {
	minioOpts := &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKeyID, opts.SecretAccessKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	}
	if opts.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		minioOpts.Transport = transport
	}

	client, err := minio.New(opts.Endpoint, minioOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &S3{
		client: client,
		bucket: opts.BucketName,
		prefix: opts.Prefix,
		log:    log.WithName("s3"),
	}, nil
}

func (s *S3) Name() string { return "s3" }

// EnsureBucket creates the bucket if it does not exist.
func (s *S3) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		s.log.Info("Bucket does not exist, creating...", "bucket", s.bucket)
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *S3) Record(ctx context.Context, pub *exchange.Publication) error {
	h := HandleFor(pub)
	body, err := json.Marshal(h)
	if err != nil {
		return err
	}

	for _, key := range []string{s.key(h.Node, h.CID), s.key(h.Node, "latest")} {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
			minio.PutObjectOptions{ContentType: "application/json"})
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
	}

	s.log.Debug("Mirrored status handle", "bucket", s.bucket, "node", h.Node, "cid", h.CID)
	return nil
}

// Latest returns the most recent handle mirrored for node.
func (s *S3) Latest(ctx context.Context, node string) (*Handle, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(node, "latest"), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	var h Handle
	if err := json.NewDecoder(obj).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode latest handle of %s: %w", node, err)
	}
	return &h, nil
}

func (s *S3) key(node, leaf string) string {
	return path.Join(s.prefix, node, leaf)
}
