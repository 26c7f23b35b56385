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

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/r1fs-io/r1fs-agent/internal/pkg/metrics"
	"github.com/r1fs-io/r1fs-agent/pkg/log"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

// Probe exposes the agent state served over HTTP.
type Probe interface {
	// Ready reports whether the bootstrap gate is open.
	Ready() bool
	// Status returns the last published status handle, or nil.
	Status() any
}

// Server serves /healthz, /readyz, /metrics and /status.
type Server struct {
	server  *http.Server
	options *options.HttpOptions
	log     log.Logger
}

func NewServer(opts *options.HttpOptions, probe Probe) *Server {
	r := mux.NewRouter()

	// Basic Liveness Probe
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Ready once the daemon has been bootstrapped into the private swarm.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !probe.Ready() {
			http.Error(w, "waiting for bootstrap artifact", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		st := probe.Status()
		if st == nil {
			http.Error(w, "no status published yet", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(st)
	}).Methods(http.MethodGet)

	return &Server{
		server: &http.Server{
			Addr:    opts.Addr,
			Handler: r,
		},
		options: opts,
		log:     log.WithName("http"),
	}
}

// Handler returns the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start(ctx context.Context) error {
	s.log.Info("Starting HTTP Server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
