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
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/r1fs-io/r1fs-agent/internal/pkg/metrics"
	"github.com/r1fs-io/r1fs-agent/pkg/options"
)

type fakeProbe struct {
	ready  bool
	status any
}

func (p *fakeProbe) Ready() bool { return p.ready }
func (p *fakeProbe) Status() any { return p.status }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestProbes(t *testing.T) {
	probe := &fakeProbe{}
	h := NewServer(options.NewHttpOptions(), probe).Handler()

	if rec := get(t, h, "/healthz"); rec.Code != http.StatusOK {
		t.Errorf("/healthz = %d", rec.Code)
	}
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz before bootstrap = %d", rec.Code)
	}
	if rec := get(t, h, "/status"); rec.Code != http.StatusNotFound {
		t.Errorf("/status before publishing = %d", rec.Code)
	}

	probe.ready = true
	probe.status = map[string]string{"cid": "QmStatus"}
	if rec := get(t, h, "/readyz"); rec.Code != http.StatusOK {
		t.Errorf("/readyz after bootstrap = %d", rec.Code)
	}
	rec := get(t, h, "/status")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "QmStatus") {
		t.Errorf("/status = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	metrics.CyclesTotal.WithLabelValues(metrics.ResultPublished).Inc()

	rec := get(t, NewServer(options.NewHttpOptions(), &fakeProbe{}).Handler(), "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("/metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "r1fs_") {
		t.Errorf("agent metrics missing from /metrics")
	}
}
