// Copyright (c) 2026 John Earle
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

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/bcem/watchfeed/internal/identity"
	"github.com/bcem/watchfeed/internal/pipeline"
)

type fakeProcessor struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeProcessor) Process(_ context.Context, body []byte) pipeline.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bodies = append(f.bodies, string(body))
	return pipeline.Result{Disposition: pipeline.Processed}
}

func (f *fakeProcessor) Status() pipeline.Status {
	return pipeline.Status{Liveness: identity.StateActive, ConfigVersion: 3}
}

func (f *fakeProcessor) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.bodies...)
}

// TestServeWebhook_Acks verifies every POST path acks with "received" and
// reaches the processor.
func TestServeWebhook_Acks(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "root", path: "/webhook", body: `{"event":"messages.upsert"}`},
		{name: "event path", path: "/webhook/messages-upsert", body: `{"event":"messages.upsert"}`},
		{name: "invalid json", path: "/webhook", body: "not json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fp := &fakeProcessor{}
			h := NewHandler(fp)
			mux := Routes(h)

			req := httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body))
			rr := httptest.NewRecorder()
			mux.ServeHTTP(rr, req)
			h.Wait()

			if rr.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
			}
			var resp map[string]string
			if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode response: %v", err)
			}
			if resp["status"] != "received" {
				t.Errorf("body status = %q, want received", resp["status"])
			}
			if got := fp.received(); len(got) != 1 || got[0] != tt.body {
				t.Errorf("processed = %q", got)
			}
		})
	}
}

// TestServeWebhook_NonPostReturnsOK verifies GET requests return 200 without
// processing.
func TestServeWebhook_NonPostReturnsOK(t *testing.T) {
	fp := &fakeProcessor{}
	h := NewHandler(fp)

	req := httptest.NewRequest(http.MethodGet, "/webhook", nil)
	rr := httptest.NewRecorder()
	h.ServeWebhook(rr, req)
	h.Wait()

	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if got := fp.received(); len(got) != 0 {
		t.Errorf("processed %d bodies, want 0", len(got))
	}
}

func TestServeStatus(t *testing.T) {
	h := NewHandler(&fakeProcessor{})
	mux := Routes(h)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var st pipeline.Status
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Liveness != identity.StateActive || st.ConfigVersion != 3 {
		t.Errorf("status = %+v", st)
	}
}

// TestServeWebhook_Pipeline runs a delivery through a real pipeline.
func TestServeWebhook_Pipeline(t *testing.T) {
	p := pipeline.New(pipeline.Config{})
	h := NewHandler(p)
	mux := Routes(h)

	body := `{"event":"messages.upsert","instance":"shop-1","data":{
		"key":{"remoteJid":"120363041234567890@g.us","fromMe":false,"id":"M1","participant":"85291234567@s.whatsapp.net"},
		"pushName":"Bob","message":{"conversation":"126710BLNR 2023 145000"},"messageTimestamp":1751630400}}`

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(body))
	mux.ServeHTTP(httptest.NewRecorder(), req)
	h.Wait()

	st := p.Status()
	if len(st.RecentOutcomes) != 1 {
		t.Fatalf("recent outcomes = %d, want 1", len(st.RecentOutcomes))
	}
	if st.RecentOutcomes[0].Listings != 1 {
		t.Errorf("listings = %d, want 1", st.RecentOutcomes[0].Listings)
	}
	if st.Liveness != identity.StateActive {
		t.Errorf("liveness = %q", st.Liveness)
	}
}

func TestServeHealth(t *testing.T) {
	tests := []struct {
		name  string
		check func(context.Context) error
		want  int
	}{
		{name: "no check", want: http.StatusOK},
		{name: "healthy", check: func(context.Context) error { return nil }, want: http.StatusOK},
		{name: "redis down", check: func(context.Context) error { return errors.New("redis unhealthy") }, want: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(&fakeProcessor{})
			if tt.check != nil {
				h.SetHealthCheck(tt.check)
			}
			rr := httptest.NewRecorder()
			Routes(h).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
