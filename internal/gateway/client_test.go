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

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bcem/watchfeed/internal/config"
)

// TestGroupName verifies the request shape and subject parsing.
func TestGroupName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/group/findGroupInfos/dealer-1" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("groupJid"); got != "120363@g.us" {
			t.Errorf("groupJid = %q", got)
		}
		if got := r.Header.Get("apikey"); got != "secret" {
			t.Errorf("apikey header = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"120363@g.us","subject":"  HK Watch Traders "}`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), config.GatewayConfig{
		BaseURL:  srv.URL + "/",
		Instance: "dealer-1",
		APIKey:   "secret",
	})

	name, err := c.GroupName(context.Background(), "120363@g.us")
	if err != nil {
		t.Fatalf("GroupName: %v", err)
	}
	if name != "HK Watch Traders" {
		t.Errorf("name = %q", name)
	}
}

// TestGroupName_InstanceSource verifies lookups follow the adopted instance.
func TestGroupName_InstanceSource(t *testing.T) {
	var gotPath atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath.Store(r.URL.Path)
		w.Write([]byte(`{"subject":"Group"}`))
	}))
	defer srv.Close()

	c := NewClient(context.Background(), config.GatewayConfig{BaseURL: srv.URL, Instance: "configured", RatePerSecond: 100})
	var current atomic.Value
	current.Store("")
	c.SetInstanceSource(func() string { return current.Load().(string) })

	tests := []struct {
		adopted string
		want    string
	}{
		{"", "/group/findGroupInfos/configured"},
		{"dealer-2", "/group/findGroupInfos/dealer-2"},
		{"dealer-3", "/group/findGroupInfos/dealer-3"},
	}
	for _, tt := range tests {
		current.Store(tt.adopted)
		if _, err := c.GroupName(context.Background(), "g@g.us"); err != nil {
			t.Fatalf("GroupName(%q): %v", tt.adopted, err)
		}
		if got := gotPath.Load(); got != tt.want {
			t.Errorf("adopted %q: path = %v, want %s", tt.adopted, got, tt.want)
		}
	}
}

// TestGroupName_Errors verifies status handling.
func TestGroupName_Errors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr error
	}{
		{"not found", http.StatusNotFound, ErrGroupNotFound},
		{"server error", http.StatusBadGateway, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c := NewClient(context.Background(), config.GatewayConfig{BaseURL: srv.URL, Instance: "i"})
			_, err := c.GroupName(context.Background(), "g@g.us")
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

// TestGroupName_RespectsContext verifies a cancelled lookup returns promptly.
func TestGroupName_RespectsContext(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(context.Background(), config.GatewayConfig{BaseURL: srv.URL, Instance: "i"})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if _, err := c.GroupName(ctx, "g@g.us"); err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("lookup took %v, want bounded by context", elapsed)
	}
}

// TestGroupName_OAuth verifies client-credentials tokens are attached.
func TestGroupName_OAuth(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"tok-123","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/group/findGroupInfos/i", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization = %q", got)
		}
		if r.Header.Get("apikey") != "" {
			t.Error("apikey should not be sent with oauth")
		}
		w.Write([]byte(`{"name":"Patek Club"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(context.Background(), config.GatewayConfig{
		BaseURL:      srv.URL,
		Instance:     "i",
		APIKey:       "ignored",
		TokenURL:     srv.URL + "/token",
		ClientID:     "id",
		ClientSecret: "secret",
	})
	name, err := c.GroupName(context.Background(), "g@g.us")
	if err != nil {
		t.Fatalf("GroupName: %v", err)
	}
	if name != "Patek Club" {
		t.Errorf("name = %q", name)
	}
}
