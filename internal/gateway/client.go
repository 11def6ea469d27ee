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

// Package gateway talks to the chat gateway's REST API. The pipeline only
// needs one call from it: the authoritative subject of a group.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/bcem/watchfeed/internal/config"
)

// ErrGroupNotFound is returned when the gateway does not know the group.
var ErrGroupNotFound = errors.New("group not found")

// Client fetches group metadata from the gateway.
type Client struct {
	httpClient *http.Client
	baseURL    string
	instance   string
	instanceFn func() string
	apiKey     string
	limiter    *rate.Limiter
}

// NewClient builds a client from gateway config. When a token URL is
// configured requests carry an OAuth2 client-credentials token; otherwise
// the API key is sent in the apikey header.
func NewClient(ctx context.Context, cfg config.GatewayConfig) *Client {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	apiKey := cfg.APIKey
	if cfg.TokenURL != "" {
		creds := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		httpClient = creds.Client(ctx)
		apiKey = ""
	}

	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 2
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		instance:   cfg.Instance,
		apiKey:     apiKey,
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// SetInstanceSource makes lookups use the instance reported by fn, such as
// the one adopted from inbound webhooks. The configured instance is used
// while fn returns "".
func (c *Client) SetInstanceSource(fn func() string) {
	c.instanceFn = fn
}

func (c *Client) currentInstance() string {
	if c.instanceFn != nil {
		if id := c.instanceFn(); id != "" {
			return id
		}
	}
	return c.instance
}

type groupInfo struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Name    string `json:"name"`
}

// GroupName returns the group's current subject.
func (c *Client) GroupName(ctx context.Context, address string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit: %w", err)
	}

	u := fmt.Sprintf("%s/group/findGroupInfos/%s?groupJid=%s",
		c.baseURL, url.PathEscape(c.currentInstance()), url.QueryEscape(address))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch group info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		slog.Debug("group unknown to gateway", "group", address)
		return "", ErrGroupNotFound
	}
	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gateway returned HTTP %d for group %s", resp.StatusCode, address)
	}

	var info groupInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return "", fmt.Errorf("decode group info: %w", err)
	}
	name := strings.TrimSpace(info.Subject)
	if name == "" {
		name = strings.TrimSpace(info.Name)
	}
	return name, nil
}
