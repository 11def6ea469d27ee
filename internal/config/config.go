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

// Package config loads configuration from config.yaml and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// GatewayConfig describes the chat gateway used for group-info lookups.
type GatewayConfig struct {
	BaseURL       string
	Instance      string
	APIKey        string
	TokenURL      string // OAuth2 client-credentials; empty = API key auth
	ClientID      string
	ClientSecret  string
	Scopes        []string
	RatePerSecond float64
	LookupTimeout time.Duration
}

// Config holds all configuration for the ingestion service.
type Config struct {
	Path string

	// Storage
	DatabaseURL string

	// Redis
	RedisURL     string
	AlertsQueue  string
	OutcomeQueue string
	RedisDedup   bool
	DedupTTL     time.Duration

	// Server
	Port     int
	LogLevel string

	Gateway GatewayConfig

	// Identity
	GroupKeywords   []string
	FallbackGroups  map[string]string
	RefreshInterval time.Duration

	// Extraction
	DefaultCurrency string
	ReferenceFile   string
	EnrichTimeout   time.Duration

	StoreListingsForRequests bool

	// Runtime is the initial hot-reloadable portion.
	Runtime Runtime
}

// Runtime is the part of the configuration the pipeline consults on every
// message. It is published through a Holder as immutable snapshots.
type Runtime struct {
	Paused            bool
	WhitelistedGroups string
	InstanceID        string
	AutoAdopt         bool
}

// rawConfig mirrors the YAML structure for unmarshalling.
type rawConfig struct {
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Redis struct {
		URL    string `yaml:"url"`
		Queues struct {
			Alerts   string `yaml:"alerts"`
			Outcomes string `yaml:"outcomes"`
		} `yaml:"queues"`
		Dedup bool   `yaml:"dedup"`
		TTL   string `yaml:"dedup_ttl"`
	} `yaml:"redis"`
	Gateway struct {
		BaseURL       string   `yaml:"base_url"`
		Instance      string   `yaml:"instance"`
		APIKey        string   `yaml:"api_key"`
		TokenURL      string   `yaml:"token_url"`
		ClientID      string   `yaml:"client_id"`
		ClientSecret  string   `yaml:"client_secret"`
		Scopes        []string `yaml:"scopes"`
		RatePerSecond float64  `yaml:"rate_per_second"`
		LookupTimeout string   `yaml:"lookup_timeout"`
	} `yaml:"gateway"`
	Identity struct {
		GroupKeywords   []string          `yaml:"group_keywords"`
		FallbackGroups  map[string]string `yaml:"fallback_groups"`
		RefreshInterval string            `yaml:"refresh_interval"`
	} `yaml:"identity"`
	Extract struct {
		DefaultCurrency string `yaml:"default_currency"`
		ReferenceFile   string `yaml:"reference_file"`
		EnrichTimeout   string `yaml:"enrich_timeout"`
	} `yaml:"extract"`
	Pipeline struct {
		StoreListingsForRequests bool   `yaml:"store_listings_for_requests"`
		Paused                   bool   `yaml:"paused"`
		WhitelistedGroups        string `yaml:"whitelisted_groups"`
	} `yaml:"pipeline"`
	Instance struct {
		ID        string `yaml:"id"`
		AutoAdopt bool   `yaml:"auto_adopt"`
	} `yaml:"instance"`
}

// Load reads configuration from config.yaml (with env var expansion) and
// environment variables for non-YAML settings. A missing config file is
// not an error; every setting has an environment fallback.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	configPath := envOrDefault("CONFIG_PATH", "/app/config/config.yaml")

	var raw rawConfig
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		// Expand ${VAR} references in the YAML
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	case os.IsNotExist(err):
		slog.Warn("config file not found, using environment only", "path", configPath)
	default:
		return nil, fmt.Errorf("read config file %s: %w", configPath, err)
	}

	cfg := &Config{
		Path:         configPath,
		DatabaseURL:  firstNonEmpty(raw.Database.URL, envOrDefault("DATABASE_URL", "postgres://localhost:5432/watchfeed")),
		RedisURL:     firstNonEmpty(raw.Redis.URL, envOrDefault("REDIS_URL", "redis://localhost:6379/0")),
		AlertsQueue:  firstNonEmpty(raw.Redis.Queues.Alerts, envOrDefault("ALERTS_QUEUE", "alerts")),
		OutcomeQueue: firstNonEmpty(raw.Redis.Queues.Outcomes, envOrDefault("OUTCOMES_QUEUE", "outcomes")),
		RedisDedup:   raw.Redis.Dedup || envOrDefaultBool("REDIS_DEDUP", false),
		DedupTTL:     durationOr(raw.Redis.TTL, envOrDefaultDuration("DEDUP_TTL", 24*time.Hour)),
		Port:         envOrDefaultInt("PORT", 8080),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),

		Gateway: GatewayConfig{
			BaseURL:       strings.TrimRight(firstNonEmpty(raw.Gateway.BaseURL, os.Getenv("GATEWAY_URL")), "/"),
			Instance:      firstNonEmpty(raw.Gateway.Instance, raw.Instance.ID, os.Getenv("INSTANCE_ID")),
			APIKey:        firstNonEmpty(raw.Gateway.APIKey, os.Getenv("GATEWAY_API_KEY")),
			TokenURL:      firstNonEmpty(raw.Gateway.TokenURL, os.Getenv("GATEWAY_TOKEN_URL")),
			ClientID:      firstNonEmpty(raw.Gateway.ClientID, os.Getenv("GATEWAY_CLIENT_ID")),
			ClientSecret:  firstNonEmpty(raw.Gateway.ClientSecret, os.Getenv("GATEWAY_CLIENT_SECRET")),
			Scopes:        raw.Gateway.Scopes,
			RatePerSecond: raw.Gateway.RatePerSecond,
			LookupTimeout: durationOr(raw.Gateway.LookupTimeout, envOrDefaultDuration("GATEWAY_LOOKUP_TIMEOUT", 3*time.Second)),
		},

		GroupKeywords:   raw.Identity.GroupKeywords,
		FallbackGroups:  raw.Identity.FallbackGroups,
		RefreshInterval: durationOr(raw.Identity.RefreshInterval, envOrDefaultDuration("GROUP_REFRESH_INTERVAL", 15*time.Minute)),

		DefaultCurrency: strings.ToUpper(firstNonEmpty(raw.Extract.DefaultCurrency, envOrDefault("DEFAULT_CURRENCY", "HKD"))),
		ReferenceFile:   firstNonEmpty(raw.Extract.ReferenceFile, os.Getenv("REFERENCE_FILE")),
		EnrichTimeout:   durationOr(raw.Extract.EnrichTimeout, envOrDefaultDuration("ENRICH_TIMEOUT", 2*time.Second)),

		StoreListingsForRequests: raw.Pipeline.StoreListingsForRequests,

		Runtime: Runtime{
			Paused:            raw.Pipeline.Paused || envOrDefaultBool("PAUSED", false),
			WhitelistedGroups: firstNonEmpty(raw.Pipeline.WhitelistedGroups, os.Getenv("WHITELISTED_GROUPS")),
			InstanceID:        firstNonEmpty(raw.Instance.ID, os.Getenv("INSTANCE_ID")),
			AutoAdopt:         raw.Instance.AutoAdopt || envOrDefaultBool("INSTANCE_AUTO_ADOPT", false),
		},
	}

	if cfg.Gateway.RatePerSecond <= 0 {
		cfg.Gateway.RatePerSecond = 2
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envOrDefaultBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envOrDefaultDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func durationOr(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
