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

// Watchfeed ingestion service
//
// Entry point for the webhook ingestion service. It:
//  1. Loads configuration from config.yaml, .env and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Seeds the contact and group caches from the Postgres mirror
//  4. Serves the webhook, status and health endpoints
//  5. Runs the periodic group-name refresher
//  6. Reloads the runtime snapshot on SIGHUP
//  7. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/bcem/watchfeed/internal/alert"
	"github.com/bcem/watchfeed/internal/config"
	"github.com/bcem/watchfeed/internal/dedup"
	"github.com/bcem/watchfeed/internal/extract"
	"github.com/bcem/watchfeed/internal/gateway"
	"github.com/bcem/watchfeed/internal/identity"
	"github.com/bcem/watchfeed/internal/pipeline"
	"github.com/bcem/watchfeed/internal/queue"
	"github.com/bcem/watchfeed/internal/reference"
	"github.com/bcem/watchfeed/internal/store"
	"github.com/bcem/watchfeed/internal/webhook"
)

func main() {
	// --- Load Configuration ---
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Structured JSON logging
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("starting watchfeed ingestion service",
		"config", cfg.Path,
		"port", cfg.Port,
		"paused", cfg.Runtime.Paused,
		"instance", cfg.Runtime.InstanceID,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	if err := pgPool.Ping(ctx); err != nil {
		slog.Error("failed to connect to PostgreSQL", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	db, err := store.New(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise store", "error", err)
		os.Exit(1)
	}

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.AlertsQueue, cfg.OutcomeQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Dedup ---
	checker := dedup.Chain{dedup.NewWindow(dedup.DefaultCapacity, dedup.DefaultCompaction)}
	if cfg.RedisDedup {
		checker = append(checker, dedup.NewRedisFilter(rdb, cfg.DedupTTL))
	}

	// --- Identity ---
	idStore := identity.NewStore()
	contacts, err := db.LoadContacts(ctx)
	if err != nil {
		slog.Error("failed to load contacts", "error", err)
		os.Exit(1)
	}
	groups, err := db.LoadGroups(ctx)
	if err != nil {
		slog.Error("failed to load groups", "error", err)
		os.Exit(1)
	}
	idStore.Seed(contacts, groups)
	slog.Info("identity cache seeded", "contacts", len(contacts), "groups", len(groups))

	holder := config.NewHolder(cfg.Runtime)

	resolverCfg := identity.ResolverConfig{
		Store:         idStore,
		Vocabulary:    identity.NewVocabulary(cfg.GroupKeywords),
		Fallback:      cfg.FallbackGroups,
		Mirror:        db,
		LookupTimeout: cfg.Gateway.LookupTimeout,
	}
	if cfg.Gateway.BaseURL != "" {
		directory := gateway.NewClient(ctx, cfg.Gateway)
		directory.SetInstanceSource(func() string { return holder.Current().InstanceID })
		resolverCfg.Directory = directory
		slog.Info("group directory configured", "gateway", cfg.Gateway.BaseURL, "instance", cfg.Gateway.Instance)
	} else {
		slog.Warn("GATEWAY_URL not set, group names will not be looked up")
	}
	resolver := identity.NewResolver(resolverCfg)

	// --- Reference table ---
	var ref extract.Reference = db
	if cfg.ReferenceFile != "" {
		table, err := reference.Load(cfg.ReferenceFile)
		if err != nil {
			slog.Error("failed to load reference file", "path", cfg.ReferenceFile, "error", err)
			os.Exit(1)
		}
		ref = table
		slog.Info("reference table loaded", "path", cfg.ReferenceFile, "rows", table.Len())
	}

	// --- Pipeline ---
	pipe := pipeline.New(pipeline.Config{
		Holder:   holder,
		Dedup:    checker,
		Resolver: resolver,
		Listings: extract.NewListingExtractor(extract.ListingConfig{
			DefaultCurrency: cfg.DefaultCurrency,
			Reference:       ref,
			EnrichTimeout:   cfg.EnrichTimeout,
		}),
		Requirements:             extract.NewRequirementExtractor(ref, cfg.EnrichTimeout),
		Matcher:                  alert.NewMatcher(db),
		Notifier:                 publisher,
		Sink:                     db,
		Outcomes:                 publisher,
		StoreListingsForRequests: cfg.StoreListingsForRequests,
	})

	// --- Webhook server ---
	handler := webhook.NewHandler(pipe)
	handler.SetHealthCheck(func(ctx context.Context) error {
		if err := publisher.Ping(ctx); err != nil {
			return fmt.Errorf("redis unhealthy: %w", err)
		}
		if err := pgPool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres unhealthy: %w", err)
		}
		return nil
	})
	ready, done, err := webhook.Serve(ctx, cfg.Port, handler, 15*time.Second)
	if err != nil {
		slog.Error("failed to start webhook server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Group-name refresher ---
	var refresher *identity.Refresher
	if resolverCfg.Directory != nil {
		refresher = identity.NewRefresher(resolver, cfg.RefreshInterval)
		refresher.Start(ctx)
	}

	// --- Signals ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	for sig := range sigCh {
		if sig == syscall.SIGHUP {
			reload(holder)
			continue
		}
		slog.Info("received shutdown signal", "signal", sig)
		break
	}

	cancel() // Stop all background goroutines
	if refresher != nil {
		refresher.Stop()
	}
	<-done

	slog.Info("ingestion service stopped")
}

// reload publishes a new runtime snapshot from the current configuration.
// An adopted instance survives the reload unless the file names one.
func reload(holder *config.Holder) {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config reload failed, keeping current snapshot", "error", err)
		return
	}
	rt := cfg.Runtime
	if rt.InstanceID == "" {
		rt.InstanceID = holder.Current().InstanceID
	}
	snap := holder.Replace(rt)
	slog.Info("configuration reloaded",
		"config_version", snap.Version,
		"paused", snap.Paused,
		"whitelisted_groups", len(snap.Whitelist),
		"instance", snap.InstanceID,
	)
}
