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

package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/bcem/watchfeed/internal/alert"
	"github.com/bcem/watchfeed/internal/chatexport"
	"github.com/bcem/watchfeed/internal/config"
	"github.com/bcem/watchfeed/internal/dedup"
	"github.com/bcem/watchfeed/internal/extract"
	"github.com/bcem/watchfeed/internal/identity"
	"github.com/bcem/watchfeed/internal/pipeline"
	"github.com/bcem/watchfeed/internal/queue"
	"github.com/bcem/watchfeed/internal/reference"
)

func chatsCmd() *cobra.Command {
	var (
		dir         string
		concurrency int
		timezone    string
		alerts      bool
	)

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Import exported chat transcripts (*.txt) through the pipeline",
		Long: `Import exported chat transcripts through the ingestion pipeline.

Each file is one conversation, named after the file. Listings and
requirements are stored exactly as for live webhook messages; senders are
recorded as historical contacts. Re-running an import skips messages that
were already processed when Redis dedup is enabled.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			loc, err := time.LoadLocation(timezone)
			if err != nil {
				return fmt.Errorf("invalid --timezone %q: %w", timezone, err)
			}

			cfg, pool, db, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			checker := dedup.Chain{dedup.NewWindow(dedup.DefaultCapacity, dedup.DefaultCompaction)}
			var publisher *queue.Publisher
			if cfg.RedisDedup || alerts {
				opt, err := redis.ParseURL(cfg.RedisURL)
				if err != nil {
					return fmt.Errorf("invalid REDIS_URL: %w", err)
				}
				rdb := redis.NewClient(opt)
				defer rdb.Close()
				if cfg.RedisDedup {
					checker = append(checker, dedup.NewRedisFilter(rdb, cfg.DedupTTL))
				}
				publisher = queue.NewPublisher(rdb, cfg.AlertsQueue, "")
				if err := publisher.Ping(ctx); err != nil {
					return fmt.Errorf("connect to Redis: %w", err)
				}
			}

			var ref extract.Reference = db
			if cfg.ReferenceFile != "" {
				table, err := reference.Load(cfg.ReferenceFile)
				if err != nil {
					return err
				}
				ref = table
			}

			contacts, err := db.LoadContacts(ctx)
			if err != nil {
				return err
			}
			groups, err := db.LoadGroups(ctx)
			if err != nil {
				return err
			}
			idStore := identity.NewStore()
			idStore.Seed(contacts, groups)

			pcfg := pipeline.Config{
				// Transcripts are not subject to the live gates.
				Holder: config.NewHolder(config.Runtime{}),
				Dedup:  checker,
				Resolver: identity.NewResolver(identity.ResolverConfig{
					Store:      idStore,
					Vocabulary: identity.NewVocabulary(cfg.GroupKeywords),
					Fallback:   cfg.FallbackGroups,
					Mirror:     db,
				}),
				Listings: extract.NewListingExtractor(extract.ListingConfig{
					DefaultCurrency: cfg.DefaultCurrency,
					Reference:       ref,
					EnrichTimeout:   cfg.EnrichTimeout,
				}),
				Requirements:             extract.NewRequirementExtractor(ref, cfg.EnrichTimeout),
				Sink:                     db,
				StoreListingsForRequests: cfg.StoreListingsForRequests,
			}
			if alerts {
				pcfg.Matcher = alert.NewMatcher(db)
				pcfg.Notifier = publisher
			}

			importer := chatexport.NewImporter(chatexport.ImporterConfig{
				Processor:   pipeline.New(pcfg),
				Concurrency: concurrency,
				Location:    loc,
			})
			result, err := importer.ImportDir(ctx, dir)
			if err != nil {
				return err
			}

			for _, fr := range result.Files {
				fmt.Printf("  %-40s messages=%d listings=%d requirements=%d duplicates=%d errors=%d\n",
					fr.Chat, fr.Messages, fr.Listings, fr.Requirements, fr.Duplicates, fr.Errors)
			}
			fmt.Printf("\nImport complete: %d files, %d listings, %d requirements, %d errors in %s\n",
				len(result.Files), result.Listings, result.Requirements, result.Errors, result.Elapsed.Round(time.Millisecond))

			if result.Errors > 0 {
				slog.Warn("import finished with errors", "errors", result.Errors)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "directory of exported chat .txt files (required)")
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 4, "files processed at once")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "IANA zone the export timestamps were written in")
	cmd.Flags().BoolVar(&alerts, "alerts", false, "deliver alert matches for imported listings")
	_ = cmd.MarkFlagRequired("dir")

	return cmd
}
