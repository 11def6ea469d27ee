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

package chatexport

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bcem/watchfeed/internal/models"
	"github.com/bcem/watchfeed/internal/pipeline"
)

// MessageProcessor runs a normalized message through the pipeline.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg *models.InboundMessage) pipeline.Result
}

// ImportResult summarises a completed import run.
type ImportResult struct {
	Files        []FileResult
	Messages     int
	Listings     int
	Requirements int
	Duplicates   int
	Errors       int
	Elapsed      time.Duration
}

// FileResult tracks per-transcript progress.
type FileResult struct {
	Chat         string
	Path         string
	Messages     int
	Processed    int
	Duplicates   int
	Skipped      int
	Listings     int
	Requirements int
	Errors       int
}

// Importer feeds transcript files through a pipeline.
type Importer struct {
	processor   MessageProcessor
	concurrency int
	location    *time.Location
}

// ImporterConfig holds dependencies for the importer.
type ImporterConfig struct {
	Processor MessageProcessor
	// Concurrency is the number of files parsed at once. Default 4.
	Concurrency int
	// Location interprets header timestamps. Default UTC.
	Location *time.Location
}

// NewImporter creates a transcript importer.
func NewImporter(cfg ImporterConfig) *Importer {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Importer{
		processor:   cfg.Processor,
		concurrency: cfg.Concurrency,
		location:    cfg.Location,
	}
}

// ImportDir imports every *.txt transcript in dir.
func (im *Importer) ImportDir(ctx context.Context, dir string) (*ImportResult, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, fmt.Errorf("list transcripts in %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no .txt transcripts found in %s", dir)
	}
	return im.ImportFiles(ctx, paths)
}

// ImportFiles imports the given transcripts. A file that cannot be read is
// counted as an error and does not stop the others.
func (im *Importer) ImportFiles(ctx context.Context, paths []string) (*ImportResult, error) {
	start := time.Now()
	slog.Info("starting transcript import", "files", len(paths))

	var (
		mu     sync.Mutex
		result = &ImportResult{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(im.concurrency)
	for _, path := range paths {
		g.Go(func() error {
			fr, err := im.importFile(gctx, path)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				slog.Error("transcript import failed", "path", path, "error", err)
				fr.Errors++
			}

			mu.Lock()
			defer mu.Unlock()
			result.Files = append(result.Files, fr)
			result.Messages += fr.Messages
			result.Listings += fr.Listings
			result.Requirements += fr.Requirements
			result.Duplicates += fr.Duplicates
			result.Errors += fr.Errors
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Files, func(i, j int) bool { return result.Files[i].Path < result.Files[j].Path })
	result.Elapsed = time.Since(start)

	slog.Info("transcript import complete",
		"files", len(result.Files),
		"messages", result.Messages,
		"listings", result.Listings,
		"requirements", result.Requirements,
		"duplicates", result.Duplicates,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
	return result, nil
}

func (im *Importer) importFile(ctx context.Context, path string) (FileResult, error) {
	fr := FileResult{Chat: ChatName(path), Path: path}

	f, err := os.Open(path)
	if err != nil {
		return fr, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	entries, err := Parse(f, im.location)
	if err != nil {
		return fr, err
	}
	fr.Messages = len(entries)

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return fr, err
		}
		msg := Message(fr.Chat, e)
		if msg.RawText == "" {
			fr.Skipped++
			continue
		}

		res := im.processor.ProcessMessage(ctx, msg)
		switch res.Disposition {
		case pipeline.Processed:
			fr.Processed++
			if o := res.Outcome; o != nil {
				fr.Listings += o.Listings
				fr.Requirements += o.Requirements
				fr.Errors += o.Failed
			}
		case pipeline.Duplicate:
			fr.Duplicates++
		default:
			fr.Skipped++
		}
	}

	slog.Info("transcript imported",
		"chat", fr.Chat,
		"messages", fr.Messages,
		"listings", fr.Listings,
		"requirements", fr.Requirements,
		"duplicates", fr.Duplicates,
	)
	return fr, nil
}
