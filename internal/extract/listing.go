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

package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bcem/watchfeed/internal/models"
)

// Reference backfills brand and family for a pid. A miss returns nil, nil.
type Reference interface {
	Lookup(ctx context.Context, pid string) (*models.WatchReference, error)
}

// followWindow is how many subsequent lines a bare pid line may borrow its
// price or year from.
const followWindow = 5

var mediaLineRe = regexp.MustCompile(`(?i)\b(?:image|photo|video|audio|gif|sticker|document|media)s? omitted\b|attached:`)

var listingMatchers = []matcher{
	pidMatcher,
	yearMatcher,
	priceMatcher,
	monthMatcher,
	conditionMatcher,
}

// ListingConfig configures a ListingExtractor.
type ListingConfig struct {
	DefaultCurrency string
	Reference       Reference // optional
	EnrichTimeout   time.Duration
}

// ListingExtractor finds for-sale listings in message text.
type ListingExtractor struct {
	defaultCurrency string
	ref             Reference
	enrichTimeout   time.Duration
}

// NewListingExtractor creates a listing extractor.
func NewListingExtractor(cfg ListingConfig) *ListingExtractor {
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "HKD"
	}
	if cfg.EnrichTimeout <= 0 {
		cfg.EnrichTimeout = 2 * time.Second
	}
	return &ListingExtractor{
		defaultCurrency: strings.ToUpper(cfg.DefaultCurrency),
		ref:             cfg.Reference,
		enrichTimeout:   cfg.EnrichTimeout,
	}
}

// Lines splits text into trimmed, non-empty lines, dropping media
// placeholders.
func Lines(text string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || mediaLineRe.MatchString(l) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// Segments splits a line on "//".
func Segments(l string) []string {
	var out []string
	for _, p := range strings.Split(l, "//") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Extract returns one listing per qualifying segment of text. The caller
// stamps message provenance onto the results.
func (x *ListingExtractor) Extract(ctx context.Context, text string) []models.WatchListing {
	lines := Lines(text)
	var out []models.WatchListing
	seen := make(map[string]bool)

	for i, ln := range lines {
		for _, seg := range Segments(ln) {
			l, r := run(seg, listingMatchers)
			if r.pid == "" {
				continue
			}
			raw := seg
			if !r.hasPriceOrYear() {
				if follow, ok := x.follow(lines, i); ok {
					raw = seg + " // " + follow
					l, r = run(raw, listingMatchers)
				}
			}
			if seen[raw] {
				continue
			}
			seen[raw] = true
			out = append(out, x.build(ctx, l, r, raw))
		}
	}

	if len(out) == 0 {
		slog.Debug("no listings in message", "lines", len(lines))
	}
	return out
}

// follow returns the first of the next few lines that carries a price or
// a year, stopping at the next line that has its own reference code.
func (x *ListingExtractor) follow(lines []string, i int) (string, bool) {
	for j := i + 1; j < len(lines) && j <= i+followWindow; j++ {
		if ContainsPID(lines[j]) {
			return "", false
		}
		_, r := run(lines[j], []matcher{yearMatcher, priceMatcher})
		if r.hasPriceOrYear() {
			return lines[j], true
		}
	}
	return "", false
}

func (x *ListingExtractor) build(ctx context.Context, l *line, r *result, raw string) models.WatchListing {
	lst := models.WatchListing{PID: r.pid, RawLine: raw}

	if r.price != nil {
		amount := r.price.amount
		lst.Price = &amount
		cur := r.price.currency
		if cur == "" {
			cur = findCurrency(l)
		}
		if cur == "" {
			cur = x.defaultCurrency
		}
		lst.Currency = &cur
	} else {
		findCurrency(l) // keep stray currency tokens out of the variant
	}
	if r.year != 0 {
		y := r.year
		lst.Year = &y
	}
	lst.Month = optional(r.month)
	lst.Condition = optional(r.condition)
	lst.Variant = optional(cleanVariant(l.remainder()))

	lst.Brand, lst.Family = x.enrich(ctx, r.pid)
	return lst
}

func (x *ListingExtractor) enrich(ctx context.Context, pid string) (brand, family *string) {
	return enrich(ctx, x.ref, x.enrichTimeout, pid)
}

func enrich(ctx context.Context, ref Reference, timeout time.Duration, pid string) (brand, family *string) {
	if ref == nil {
		return nil, nil
	}
	ectx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	got, err := ref.Lookup(ectx, pid)
	if err != nil {
		slog.Warn("reference lookup failed", "pid", pid, "error", err)
		return nil, nil
	}
	if got == nil {
		return nil, nil
	}
	return optional(got.Brand), optional(got.Family)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
