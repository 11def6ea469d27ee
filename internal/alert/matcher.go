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

// Package alert evaluates standing pid alerts against new listings.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bcem/watchfeed/internal/models"
)

// Source loads the standing alerts for a pid.
type Source interface {
	AlertsForPID(ctx context.Context, pid string) ([]models.PidAlert, error)
}

// Notifier delivers a match to its target.
type Notifier interface {
	Notify(ctx context.Context, m models.AlertMatch) error
}

// Matcher pairs listings with the alerts they satisfy. Alerts are never
// modified; a listing can satisfy any number of them.
type Matcher struct {
	source  Source
	nowFunc func() time.Time
}

// NewMatcher creates a matcher over an alert source.
func NewMatcher(source Source) *Matcher {
	return &Matcher{source: source, nowFunc: time.Now}
}

// Match returns one AlertMatch per alert the listing satisfies.
func (m *Matcher) Match(ctx context.Context, l models.WatchListing) ([]models.AlertMatch, error) {
	alerts, err := m.source.AlertsForPID(ctx, normalizePID(l.PID))
	if err != nil {
		return nil, fmt.Errorf("load alerts for %s: %w", l.PID, err)
	}
	var out []models.AlertMatch
	now := m.nowFunc().UTC()
	for _, a := range alerts {
		if Satisfies(a, l) {
			out = append(out, models.AlertMatch{Alert: a, Listing: l, MatchedAt: now})
		}
	}
	return out, nil
}

// Satisfies applies the match rules: equal pid ignoring case, alert
// variant contained in the listing variant, price within [min, max]
// inclusive, and identical currency when the alert names one.
func Satisfies(a models.PidAlert, l models.WatchListing) bool {
	if normalizePID(a.PID) != normalizePID(l.PID) {
		return false
	}
	if a.Variant != nil && *a.Variant != "" {
		if l.Variant == nil || !strings.Contains(strings.ToLower(*l.Variant), strings.ToLower(*a.Variant)) {
			return false
		}
	}
	if a.MinPrice != nil || a.MaxPrice != nil {
		if l.Price == nil {
			return false
		}
		if a.MinPrice != nil && l.Price.LessThan(*a.MinPrice) {
			return false
		}
		if a.MaxPrice != nil && l.Price.GreaterThan(*a.MaxPrice) {
			return false
		}
	}
	if a.Currency != nil && *a.Currency != "" {
		if l.Currency == nil || *l.Currency != *a.Currency {
			return false
		}
	}
	return true
}

func normalizePID(pid string) string {
	return strings.ToUpper(strings.TrimSpace(pid))
}

// MemorySource serves alerts from a fixed list.
type MemorySource struct {
	byPID map[string][]models.PidAlert
}

// NewMemorySource indexes alerts by pid.
func NewMemorySource(alerts []models.PidAlert) *MemorySource {
	s := &MemorySource{byPID: make(map[string][]models.PidAlert)}
	for _, a := range alerts {
		k := normalizePID(a.PID)
		s.byPID[k] = append(s.byPID[k], a)
	}
	return s
}

// AlertsForPID implements Source.
func (s *MemorySource) AlertsForPID(_ context.Context, pid string) ([]models.PidAlert, error) {
	return s.byPID[normalizePID(pid)], nil
}
