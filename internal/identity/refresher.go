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

package identity

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bcem/watchfeed/internal/models"
)

// Refresher periodically retries authoritative lookups for groups whose
// cached name is still a guess.
type Refresher struct {
	resolver *Resolver
	interval time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRefresher creates a refresher. Intervals below a minute are raised to
// one minute.
func NewRefresher(r *Resolver, interval time.Duration) *Refresher {
	if interval < time.Minute {
		interval = time.Minute
	}
	return &Refresher{resolver: r, interval: interval}
}

// Start runs the refresh loop in the background.
func (f *Refresher) Start(ctx context.Context) {
	loopCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.wg.Add(1)
	go f.loop(loopCtx)

	slog.Info("group name refresher started", "interval", f.interval)
}

// Stop shuts down the refresh loop and waits for it to exit.
func (f *Refresher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	slog.Info("group name refresher stopped")
}

func (f *Refresher) loop(ctx context.Context) {
	defer f.wg.Done()

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce attempts an upgrade for every group below lookup rank and
// returns how many were upgraded.
func (f *Refresher) RefreshOnce(ctx context.Context) int {
	if f.resolver.directory == nil {
		return 0
	}
	pending := f.resolver.store.GroupsBelow(models.GroupLookup)
	if len(pending) == 0 {
		return 0
	}

	slog.Debug("refreshing unresolved group names", "count", len(pending))

	upgraded := 0
	for _, g := range pending {
		if ctx.Err() != nil {
			break
		}
		got, err := f.resolver.Upgrade(ctx, g.Address)
		if err != nil {
			continue
		}
		if got.Source.Authoritative() {
			upgraded++
		}
	}
	if upgraded > 0 {
		slog.Info("group names refreshed", "upgraded", upgraded, "pending", len(pending)-upgraded)
	}
	return upgraded
}
