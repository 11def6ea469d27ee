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

package pipeline

import (
	"sync"
	"time"

	"github.com/bcem/watchfeed/internal/models"
)

// Status is the operator view served on the status endpoint.
type Status struct {
	Liveness       string           `json:"liveness"`
	LastEventAt    *time.Time       `json:"last_event_at,omitempty"`
	ConfigVersion  uint64           `json:"config_version"`
	Paused         bool             `json:"paused"`
	InstanceID     string           `json:"instance_id,omitempty"`
	Contacts       int              `json:"contacts"`
	Groups         int              `json:"groups"`
	RecentOutcomes []models.Outcome `json:"recent_outcomes"`
}

// Status reports liveness, the active configuration and the most recent
// outcomes, newest first.
func (p *Pipeline) Status() Status {
	now := p.nowFunc().UTC()
	snap := p.holder.Current()
	store := p.resolver.Store()
	contacts, groups := store.Counts()

	st := Status{
		Liveness:       store.Liveness(now),
		ConfigVersion:  snap.Version,
		Paused:         snap.Paused,
		InstanceID:     snap.InstanceID,
		Contacts:       contacts,
		Groups:         groups,
		RecentOutcomes: p.recent.list(),
	}
	if last := store.LastEvent(); !last.IsZero() {
		st.LastEventAt = &last
	}
	return st
}

// ring keeps the last n outcomes.
type ring struct {
	mu   sync.Mutex
	buf  []models.Outcome
	next int
	full bool
}

func newRing(n int) *ring {
	return &ring{buf: make([]models.Outcome, n)}
}

func (r *ring) add(o models.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = o
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *ring) list() []models.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	out := make([]models.Outcome, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, r.buf[(r.next-i+len(r.buf))%len(r.buf)])
	}
	return out
}
