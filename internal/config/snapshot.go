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

package config

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// Snapshot is an immutable, versioned view of the runtime configuration.
// A pipeline run fetches one snapshot up front and uses it throughout, so
// gates evaluated at different stages always agree.
type Snapshot struct {
	Version    uint64
	Paused     bool
	InstanceID string
	AutoAdopt  bool
	Whitelist  []string

	allowed map[string]struct{}
}

// Allows reports whether traffic from the conversation is accepted. An
// empty whitelist accepts everything; otherwise only listed group
// addresses pass, and direct chats (group "") are rejected.
func (s *Snapshot) Allows(group string) bool {
	if len(s.allowed) == 0 {
		return true
	}
	if group == "" {
		return false
	}
	_, ok := s.allowed[group]
	return ok
}

// ParseWhitelist splits a comma/whitespace separated list of group addresses.
func ParseWhitelist(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || unicode.IsSpace(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func newSnapshot(version uint64, rt Runtime) *Snapshot {
	list := ParseWhitelist(rt.WhitelistedGroups)
	allowed := make(map[string]struct{}, len(list))
	for _, g := range list {
		allowed[g] = struct{}{}
	}
	return &Snapshot{
		Version:    version,
		Paused:     rt.Paused,
		InstanceID: strings.TrimSpace(rt.InstanceID),
		AutoAdopt:  rt.AutoAdopt,
		Whitelist:  list,
		allowed:    allowed,
	}
}

func (s *Snapshot) runtime() Runtime {
	return Runtime{
		Paused:            s.Paused,
		WhitelistedGroups: strings.Join(s.Whitelist, ","),
		InstanceID:        s.InstanceID,
		AutoAdopt:         s.AutoAdopt,
	}
}

// Holder publishes runtime snapshots. Readers never block; writers are
// serialized so versions increase by exactly one per change.
type Holder struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
}

// NewHolder creates a holder whose first snapshot has version 1.
func NewHolder(rt Runtime) *Holder {
	h := &Holder{}
	h.current.Store(newSnapshot(1, rt))
	return h
}

// Current returns the latest snapshot.
func (h *Holder) Current() *Snapshot {
	return h.current.Load()
}

// Replace publishes a new snapshot built from rt (e.g. after SIGHUP).
func (h *Holder) Replace(rt Runtime) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	next := newSnapshot(h.current.Load().Version+1, rt)
	h.current.Store(next)
	return next
}

// Update applies fn to a copy of the current runtime and publishes it.
func (h *Holder) Update(fn func(*Runtime)) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := h.current.Load()
	rt := cur.runtime()
	fn(&rt)
	next := newSnapshot(cur.Version+1, rt)
	h.current.Store(next)
	return next
}

// AdoptInstance switches the configured instance to id. It is a no-op
// when id is already current.
func (h *Holder) AdoptInstance(id string) *Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := h.current.Load()
	if cur.InstanceID == id {
		return cur
	}
	rt := cur.runtime()
	rt.InstanceID = id
	next := newSnapshot(cur.Version+1, rt)
	h.current.Store(next)
	return next
}
