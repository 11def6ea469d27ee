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

// Package identity resolves who sent a message and which group it was
// posted in. Names are learned piecemeal from many sources of varying
// quality; the Store only ever upgrades a name, never downgrades it.
package identity

import (
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bcem/watchfeed/internal/models"
)

// LivenessWindow is how recent the last event must be for the pipeline to
// count as active.
const LivenessWindow = 10 * time.Minute

// Liveness states.
const (
	StateActive  = "active"
	StateWaiting = "waiting"
)

type contactEntry struct {
	contact models.Contact
	namedAt time.Time
}

type groupEntry struct {
	group   models.Group
	namedAt time.Time
}

// Store holds the process-wide contact and group caches and the heartbeat.
// Tests construct their own; main builds one and injects it everywhere.
type Store struct {
	mu       sync.RWMutex
	contacts map[string]*contactEntry
	groups   map[string]*groupEntry
	names    map[string]int // lower-cased contact display names → count

	lastEvent atomic.Int64 // unix millis
}

// NewStore creates an empty identity store.
func NewStore() *Store {
	return &Store{
		contacts: make(map[string]*contactEntry),
		groups:   make(map[string]*groupEntry),
		names:    make(map[string]int),
	}
}

// Contact returns the cached contact for an address.
func (s *Store) Contact(address string) (models.Contact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.contacts[address]
	if !ok {
		return models.Contact{}, false
	}
	return e.contact, true
}

// Group returns the cached group for an address.
func (s *Store) Group(address string) (models.Group, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.groups[address]
	if !ok {
		return models.Group{}, false
	}
	return e.group, true
}

// IsContactName reports whether name is the display name of any known contact.
func (s *Store) IsContactName(name string) bool {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.names[key] > 0
}

// MergeContact folds next into the cached contact. The stored name changes
// only if next's source ranks higher, or ranks equal and was observed
// later; so merges commute regardless of arrival order. It returns the
// merged contact and whether anything persisted changed.
func (s *Store) MergeContact(next models.Contact) (models.Contact, bool) {
	next.DisplayName = strings.TrimSpace(next.DisplayName)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.contacts[next.Address]
	if !ok {
		e = &contactEntry{contact: models.Contact{Address: next.Address, LastSource: models.ContactHeuristic}}
		s.contacts[next.Address] = e
	}
	cur := e.contact
	changed := !ok

	if next.DisplayName != "" && contactWins(cur, e.namedAt, next) {
		if cur.DisplayName != next.DisplayName || cur.LastSource != next.LastSource {
			s.renameLocked(cur.DisplayName, next.DisplayName)
			cur.DisplayName = next.DisplayName
			cur.LastSource = next.LastSource
			changed = true
		}
		if next.LastSeenAt.After(e.namedAt) {
			e.namedAt = next.LastSeenAt
		}
	}
	if next.Phone != "" && cur.Phone == "" {
		cur.Phone = next.Phone
		changed = true
	}
	if next.LastSeenAt.After(cur.LastSeenAt) {
		cur.LastSeenAt = next.LastSeenAt
		changed = true
	}

	e.contact = cur
	return cur, changed
}

func contactWins(cur models.Contact, namedAt time.Time, next models.Contact) bool {
	if cur.DisplayName == "" {
		return true
	}
	cr, nr := cur.LastSource.Rank(), next.LastSource.Rank()
	if nr != cr {
		return nr > cr
	}
	if !next.LastSeenAt.Equal(namedAt) {
		return next.LastSeenAt.After(namedAt)
	}
	return next.DisplayName > cur.DisplayName
}

func (s *Store) renameLocked(oldName, newName string) {
	if k := strings.ToLower(oldName); k != "" {
		if s.names[k]--; s.names[k] <= 0 {
			delete(s.names, k)
		}
	}
	if k := strings.ToLower(newName); k != "" {
		s.names[k]++
	}
}

// MergeGroup folds next into the cached group under the same rules as
// MergeContact: a higher-ranked source wins, equal ranks fall back to the
// later observation, and a lower-ranked name never replaces a higher one.
func (s *Store) MergeGroup(next models.Group) (models.Group, bool) {
	next.DisplayName = strings.TrimSpace(next.DisplayName)

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.groups[next.Address]
	if !ok {
		e = &groupEntry{group: models.Group{
			Address:     next.Address,
			Source:      models.GroupPlaceholder,
			FirstSeenAt: next.FirstSeenAt,
		}}
		s.groups[next.Address] = e
	}
	cur := e.group
	changed := !ok

	if next.DisplayName != "" && groupWins(cur, e.namedAt, next) {
		if cur.DisplayName != next.DisplayName || cur.Source != next.Source {
			cur.DisplayName = next.DisplayName
			cur.Source = next.Source
			changed = true
		}
		if next.LastSeenAt.After(e.namedAt) {
			e.namedAt = next.LastSeenAt
		}
	}
	if next.InstancePhone != "" && cur.InstancePhone == "" {
		cur.InstancePhone = next.InstancePhone
		changed = true
	}
	if !next.FirstSeenAt.IsZero() && (cur.FirstSeenAt.IsZero() || next.FirstSeenAt.Before(cur.FirstSeenAt)) {
		cur.FirstSeenAt = next.FirstSeenAt
		changed = true
	}
	if next.LastSeenAt.After(cur.LastSeenAt) {
		cur.LastSeenAt = next.LastSeenAt
		changed = true
	}

	e.group = cur
	return cur, changed
}

func groupWins(cur models.Group, namedAt time.Time, next models.Group) bool {
	if cur.DisplayName == "" {
		return true
	}
	cr, nr := cur.Source.Rank(), next.Source.Rank()
	if nr != cr {
		return nr > cr
	}
	if !next.LastSeenAt.Equal(namedAt) {
		return next.LastSeenAt.After(namedAt)
	}
	return next.DisplayName > cur.DisplayName
}

// GroupsBelow lists cached groups whose name source ranks below src,
// ordered by address.
func (s *Store) GroupsBelow(src models.GroupSource) []models.Group {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Group
	for _, e := range s.groups {
		if e.group.Source.Rank() < src.Rank() {
			out = append(out, e.group)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// Seed loads previously persisted identities. Seeded entries go through
// the normal merge so they cannot override anything already learned.
func (s *Store) Seed(contacts []models.Contact, groups []models.Group) {
	for _, c := range contacts {
		s.MergeContact(c)
	}
	for _, g := range groups {
		s.MergeGroup(g)
	}
}

// Counts returns the number of cached contacts and groups.
func (s *Store) Counts() (contacts, groups int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contacts), len(s.groups)
}

// Touch records that an event was observed at t. The heartbeat never
// moves backwards.
func (s *Store) Touch(t time.Time) {
	ms := t.UnixMilli()
	for {
		cur := s.lastEvent.Load()
		if ms <= cur {
			return
		}
		if s.lastEvent.CompareAndSwap(cur, ms) {
			return
		}
	}
}

// LastEvent returns the time of the most recent observed event, or the
// zero time if none.
func (s *Store) LastEvent() time.Time {
	ms := s.lastEvent.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Liveness reports "active" if an event was observed within the last ten
// minutes, "waiting" otherwise.
func (s *Store) Liveness(now time.Time) string {
	last := s.LastEvent()
	if last.IsZero() || now.Sub(last) > LivenessWindow {
		return StateWaiting
	}
	return StateActive
}
