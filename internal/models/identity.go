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

package models

import "time"

// ContactSource records where a contact's display name came from.
// Sources are ordered: a name from a higher source is never replaced by
// one from a lower source.
type ContactSource string

const (
	ContactHeuristic  ContactSource = "heuristic"
	ContactHistorical ContactSource = "historical"
	ContactWebhook    ContactSource = "webhook"
)

// Rank orders contact sources from weakest to strongest.
func (s ContactSource) Rank() int {
	switch s {
	case ContactWebhook:
		return 2
	case ContactHistorical:
		return 1
	default:
		return 0
	}
}

// Contact is the cached identity of a sender address.
type Contact struct {
	Address     string        `json:"address"`
	DisplayName string        `json:"display_name"`
	Phone       string        `json:"phone,omitempty"`
	LastSource  ContactSource `json:"last_source"`
	LastSeenAt  time.Time     `json:"last_seen_at"`
}

// GroupSource records where a group's display name came from.
type GroupSource string

const (
	GroupPlaceholder GroupSource = "placeholder"
	GroupFallback    GroupSource = "fallback"
	GroupHeuristic   GroupSource = "heuristic"
	GroupLookup      GroupSource = "lookup"
	GroupExplicit    GroupSource = "explicit"
)

// Rank orders group sources from weakest to strongest.
func (s GroupSource) Rank() int {
	switch s {
	case GroupExplicit:
		return 4
	case GroupLookup:
		return 3
	case GroupHeuristic:
		return 2
	case GroupFallback:
		return 1
	default:
		return 0
	}
}

// Authoritative reports whether the name came from the provider itself
// rather than a guess.
func (s GroupSource) Authoritative() bool {
	return s.Rank() >= GroupLookup.Rank()
}

// Group is the cached identity of a conversation address.
type Group struct {
	Address       string      `json:"address"`
	DisplayName   string      `json:"display_name"`
	InstancePhone string      `json:"instance_phone,omitempty"`
	Source        GroupSource `json:"source"`
	FirstSeenAt   time.Time   `json:"first_seen_at"`
	LastSeenAt    time.Time   `json:"last_seen_at"`
}
