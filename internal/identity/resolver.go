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
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/bcem/watchfeed/internal/models"
	"github.com/bcem/watchfeed/internal/normalize"
)

// Directory returns the provider's authoritative subject for a group.
type Directory interface {
	GroupName(ctx context.Context, address string) (string, error)
}

// Mirror durably records resolved identities. Calls are best-effort.
type Mirror interface {
	UpsertContact(ctx context.Context, c models.Contact) error
	UpsertGroup(ctx context.Context, g models.Group) error
}

// ErrNoDirectory is returned by Upgrade when no directory is configured.
var ErrNoDirectory = errors.New("no group directory configured")

// ResolverConfig holds the resolver's collaborators and tunables.
type ResolverConfig struct {
	Store         *Store
	Vocabulary    *Vocabulary
	Fallback      map[string]string
	Directory     Directory // optional
	Mirror        Mirror    // optional
	InstancePhone string
	LookupTimeout time.Duration
	LookupBackoff time.Duration // minimum spacing between lookups of one group
	MirrorTimeout time.Duration
}

// Resolver attaches sender and group identity to inbound messages.
type Resolver struct {
	store         *Store
	vocab         *Vocabulary
	fallback      map[string]string
	directory     Directory
	mirror        Mirror
	instancePhone string
	lookupTimeout time.Duration
	backoff       time.Duration
	mirrorTimeout time.Duration

	flight singleflight.Group

	mu         sync.Mutex
	lastLookup map[string]time.Time
	nowFunc    func() time.Time
}

// NewResolver creates a resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	if cfg.Vocabulary == nil {
		cfg.Vocabulary = NewVocabulary(nil)
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 3 * time.Second
	}
	if cfg.LookupBackoff <= 0 {
		cfg.LookupBackoff = 5 * time.Minute
	}
	if cfg.MirrorTimeout <= 0 {
		cfg.MirrorTimeout = 2 * time.Second
	}
	return &Resolver{
		store:         cfg.Store,
		vocab:         cfg.Vocabulary,
		fallback:      cfg.Fallback,
		directory:     cfg.Directory,
		mirror:        cfg.Mirror,
		instancePhone: cfg.InstancePhone,
		lookupTimeout: cfg.LookupTimeout,
		backoff:       cfg.LookupBackoff,
		mirrorTimeout: cfg.MirrorTimeout,
		lastLookup:    make(map[string]time.Time),
		nowFunc:       time.Now,
	}
}

// Store returns the underlying identity store.
func (r *Resolver) Store() *Store { return r.store }

// Identity is what the resolver learned about one message.
type Identity struct {
	Sender models.Contact

	// SenderDisplay is the name to stamp on records: the name carried on
	// the message if any, else the cached name, else the formatted phone.
	SenderDisplay string

	Group *models.Group // nil for direct chats
}

// Resolve merges the message's identity hints into the store and returns
// the names to attach to its records.
func (r *Resolver) Resolve(ctx context.Context, msg *models.InboundMessage) Identity {
	contact := r.ResolveContact(ctx, msg)
	id := Identity{Sender: contact, SenderDisplay: senderDisplay(msg, contact)}
	if msg.IsGroup() {
		g := r.ResolveGroup(ctx, msg)
		id.Group = &g
	}
	return id
}

func senderDisplay(msg *models.InboundMessage, cached models.Contact) string {
	if name := strings.TrimSpace(msg.SenderName); name != "" {
		return name
	}
	if cached.DisplayName != "" {
		return cached.DisplayName
	}
	if msg.SenderPhone != "" {
		return normalize.FormatPhone(msg.SenderPhone)
	}
	return normalize.LocalPart(msg.SenderAddress)
}

// ResolveContact merges the sender into the contact cache.
func (r *Resolver) ResolveContact(ctx context.Context, msg *models.InboundMessage) models.Contact {
	src := models.ContactWebhook
	if msg.SourceFormat == models.FormatChatExport {
		src = models.ContactHistorical
	}
	merged, changed := r.store.MergeContact(models.Contact{
		Address:     msg.SenderAddress,
		DisplayName: msg.SenderName,
		Phone:       msg.SenderPhone,
		LastSource:  src,
		LastSeenAt:  messageTime(msg),
	})
	if changed {
		r.mirrorContact(ctx, merged)
	}
	return merged
}

// ResolveGroup picks the best name candidate for the message's group,
// merges it, and attempts an authoritative upgrade when the result is
// still a guess.
func (r *Resolver) ResolveGroup(ctx context.Context, msg *models.InboundMessage) models.Group {
	address := msg.Group()
	at := messageTime(msg)
	name, src := r.candidate(msg)

	merged, changed := r.store.MergeGroup(models.Group{
		Address:       address,
		DisplayName:   name,
		Source:        src,
		InstancePhone: r.instancePhone,
		FirstSeenAt:   at,
		LastSeenAt:    at,
	})

	if !merged.Source.Authoritative() && r.directory != nil {
		if up, err := r.Upgrade(ctx, address); err == nil {
			merged = up
			changed = false // Upgrade mirrors on its own
		}
	}
	if changed {
		r.mirrorGroup(ctx, merged)
	}
	return merged
}

func (r *Resolver) candidate(msg *models.InboundMessage) (string, models.GroupSource) {
	address := msg.Group()

	if hint := strings.TrimSpace(msg.GroupNameHint); hint != "" && !r.personal(hint, msg.SenderName) {
		return hint, models.GroupExplicit
	}
	if cached, ok := r.store.Group(address); ok && cached.Source.Authoritative() && cached.DisplayName != "" {
		return cached.DisplayName, cached.Source
	}
	for _, h := range msg.StubHints {
		h = strings.TrimSpace(h)
		if h == "" || r.personal(h, msg.SenderName) || !r.vocab.LooksLikeGroup(h) {
			continue
		}
		return h, models.GroupHeuristic
	}
	if name := strings.TrimSpace(r.fallback[address]); name != "" {
		return name, models.GroupFallback
	}
	return Placeholder(address), models.GroupPlaceholder
}

// personal reports whether name looks like a person rather than a group:
// it matches the sender's own name or a known contact's name and carries
// no group vocabulary.
func (r *Resolver) personal(name, sender string) bool {
	if r.vocab.LooksLikeGroup(name) {
		return false
	}
	if sender != "" && strings.EqualFold(strings.TrimSpace(sender), name) {
		return true
	}
	return r.store.IsContactName(name)
}

// ApplyGroupUpdate records an explicit subject announced by a group event.
func (r *Resolver) ApplyGroupUpdate(ctx context.Context, address, subject string, at time.Time) (models.Group, bool) {
	merged, changed := r.store.MergeGroup(models.Group{
		Address:       address,
		DisplayName:   subject,
		Source:        models.GroupExplicit,
		InstancePhone: r.instancePhone,
		FirstSeenAt:   at,
		LastSeenAt:    at,
	})
	if changed {
		r.mirrorGroup(ctx, merged)
	}
	return merged, changed
}

// Upgrade asks the directory for the group's subject. Concurrent calls for
// one address share a single lookup, and a finished lookup is not repeated
// until the backoff has passed. On any failure the cached name stays.
func (r *Resolver) Upgrade(ctx context.Context, address string) (models.Group, error) {
	if r.directory == nil {
		return models.Group{}, ErrNoDirectory
	}
	if r.recentlyLooked(address) {
		g, _ := r.store.Group(address)
		return g, errLookupBackoff
	}

	v, err, _ := r.flight.Do(address, func() (interface{}, error) {
		defer r.markLooked(address)
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.lookupTimeout)
		defer cancel()
		return r.directory.GroupName(lctx, address)
	})
	if err != nil {
		slog.Debug("group lookup failed", "group", address, "error", err)
		g, _ := r.store.Group(address)
		return g, err
	}
	name := strings.TrimSpace(v.(string))
	if name == "" {
		g, _ := r.store.Group(address)
		return g, errEmptyLookup
	}

	now := r.nowFunc()
	merged, changed := r.store.MergeGroup(models.Group{
		Address:       address,
		DisplayName:   name,
		Source:        models.GroupLookup,
		InstancePhone: r.instancePhone,
		LastSeenAt:    now,
	})
	if changed {
		slog.Info("group name upgraded", "group", address, "name", merged.DisplayName, "source", merged.Source)
		r.mirrorGroup(ctx, merged)
	}
	return merged, nil
}

var (
	errLookupBackoff = errors.New("group lookup backing off")
	errEmptyLookup   = errors.New("group lookup returned no subject")
)

func (r *Resolver) recentlyLooked(address string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	last, ok := r.lastLookup[address]
	return ok && r.nowFunc().Sub(last) < r.backoff
}

func (r *Resolver) markLooked(address string) {
	r.mu.Lock()
	r.lastLookup[address] = r.nowFunc()
	r.mu.Unlock()
}

func (r *Resolver) mirrorContact(ctx context.Context, c models.Contact) {
	if r.mirror == nil || c.Address == "" {
		return
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.mirrorTimeout)
	defer cancel()
	if err := r.mirror.UpsertContact(mctx, c); err != nil {
		slog.Warn("contact mirror failed", "sender", c.Address, "error", err)
	}
}

func (r *Resolver) mirrorGroup(ctx context.Context, g models.Group) {
	if r.mirror == nil {
		return
	}
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.mirrorTimeout)
	defer cancel()
	if err := r.mirror.UpsertGroup(mctx, g); err != nil {
		slog.Warn("group mirror failed", "group", g.Address, "error", err)
	}
}

func messageTime(msg *models.InboundMessage) time.Time {
	if msg.TimestampMillis <= 0 {
		return time.Now().UTC()
	}
	return time.UnixMilli(msg.TimestampMillis).UTC()
}
