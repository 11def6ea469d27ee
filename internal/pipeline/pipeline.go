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

// Package pipeline runs one inbound delivery through normalization, the
// configuration gates, deduplication, identity resolution, extraction,
// persistence and alert matching, and records exactly one outcome per
// accepted message.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bcem/watchfeed/internal/alert"
	"github.com/bcem/watchfeed/internal/config"
	"github.com/bcem/watchfeed/internal/dedup"
	"github.com/bcem/watchfeed/internal/extract"
	"github.com/bcem/watchfeed/internal/identity"
	"github.com/bcem/watchfeed/internal/models"
	"github.com/bcem/watchfeed/internal/normalize"
)

// Disposition says what the pipeline did with a delivery.
type Disposition string

const (
	Processed        Disposition = "processed"
	Dropped          Disposition = "dropped"
	InstanceMismatch Disposition = "instance_mismatch"
	Duplicate        Disposition = "duplicate"
	Paused           Disposition = "paused"
	NotWhitelisted   Disposition = "not_whitelisted"
	GroupUpdate      Disposition = "group_update"
)

// ReasonNotWhitelisted tags messages from conversations outside the whitelist.
const ReasonNotWhitelisted = "group_not_whitelisted"

// Sink persists extracted records and outcomes.
type Sink interface {
	AppendListing(ctx context.Context, l models.WatchListing) error
	AppendRequirement(ctx context.Context, r models.Requirement) error
	RecordOutcome(ctx context.Context, o models.Outcome) error
}

// OutcomePublisher forwards outcomes to downstream consumers.
type OutcomePublisher interface {
	PublishOutcome(ctx context.Context, o models.Outcome) error
}

// Config wires a pipeline's collaborators. Matcher, Notifier and Outcomes
// are optional.
type Config struct {
	Holder       *config.Holder
	Dedup        dedup.Checker
	Resolver     *identity.Resolver
	Listings     *extract.ListingExtractor
	Requirements *extract.RequirementExtractor
	Matcher      *alert.Matcher
	Notifier     alert.Notifier
	Sink         Sink
	Outcomes     OutcomePublisher

	// StoreListingsForRequests keeps listing candidates found in a
	// message that was classified as a buy-side request.
	StoreListingsForRequests bool
	// RecentOutcomes is how many outcomes Status reports. Default 20.
	RecentOutcomes int
}

// Result is returned for every delivery.
type Result struct {
	Disposition Disposition
	Reason      string
	MessageID   string
	Outcome     *models.Outcome
}

// Pipeline processes deliveries. It is safe for concurrent use.
type Pipeline struct {
	holder       *config.Holder
	dedup        dedup.Checker
	resolver     *identity.Resolver
	listings     *extract.ListingExtractor
	requirements *extract.RequirementExtractor
	matcher      *alert.Matcher
	notifier     alert.Notifier
	sink         Sink
	outcomes     OutcomePublisher

	storeListingsForRequests bool

	recent  *ring
	nowFunc func() time.Time
}

// New creates a pipeline. Missing holder, dedup, resolver and extractors
// are replaced with defaults.
func New(cfg Config) *Pipeline {
	if cfg.Holder == nil {
		cfg.Holder = config.NewHolder(config.Runtime{})
	}
	if cfg.Dedup == nil {
		cfg.Dedup = dedup.NewWindow(dedup.DefaultCapacity, dedup.DefaultCompaction)
	}
	if cfg.Resolver == nil {
		cfg.Resolver = identity.NewResolver(identity.ResolverConfig{})
	}
	if cfg.Listings == nil {
		cfg.Listings = extract.NewListingExtractor(extract.ListingConfig{})
	}
	if cfg.Requirements == nil {
		cfg.Requirements = extract.NewRequirementExtractor(nil, 0)
	}
	if cfg.RecentOutcomes <= 0 {
		cfg.RecentOutcomes = 20
	}
	return &Pipeline{
		holder:                   cfg.Holder,
		dedup:                    cfg.Dedup,
		resolver:                 cfg.Resolver,
		listings:                 cfg.Listings,
		requirements:             cfg.Requirements,
		matcher:                  cfg.Matcher,
		notifier:                 cfg.Notifier,
		sink:                     cfg.Sink,
		outcomes:                 cfg.Outcomes,
		storeListingsForRequests: cfg.StoreListingsForRequests,
		recent:                   newRing(cfg.RecentOutcomes),
		nowFunc:                  time.Now,
	}
}

// Process handles one raw webhook body.
func (p *Pipeline) Process(ctx context.Context, body []byte) Result {
	receivedAt := p.nowFunc().UTC()
	res := normalize.Normalize(body, receivedAt)
	if res.Reason != normalize.ReasonInvalidJSON && res.Reason != normalize.ReasonUnrecognized {
		p.resolver.Store().Touch(receivedAt)
	}

	switch {
	case res.Reason != "":
		slog.Debug("delivery dropped",
			"shape", res.Shape,
			"event", res.Event,
			"reason", res.Reason,
		)
		return Result{Disposition: Dropped, Reason: string(res.Reason)}

	case res.Shape == normalize.ShapeGroups:
		if _, ok := p.checkInstance(res.Instance); !ok {
			return Result{Disposition: InstanceMismatch, Reason: "instance_mismatch"}
		}
		for _, g := range res.Groups {
			p.resolver.ApplyGroupUpdate(ctx, g.Address, g.Subject, receivedAt)
		}
		slog.Debug("group metadata applied", "event", res.Event, "groups", len(res.Groups))
		return Result{Disposition: GroupUpdate}
	}

	if res.Message == nil {
		return Result{Disposition: Dropped, Reason: string(normalize.ReasonUnrecognized)}
	}
	return p.ProcessMessage(ctx, res.Message)
}

// ProcessMessage runs an already-normalized message through the gates and
// the extraction stages.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg *models.InboundMessage) Result {
	snap, ok := p.checkInstance(msg.Instance)
	if !ok {
		return Result{Disposition: InstanceMismatch, Reason: "instance_mismatch", MessageID: msg.MessageID}
	}
	if snap.Paused {
		slog.Debug("pipeline paused, message skipped", "message_id", msg.MessageID)
		return Result{Disposition: Paused, MessageID: msg.MessageID}
	}
	if !snap.Allows(msg.Group()) {
		slog.Debug("message skipped",
			"message_id", msg.MessageID,
			"group", msg.Group(),
			"reason", ReasonNotWhitelisted,
		)
		return Result{Disposition: NotWhitelisted, Reason: ReasonNotWhitelisted, MessageID: msg.MessageID}
	}

	isNew, err := p.dedup.IsNew(ctx, dedup.Key(msg.MessageID, msg.RawText))
	if err != nil {
		slog.Warn("dedup check failed, processing anyway", "message_id", msg.MessageID, "error", err)
		isNew = true
	}
	if !isNew {
		slog.Debug("duplicate message skipped", "message_id", msg.MessageID)
		return Result{Disposition: Duplicate, MessageID: msg.MessageID}
	}

	out := p.run(ctx, msg)
	return Result{Disposition: Processed, MessageID: msg.MessageID, Outcome: &out}
}

// checkInstance applies the declared-instance rule and returns the
// snapshot the rest of the run uses.
func (p *Pipeline) checkInstance(declared string) (*config.Snapshot, bool) {
	snap := p.holder.Current()
	if declared == "" || declared == snap.InstanceID {
		return snap, true
	}
	if snap.InstanceID == "" || snap.AutoAdopt {
		next := p.holder.AdoptInstance(declared)
		slog.Info("adopted declared instance",
			"previous", snap.InstanceID,
			"instance", declared,
			"config_version", next.Version,
		)
		return next, true
	}
	slog.Warn("instance mismatch, message rejected",
		"expected", snap.InstanceID,
		"received", declared,
	)
	return snap, false
}

func (p *Pipeline) run(ctx context.Context, msg *models.InboundMessage) models.Outcome {
	id := p.resolver.Resolve(ctx, msg)
	posted := time.UnixMilli(msg.TimestampMillis).UTC()
	if msg.TimestampMillis <= 0 {
		// Unknown send time; record it as seen now instead of the epoch.
		posted = p.nowFunc().UTC()
	}

	var groupName string
	if id.Group != nil {
		groupName = id.Group.DisplayName
	}

	requirements := p.requirements.Extract(ctx, msg.RawText)
	listings := p.listings.Extract(ctx, msg.RawText)
	if _, isRequest := extract.Classify(msg.RawText); isRequest && len(listings) > 0 && !p.storeListingsForRequests {
		slog.Debug("listing candidates ignored in request message",
			"message_id", msg.MessageID,
			"count", len(listings),
		)
		listings = nil
	}

	out := models.Outcome{
		ID:            uuid.NewString(),
		MessageID:     msg.MessageID,
		GroupAddress:  msg.Group(),
		SenderAddress: msg.SenderAddress,
	}

	for _, l := range listings {
		l.ID = uuid.NewString()
		l.MessageID = msg.MessageID
		l.SenderAddress = msg.SenderAddress
		l.SenderName = id.SenderDisplay
		l.GroupAddress = msg.Group()
		l.GroupName = groupName
		l.PostedAt = posted

		if err := p.appendListing(ctx, l); err != nil {
			out.Failed++
			slog.Error("failed to store listing",
				"message_id", msg.MessageID,
				"pid", l.PID,
				"error", err,
			)
			continue
		}
		out.Listings++
		out.Matches += p.matchAlerts(ctx, l)
	}

	for _, r := range requirements {
		r.ID = uuid.NewString()
		r.MessageID = msg.MessageID
		r.SenderAddress = msg.SenderAddress
		r.SenderName = id.SenderDisplay
		r.GroupAddress = msg.Group()
		r.GroupName = groupName
		r.PostedAt = posted

		if err := p.appendRequirement(ctx, r); err != nil {
			out.Failed++
			slog.Error("failed to store requirement",
				"message_id", msg.MessageID,
				"pid", r.PID,
				"error", err,
			)
			continue
		}
		out.Requirements++
	}

	total := len(listings) + len(requirements)
	switch {
	case total == 0:
		out.Status = models.OutcomeNoPID
	case out.Failed == 0:
		out.Status = models.OutcomeSuccess
	case out.Failed == total:
		out.Status = models.OutcomeError
		out.Reason = "all records failed to persist"
	default:
		out.Status = models.OutcomePartial
		out.Reason = "some records failed to persist"
	}
	out.ProcessedAt = p.nowFunc().UTC()

	p.recordOutcome(ctx, out)
	return out
}

func (p *Pipeline) appendListing(ctx context.Context, l models.WatchListing) error {
	if p.sink == nil {
		return nil
	}
	return p.sink.AppendListing(ctx, l)
}

func (p *Pipeline) appendRequirement(ctx context.Context, r models.Requirement) error {
	if p.sink == nil {
		return nil
	}
	return p.sink.AppendRequirement(ctx, r)
}

func (p *Pipeline) matchAlerts(ctx context.Context, l models.WatchListing) int {
	if p.matcher == nil {
		return 0
	}
	matches, err := p.matcher.Match(ctx, l)
	if err != nil {
		slog.Warn("alert matching failed", "pid", l.PID, "error", err)
		return 0
	}
	for _, m := range matches {
		if p.notifier == nil {
			continue
		}
		if err := p.notifier.Notify(ctx, m); err != nil {
			slog.Error("failed to deliver alert match",
				"alert_id", m.Alert.ID,
				"pid", l.PID,
				"error", err,
			)
		}
	}
	return len(matches)
}

func (p *Pipeline) recordOutcome(ctx context.Context, o models.Outcome) {
	p.recent.add(o)

	if p.sink != nil {
		if err := p.sink.RecordOutcome(ctx, o); err != nil {
			slog.Error("failed to record outcome", "message_id", o.MessageID, "error", err)
		}
	}
	if p.outcomes != nil {
		if err := p.outcomes.PublishOutcome(ctx, o); err != nil {
			slog.Warn("failed to publish outcome", "message_id", o.MessageID, "error", err)
		}
	}

	slog.Info("message processed",
		"message_id", o.MessageID,
		"status", o.Status,
		"listings", o.Listings,
		"requirements", o.Requirements,
		"failed", o.Failed,
		"matches", o.Matches,
		"group", o.GroupAddress,
	)
}
