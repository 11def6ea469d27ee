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

// Package store is the Postgres persistence layer: extracted listings and
// requirements, processing outcomes, mirrored identities, standing alerts
// and the reference catalogue.
package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bcem/watchfeed/internal/models"
)

// Store provides persistence operations backed by a Postgres pool.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store and ensures its tables exist.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	slog.Info("store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS watch_listings (
			id             UUID PRIMARY KEY,
			pid            TEXT NOT NULL,
			variant        TEXT,
			condition      TEXT,
			price          NUMERIC(18,2),
			currency       TEXT,
			year           INT,
			month          TEXT,
			brand          TEXT,
			family         TEXT,
			raw_line       TEXT NOT NULL,
			message_id     TEXT NOT NULL,
			sender_address TEXT NOT NULL,
			sender_name    TEXT DEFAULT '',
			group_address  TEXT DEFAULT '',
			group_name     TEXT DEFAULT '',
			posted_at      TIMESTAMPTZ NOT NULL,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_listings_pid ON watch_listings(pid);
		CREATE INDEX IF NOT EXISTS idx_listings_posted ON watch_listings(posted_at);

		CREATE TABLE IF NOT EXISTS watch_requirements (
			id             UUID PRIMARY KEY,
			pid            TEXT NOT NULL,
			variant        TEXT,
			condition      TEXT,
			brand          TEXT,
			family         TEXT,
			message_type   TEXT NOT NULL,
			raw_line       TEXT NOT NULL,
			message_id     TEXT NOT NULL,
			sender_address TEXT NOT NULL,
			sender_name    TEXT DEFAULT '',
			group_address  TEXT DEFAULT '',
			group_name     TEXT DEFAULT '',
			posted_at      TIMESTAMPTZ NOT NULL,
			created_at     TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_requirements_pid ON watch_requirements(pid);

		CREATE TABLE IF NOT EXISTS processing_outcomes (
			id             UUID PRIMARY KEY,
			message_id     TEXT NOT NULL,
			status         TEXT NOT NULL,
			listings       INT DEFAULT 0,
			requirements   INT DEFAULT 0,
			failed         INT DEFAULT 0,
			matches        INT DEFAULT 0,
			reason         TEXT DEFAULT '',
			group_address  TEXT DEFAULT '',
			sender_address TEXT DEFAULT '',
			processed_at   TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_outcomes_message ON processing_outcomes(message_id);

		CREATE TABLE IF NOT EXISTS contacts (
			address      TEXT PRIMARY KEY,
			display_name TEXT DEFAULT '',
			phone        TEXT DEFAULT '',
			source       TEXT NOT NULL,
			source_rank  INT NOT NULL,
			last_seen_at TIMESTAMPTZ NOT NULL,
			updated_at   TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS chat_groups (
			address        TEXT PRIMARY KEY,
			display_name   TEXT NOT NULL,
			instance_phone TEXT DEFAULT '',
			source         TEXT NOT NULL,
			source_rank    INT NOT NULL,
			first_seen_at  TIMESTAMPTZ NOT NULL,
			last_seen_at   TIMESTAMPTZ NOT NULL,
			updated_at     TIMESTAMPTZ DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS pid_alerts (
			id                  BIGSERIAL PRIMARY KEY,
			pid                 TEXT NOT NULL,
			variant             TEXT,
			min_price           NUMERIC(18,2),
			max_price           NUMERIC(18,2),
			currency            TEXT,
			notification_target TEXT NOT NULL,
			created_at          TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_alerts_pid ON pid_alerts(upper(pid));

		CREATE TABLE IF NOT EXISTS watch_references (
			pid_prefix TEXT PRIMARY KEY,
			brand      TEXT NOT NULL,
			family     TEXT DEFAULT '',
			url        TEXT DEFAULT '',
			updated_at TIMESTAMPTZ DEFAULT NOW()
		);
	`)
	return err
}

// AppendListing inserts one listing.
func (s *Store) AppendListing(ctx context.Context, l models.WatchListing) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watch_listings
			(id, pid, variant, condition, price, currency, year, month, brand, family,
			 raw_line, message_id, sender_address, sender_name, group_address, group_name, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (id) DO NOTHING
	`, l.ID, l.PID, l.Variant, l.Condition, nullDecimal(l.Price), l.Currency, l.Year, l.Month,
		l.Brand, l.Family, l.RawLine, l.MessageID, l.SenderAddress, l.SenderName,
		l.GroupAddress, l.GroupName, l.PostedAt)
	return err
}

// AppendRequirement inserts one requirement.
func (s *Store) AppendRequirement(ctx context.Context, r models.Requirement) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO watch_requirements
			(id, pid, variant, condition, brand, family, message_type, raw_line,
			 message_id, sender_address, sender_name, group_address, group_name, posted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`, r.ID, r.PID, r.Variant, r.Condition, r.Brand, r.Family, string(r.MessageType), r.RawLine,
		r.MessageID, r.SenderAddress, r.SenderName, r.GroupAddress, r.GroupName, r.PostedAt)
	return err
}

// RecordOutcome inserts the processing outcome of one message.
func (s *Store) RecordOutcome(ctx context.Context, o models.Outcome) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO processing_outcomes
			(id, message_id, status, listings, requirements, failed, matches, reason,
			 group_address, sender_address, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, o.ID, o.MessageID, string(o.Status), o.Listings, o.Requirements, o.Failed, o.Matches,
		o.Reason, o.GroupAddress, o.SenderAddress, o.ProcessedAt)
	return err
}

// UpsertContact mirrors a resolved contact. A stored name from a stronger
// source is left alone.
func (s *Store) UpsertContact(ctx context.Context, c models.Contact) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO contacts (address, display_name, phone, source, source_rank, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (address) DO UPDATE SET
			display_name = CASE WHEN EXCLUDED.source_rank >= contacts.source_rank AND EXCLUDED.display_name <> ''
			                    THEN EXCLUDED.display_name ELSE contacts.display_name END,
			source       = CASE WHEN EXCLUDED.source_rank >= contacts.source_rank AND EXCLUDED.display_name <> ''
			                    THEN EXCLUDED.source ELSE contacts.source END,
			source_rank  = GREATEST(contacts.source_rank, EXCLUDED.source_rank),
			phone        = COALESCE(NULLIF(contacts.phone, ''), EXCLUDED.phone),
			last_seen_at = GREATEST(contacts.last_seen_at, EXCLUDED.last_seen_at),
			updated_at   = NOW()
	`, c.Address, c.DisplayName, c.Phone, string(c.LastSource), c.LastSource.Rank(), c.LastSeenAt)
	return err
}

// UpsertGroup mirrors a resolved group under the same never-downgrade rule.
func (s *Store) UpsertGroup(ctx context.Context, g models.Group) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO chat_groups
			(address, display_name, instance_phone, source, source_rank, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (address) DO UPDATE SET
			display_name   = CASE WHEN EXCLUDED.source_rank >= chat_groups.source_rank
			                      THEN EXCLUDED.display_name ELSE chat_groups.display_name END,
			source         = CASE WHEN EXCLUDED.source_rank >= chat_groups.source_rank
			                      THEN EXCLUDED.source ELSE chat_groups.source END,
			source_rank    = GREATEST(chat_groups.source_rank, EXCLUDED.source_rank),
			instance_phone = COALESCE(NULLIF(chat_groups.instance_phone, ''), EXCLUDED.instance_phone),
			first_seen_at  = LEAST(chat_groups.first_seen_at, EXCLUDED.first_seen_at),
			last_seen_at   = GREATEST(chat_groups.last_seen_at, EXCLUDED.last_seen_at),
			updated_at     = NOW()
	`, g.Address, g.DisplayName, g.InstancePhone, string(g.Source), g.Source.Rank(),
		firstSeen(g), g.LastSeenAt)
	return err
}

func firstSeen(g models.Group) interface{} {
	if g.FirstSeenAt.IsZero() {
		return g.LastSeenAt
	}
	return g.FirstSeenAt
}

// LoadContacts returns every mirrored contact, used to seed the cache.
func (s *Store) LoadContacts(ctx context.Context) ([]models.Contact, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, display_name, phone, source, last_seen_at
		FROM contacts
		ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Contact
	for rows.Next() {
		var c models.Contact
		var src string
		if err := rows.Scan(&c.Address, &c.DisplayName, &c.Phone, &src, &c.LastSeenAt); err != nil {
			return nil, err
		}
		c.LastSource = models.ContactSource(src)
		out = append(out, c)
	}
	return out, rows.Err()
}

// LoadGroups returns every mirrored group, used to seed the cache.
func (s *Store) LoadGroups(ctx context.Context) ([]models.Group, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT address, display_name, instance_phone, source, first_seen_at, last_seen_at
		FROM chat_groups
		ORDER BY address
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Group
	for rows.Next() {
		var g models.Group
		var src string
		if err := rows.Scan(&g.Address, &g.DisplayName, &g.InstancePhone, &src, &g.FirstSeenAt, &g.LastSeenAt); err != nil {
			return nil, err
		}
		g.Source = models.GroupSource(src)
		out = append(out, g)
	}
	return out, rows.Err()
}

// AlertsForPID returns the standing alerts for a pid, compared ignoring case.
func (s *Store) AlertsForPID(ctx context.Context, pid string) ([]models.PidAlert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, pid, variant, min_price, max_price, currency, notification_target
		FROM pid_alerts
		WHERE upper(pid) = upper($1)
		ORDER BY id
	`, pid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAlerts(rows)
}

func collectAlerts(rows pgx.Rows) ([]models.PidAlert, error) {
	var out []models.PidAlert
	for rows.Next() {
		var a models.PidAlert
		var minPrice, maxPrice decimal.NullDecimal
		if err := rows.Scan(&a.ID, &a.PID, &a.Variant, &minPrice, &maxPrice, &a.Currency, &a.NotificationTarget); err != nil {
			return nil, err
		}
		a.MinPrice = fromNull(minPrice)
		a.MaxPrice = fromNull(maxPrice)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Lookup returns the reference row with the longest prefix of pid.
func (s *Store) Lookup(ctx context.Context, pid string) (*models.WatchReference, error) {
	var r models.WatchReference
	err := s.pool.QueryRow(ctx, `
		SELECT pid_prefix, brand, family, url
		FROM watch_references
		WHERE starts_with(upper($1), pid_prefix)
		ORDER BY length(pid_prefix) DESC
		LIMIT 1
	`, pid).Scan(&r.PIDPrefix, &r.Brand, &r.Family, &r.URL)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ImportReferences upserts catalogue rows in one transaction and returns
// how many were written.
func (s *Store) ImportReferences(ctx context.Context, refs []models.WatchReference) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range refs {
		batch.Queue(`
			INSERT INTO watch_references (pid_prefix, brand, family, url)
			VALUES (upper($1), $2, $3, $4)
			ON CONFLICT (pid_prefix) DO UPDATE SET
				brand      = EXCLUDED.brand,
				family     = EXCLUDED.family,
				url        = EXCLUDED.url,
				updated_at = NOW()
		`, r.PIDPrefix, r.Brand, r.Family, r.URL)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("upsert references: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(refs), nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNull(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}
