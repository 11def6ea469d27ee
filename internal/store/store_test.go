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

package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/bcem/watchfeed/internal/models"
)

// TestNullDecimal verifies optional prices map to NULL and back.
func TestNullDecimal(t *testing.T) {
	if n := nullDecimal(nil); n.Valid {
		t.Error("nil price should be NULL")
	}
	d := decimal.RequireFromString("145000.50")
	n := nullDecimal(&d)
	if !n.Valid || !n.Decimal.Equal(d) {
		t.Errorf("nullDecimal = %+v", n)
	}
	if got := fromNull(n); got == nil || !got.Equal(d) {
		t.Errorf("fromNull = %v", got)
	}
	if fromNull(decimal.NullDecimal{}) != nil {
		t.Error("NULL should map to nil")
	}
}

// TestFirstSeen verifies a missing first-seen falls back to last-seen.
func TestFirstSeen(t *testing.T) {
	now := time.Now()
	if got := firstSeen(models.Group{LastSeenAt: now}); got != now {
		t.Errorf("firstSeen = %v", got)
	}
	earlier := now.Add(-time.Hour)
	if got := firstSeen(models.Group{FirstSeenAt: earlier, LastSeenAt: now}); got != earlier {
		t.Errorf("firstSeen = %v", got)
	}
}

// TestStore_Postgres exercises the store against a live database when
// TEST_DATABASE_URL is set.
func TestStore_Postgres(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pool.Close()

	s, err := New(ctx, pool)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	price := decimal.NewFromInt(145000)
	hkd := "HKD"
	l := models.WatchListing{
		ID: uuid.NewString(), PID: "126710BLNR", Price: &price, Currency: &hkd,
		RawLine: "126710BLNR 145000", MessageID: "m-" + uuid.NewString(),
		SenderAddress: "u1", PostedAt: time.Now().UTC(),
	}
	if err := s.AppendListing(ctx, l); err != nil {
		t.Fatalf("AppendListing: %v", err)
	}

	addr := "g-" + uuid.NewString() + "@g.us"
	now := time.Now().UTC().Truncate(time.Second)
	if err := s.UpsertGroup(ctx, models.Group{Address: addr, DisplayName: "HK Watch Traders", Source: models.GroupExplicit, LastSeenAt: now}); err != nil {
		t.Fatalf("UpsertGroup: %v", err)
	}
	if err := s.UpsertGroup(ctx, models.Group{Address: addr, DisplayName: "Group g", Source: models.GroupPlaceholder, LastSeenAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("UpsertGroup placeholder: %v", err)
	}
	groups, err := s.LoadGroups(ctx)
	if err != nil {
		t.Fatalf("LoadGroups: %v", err)
	}
	for _, g := range groups {
		if g.Address == addr && g.DisplayName != "HK Watch Traders" {
			t.Errorf("mirrored group regressed to %q", g.DisplayName)
		}
	}

	prefix := "T" + uuid.NewString()[:8]
	if _, err := s.ImportReferences(ctx, []models.WatchReference{{PIDPrefix: prefix, Brand: "Test", Family: "Fam"}}); err != nil {
		t.Fatalf("ImportReferences: %v", err)
	}
	ref, err := s.Lookup(ctx, prefix+"XYZ")
	if err != nil || ref == nil || ref.Family != "Fam" {
		t.Errorf("Lookup = %+v, %v", ref, err)
	}
}
