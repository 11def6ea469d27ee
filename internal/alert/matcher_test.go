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

package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bcem/watchfeed/internal/models"
)

func sp(s string) *string { return &s }

func dp(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func listing(pid, variant string, price int64, currency string) models.WatchListing {
	l := models.WatchListing{PID: pid, Price: dp(price), Currency: sp(currency)}
	if variant != "" {
		l.Variant = sp(variant)
	}
	return l
}

// TestSatisfies_PriceBounds verifies the range is inclusive on both ends.
func TestSatisfies_PriceBounds(t *testing.T) {
	a := models.PidAlert{PID: "126710BLNR", MinPrice: dp(140000), MaxPrice: dp(150000), Currency: sp("HKD")}

	tests := []struct {
		price int64
		want  bool
	}{
		{139999, false},
		{140000, true},
		{145000, true},
		{150000, true},
		{150001, false},
	}
	for _, tt := range tests {
		if got := Satisfies(a, listing("126710BLNR", "", tt.price, "HKD")); got != tt.want {
			t.Errorf("price %d: got %v, want %v", tt.price, got, tt.want)
		}
	}
}

// TestSatisfies_Rules covers pid, variant and currency rules.
func TestSatisfies_Rules(t *testing.T) {
	tests := []struct {
		name  string
		alert models.PidAlert
		l     models.WatchListing
		want  bool
	}{
		{"pid case-insensitive", models.PidAlert{PID: "126710blnr"}, listing("126710BLNR", "", 1, "HKD"), true},
		{"pid mismatch", models.PidAlert{PID: "126710BLRO"}, listing("126710BLNR", "", 1, "HKD"), false},
		{"variant substring", models.PidAlert{PID: "126710BLNR", Variant: sp("batman")}, listing("126710BLNR", "Batman Jubilee", 1, "HKD"), true},
		{"variant missing on listing", models.PidAlert{PID: "126710BLNR", Variant: sp("batman")}, listing("126710BLNR", "", 1, "HKD"), false},
		{"currency mismatch", models.PidAlert{PID: "126710BLNR", Currency: sp("USD")}, listing("126710BLNR", "", 1, "HKD"), false},
		{"currency case matters", models.PidAlert{PID: "126710BLNR", Currency: sp("hkd")}, listing("126710BLNR", "", 1, "HKD"), false},
		{"range without price", models.PidAlert{PID: "126710BLNR", MaxPrice: dp(10)}, models.WatchListing{PID: "126710BLNR"}, false},
		{"no criteria", models.PidAlert{PID: "126710BLNR"}, models.WatchListing{PID: "126710BLNR"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Satisfies(tt.alert, tt.l); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

type failingSource struct{}

func (failingSource) AlertsForPID(ctx context.Context, pid string) ([]models.PidAlert, error) {
	return nil, errors.New("db down")
}

// TestMatcher_Match verifies one match per satisfied alert.
func TestMatcher_Match(t *testing.T) {
	alerts := []models.PidAlert{
		{ID: 1, PID: "126710BLNR", MaxPrice: dp(150000), NotificationTarget: "a"},
		{ID: 2, PID: "126710blnr", Variant: sp("batman"), NotificationTarget: "b"},
		{ID: 3, PID: "126710BLNR", MinPrice: dp(200000), NotificationTarget: "c"},
		{ID: 4, PID: "116500LN", NotificationTarget: "d"},
	}
	m := NewMatcher(NewMemorySource(alerts))
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.nowFunc = func() time.Time { return fixed }

	got, err := m.Match(context.Background(), listing("126710BLNR", "Batman", 145000, "HKD"))
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d matches, want 2", len(got))
	}
	if got[0].Alert.ID != 1 || got[1].Alert.ID != 2 {
		t.Errorf("matched alerts %d, %d", got[0].Alert.ID, got[1].Alert.ID)
	}
	if !got[0].MatchedAt.Equal(fixed) || got[0].Listing.PID != "126710BLNR" {
		t.Errorf("match = %+v", got[0])
	}

	// Alerts are not one-shot.
	again, _ := m.Match(context.Background(), listing("126710BLNR", "Batman", 145000, "HKD"))
	if len(again) != 2 {
		t.Errorf("second evaluation got %d matches", len(again))
	}

	if _, err := NewMatcher(failingSource{}).Match(context.Background(), listing("x", "", 1, "HKD")); err == nil {
		t.Error("source error should propagate")
	}
}
