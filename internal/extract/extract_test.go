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

package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bcem/watchfeed/internal/models"
)

type fakeReference struct {
	rows map[string]models.WatchReference
	err  error
}

func (f *fakeReference) Lookup(ctx context.Context, pid string) (*models.WatchReference, error) {
	if f.err != nil {
		return nil, f.err
	}
	if r, ok := f.rows[pid]; ok {
		return &r, nil
	}
	return nil, nil
}

func str(p *string) string {
	if p == nil {
		return "<nil>"
	}
	return *p
}

func year(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func price(l models.WatchListing) string {
	if l.Price == nil {
		return "<nil>"
	}
	return l.Price.String()
}

// TestExtract_Basic verifies the canonical listing line.
func TestExtract_Basic(t *testing.T) {
	x := NewListingExtractor(ListingConfig{})
	got := x.Extract(context.Background(), "126710BLNR Batman 2023 used 145000")
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	l := got[0]
	if l.PID != "126710BLNR" {
		t.Errorf("PID = %q", l.PID)
	}
	if str(l.Variant) != "Batman" {
		t.Errorf("Variant = %q", str(l.Variant))
	}
	if year(l.Year) != 2023 {
		t.Errorf("Year = %d", year(l.Year))
	}
	if str(l.Condition) != "Used" {
		t.Errorf("Condition = %q", str(l.Condition))
	}
	if price(l) != "145000" || str(l.Currency) != "HKD" {
		t.Errorf("Price = %s %s", price(l), str(l.Currency))
	}
	if l.RawLine != "126710BLNR Batman 2023 used 145000" {
		t.Errorf("RawLine = %q", l.RawLine)
	}
	if l.Brand != nil || l.Family != nil {
		t.Error("brand/family should be nil without a reference table")
	}
}

// TestExtract_Fields covers the field grammar line by line.
func TestExtract_Fields(t *testing.T) {
	tests := []struct {
		line      string
		pid       string
		price     string
		currency  string
		year      int
		month     string
		condition string
		variant   string
	}{
		{"116500LN white $32,500", "116500LN", "32500", "USD", 0, "<nil>", "<nil>", "white"},
		{"228235 2023 HKD 420000", "228235", "420000", "HKD", 2023, "<nil>", "<nil>", "<nil>"},
		{"126334-0001 2023/05 full set 98k", "126334-0001", "98000", "HKD", 2023, "May", "Full Set", "<nil>"},
		{"15202ST 23y 1.2m", "15202ST", "1200000", "HKD", 2023, "<nil>", "<nil>", "<nil>"},
		{"RM 11-03 titanium USD 250k", "RM11-03", "250000", "USD", 0, "<nil>", "<nil>", "titanium"},
		{"126610LN Mar 2024 like new 110000", "126610LN", "110000", "HKD", 2024, "Mar", "Like New", "<nil>"},
		{"USD: 126710BLNR 150000", "126710BLNR", "150000", "USD", 0, "<nil>", "<nil>", "<nil>"},
		{"5711/1A-010 2.1m", "5711/1A-010", "2100000", "HKD", 0, "<nil>", "<nil>", "<nil>"},
		{"126710blnr jub 145000hkd", "126710BLNR", "145000", "HKD", 0, "<nil>", "<nil>", "jub"},
		{"124060 05/2022 unworn HK$ 98,000", "124060", "98000", "HKD", 2022, "May", "Unworn", "<nil>"},
		{"4500V/110A-B128 blue 2021 €30000", "4500V/110A-B128", "30000", "EUR", 2021, "<nil>", "<nil>", "blue"},
	}
	x := NewListingExtractor(ListingConfig{})
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got := x.Extract(context.Background(), tt.line)
			if len(got) != 1 {
				t.Fatalf("got %d listings, want 1", len(got))
			}
			l := got[0]
			if l.PID != tt.pid {
				t.Errorf("PID = %q, want %q", l.PID, tt.pid)
			}
			if price(l) != tt.price {
				t.Errorf("Price = %s, want %s", price(l), tt.price)
			}
			if str(l.Currency) != tt.currency {
				t.Errorf("Currency = %s, want %s", str(l.Currency), tt.currency)
			}
			if year(l.Year) != tt.year {
				t.Errorf("Year = %d, want %d", year(l.Year), tt.year)
			}
			if str(l.Month) != tt.month {
				t.Errorf("Month = %s, want %s", str(l.Month), tt.month)
			}
			if str(l.Condition) != tt.condition {
				t.Errorf("Condition = %s, want %s", str(l.Condition), tt.condition)
			}
			if str(l.Variant) != tt.variant {
				t.Errorf("Variant = %q, want %q", str(l.Variant), tt.variant)
			}
		})
	}
}

// TestExtract_NoListings verifies ordinary chatter yields nothing.
func TestExtract_NoListings(t *testing.T) {
	x := NewListingExtractor(ListingConfig{})
	for _, text := range []string{
		"Good morning everyone",
		"HKD 145000",
		"meeting at 2023 dinner?",
		"Deposit 50000 received thanks",
		"Range 140000 - 150000 hkd call me",
		"budget 120000 to 150000",
		"call 123456",
		"",
	} {
		if got := x.Extract(context.Background(), text); len(got) != 0 {
			t.Errorf("Extract(%q) = %d listings, want 0", text, len(got))
		}
	}
}

// TestExtract_NumericPID verifies when a bare digit run is taken as the
// reference code.
func TestExtract_NumericPID(t *testing.T) {
	x := NewListingExtractor(ListingConfig{})
	tests := []struct {
		text    string
		wantPID string
		price   string
	}{
		{"116500 2021 300000", "116500", "300000"},
		{"124060 05/2022 unworn HK$ 98,000", "124060", "98000"},
		{"326934 2019 450k", "326934", "450000"},
	}
	for _, tt := range tests {
		got := x.Extract(context.Background(), tt.text)
		if len(got) != 1 {
			t.Errorf("Extract(%q) = %d listings, want 1", tt.text, len(got))
			continue
		}
		if got[0].PID != tt.wantPID {
			t.Errorf("Extract(%q) pid = %q, want %q", tt.text, got[0].PID, tt.wantPID)
		}
		if p := got[0].Price; p == nil || p.String() != tt.price {
			t.Errorf("Extract(%q) price = %v, want %s", tt.text, p, tt.price)
		}
	}
}

// TestExtract_ZeroPrice verifies a zero amount is neither a price nor a
// variant.
func TestExtract_ZeroPrice(t *testing.T) {
	x := NewListingExtractor(ListingConfig{})
	got := x.Extract(context.Background(), "126710BLNR HKD 0")
	if len(got) != 1 {
		t.Fatalf("got %d listings, want 1", len(got))
	}
	if got[0].Variant != nil {
		t.Errorf("variant = %q, want nil", *got[0].Variant)
	}
	if got[0].Price != nil {
		t.Errorf("price = %v, want nil", got[0].Price)
	}
}

// TestExtract_Segments verifies "//" splitting and duplicate suppression.
func TestExtract_Segments(t *testing.T) {
	x := NewListingExtractor(ListingConfig{})
	got := x.Extract(context.Background(), "126710BLNR 145k // 126610LV 120k\n126710BLNR 145k")
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2", len(got))
	}
	if got[0].PID != "126710BLNR" || got[1].PID != "126610LV" {
		t.Errorf("PIDs = %s, %s", got[0].PID, got[1].PID)
	}
	if price(got[1]) != "120000" {
		t.Errorf("second price = %s", price(got[1]))
	}
}

// TestExtract_FollowingLine verifies a bare pid line borrows the next
// line's price and year.
func TestExtract_FollowingLine(t *testing.T) {
	x := NewListingExtractor(ListingConfig{})
	text := "WTS\n126610LN black sub\nFull set 2022 HKD 115,000\n5711/1A-010 2.1m"
	got := x.Extract(context.Background(), text)
	if len(got) != 2 {
		t.Fatalf("got %d listings, want 2", len(got))
	}
	l := got[0]
	if l.RawLine != "126610LN black sub // Full set 2022 HKD 115,000" {
		t.Errorf("RawLine = %q", l.RawLine)
	}
	if year(l.Year) != 2022 || price(l) != "115000" || str(l.Currency) != "HKD" {
		t.Errorf("borrowed fields = %d %s %s", year(l.Year), price(l), str(l.Currency))
	}
	if str(l.Condition) != "Full Set" || str(l.Variant) != "black sub" {
		t.Errorf("condition/variant = %q / %q", str(l.Condition), str(l.Variant))
	}

	// A following line with its own code stops the lookahead.
	got = x.Extract(context.Background(), "126610LN\n116500LN 2020\nHKD 300000")
	if len(got) != 2 || got[0].RawLine != "126610LN" {
		t.Errorf("lookahead crossed a pid line: %+v", got)
	}
}

// TestExtract_MediaLines verifies attachment placeholders are skipped.
func TestExtract_MediaLines(t *testing.T) {
	x := NewListingExtractor(ListingConfig{})
	tests := []struct {
		text string
		want []string
	}{
		{"<attached: 00000031-PHOTO-2024-05-01.jpg>\n126710BLNR 145000\nimage omitted 116500LN", []string{"126710BLNR"}},
		{"<Media omitted>\n126710BLNR 145000", []string{"126710BLNR"}},
		{"Photos of 126710BLNR 145000", []string{"126710BLNR"}},
		{"photo shoot done\n116500LN 2021 300000", []string{"116500LN"}},
		{"video omitted\n116500LN 2021 300000", []string{"116500LN"}},
	}
	for _, tt := range tests {
		got := x.Extract(context.Background(), tt.text)
		var pids []string
		for _, l := range got {
			pids = append(pids, l.PID)
		}
		if strings.Join(pids, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Extract(%q) pids = %v, want %v", tt.text, pids, tt.want)
		}
	}
}

// TestExtract_Enrichment verifies reference hits and failures.
func TestExtract_Enrichment(t *testing.T) {
	ref := &fakeReference{rows: map[string]models.WatchReference{
		"15202ST": {PIDPrefix: "15202", Brand: "Audemars Piguet", Family: "Royal Oak"},
	}}
	x := NewListingExtractor(ListingConfig{Reference: ref, DefaultCurrency: "usd"})
	got := x.Extract(context.Background(), "15202ST 100k\n126710BLNR 145000")
	if len(got) != 2 {
		t.Fatalf("got %d listings", len(got))
	}
	if str(got[0].Brand) != "Audemars Piguet" || str(got[0].Family) != "Royal Oak" {
		t.Errorf("enrichment = %s / %s", str(got[0].Brand), str(got[0].Family))
	}
	if str(got[0].Currency) != "USD" {
		t.Errorf("default currency = %s, want USD", str(got[0].Currency))
	}
	if got[1].Brand != nil {
		t.Error("miss should leave brand nil")
	}

	ref.err = errors.New("db down")
	got = x.Extract(context.Background(), "15202ST 100k")
	if len(got) != 1 || got[0].Brand != nil {
		t.Errorf("lookup failure should degrade to nil: %+v", got)
	}
}

// TestContainsPID verifies numeric runs alone do not count.
func TestContainsPID(t *testing.T) {
	if !ContainsPID("selling 5711/1A today") {
		t.Error("Patek code not detected")
	}
	if ContainsPID("call me at 145000") {
		t.Error("bare digits should not count")
	}
	if ContainsPID("2023/05") {
		t.Error("year/month is not a code")
	}
}

// TestClassify verifies the requirement classifier.
func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want models.RequirementType
		ok   bool
	}{
		{"WTB 126710BLNR", models.RequirementWTB, true},
		{"want to buy a 5711", models.RequirementWTB, true},
		{"Looking for 5711/1A any condition", models.RequirementLookingFor, true},
		{"Anyone has 15500ST?", models.RequirementLookingFor, true},
		{"LF 126610LN", models.RequirementLookingFor, true},
		{"Selling 126710BLNR 145k", "", false},
		{"the self-winding caliber", "", false},
	}
	for _, tt := range tests {
		got, ok := Classify(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Classify(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

// TestRequirementExtract verifies the reduced grammar.
func TestRequirementExtract(t *testing.T) {
	x := NewRequirementExtractor(nil, 0)
	got := x.Extract(context.Background(), "WTB 126710BLNR Batman full set 140k\n2023 please")
	if len(got) != 1 {
		t.Fatalf("got %d requirements, want 1", len(got))
	}
	r := got[0]
	if r.PID != "126710BLNR" || r.MessageType != models.RequirementWTB {
		t.Errorf("requirement = %+v", r)
	}
	if str(r.Condition) != "Full Set" {
		t.Errorf("Condition = %s", str(r.Condition))
	}
	if str(r.Variant) != "Batman" {
		t.Errorf("Variant = %q", str(r.Variant))
	}

	if got := x.Extract(context.Background(), "126710BLNR 145000"); got != nil {
		t.Errorf("non-request yielded %d requirements", len(got))
	}
}
