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

package chatexport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bcem/watchfeed/internal/models"
	"github.com/bcem/watchfeed/internal/pipeline"
)

const transcript = "Messages and calls are end-to-end encrypted.\n" +
	"[04/07/2025, 9:15:02 AM] Ravi: 126710BLNR Batman 2023 used 145000\n" +
	"116500LN 2021 HKD 300000\n" +
	"[04/07/2025, 9:16 PM] +852 9123 4567: ‎image omitted\n" +
	"[5/7/25, 10:01 am] Ravi: WTB 126610LN full set\n"

func TestParse(t *testing.T) {
	entries, err := Parse(strings.NewReader(transcript), time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}

	first := entries[0]
	if first.Sender != "Ravi" {
		t.Errorf("sender = %q", first.Sender)
	}
	if first.Body != "126710BLNR Batman 2023 used 145000\n116500LN 2021 HKD 300000" {
		t.Errorf("body = %q", first.Body)
	}
	if want := time.Date(2025, 7, 4, 9, 15, 2, 0, time.UTC); !first.At.Equal(want) {
		t.Errorf("at = %v, want %v", first.At, want)
	}

	if entries[1].Sender != "+852 9123 4567" {
		t.Errorf("phone sender = %q", entries[1].Sender)
	}
	if want := time.Date(2025, 7, 4, 21, 16, 0, 0, time.UTC); !entries[1].At.Equal(want) {
		t.Errorf("pm time = %v, want %v", entries[1].At, want)
	}
	if want := time.Date(2025, 7, 5, 10, 1, 0, 0, time.UTC); !entries[2].At.Equal(want) {
		t.Errorf("short date = %v, want %v", entries[2].At, want)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		date, clock string
		want        time.Time
	}{
		{"04/07/2025", "9:15:02 AM", time.Date(2025, 7, 4, 9, 15, 2, 0, time.UTC)},
		{"5/7/25", "10:01 AM", time.Date(2025, 7, 5, 10, 1, 0, 0, time.UTC)},
		{"12/31/23", "9:15:02 PM", time.Date(2023, 12, 31, 21, 15, 2, 0, time.UTC)},
		{"1/13/2024", "8:00 AM", time.Date(2024, 1, 13, 8, 0, 0, 0, time.UTC)},
		{"13/13/23", "9:15 PM", time.Time{}},
	}
	for _, tt := range tests {
		got := parseTimestamp(tt.date, tt.clock, time.UTC)
		if !got.Equal(tt.want) {
			t.Errorf("parseTimestamp(%q, %q) = %v, want %v", tt.date, tt.clock, got, tt.want)
		}
	}
}

func TestParse_MonthFirst(t *testing.T) {
	entries, err := Parse(strings.NewReader("[12/31/23, 9:15:02 PM] Bob: 126710BLNR 2023 145000\n"), time.UTC)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if want := time.Date(2023, 12, 31, 21, 15, 2, 0, time.UTC); !entries[0].At.Equal(want) {
		t.Errorf("at = %v, want %v", entries[0].At, want)
	}
	if msg := Message("Dealers", entries[0]); msg.TimestampMillis != entries[0].At.UnixMilli() {
		t.Errorf("timestamp_ms = %d", msg.TimestampMillis)
	}
}

func TestChatName(t *testing.T) {
	tests := map[string]string{
		"/data/WhatsApp Chat with HK Watch Dealers.txt": "HK Watch Dealers",
		"chats/Rolex Club.txt":                          "Rolex Club",
		"WhatsApp Chat - AP Traders.txt":                "AP Traders",
	}
	for path, want := range tests {
		if got := ChatName(path); got != want {
			t.Errorf("ChatName(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestMessage(t *testing.T) {
	named := Message("Rolex Club", Entry{Date: "04/07/2025", Time: "9:15 AM", Sender: "Ravi", Body: " 126710BLNR 145k "})
	if named.SourceFormat != models.FormatChatExport {
		t.Errorf("format = %q", named.SourceFormat)
	}
	if named.Group() != "Rolex Club@export" || named.GroupNameHint != "Rolex Club" {
		t.Errorf("group = %q hint %q", named.Group(), named.GroupNameHint)
	}
	if named.SenderName != "Ravi" || named.SenderAddress != "ravi@export" {
		t.Errorf("sender = %q %q", named.SenderName, named.SenderAddress)
	}
	if named.RawText != "126710BLNR 145k" {
		t.Errorf("raw = %q", named.RawText)
	}

	phone := Message("Rolex Club", Entry{Sender: "+91 98218 22960", Body: "hi"})
	if phone.SenderAddress != "919821822960@s.whatsapp.net" {
		t.Errorf("address = %q", phone.SenderAddress)
	}
	if phone.SenderName != "" {
		t.Errorf("phone sender has name %q", phone.SenderName)
	}

	again := Message("Rolex Club", Entry{Date: "04/07/2025", Time: "9:15 AM", Sender: "Ravi", Body: " 126710BLNR 145k "})
	if again.MessageID != named.MessageID {
		t.Error("message ID not stable across imports")
	}
	if phone.MessageID == named.MessageID {
		t.Error("distinct entries share a message ID")
	}
}

func TestImportDir(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "WhatsApp Chat with HK Dealers.txt")
	if err := os.WriteFile(path, []byte(transcript), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.md"), []byte("ignored"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := pipeline.New(pipeline.Config{})
	im := NewImporter(ImporterConfig{Processor: p, Concurrency: 2})

	res, err := im.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("ImportDir: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0].Chat != "HK Dealers" {
		t.Fatalf("files = %+v", res.Files)
	}
	if res.Messages != 3 {
		t.Errorf("messages = %d, want 3", res.Messages)
	}
	if res.Listings != 2 {
		t.Errorf("listings = %d, want 2", res.Listings)
	}
	if res.Requirements != 1 {
		t.Errorf("requirements = %d, want 1", res.Requirements)
	}

	again, err := im.ImportDir(context.Background(), dir)
	if err != nil {
		t.Fatalf("second ImportDir: %v", err)
	}
	if again.Duplicates != 3 || again.Listings != 0 {
		t.Errorf("reimport duplicates = %d listings = %d, want 3 and 0", again.Duplicates, again.Listings)
	}
}

func TestImportDir_Empty(t *testing.T) {
	im := NewImporter(ImporterConfig{Processor: pipeline.New(pipeline.Config{})})
	if _, err := im.ImportDir(context.Background(), t.TempDir()); err == nil {
		t.Error("expected error for a directory without transcripts")
	}
}
