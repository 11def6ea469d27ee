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

// Package chatexport imports exported chat transcripts. Each "[date, time]
// sender: body" header starts a message; lines without a header continue
// the previous message's body.
package chatexport

import (
	"bufio"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/bcem/watchfeed/internal/models"
	"github.com/bcem/watchfeed/internal/normalize"
)

var headerRe = regexp.MustCompile(`^\[([\d/.]+),\s*(\d{1,2}:\d{2}(?::\d{2})?\s*[APMapm]{2})\]\s*([^:]+?):\s*(.*)$`)

// exportSuffix marks addresses synthesized for transcript conversations and
// name-only senders.
const exportSuffix = "@export"

// Exports are normally written day-first. Month-first layouts are tried
// last so dates like 12/31/23 from US-locale phones still parse.
var timestampLayouts = []string{
	"2/1/2006 3:04:05 PM",
	"2/1/2006 3:04 PM",
	"2/1/06 3:04:05 PM",
	"2/1/06 3:04 PM",
	"2.1.2006 3:04:05 PM",
	"2.1.06 3:04 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/06 3:04:05 PM",
	"1/2/06 3:04 PM",
}

// Entry is one parsed transcript message.
type Entry struct {
	Date   string
	Time   string
	Sender string
	Body   string
	// At is the parsed header time in loc; zero if the header did not parse.
	At time.Time
}

// cleanLine strips the direction marks and narrow spaces exports embed
// around headers.
var cleanLine = strings.NewReplacer(
	"\ufeff", "",
	"\u200e", "",
	"\u200f", "",
	"\u202f", " ",
	"\u00a0", " ",
)

// Parse reads a transcript. Lines before the first header are ignored.
func Parse(r io.Reader, loc *time.Location) ([]Entry, error) {
	if loc == nil {
		loc = time.UTC
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)

	var (
		out []Entry
		cur *Entry
	)
	for sc.Scan() {
		line := cleanLine.Replace(sc.Text())
		if m := headerRe.FindStringSubmatch(line); m != nil {
			if cur != nil {
				out = append(out, *cur)
			}
			cur = &Entry{
				Date:   m[1],
				Time:   strings.ToUpper(m[2]),
				Sender: strings.TrimSpace(m[3]),
				Body:   m[4],
			}
			cur.At = parseTimestamp(cur.Date, cur.Time, loc)
			continue
		}
		if cur != nil {
			cur.Body += "\n" + line
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	if cur != nil {
		out = append(out, *cur)
	}
	return out, nil
}

func parseTimestamp(date, clock string, loc *time.Location) time.Time {
	clock = strings.Join(strings.Fields(clock), " ")
	if !strings.Contains(clock, " ") && len(clock) > 2 {
		clock = clock[:len(clock)-2] + " " + clock[len(clock)-2:]
	}
	v := date + " " + clock
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// ChatName derives the conversation name from a transcript file name.
func ChatName(path string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	for _, prefix := range []string{"WhatsApp Chat with ", "WhatsApp Chat - "} {
		stem = strings.TrimPrefix(stem, prefix)
	}
	return strings.TrimSpace(stem)
}

// Message converts an entry into a pipeline message for chat. The message
// ID is derived from the entry's content so re-importing a file is
// recognized as a redelivery.
func Message(chat string, e Entry) *models.InboundMessage {
	sum := sha1.Sum([]byte(chat + "\x00" + e.Date + "\x00" + e.Time + "\x00" + e.Sender + "\x00" + e.Body))
	group := chat + exportSuffix

	msg := &models.InboundMessage{
		MessageID:     "export-" + hex.EncodeToString(sum[:10]),
		RawText:       strings.TrimSpace(e.Body),
		GroupAddress:  &group,
		GroupNameHint: chat,
		SourceFormat:  models.FormatChatExport,
	}
	if !e.At.IsZero() {
		msg.TimestampMillis = e.At.UnixMilli()
	}

	if isPhone(e.Sender) {
		digits := normalize.Digits(e.Sender)
		msg.SenderAddress = digits + "@s.whatsapp.net"
		msg.SenderPhone = normalize.FormatPhone(digits)
	} else {
		msg.SenderAddress = strings.ToLower(e.Sender) + exportSuffix
		msg.SenderName = e.Sender
	}
	return msg
}

func isPhone(s string) bool {
	digits := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-' || r == '(' || r == ')':
		default:
			return false
		}
	}
	return digits >= 7
}
