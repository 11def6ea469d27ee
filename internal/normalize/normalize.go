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

// Package normalize converts inbound chat-gateway webhook bodies into the
// canonical InboundMessage. Unusable deliveries are not errors: they come
// back as a Result with a drop reason and no message.
package normalize

import (
	"sort"
	"strings"
	"time"

	"github.com/bcem/watchfeed/internal/models"
)

// DropReason tags why a delivery produced no message.
type DropReason string

const (
	ReasonInvalidJSON      DropReason = "invalid_json"
	ReasonUnrecognized     DropReason = "unrecognized_payload"
	ReasonUnsupportedEvent DropReason = "unsupported_event"
	ReasonFromMe           DropReason = "from_me"
	ReasonStatusBroadcast  DropReason = "status_broadcast"
	ReasonEmptyText        DropReason = "empty_text"
	ReasonNoSender         DropReason = "no_sender"
	ReasonNoMessageID      DropReason = "no_message_id"
)

const (
	statusBroadcast = "status@broadcast"
	groupSuffix     = "@g.us"
	linkedSuffix    = "@lid"
)

// Result is the outcome of normalizing one delivery. Exactly one of
// Message, Groups or Reason is set.
type Result struct {
	Shape    Shape
	Event    string
	Instance string
	Message  *models.InboundMessage
	Groups   []GroupUpdate
	Reason   DropReason
}

// Normalize decodes body and builds the canonical message. receivedAt is
// used when the payload carries no send time.
func Normalize(body []byte, receivedAt time.Time) Result {
	switch p := Decode(body).(type) {
	case MessagePayload:
		res := Result{Shape: p.Layout, Event: p.Event, Instance: p.Instance}
		msg, reason := fromEnvelope(p.Envelope, formatFor(p.Layout), receivedAt)
		if reason != "" {
			res.Reason = reason
			return res
		}
		msg.Instance = p.Instance
		res.Message = msg
		return res
	case GroupsPayload:
		return Result{Shape: ShapeGroups, Event: p.Event, Instance: p.Instance, Groups: p.Groups}
	case UnknownPayload:
		return Result{Shape: ShapeUnknown, Event: p.Event, Reason: p.Reason}
	default:
		return Result{Shape: ShapeUnknown, Reason: ReasonUnrecognized}
	}
}

func formatFor(s Shape) models.SourceFormat {
	switch s {
	case ShapeNested:
		return models.FormatNested
	case ShapeBatch:
		return models.FormatBatch
	case ShapeArray:
		return models.FormatArray
	default:
		return models.FormatEvent
	}
}

func fromEnvelope(env envelope, format models.SourceFormat, receivedAt time.Time) (*models.InboundMessage, DropReason) {
	if env.Key.FromMe {
		return nil, ReasonFromMe
	}
	chat := strings.TrimSpace(env.Key.RemoteJid)
	if chat == statusBroadcast {
		return nil, ReasonStatusBroadcast
	}

	text := messageText(env.Message)
	if text == "" {
		return nil, ReasonEmptyText
	}

	if env.Key.ID == "" {
		return nil, ReasonNoMessageID
	}

	isGroup := strings.HasSuffix(chat, groupSuffix)
	sender := senderAddress(env, chat, isGroup)
	if sender == "" {
		return nil, ReasonNoSender
	}

	ts := receivedAt.UnixMilli()
	if secs, ok := parseTimestamp(env.MessageTimestamp); ok {
		if secs > 1e12 {
			ts = secs // already milliseconds
		} else {
			ts = secs * 1000
		}
	}

	msg := &models.InboundMessage{
		MessageID:       env.Key.ID,
		RawText:         text,
		SenderAddress:   sender,
		SenderPhone:     senderPhone(env, chat, isGroup),
		SenderName:      strings.TrimSpace(env.PushName),
		TimestampMillis: ts,
		SourceFormat:    format,
	}
	if isGroup {
		g := chat
		msg.GroupAddress = &g
		msg.GroupNameHint = firstNonEmpty(env.GroupSubject, env.GroupName, env.Subject, env.ChatName)
		msg.StubHints = stubHints(env)
	}
	return msg, ""
}

// messageText resolves the text content: plain, then extended, then a
// media caption.
func messageText(m *messageContent) string {
	if m == nil {
		return ""
	}
	if t := strings.TrimSpace(m.Conversation); t != "" {
		return t
	}
	if m.ExtendedTextMessage != nil {
		if t := strings.TrimSpace(m.ExtendedTextMessage.Text); t != "" {
			return t
		}
	}
	for _, c := range []*captioned{m.ImageMessage, m.VideoMessage, m.DocumentMessage} {
		if c != nil {
			if t := strings.TrimSpace(c.Caption); t != "" {
				return t
			}
		}
	}
	return ""
}

// senderAddress picks the sender in priority order: linked identifier,
// standard direct address, explicit sender field, then the conversation
// itself for direct chats.
func senderAddress(env envelope, chat string, isGroup bool) string {
	k := env.Key
	if k.SenderLid != "" {
		return k.SenderLid
	}
	if strings.HasSuffix(k.Participant, linkedSuffix) {
		return k.Participant
	}
	if !isGroup && strings.HasSuffix(chat, linkedSuffix) {
		return chat
	}
	for _, a := range []string{k.Participant, k.ParticipantAlt, k.ParticipantPn, k.SenderPn} {
		if a != "" {
			return a
		}
	}
	if env.Sender != "" {
		return env.Sender
	}
	if !isGroup {
		return chat
	}
	return ""
}

// senderPhone formats the first address that encodes a phone number.
// Linked identifiers do not.
func senderPhone(env envelope, chat string, isGroup bool) string {
	k := env.Key
	candidates := []string{k.SenderPn, k.ParticipantPn, k.ParticipantAlt, k.Participant}
	if !isGroup {
		candidates = append(candidates, k.RemoteJidAlt, chat)
	}
	for _, a := range candidates {
		if a == "" || strings.HasSuffix(a, linkedSuffix) || strings.HasSuffix(a, groupSuffix) {
			continue
		}
		if p := FormatPhone(LocalPart(a)); p != "" {
			return p
		}
	}
	return ""
}

// stubHints gathers loose strings from stub parameters and context
// metadata that might name the group.
func stubHints(env envelope) []string {
	var hints []string
	hints = append(hints, env.MessageStubParameters...)
	collectNames(env.ContextInfo, 0, &hints)
	if m := env.Message; m != nil {
		if m.ExtendedTextMessage != nil {
			collectNames(m.ExtendedTextMessage.ContextInfo, 0, &hints)
		}
		for _, c := range []*captioned{m.ImageMessage, m.VideoMessage, m.DocumentMessage} {
			if c != nil {
				collectNames(c.ContextInfo, 0, &hints)
			}
		}
	}

	seen := make(map[string]struct{}, len(hints))
	out := hints[:0]
	for _, h := range hints {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		if _, dup := seen[h]; dup {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// collectNames walks a context map collecting string values whose keys
// look like a name or title.
func collectNames(m map[string]any, depth int, out *[]string) {
	if m == nil || depth > 3 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			lk := strings.ToLower(k)
			if strings.Contains(lk, "subject") || strings.Contains(lk, "title") || strings.HasSuffix(lk, "name") {
				*out = append(*out, v)
			}
		case map[string]any:
			collectNames(v, depth+1, out)
		}
	}
}
