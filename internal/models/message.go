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

// Package models defines the data structures shared across the ingestion service.
package models

// SourceFormat tags which inbound payload shape produced a message.
type SourceFormat string

const (
	FormatEvent      SourceFormat = "event"
	FormatNested     SourceFormat = "nested"
	FormatBatch      SourceFormat = "batch"
	FormatArray      SourceFormat = "array"
	FormatChatExport SourceFormat = "chat_export"
)

// InboundMessage is one normalized chat message. It is built once by the
// normalizer (or the chat-export importer) and never mutated afterwards.
type InboundMessage struct {
	MessageID       string       `json:"message_id"`
	RawText         string       `json:"raw_text"`
	SenderAddress   string       `json:"sender_address"`
	SenderPhone     string       `json:"sender_phone,omitempty"`
	SenderName      string       `json:"sender_name,omitempty"`
	GroupAddress    *string      `json:"group_address,omitempty"` // nil for direct chats
	TimestampMillis int64        `json:"timestamp_ms"`
	SourceFormat    SourceFormat `json:"source_format"`
	Instance        string       `json:"instance,omitempty"`

	// GroupNameHint is an explicitly provided conversation name, if the
	// provider sent one.
	GroupNameHint string `json:"group_name_hint,omitempty"`
	// StubHints are loose strings lifted from stub/context metadata that
	// may contain the group's name.
	StubHints []string `json:"stub_hints,omitempty"`
}

// IsGroup reports whether the message was posted in a group conversation.
func (m *InboundMessage) IsGroup() bool {
	return m.GroupAddress != nil && *m.GroupAddress != ""
}

// Group returns the group address, or "" for direct chats.
func (m *InboundMessage) Group() string {
	if m.GroupAddress == nil {
		return ""
	}
	return *m.GroupAddress
}
