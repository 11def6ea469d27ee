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

package normalize

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Shape identifies one of the inbound webhook layouts.
type Shape string

const (
	// ShapeEvent: {"event": "...", "instance": "...", "data": {envelope}}
	ShapeEvent Shape = "event"
	// ShapeNested: {"data": {"event": "...", "data": {envelope}}}
	ShapeNested Shape = "nested"
	// ShapeBatch: {"event": "...", "data": {"messages": [{envelope}, ...]}}
	ShapeBatch Shape = "batch"
	// ShapeArray: {"event": "...", "data": [{envelope}, ...]}
	ShapeArray Shape = "array"
	// ShapeGroups: {"event": "groups.upsert", "data": [{"id": "...", "subject": "..."}]}
	ShapeGroups Shape = "groups"
	// ShapeUnknown is anything else.
	ShapeUnknown Shape = "unknown"
)

// Payload is the closed set of recognized webhook payloads. Every
// implementation lives in this file.
type Payload interface {
	Shape() Shape
	sealed()
}

// MessagePayload carries one message envelope, whatever outer shape it
// arrived in.
type MessagePayload struct {
	Layout   Shape
	Event    string
	Instance string
	Envelope envelope
}

// GroupsPayload carries group metadata updates.
type GroupsPayload struct {
	Event    string
	Instance string
	Groups   []GroupUpdate
}

// UnknownPayload is a body that matched no known layout.
type UnknownPayload struct {
	Event  string
	Reason DropReason
}

func (p MessagePayload) Shape() Shape { return p.Layout }
func (GroupsPayload) Shape() Shape    { return ShapeGroups }
func (UnknownPayload) Shape() Shape   { return ShapeUnknown }

func (MessagePayload) sealed() {}
func (GroupsPayload) sealed()  {}
func (UnknownPayload) sealed() {}

// GroupUpdate is an authoritative group name announced by the gateway.
type GroupUpdate struct {
	Address string
	Subject string
}

// wirePayload is the outer layer shared by every shape.
type wirePayload struct {
	Event      string          `json:"event"`
	Instance   json.RawMessage `json:"instance"`
	InstanceID string          `json:"instanceId"`
	InstanceSn string          `json:"instance_id"`
	Data       json.RawMessage `json:"data"`
}

// wireData is the object form of "data".
type wireData struct {
	Event      string            `json:"event"`
	Instance   json.RawMessage   `json:"instance"`
	InstanceID string            `json:"instanceId"`
	InstanceSn string            `json:"instance_id"`
	Data       json.RawMessage   `json:"data"`
	Messages   []json.RawMessage `json:"messages"`
	Key        json.RawMessage   `json:"key"`
	ID         string            `json:"id"`
	Subject    string            `json:"subject"`
}

// envelope is the message record inside every message shape.
type envelope struct {
	Key struct {
		RemoteJid      string `json:"remoteJid"`
		RemoteJidAlt   string `json:"remoteJidAlt"`
		FromMe         bool   `json:"fromMe"`
		ID             string `json:"id"`
		Participant    string `json:"participant"`
		ParticipantAlt string `json:"participantAlt"`
		ParticipantPn  string `json:"participantPn"`
		SenderLid      string `json:"senderLid"`
		SenderPn       string `json:"senderPn"`
	} `json:"key"`
	PushName string          `json:"pushName"`
	Sender   string          `json:"sender"`
	Message  *messageContent `json:"message"`

	MessageTimestamp      json.RawMessage `json:"messageTimestamp"`
	MessageStubParameters []string        `json:"messageStubParameters"`
	ContextInfo           map[string]any  `json:"contextInfo"`

	GroupSubject string `json:"groupSubject"`
	GroupName    string `json:"groupName"`
	Subject      string `json:"subject"`
	ChatName     string `json:"chatName"`
}

type captioned struct {
	Caption     string         `json:"caption"`
	ContextInfo map[string]any `json:"contextInfo"`
}

type messageContent struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage *struct {
		Text        string         `json:"text"`
		ContextInfo map[string]any `json:"contextInfo"`
	} `json:"extendedTextMessage"`
	ImageMessage    *captioned `json:"imageMessage"`
	VideoMessage    *captioned `json:"videoMessage"`
	DocumentMessage *captioned `json:"documentMessage"`
}

var messageEvents = map[string]bool{
	"messages.upsert": true,
	"messages.set":    true,
	"message":         true,
}

var groupEvents = map[string]bool{
	"groups.upsert": true,
	"groups.update": true,
}

func canonicalEvent(event string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(event)), "_", ".")
}

// Decode classifies a webhook body into one of the known payloads.
func Decode(body []byte) Payload {
	var wp wirePayload
	if err := json.Unmarshal(body, &wp); err != nil {
		return UnknownPayload{Reason: ReasonInvalidJSON}
	}

	instance := firstNonEmpty(looseString(wp.Instance), wp.InstanceID, wp.InstanceSn)
	data := bytes.TrimSpace(wp.Data)

	if wp.Event == "" {
		// Nested: the discriminator sits one level down.
		var inner wireData
		if len(data) == 0 || data[0] != '{' || json.Unmarshal(data, &inner) != nil || inner.Event == "" {
			return UnknownPayload{Reason: ReasonUnrecognized}
		}
		instance = firstNonEmpty(instance, looseString(inner.Instance), inner.InstanceID, inner.InstanceSn)
		event := canonicalEvent(inner.Event)
		if groupEvents[event] {
			return decodeGroups(inner.Event, instance, bytes.TrimSpace(inner.Data))
		}
		if !messageEvents[event] {
			return UnknownPayload{Event: inner.Event, Reason: ReasonUnsupportedEvent}
		}
		var env envelope
		if json.Unmarshal(inner.Data, &env) != nil {
			return UnknownPayload{Event: inner.Event, Reason: ReasonUnrecognized}
		}
		return MessagePayload{Layout: ShapeNested, Event: inner.Event, Instance: instance, Envelope: env}
	}

	event := canonicalEvent(wp.Event)
	if groupEvents[event] {
		return decodeGroups(wp.Event, instance, data)
	}
	if !messageEvents[event] {
		return UnknownPayload{Event: wp.Event, Reason: ReasonUnsupportedEvent}
	}
	if len(data) == 0 {
		return UnknownPayload{Event: wp.Event, Reason: ReasonUnrecognized}
	}

	if data[0] == '[' {
		var list []envelope
		if json.Unmarshal(data, &list) != nil || len(list) == 0 {
			return UnknownPayload{Event: wp.Event, Reason: ReasonUnrecognized}
		}
		return MessagePayload{Layout: ShapeArray, Event: wp.Event, Instance: instance, Envelope: list[0]}
	}

	var obj wireData
	if data[0] != '{' || json.Unmarshal(data, &obj) != nil {
		return UnknownPayload{Event: wp.Event, Reason: ReasonUnrecognized}
	}
	instance = firstNonEmpty(instance, looseString(obj.Instance), obj.InstanceID, obj.InstanceSn)

	switch {
	case len(obj.Messages) > 0:
		var env envelope
		if json.Unmarshal(obj.Messages[0], &env) != nil {
			return UnknownPayload{Event: wp.Event, Reason: ReasonUnrecognized}
		}
		return MessagePayload{Layout: ShapeBatch, Event: wp.Event, Instance: instance, Envelope: env}
	case len(obj.Key) > 0:
		var env envelope
		if json.Unmarshal(data, &env) != nil {
			return UnknownPayload{Event: wp.Event, Reason: ReasonUnrecognized}
		}
		return MessagePayload{Layout: ShapeEvent, Event: wp.Event, Instance: instance, Envelope: env}
	default:
		return UnknownPayload{Event: wp.Event, Reason: ReasonUnrecognized}
	}
}

func decodeGroups(event, instance string, data []byte) Payload {
	var items []wireData
	switch {
	case len(data) > 0 && data[0] == '[':
		if json.Unmarshal(data, &items) != nil {
			return UnknownPayload{Event: event, Reason: ReasonUnrecognized}
		}
	case len(data) > 0 && data[0] == '{':
		var one wireData
		if json.Unmarshal(data, &one) != nil {
			return UnknownPayload{Event: event, Reason: ReasonUnrecognized}
		}
		items = []wireData{one}
	default:
		return UnknownPayload{Event: event, Reason: ReasonUnrecognized}
	}

	groups := make([]GroupUpdate, 0, len(items))
	for _, it := range items {
		subject := strings.TrimSpace(it.Subject)
		if it.ID == "" || subject == "" {
			continue
		}
		groups = append(groups, GroupUpdate{Address: it.ID, Subject: subject})
	}
	if len(groups) == 0 {
		return UnknownPayload{Event: event, Reason: ReasonUnrecognized}
	}
	return GroupsPayload{Event: event, Instance: instance, Groups: groups}
}

// looseString accepts a JSON string, or an object carrying an
// instanceName/name/id field.
func looseString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var obj struct {
		InstanceName string `json:"instanceName"`
		Name         string `json:"name"`
		ID           string `json:"id"`
	}
	if json.Unmarshal(raw, &obj) == nil {
		return strings.TrimSpace(firstNonEmpty(obj.InstanceName, obj.Name, obj.ID))
	}
	return ""
}

// parseTimestamp reads seconds since epoch from a number, a numeric
// string, or a {"low": n} long.
func parseTimestamp(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		if v, err := strconv.ParseFloat(n.String(), 64); err == nil && v > 0 {
			return int64(v), true
		}
		return 0, false
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil && v > 0 {
			return v, true
		}
		return 0, false
	}
	var long struct {
		Low int64 `json:"low"`
	}
	if json.Unmarshal(raw, &long) == nil && long.Low > 0 {
		return long.Low, true
	}
	return 0, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
