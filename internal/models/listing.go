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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// WatchListing is one item offered for sale, extracted from a single line
// of a message. Optional fields are nil when the line did not carry them.
type WatchListing struct {
	ID        string           `json:"id"`
	PID       string           `json:"pid"`
	Variant   *string          `json:"variant,omitempty"`
	Condition *string          `json:"condition,omitempty"`
	Price     *decimal.Decimal `json:"price,omitempty"`
	Currency  *string          `json:"currency,omitempty"`
	Year      *int             `json:"year,omitempty"`
	Month     *string          `json:"month,omitempty"`
	Brand     *string          `json:"brand,omitempty"`
	Family    *string          `json:"family,omitempty"`
	RawLine   string           `json:"raw_line"`

	MessageID     string    `json:"message_id"`
	SenderAddress string    `json:"sender_address"`
	SenderName    string    `json:"sender_name,omitempty"`
	GroupAddress  string    `json:"group_address,omitempty"`
	GroupName     string    `json:"group_name,omitempty"`
	PostedAt      time.Time `json:"posted_at"`
}

// RequirementType distinguishes explicit buy intent from a generic search.
type RequirementType string

const (
	RequirementWTB        RequirementType = "wtb"
	RequirementLookingFor RequirementType = "looking_for"
)

// Requirement is a buy-side request for a reference code. It has no price.
type Requirement struct {
	ID          string          `json:"id"`
	PID         string          `json:"pid"`
	Variant     *string         `json:"variant,omitempty"`
	Condition   *string         `json:"condition,omitempty"`
	Brand       *string         `json:"brand,omitempty"`
	Family      *string         `json:"family,omitempty"`
	MessageType RequirementType `json:"message_type"`
	RawLine     string          `json:"raw_line"`

	MessageID     string    `json:"message_id"`
	SenderAddress string    `json:"sender_address"`
	SenderName    string    `json:"sender_name,omitempty"`
	GroupAddress  string    `json:"group_address,omitempty"`
	GroupName     string    `json:"group_name,omitempty"`
	PostedAt      time.Time `json:"posted_at"`
}

// PidAlert is a standing watch on a reference code.
type PidAlert struct {
	ID                 int64            `json:"id"`
	PID                string           `json:"pid"`
	Variant            *string          `json:"variant,omitempty"`
	MinPrice           *decimal.Decimal `json:"min_price,omitempty"`
	MaxPrice           *decimal.Decimal `json:"max_price,omitempty"`
	Currency           *string          `json:"currency,omitempty"`
	NotificationTarget string           `json:"notification_target"`
}

// AlertMatch pairs a listing with an alert it satisfied.
type AlertMatch struct {
	Alert     PidAlert     `json:"alert"`
	Listing   WatchListing `json:"listing"`
	MatchedAt time.Time    `json:"matched_at"`
}
