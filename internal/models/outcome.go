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

import "time"

// OutcomeStatus is the final tag of an accepted, non-duplicate message.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomePartial OutcomeStatus = "partial"
	OutcomeNoPID   OutcomeStatus = "no-pid"
	OutcomeError   OutcomeStatus = "error"
)

// Outcome is the processing record written once per accepted message.
type Outcome struct {
	ID            string        `json:"id"`
	MessageID     string        `json:"message_id"`
	Status        OutcomeStatus `json:"status"`
	Listings      int           `json:"listings"`
	Requirements  int           `json:"requirements"`
	Failed        int           `json:"failed"`
	Matches       int           `json:"matches"`
	Reason        string        `json:"reason,omitempty"`
	GroupAddress  string        `json:"group_address,omitempty"`
	SenderAddress string        `json:"sender_address"`
	ProcessedAt   time.Time     `json:"processed_at"`
}
