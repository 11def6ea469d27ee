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

// Package dedup suppresses reprocessing of messages the gateway delivers
// more than once. The in-memory Window is authoritative for a single
// process; RedisFilter extends the same check across replicas.
package dedup

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// bodyPrefixRunes is how much of the message body participates in the key.
const bodyPrefixRunes = 50

// Checker reports whether a key has not been seen before, marking it seen
// in the same step.
type Checker interface {
	IsNew(ctx context.Context, key string) (bool, error)
}

// Key builds the dedup key for a message: its ID plus the first 50
// characters of its body. Gateways occasionally reuse IDs across edits, so
// the body prefix keeps a genuinely different message from being dropped.
func Key(messageID, body string) string {
	prefix := body
	if utf8.RuneCountInString(body) > bodyPrefixRunes {
		n := 0
		for i := range body {
			if n == bodyPrefixRunes {
				prefix = body[:i]
				break
			}
			n++
		}
	}
	return messageID + "|" + prefix
}

// Chain consults each checker in order. A key is new only if every layer
// reports it new. A layer that errors is skipped, so a Redis outage
// degrades to the in-memory answer.
type Chain []Checker

// IsNew implements Checker.
func (c Chain) IsNew(ctx context.Context, key string) (bool, error) {
	isNew := true
	for _, layer := range c {
		ok, err := layer.IsNew(ctx, key)
		if err != nil {
			slog.Warn("dedup layer failed, proceeding", "error", err)
			continue
		}
		if !ok {
			isNew = false
		}
	}
	return isNew, nil
}
