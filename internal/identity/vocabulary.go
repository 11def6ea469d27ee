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

package identity

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/bcem/watchfeed/internal/normalize"
)

// DefaultGroupKeywords is the vocabulary used to tell a trading group's
// title apart from somebody's personal name.
var DefaultGroupKeywords = []string{
	"watch", "watches", "rolex", "patek", "ap", "audemars", "richard mille",
	"trade", "trading", "dealer", "dealers", "market", "group", "club",
	"hk", "hong kong", "wts", "wtb", "buy", "sell", "luxury", "time",
}

// Vocabulary classifies candidate names.
type Vocabulary struct {
	keywords []string
}

// NewVocabulary builds a vocabulary. An empty list uses DefaultGroupKeywords.
func NewVocabulary(keywords []string) *Vocabulary {
	if len(keywords) == 0 {
		keywords = DefaultGroupKeywords
	}
	v := &Vocabulary{}
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			v.keywords = append(v.keywords, k)
		}
	}
	return v
}

// LooksLikeGroup reports whether name contains a group keyword as a whole
// word (or phrase).
func (v *Vocabulary) LooksLikeGroup(name string) bool {
	words := " " + strings.Join(strings.FieldsFunc(strings.ToLower(name), isSeparator), " ") + " "
	for _, k := range v.keywords {
		if strings.Contains(words, " "+k+" ") {
			return true
		}
	}
	return false
}

func isSeparator(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}

// Placeholder synthesizes a display name from a group address.
func Placeholder(address string) string {
	local := normalize.LocalPart(address)
	if len(local) > 8 {
		local = local[:8]
	}
	if local == "" {
		return "Unknown Group"
	}
	return fmt.Sprintf("Group %s", local)
}
