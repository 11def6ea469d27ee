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
	"regexp"
	"time"

	"github.com/bcem/watchfeed/internal/models"
)

var (
	wtbRe        = regexp.MustCompile(`(?i)\b(?:wtb|want(?:ing)?\s+to\s+buy|buying)\b`)
	lookingForRe = regexp.MustCompile(`(?i)\b(?:looking\s+for|lf|seeking|searching\s+for|in\s+search\s+of|iso|need(?:ed)?|who\s+has|anyone\s+ha(?:s|ve))\b`)
)

// Classify decides once per message whether it is a buy-side request.
func Classify(text string) (models.RequirementType, bool) {
	switch {
	case wtbRe.MatchString(text):
		return models.RequirementWTB, true
	case lookingForRe.MatchString(text):
		return models.RequirementLookingFor, true
	}
	return "", false
}

// requestPhraseMatcher claims the classifier vocabulary so it does not
// end up in the variant.
var requestPhraseMatcher = matcher{field: FieldNoise, match: func(l *line, r *result) bool {
	matched := false
	for _, re := range []*regexp.Regexp{wtbRe, lookingForRe} {
		for _, loc := range re.FindAllStringIndex(l.text, -1) {
			if l.claim(loc[0], loc[1], FieldNoise) {
				matched = true
			}
		}
	}
	return matched
}}

// requirementMatchers is the reduced grammar: pid, condition and variant.
var requirementMatchers = []matcher{
	pidMatcher,
	requestPhraseMatcher,
	priceNoiseMatcher,
	conditionMatcher,
}

// RequirementExtractor finds buy-side requests in message text.
type RequirementExtractor struct {
	ref           Reference
	enrichTimeout time.Duration
}

// NewRequirementExtractor creates a requirement extractor. ref may be nil.
func NewRequirementExtractor(ref Reference, enrichTimeout time.Duration) *RequirementExtractor {
	if enrichTimeout <= 0 {
		enrichTimeout = 2 * time.Second
	}
	return &RequirementExtractor{ref: ref, enrichTimeout: enrichTimeout}
}

// Extract classifies text and, when it is a request, returns one
// requirement per line carrying a reference code.
func (x *RequirementExtractor) Extract(ctx context.Context, text string) []models.Requirement {
	kind, ok := Classify(text)
	if !ok {
		return nil
	}
	var out []models.Requirement
	seen := make(map[string]bool)
	for _, ln := range Lines(text) {
		for _, seg := range Segments(ln) {
			l, r := run(seg, requirementMatchers)
			if r.pid == "" || seen[r.pid+"|"+seg] {
				continue
			}
			seen[r.pid+"|"+seg] = true
			findCurrency(l)

			req := models.Requirement{
				PID:         r.pid,
				Condition:   optional(r.condition),
				Variant:     optional(cleanVariant(l.remainder())),
				MessageType: kind,
				RawLine:     seg,
			}
			req.Brand, req.Family = enrich(ctx, x.ref, x.enrichTimeout, r.pid)
			out = append(out, req)
		}
	}
	return out
}
