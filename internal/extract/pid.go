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
	"regexp"
	"strings"
)

// pidShape is one manufacturer's reference-code layout.
type pidShape struct {
	name string
	re   *regexp.Regexp
	// numeric shapes are bare digit runs that could equally be a price.
	numeric bool
	reject  func(code string) bool
}

const (
	minPIDLen = 4
	maxPIDLen = 24
)

// pidShapes is the shape dictionary. Order matters only for ties: when
// two shapes match at the same offset the longer match wins, then the
// earlier shape.
var pidShapes = []pidShape{
	{name: "audemars_piguet", re: regexp.MustCompile(`(?i)(?:15|26|77|67)\d{3}[a-z]{2}(?:\.[a-z0-9]{2}\.[a-z0-9]{4,5}[a-z]{0,2}\.\d{2})?`)},
	{name: "vacheron_constantin", re: regexp.MustCompile(`(?i)\d{4,5}[a-z]/\d{3}[a-z](?:-[a-z0-9]{4})?`)},
	{name: "omega", re: regexp.MustCompile(`\d{3}\.\d{2}\.\d{2}\.\d{2}\.\d{2}\.\d{3}`)},
	{name: "richard_mille", re: regexp.MustCompile(`(?i)rm\s?-?\d{2,3}(?:-\d{2})?`)},
	{name: "patek_philippe", re: regexp.MustCompile(`(?i)\d{4}/\d{1,4}[a-z]{0,3}(?:-\d{3})?`), reject: isYearMonth},
	{name: "patek_philippe", re: regexp.MustCompile(`(?i)\d{4}[argjpt]{1,2}(?:-\d{3})?`), reject: hasReservedSuffix},
	{name: "rolex", re: regexp.MustCompile(`(?i)\d{5,6}[a-z]{1,6}(?:-\d{4})?`), reject: hasReservedSuffix},
	{name: "rolex", re: regexp.MustCompile(`\d{6}-\d{4}`)},
	{name: "rolex", re: regexp.MustCompile(`\d{5,6}`), numeric: true},
}

var yearMonthRe = regexp.MustCompile(`^(?:19|20)\d{2}/(?:0?[1-9]|1[0-2])$`)

func isYearMonth(code string) bool { return yearMonthRe.MatchString(code) }

// reservedSuffixes are letter runs that turn a digit run into a price or a
// year rather than a reference code.
var reservedSuffixes = map[string]bool{
	"k": true, "m": true, "mil": true, "mill": true, "million": true, "kk": true,
	"y": true, "yr": true, "yrs": true, "year": true, "years": true,
	"hkd": true, "usd": true, "usdt": true, "eur": true, "chf": true, "gbp": true,
	"sgd": true, "aed": true, "cny": true, "rmb": true, "jpy": true,
}

func hasReservedSuffix(code string) bool {
	code = strings.ToLower(code)
	if i := strings.IndexByte(code, '-'); i >= 0 {
		code = code[:i]
	}
	j := len(code)
	for j > 0 && code[j-1] >= 'a' && code[j-1] <= 'z' {
		j--
	}
	return reservedSuffixes[code[j:]]
}

type pidMatch struct {
	start, end int
	code       string
	numeric    bool
}

// findPIDs returns every non-overlapping, word-bounded reference-code
// token in text, leftmost first.
func findPIDs(text string) []pidMatch {
	var all []pidMatch
	for _, s := range pidShapes {
		for _, loc := range s.re.FindAllStringIndex(text, -1) {
			code := text[loc[0]:loc[1]]
			if !wordBounded(text, loc[0], loc[1]) {
				continue
			}
			if s.reject != nil && s.reject(code) {
				continue
			}
			code = normalizePID(code)
			if len(code) < minPIDLen || len(code) > maxPIDLen {
				continue
			}
			all = append(all, pidMatch{start: loc[0], end: loc[1], code: code, numeric: s.numeric})
		}
	}

	// Leftmost first, then longest.
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && better(all[j], all[j-1]); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	var out []pidMatch
	for _, m := range all {
		overlaps := false
		for _, o := range out {
			if m.start < o.end && o.start < m.end {
				overlaps = true
				break
			}
		}
		if !overlaps {
			out = append(out, m)
		}
	}
	return out
}

func better(a, b pidMatch) bool {
	if a.start != b.start {
		return a.start < b.start
	}
	return a.end-a.start > b.end-b.start
}

func normalizePID(code string) string {
	code = strings.ToUpper(code)
	return strings.Join(strings.Fields(code), "")
}

// ContainsPID reports whether text carries anything shaped like an
// alphanumeric reference code.
func ContainsPID(text string) bool {
	for _, m := range findPIDs(text) {
		if !m.numeric {
			return true
		}
	}
	return false
}

// pidMatcher claims the line's reference code. Alphanumeric codes are
// always preferred. A bare digit run is taken only when the line has no
// alphanumeric code and the run passes numericPID.
var pidMatcher = matcher{field: FieldPID, match: func(l *line, r *result) bool {
	found := findPIDs(l.text)
	var chosen *pidMatch
	for i := range found {
		m := &found[i]
		if !m.numeric {
			if chosen == nil {
				chosen = m
			}
			l.claim(m.start, m.end, FieldPID)
		}
	}
	if chosen == nil {
		for i := range found {
			m := &found[i]
			if !m.numeric {
				continue
			}
			if numericPID(l, m) {
				chosen = m
				l.claim(m.start, m.end, FieldPID)
			}
			break
		}
	}
	if chosen == nil {
		return false
	}
	r.pid = chosen.code
	return true
}}

// numericPID decides whether a bare digit run is a reference code. It must
// be the first number on the line, start like a catalogue number, not be
// priced or part of a range, and the rest of the line must carry a year,
// a condition or a price.
func numericPID(l *line, m *pidMatch) bool {
	if firstNumber(l.text) != m.start || !strings.ContainsRune(numericPrefixes, rune(m.code[0])) {
		return false
	}
	if pricingContext(l.text, m.start, m.end) || inRange(l.text, m.start, m.end) {
		return false
	}

	scratch := newLine(l.text)
	scratch.claims = append(append(scratch.claims, l.claims...), span{start: m.start, end: m.end, field: FieldPID})
	var rest result
	for _, mt := range []matcher{yearMatcher, priceMatcher, conditionMatcher} {
		if mt.match(scratch, &rest) {
			return true
		}
	}
	return false
}

// numericPrefixes are the leading digits of all-numeric catalogue codes
// (Rolex 1xxxxx-3xxxxx, AP 15xxx/26xxx).
const numericPrefixes = "123"

// inRange reports whether the run is one end of "a - b", "a~b" or "a to b".
func inRange(text string, start, end int) bool {
	after := strings.TrimLeft(text[end:], " ")
	for _, sep := range []string{"-", "~", "–", "to "} {
		if rest, ok := strings.CutPrefix(strings.ToLower(after), sep); ok {
			if rest = strings.TrimLeft(rest, " "); rest != "" && rest[0] >= '0' && rest[0] <= '9' {
				return true
			}
		}
	}
	before := strings.TrimRight(text[:start], " ")
	for _, sep := range []string{"-", "~", "–", " to"} {
		if rest, ok := strings.CutSuffix(strings.ToLower(before), sep); ok {
			if rest = strings.TrimRight(rest, " "); rest != "" && rest[len(rest)-1] >= '0' && rest[len(rest)-1] <= '9' {
				return true
			}
		}
	}
	return false
}

func firstNumber(text string) int {
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			return i
		}
	}
	return -1
}

// pricingContext reports whether a digit run is preceded by a currency
// token or followed by a magnitude suffix or currency token.
func pricingContext(text string, start, end int) bool {
	if _, _, ok := currencyBefore(text, start); ok {
		return true
	}
	if _, _, ok := magnitudeAfter(text, end); ok {
		return true
	}
	if _, _, ok := currencyAfter(text, end); ok {
		return true
	}
	return false
}
