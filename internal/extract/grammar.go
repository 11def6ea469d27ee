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

// Package extract turns free-form chat lines into structured watch
// listings and buy-side requirements.
//
// Every field is found by its own matcher. Matchers run in a fixed order
// and each one claims the characters it consumes, so a later matcher can
// never reuse text an earlier one already interpreted. Whatever is left
// unclaimed becomes the variant.
package extract

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Field names a piece of a listing line.
type Field string

const (
	FieldPID       Field = "pid"
	FieldYear      Field = "year"
	FieldPrice     Field = "price"
	FieldMonth     Field = "month"
	FieldCondition Field = "condition"
	FieldNoise     Field = "noise"
)

type span struct {
	start, end int
	field      Field
}

// line is a single candidate line plus the spans claimed so far.
type line struct {
	text   string
	lower  string
	claims []span
}

func newLine(text string) *line {
	return &line{text: text, lower: strings.ToLower(text)}
}

func (l *line) free(start, end int) bool {
	for _, c := range l.claims {
		if start < c.end && c.start < end {
			return false
		}
	}
	return true
}

func (l *line) claim(start, end int, f Field) bool {
	if start >= end || !l.free(start, end) {
		return false
	}
	l.claims = append(l.claims, span{start: start, end: end, field: f})
	return true
}

func (l *line) has(f Field) bool {
	for _, c := range l.claims {
		if c.field == f {
			return true
		}
	}
	return false
}

// remainder returns the unclaimed text with claimed spans replaced by a
// space.
func (l *line) remainder() string {
	if len(l.claims) == 0 {
		return l.text
	}
	claims := append([]span(nil), l.claims...)
	sort.Slice(claims, func(i, j int) bool { return claims[i].start < claims[j].start })

	var b strings.Builder
	pos := 0
	for _, c := range claims {
		if c.start > pos {
			b.WriteString(l.text[pos:c.start])
		}
		b.WriteByte(' ')
		if c.end > pos {
			pos = c.end
		}
	}
	if pos < len(l.text) {
		b.WriteString(l.text[pos:])
	}
	return b.String()
}

// matcher finds one field in a line, claiming what it consumes. It reports
// whether it matched.
type matcher struct {
	field Field
	match func(l *line, r *result) bool
}

// result collects the fields produced by the matchers for one line.
type result struct {
	pid       string
	year      int
	month     string
	price     *priceToken
	condition string
	variant   string
}

func (r *result) hasPriceOrYear() bool {
	return r.price != nil || r.year != 0
}

// run applies matchers in order. A matcher that fails does not stop later
// ones.
func run(text string, matchers []matcher) (*line, *result) {
	l := newLine(text)
	r := &result{}
	for _, m := range matchers {
		m.match(l, r)
	}
	return l, r
}

// wordBounded reports whether text[start:end] is not glued to letters or
// digits on either side.
func wordBounded(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// noiseWords never make it into a variant.
var noiseWords = map[string]bool{
	"wts": true, "fs": true, "for": true, "sale": true, "selling": true,
	"sell": true, "price": true, "pm": true, "dm": true, "pls": true,
	"please": true, "@": true, "-": true, "/": true, "|": true, "net": true,
	"only": true, "each": true, "ready": true, "stock": true, "offer": true,
	"hk": true, "avail": true, "available": true, "the": true, "and": true,
	"with": true, "w": true, "x": true, "at": true, "asking": true,
}

// cleanVariant collapses whitespace, trims punctuation and drops noise
// words from the unclaimed remainder of a line.
func cleanVariant(rem string) string {
	fields := strings.FieldsFunc(rem, func(r rune) bool {
		return unicode.IsSpace(r) || r == ',' || r == ';' || r == '(' || r == ')' || r == '[' || r == ']' || r == '*' || r == '~'
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".:!?-_/|+=#'\"")
		if f == "" || noiseWords[strings.ToLower(f)] {
			continue
		}
		out = append(out, f)
	}
	return strings.Join(out, " ")
}
