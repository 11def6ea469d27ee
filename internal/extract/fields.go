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
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// currencyCodes maps lower-case codes to their canonical form.
var currencyCodes = map[string]string{
	"hkd": "HKD", "usd": "USD", "usdt": "USDT", "eur": "EUR", "chf": "CHF",
	"gbp": "GBP", "sgd": "SGD", "aed": "AED", "cny": "CNY", "rmb": "CNY",
	"jpy": "JPY",
}

// currencySymbols is checked in order so that HK$ wins over $.
var currencySymbols = []struct {
	sym, code string
}{
	{"HK$", "HKD"}, {"hk$", "HKD"}, {"US$", "USD"}, {"us$", "USD"},
	{"$", "USD"}, {"€", "EUR"}, {"£", "GBP"}, {"¥", "JPY"},
}

var magnitudes = map[string]decimal.Decimal{
	"k":       decimal.NewFromInt(1_000),
	"kk":      decimal.NewFromInt(1_000_000),
	"m":       decimal.NewFromInt(1_000_000),
	"mil":     decimal.NewFromInt(1_000_000),
	"mill":    decimal.NewFromInt(1_000_000),
	"million": decimal.NewFromInt(1_000_000),
}

// minBarePriceDigits is how many integer digits a number needs to count as
// a price without a currency or magnitude next to it.
const minBarePriceDigits = 5

type priceToken struct {
	amount   decimal.Decimal
	currency string // "" when no currency was adjacent
}

func letterRunBefore(text string, i int) (start int) {
	start = i
	for start > 0 {
		r, size := utf8.DecodeLastRuneInString(text[:start])
		if !unicode.IsLetter(r) {
			break
		}
		start -= size
	}
	return start
}

func letterRunAfter(text string, i int) (end int) {
	end = i
	for end < len(text) {
		r, size := utf8.DecodeRuneInString(text[end:])
		if !unicode.IsLetter(r) {
			break
		}
		end += size
	}
	return end
}

func skipSpaceBack(text string, i int, extra string) int {
	for i > 0 && (text[i-1] == ' ' || text[i-1] == '\t' || strings.IndexByte(extra, text[i-1]) >= 0) {
		i--
	}
	return i
}

func skipSpace(text string, i int) int {
	for i < len(text) && (text[i] == ' ' || text[i] == '\t') {
		i++
	}
	return i
}

// currencyBefore looks for a currency token ending just before position i,
// allowing spaces and a colon between.
func currencyBefore(text string, i int) (code string, start int, ok bool) {
	j := skipSpaceBack(text, i, ":")
	for _, s := range currencySymbols {
		if strings.HasSuffix(text[:j], s.sym) {
			k := j - len(s.sym)
			if s.sym == "$" && k > 0 && isLetterAt(text, k-1) {
				continue // handled as part of a prefixed symbol or a word
			}
			return s.code, k, true
		}
	}
	k := letterRunBefore(text, j)
	if c, found := currencyCodes[strings.ToLower(text[k:j])]; found && k < j {
		return c, k, true
	}
	return "", 0, false
}

// currencyAfter looks for a currency token starting just after position i.
// A token that is itself followed by a number belongs to that number.
func currencyAfter(text string, i int) (code string, end int, ok bool) {
	j := skipSpace(text, i)
	for _, s := range currencySymbols {
		if strings.HasPrefix(text[j:], s.sym) {
			code, end = s.code, j+len(s.sym)
			break
		}
	}
	if code == "" {
		k := letterRunAfter(text, j)
		c, found := currencyCodes[strings.ToLower(text[j:k])]
		if !found || k == j {
			return "", 0, false
		}
		code, end = c, k
	}
	if n := skipSpace(text, end); n < len(text) && (text[n] >= '0' && text[n] <= '9' || text[n] == ':') {
		return "", 0, false
	}
	return code, end, true
}

// magnitudeAfter looks for k/m/mil style suffixes right after a number.
// The whole letter run must be the suffix, so "145 mint" has none.
func magnitudeAfter(text string, i int) (mult decimal.Decimal, end int, ok bool) {
	j := skipSpace(text, i)
	k := letterRunAfter(text, j)
	if k == j {
		return decimal.Decimal{}, 0, false
	}
	if m, found := magnitudes[strings.ToLower(text[j:k])]; found {
		return m, k, true
	}
	return decimal.Decimal{}, 0, false
}

func isLetterAt(text string, i int) bool {
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r)
}

func alnumBefore(text string, i int) bool {
	if i == 0 {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '/'
}

func alnumAfter(text string, i int) bool {
	if i >= len(text) {
		return false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

var (
	yearMonthFwdRe = regexp.MustCompile(`((?:19|20)\d{2})[/.\-](0?[1-9]|1[0-2])`)
	yearMonthRevRe = regexp.MustCompile(`(0?[1-9]|1[0-2])[/.\-]((?:19|20)\d{2})`)
	year4Re        = regexp.MustCompile(`(?i)((?:19|20)\d{2})(?:\s?(?:years|year|yrs|yr|y))?`)
	year2Re        = regexp.MustCompile(`(?i)(\d{2})\s?(?:yrs|yr|y)`)
)

var monthAbbrev = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

func monthName(n string) string {
	i, err := strconv.Atoi(n)
	if err != nil || i < 1 || i > 12 {
		return ""
	}
	return monthAbbrev[i-1]
}

// yearMatcher claims the first year token: year/month, month/year, a
// four-digit year, or a two-digit year with a y/yr suffix.
var yearMatcher = matcher{field: FieldYear, match: func(l *line, r *result) bool {
	for _, loc := range yearMonthFwdRe.FindAllStringSubmatchIndex(l.text, -1) {
		if wordBounded(l.text, loc[0], loc[1]) && l.claim(loc[0], loc[1], FieldYear) {
			r.year, _ = strconv.Atoi(l.text[loc[2]:loc[3]])
			r.month = monthName(l.text[loc[4]:loc[5]])
			return true
		}
	}
	for _, loc := range yearMonthRevRe.FindAllStringSubmatchIndex(l.text, -1) {
		if wordBounded(l.text, loc[0], loc[1]) && l.claim(loc[0], loc[1], FieldYear) {
			r.month = monthName(l.text[loc[2]:loc[3]])
			r.year, _ = strconv.Atoi(l.text[loc[4]:loc[5]])
			return true
		}
	}
	for _, loc := range year4Re.FindAllStringSubmatchIndex(l.text, -1) {
		start, end := loc[0], loc[1]
		if !wordBounded(l.text, start, end) {
			// "2023 yellow": the suffix was a word, keep just the digits
			end = loc[3]
		}
		if !wordBounded(l.text, start, end) || pricingContext(l.text, loc[2], loc[3]) {
			continue
		}
		if l.claim(start, end, FieldYear) {
			r.year, _ = strconv.Atoi(l.text[loc[2]:loc[3]])
			return true
		}
	}
	for _, loc := range year2Re.FindAllStringSubmatchIndex(l.text, -1) {
		if !wordBounded(l.text, loc[0], loc[1]) {
			continue
		}
		if l.claim(loc[0], loc[1], FieldYear) {
			n, _ := strconv.Atoi(l.text[loc[2]:loc[3]])
			if n < 50 {
				r.year = 2000 + n
			} else {
				r.year = 1900 + n
			}
			return true
		}
	}
	return false
}}

var numberRe = regexp.MustCompile(`\d{1,3}(?:,\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`)

func integerDigits(n string) int {
	if i := strings.IndexByte(n, '.'); i >= 0 {
		n = n[:i]
	}
	return len(n)
}

// priceMatcher claims the first number that reads as a price: one with an
// adjacent currency or magnitude token, or a bare number of at least five
// digits.
var priceMatcher = matcher{field: FieldPrice, match: func(l *line, r *result) bool {
	text := l.text
	for _, loc := range numberRe.FindAllStringIndex(text, -1) {
		s, e := loc[0], loc[1]
		if !l.free(s, e) {
			continue
		}
		curBefore, curStart, hasBefore := currencyBefore(text, s)
		if !hasBefore && alnumBefore(text, s) {
			continue
		}
		tokEnd := e
		mult, magEnd, hasMag := magnitudeAfter(text, e)
		if hasMag {
			tokEnd = magEnd
		}
		curAfter, curEnd, hasAfter := currencyAfter(text, tokEnd)
		if !hasMag && !hasAfter && alnumAfter(text, e) {
			continue
		}
		digits := strings.ReplaceAll(text[s:e], ",", "")
		if !hasMag && !hasBefore && !hasAfter && integerDigits(digits) < minBarePriceDigits {
			continue
		}
		amount, err := decimal.NewFromString(digits)
		if err != nil {
			continue
		}
		if hasMag {
			amount = amount.Mul(mult)
		}

		start, end := s, tokEnd
		tok := &priceToken{amount: amount}
		if hasBefore && l.free(curStart, s) {
			start, tok.currency = curStart, curBefore
		}
		if hasAfter && l.free(tokEnd, curEnd) {
			end = curEnd
			if tok.currency == "" {
				tok.currency = curAfter
			}
		}
		if !amount.IsPositive() {
			// Not a price, but not part of a variant either.
			l.claim(start, end, FieldNoise)
			continue
		}
		if !l.claim(start, end, FieldPrice) {
			continue
		}
		r.price = tok
		return true
	}
	return false
}}

// Requirement lines share the listing grammar but do not report prices or
// years. The tokens are still claimed so they stay out of the variant.
var priceNoiseMatcher = matcher{field: FieldNoise, match: func(l *line, r *result) bool {
	var scratch result
	matched := yearMatcher.match(l, &scratch)
	if priceMatcher.match(l, &scratch) {
		matched = true
	}
	return matched
}}

var currencyWordRe = regexp.MustCompile(`(?i)hk\$|us\$|usdt|hkd|usd|eur|chf|gbp|sgd|aed|cny|rmb|jpy|[$€£¥]`)

// findCurrency returns the first free currency token on the line and
// claims it.
func findCurrency(l *line) string {
	for _, loc := range currencyWordRe.FindAllStringIndex(l.text, -1) {
		tok := l.text[loc[0]:loc[1]]
		isCode := unicode.IsLetter(rune(tok[len(tok)-1]))
		if isCode && !wordBounded(l.text, loc[0], loc[1]) {
			continue
		}
		if !l.claim(loc[0], loc[1], FieldNoise) {
			continue
		}
		if code, ok := currencyCodes[strings.ToLower(tok)]; ok {
			return code
		}
		for _, s := range currencySymbols {
			if strings.EqualFold(s.sym, tok) {
				return s.code
			}
		}
	}
	return ""
}

var monthRe = regexp.MustCompile(`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\b`)

// monthMatcher claims a spelled-out month when the year token did not
// already supply one.
var monthMatcher = matcher{field: FieldMonth, match: func(l *line, r *result) bool {
	if r.month != "" {
		return false
	}
	for _, loc := range monthRe.FindAllStringIndex(l.text, -1) {
		if l.claim(loc[0], loc[1], FieldMonth) {
			w := strings.ToLower(l.text[loc[0]:loc[1]])
			r.month = strings.ToUpper(w[:1]) + w[1:3]
			return true
		}
	}
	return false
}}

// conditionVocabulary is ordered by priority; the first entry present on
// a line is the condition reported.
var conditionVocabulary = []struct {
	phrase    *regexp.Regexp
	canonical string
}{
	{regexp.MustCompile(`(?i)\blike\s+new\b`), "Like New"},
	{regexp.MustCompile(`(?i)\bbrand\s+new\b`), "Brand New"},
	{regexp.MustCompile(`(?i)\bunworn\b`), "Unworn"},
	{regexp.MustCompile(`(?i)\bused\b`), "Used"},
	{regexp.MustCompile(`(?i)\bfull\s*set\b`), "Full Set"},
	{regexp.MustCompile(`(?i)\bmint\b`), "Mint"},
	{regexp.MustCompile(`(?i)\bnew\b`), "New"},
	{regexp.MustCompile(`(?i)\bonly\s+watch\b|\bwatch\s+only\b`), "Only Watch"},
}

var conditionMatcher = matcher{field: FieldCondition, match: func(l *line, r *result) bool {
	for _, c := range conditionVocabulary {
		for _, loc := range c.phrase.FindAllStringIndex(l.text, -1) {
			if l.claim(loc[0], loc[1], FieldCondition) && r.condition == "" {
				r.condition = c.canonical
			}
		}
	}
	return r.condition != ""
}}
