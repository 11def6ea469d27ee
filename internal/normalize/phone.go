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

import "strings"

// FormatPhone renders the digits of raw as a display phone number.
//
//   - 11+ digits → "+XXX XXX XXX" followed by the remainder ("+919 821 822 960")
//   - 10 digits  → "+" followed by the digits
//   - otherwise  → "+" followed by the digits, unformatted
//
// Returns "" when raw contains no digits.
func FormatPhone(raw string) string {
	digits := Digits(raw)
	if digits == "" {
		return ""
	}
	if len(digits) < 11 {
		return "+" + digits
	}
	var b strings.Builder
	b.WriteString("+")
	b.WriteString(digits[0:3])
	b.WriteString(" ")
	b.WriteString(digits[3:6])
	b.WriteString(" ")
	b.WriteString(digits[6:9])
	b.WriteString(" ")
	b.WriteString(digits[9:])
	return b.String()
}

// Digits strips everything but ASCII digits.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// LocalPart returns the part of an address before '@' and any ':' device
// suffix ("919821822960:12@s.whatsapp.net" → "919821822960").
func LocalPart(address string) string {
	local := address
	if i := strings.IndexByte(local, '@'); i >= 0 {
		local = local[:i]
	}
	if i := strings.IndexByte(local, ':'); i >= 0 {
		local = local[:i]
	}
	return local
}
