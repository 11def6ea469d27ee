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

import "testing"

// TestFormatPhone verifies phone grouping rules.
func TestFormatPhone(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "919821822960", want: "+919 821 822 960"},
		{in: "919821822960@s.whatsapp.net", want: "+919 821 822 960"},
		{in: "85291234567", want: "+852 912 345 67"},
		{in: "1234567890123", want: "+123 456 789 0123"},
		{in: "9821822960", want: "+9821822960"},
		{in: "+44 20 7946", want: "+44207946"},
		{in: "no digits", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := FormatPhone(tt.in); got != tt.want {
				t.Errorf("FormatPhone(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestLocalPart verifies address prefix extraction.
func TestLocalPart(t *testing.T) {
	tests := map[string]string{
		"919821822960@s.whatsapp.net":    "919821822960",
		"919821822960:12@s.whatsapp.net": "919821822960",
		"120363041234567890@g.us":        "120363041234567890",
		"plain":                          "plain",
	}
	for in, want := range tests {
		if got := LocalPart(in); got != want {
			t.Errorf("LocalPart(%q) = %q, want %q", in, got, want)
		}
	}
}
