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

// WatchReference is one row of the reference catalogue. A listing's pid is
// matched against PIDPrefix to backfill brand and family.
type WatchReference struct {
	PIDPrefix string `json:"pid_prefix" yaml:"pid"`
	Brand     string `json:"brand" yaml:"brand"`
	Family    string `json:"family" yaml:"family"`
	URL       string `json:"url,omitempty" yaml:"url"`
}
