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

package dedup

import (
	"context"
	"sync"
)

const (
	// DefaultCapacity is the number of keys the window remembers.
	DefaultCapacity = 100
	// DefaultCompaction is how many of the oldest keys are dropped at once
	// when the window overflows.
	DefaultCompaction = 50
)

// Window is a bounded FIFO set of recently seen keys. Check and insert
// happen under one lock, so two concurrent deliveries of the same message
// cannot both pass.
type Window struct {
	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
	compact  int
}

// NewWindow creates a window holding up to capacity keys, dropping the
// oldest compact keys in one pass once capacity is exceeded.
func NewWindow(capacity, compact int) *Window {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if compact <= 0 || compact > capacity {
		compact = DefaultCompaction
		if compact > capacity {
			compact = capacity
		}
	}
	return &Window{
		seen:     make(map[string]struct{}, capacity+1),
		order:    make([]string, 0, capacity+1),
		capacity: capacity,
		compact:  compact,
	}
}

// IsNew returns true and records the key if it is not in the window.
func (w *Window) IsNew(_ context.Context, key string) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.seen[key]; ok {
		return false, nil
	}
	w.seen[key] = struct{}{}
	w.order = append(w.order, key)

	if len(w.order) > w.capacity {
		for _, old := range w.order[:w.compact] {
			delete(w.seen, old)
		}
		w.order = append(w.order[:0:0], w.order[w.compact:]...)
	}
	return true, nil
}

// Len returns the number of keys currently held.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.order)
}
