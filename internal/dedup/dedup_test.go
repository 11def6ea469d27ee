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
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

// TestKey verifies the key uses the ID and the first 50 characters.
func TestKey(t *testing.T) {
	long := strings.Repeat("a", 60)
	if got := Key("m1", long); got != "m1|"+strings.Repeat("a", 50) {
		t.Errorf("Key truncation = %q", got)
	}
	if got := Key("m1", "short"); got != "m1|short" {
		t.Errorf("Key(short) = %q", got)
	}

	// Multi-byte characters count as one.
	euro := strings.Repeat("€", 55)
	if got := Key("m", euro); got != "m|"+strings.Repeat("€", 50) {
		t.Errorf("Key(runes) kept %d runes", len([]rune(got))-2)
	}

	if Key("m1", "same id, other text") == Key("m1", "same id, different") {
		t.Error("different bodies produced the same key")
	}
}

// TestWindow_RejectsRepeats verifies the basic check-then-insert.
func TestWindow_RejectsRepeats(t *testing.T) {
	ctx := context.Background()
	w := NewWindow(DefaultCapacity, DefaultCompaction)

	first, _ := w.IsNew(ctx, "k")
	second, _ := w.IsNew(ctx, "k")

	if !first {
		t.Error("first sighting should be new")
	}
	if second {
		t.Error("second sighting should be a duplicate")
	}
}

// TestWindow_Compaction verifies the oldest half is dropped in one pass.
func TestWindow_Compaction(t *testing.T) {
	ctx := context.Background()
	w := NewWindow(100, 50)

	for i := 0; i < 100; i++ {
		w.IsNew(ctx, fmt.Sprintf("k%d", i))
	}
	if w.Len() != 100 {
		t.Fatalf("Len = %d, want 100 before overflow", w.Len())
	}

	w.IsNew(ctx, "k100")
	if w.Len() != 51 {
		t.Fatalf("Len = %d, want 51 after compaction", w.Len())
	}

	// k0..k49 were evicted and are new again; k50 is still remembered.
	if isNew, _ := w.IsNew(ctx, "k0"); !isNew {
		t.Error("evicted key k0 should be new again")
	}
	if isNew, _ := w.IsNew(ctx, "k50"); isNew {
		t.Error("k50 should still be remembered")
	}
	if isNew, _ := w.IsNew(ctx, "k100"); isNew {
		t.Error("k100 should still be remembered")
	}
}

// TestWindow_Concurrent verifies only one of many concurrent deliveries passes.
func TestWindow_Concurrent(t *testing.T) {
	ctx := context.Background()
	w := NewWindow(DefaultCapacity, DefaultCompaction)

	var passed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := w.IsNew(ctx, "same"); ok {
				passed.Add(1)
			}
		}()
	}
	wg.Wait()

	if passed.Load() != 1 {
		t.Errorf("%d goroutines passed, want exactly 1", passed.Load())
	}
}

type failingChecker struct{}

func (failingChecker) IsNew(context.Context, string) (bool, error) {
	return false, errors.New("redis down")
}

type seenChecker struct{}

func (seenChecker) IsNew(context.Context, string) (bool, error) { return false, nil }

// TestChain verifies layering and error degradation.
func TestChain(t *testing.T) {
	ctx := context.Background()

	c := Chain{NewWindow(10, 5), failingChecker{}}
	if ok, err := c.IsNew(ctx, "k"); err != nil || !ok {
		t.Errorf("failing layer should be skipped: ok=%v err=%v", ok, err)
	}
	if ok, _ := c.IsNew(ctx, "k"); ok {
		t.Error("window layer should still catch the repeat")
	}

	c = Chain{NewWindow(10, 5), seenChecker{}}
	if ok, _ := c.IsNew(ctx, "fresh"); ok {
		t.Error("a key seen by any layer is a duplicate")
	}
}
