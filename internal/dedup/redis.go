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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long a key is remembered in Redis.
	DefaultTTL = 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "watchfeed:seen:"
)

// RedisFilter tracks seen keys in Redis so replicas share one window.
type RedisFilter struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisFilter creates a dedup filter backed by Redis.
func NewRedisFilter(rdb *redis.Client, ttl time.Duration) *RedisFilter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisFilter{
		rdb: rdb,
		ttl: ttl,
	}
}

// IsNew returns true if the key has NOT been seen before.
// If true, the key is marked as seen atomically (SETNX).
func (f *RedisFilter) IsNew(ctx context.Context, key string) (bool, error) {
	// Keys embed message text; hash them to keep Redis keys short.
	sum := sha256.Sum256([]byte(key))
	redisKey := keyPrefix + hex.EncodeToString(sum[:])

	set, err := f.rdb.SetNX(ctx, redisKey, 1, f.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedup SETNX: %w", err)
	}

	return set, nil
}
