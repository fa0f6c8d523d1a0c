/*
 * Copyright (c) 2024. Shuojiang Liu.
 * Licensed under the MIT License (the "License");
 * you may not use this file except in compliance with the License.
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lrucache

import (
	"sync"
	"time"
)

// HotKeyDetector flags logical keys touched at least threshold times within
// one window, so callers can treat them differently (the zset commanders
// materialize a key into the LRU cache only once it is hot). A key's count
// restarts once its window has passed, so a key that was hot a minute ago
// doesn't stay flagged forever.
type HotKeyDetector struct {
	mu        sync.Mutex
	window    time.Duration
	threshold int
	buckets   map[string]*bucket
}

type bucket struct {
	count      int
	windowedAt time.Time
}

// NewHotKeyDetector returns a detector that flags a key once it is touched
// threshold or more times within window.
func NewHotKeyDetector(window time.Duration, threshold int) *HotKeyDetector {
	return &HotKeyDetector{
		window:    window,
		threshold: threshold,
		buckets:   make(map[string]*bucket),
	}
}

// Touch records one access to logicalKey within class (e.g. "zset") and
// reports whether that key is now considered hot.
func (d *HotKeyDetector) Touch(logicalKey []byte, class string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := class + ":" + string(logicalKey)
	b, ok := d.buckets[key]
	if !ok || now.Sub(b.windowedAt) > d.window {
		b = &bucket{windowedAt: now}
		d.buckets[key] = b
	}

	b.count++
	return b.count >= d.threshold
}

// IsHotKey reports the current hot status of logicalKey without recording
// an access.
func (d *HotKeyDetector) IsHotKey(logicalKey []byte, class string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	b, ok := d.buckets[class+":"+string(logicalKey)]
	if !ok || now.Sub(b.windowedAt) > d.window {
		return false
	}
	return b.count >= d.threshold
}
