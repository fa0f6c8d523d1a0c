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

// Package metrics defines the narrow observability surface commanders call
// into. Its only implementation wired into cmd/proxyserver is Prometheus,
// but the command layer never imports client_golang directly.
package metrics

import "time"

// Collector is the full set of measurements the command and cache tiers
// report. A Noop implementation is used in tests.
type Collector interface {
	CommandLatency(command string, d time.Duration)
	CommandError(command string)
	CacheHit(tier string)
	CacheMiss(tier string)
	HotKeyDetected(class string)
}

// Noop discards every observation; the zero value is ready to use.
type Noop struct{}

func (Noop) CommandLatency(string, time.Duration) {}
func (Noop) CommandError(string)                  {}
func (Noop) CacheHit(string)                      {}
func (Noop) CacheMiss(string)                     {}
func (Noop) HotKeyDetected(string)                {}
