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

package zsetcmd

import (
	"math"
	"strconv"

	"github.com/kvredis/proxy/model"
	"github.com/kvredis/proxy/proxyerrors"
)

// formatScore renders a score the way Redis's RESP2 bulk-string score
// replies look: shortest round-tripping decimal, integers without a
// trailing ".0".
func formatScore(score float64) []byte {
	return []byte(strconv.FormatFloat(score, 'f', -1, 64))
}

func parseFloatStrict(s string) (float64, error) {
	score, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, proxyerrors.ErrNotAFloat
	}
	if math.IsNaN(score) {
		return 0, proxyerrors.ErrNotAFloat
	}
	return score, nil
}

func parseIntStrict(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, proxyerrors.ErrNotAnInteger
	}
	return n, nil
}

// membersToReply renders a []model.Member as a flat RESP array, optionally
// interleaving scores (ZRANGE ... WITHSCORES and friends).
func membersToReply(members []model.Member, withScores bool) []interface{} {
	out := make([]interface{}, 0, len(members)*boolToFactor(withScores))
	for _, m := range members {
		out = append(out, []byte(m.Name))
		if withScores {
			out = append(out, formatScore(m.Score))
		}
	}
	return out
}

func boolToFactor(b bool) int {
	if b {
		return 2
	}
	return 1
}

// normalizeRange turns Redis's signed, possibly-negative start/stop
// indices into a valid, clamped [start, stop] inclusive range over a
// collection of length n. Returns ok=false if the resulting range is empty.
func normalizeRange(start, stop, n int) (int, int, bool) {
	if n == 0 {
		return 0, 0, false
	}
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
