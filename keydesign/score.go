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

// Package keydesign builds and decodes every physical KV key the proxy uses:
// cache keys, sub-key prefixes, and the zset/hash/set sub-key spaces. All
// functions here are pure and collision-free within a single cache key.
package keydesign

import (
	"encoding/binary"
	"math"
)

// EncodeScore produces an 8-byte big-endian encoding of score such that
// byte-wise comparison of the result matches numeric comparison of score, for
// every finite float64 including negative values and signed zero. NaN is
// rejected by callers before reaching this function.
func EncodeScore(score float64) []byte {
	bits := math.Float64bits(score)
	if bits&signBit != 0 {
		// negative: flipping every bit reverses the magnitude ordering so
		// that more-negative numbers sort before less-negative ones.
		bits = ^bits
	} else {
		// non-negative: set the sign bit so it sorts after every negative
		// encoding.
		bits |= signBit
	}

	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, bits)
	return buf
}

// DecodeScore reverses EncodeScore.
func DecodeScore(buf []byte) float64 {
	bits := binary.BigEndian.Uint64(buf)
	if bits&signBit != 0 {
		bits &^= signBit
	} else {
		bits = ^bits
	}

	return math.Float64frombits(bits)
}

const signBit = uint64(1) << 63
