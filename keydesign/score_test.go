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

package keydesign

import (
	"bytes"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncodeScoreRoundTrip(t *testing.T) {
	scores := []float64{0, -0, 1, -1, math.MaxFloat64, -math.MaxFloat64, 3.14159, -3.14159, 1e-300, -1e-300}
	for _, s := range scores {
		got := DecodeScore(EncodeScore(s))
		assert.Equal(t, s, got)
	}
}

func TestEncodeScorePreservesOrder(t *testing.T) {
	scores := []float64{-100, -1, -0.5, 0, 0.5, 1, 100, math.MaxFloat64}
	encoded := make([][]byte, len(scores))
	for i, s := range scores {
		encoded[i] = EncodeScore(s)
	}

	shuffled := append([][]byte(nil), encoded...)
	sort.Slice(shuffled, func(i, j int) bool {
		return bytes.Compare(shuffled[i], shuffled[j]) < 0
	})

	assert.Equal(t, encoded, shuffled)
}

func TestEncodeScoreFixedWidth(t *testing.T) {
	for _, s := range []float64{0, -1, 1e300, -1e300} {
		assert.Len(t, EncodeScore(s), 8)
	}
}

func TestNextBytes(t *testing.T) {
	next := NextBytes([]byte{0x01, 0x02})
	assert.Equal(t, []byte{0x01, 0x03}, next)

	assert.Nil(t, NextBytes([]byte{0xFF, 0xFF}))

	rolled := NextBytes([]byte{0x01, 0xFF})
	assert.Equal(t, []byte{0x02}, rolled)
}
