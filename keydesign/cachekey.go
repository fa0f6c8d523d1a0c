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

import "encoding/binary"

const slotPrefixLen = 4

// cache key:
//         +--------------+------------+-----------+
// key =>  | slot (4byte) | logicalKey | version    |
//         |              |            | (8 bytes)  |
//         +--------------+------------+-----------+
//
// sub keys append a type-specific suffix (member, field, or score+member) to
// this same prefix, exactly as the teacher's *InternalKey.encode did for a
// single slot.

func slotPrefix(slot uint32) []byte {
	b := make([]byte, slotPrefixLen)
	binary.BigEndian.PutUint32(b, slot)
	return b
}

// SlotPrefix returns the physical key prefix shared by every CacheKey (and
// therefore every sub-key) ever minted for slot, regardless of logical key or
// metadata version. A kv.Engine.DeleteSlot(SlotPrefix(slot)) call evicts an
// entire slot's data in one sweep, e.g. when a slot is migrated away from
// this proxy.
func SlotPrefix(slot uint32) []byte {
	return slotPrefix(slot)
}

// CacheKey returns the stable handle identifying logicalKey within slot at
// the given metadata version. Two logical keys with identical bytes but
// different slots, or the same slot but different versions (i.e. the key was
// deleted and recreated), never collide. It also serves as sub_key_prefix:
// every physical sub-key for this logical key shares this exact prefix.
func CacheKey(slot uint32, version int64, logicalKey []byte) []byte {
	buf := make([]byte, slotPrefixLen+len(logicalKey)+8)

	idx := 0
	copy(buf[idx:], slotPrefix(slot))
	idx += slotPrefixLen

	copy(buf[idx:], logicalKey)
	idx += len(logicalKey)

	binary.LittleEndian.PutUint64(buf[idx:], uint64(version))

	return buf
}

// SubKeyPrefix is CacheKey under another name, kept distinct so call sites
// read like the operations they model (spec's sub_key_prefix).
func SubKeyPrefix(slot uint32, version int64, logicalKey []byte) []byte {
	return CacheKey(slot, version, logicalKey)
}

// NextBytes returns the smallest byte string that is strictly greater than
// every string having prefix as a prefix, i.e. the exclusive upper bound of a
// prefix scan. Returns nil if prefix has no upper bound (every byte is 0xFF).
func NextBytes(prefix []byte) []byte {
	next := make([]byte, len(prefix))
	copy(next, prefix)

	for i := len(next) - 1; i >= 0; i-- {
		if next[i] < 0xFF {
			next[i]++
			return next[:i+1]
		}
	}

	return nil
}
