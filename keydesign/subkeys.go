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

// ========================================= Sorted Set =========================================

// actual data part 1 (member -> score):
//                                             +---------------+
// [cacheKey | kindMember | member] =>        |     score     |
//                                             +---------------+
//
// actual data part 2 (score+member -> NULL), ordered for range scans:
//                                                                    +---------------+
// [cacheKey | kindScore | score | member | memberSize (4byte)] =>   |     NULL      |
//                                                                    +---------------+
//
// SubKey1 and SubKey2 share the cacheKey prefix but diverge on a one-byte
// "kind" tag immediately after it; without that tag the two sub-key spaces
// would interleave under byte-wise ordering (a member happens to start with
// the same bytes as some other key's encoded score) and a prefix scan meant
// for one space would silently return entries from the other.
const (
	zsetKindMember byte = 0x01
	zsetKindScore  byte = 0x02
)

// ZSetSubKey1Prefix is the common prefix of every SubKey1 (member->score)
// entry for logicalKey; used as a range-scan bound by the lex-range family.
func ZSetSubKey1Prefix(slot uint32, version int64, logicalKey []byte) []byte {
	prefix := CacheKey(slot, version, logicalKey)
	buf := make([]byte, len(prefix)+1)
	copy(buf, prefix)
	buf[len(prefix)] = zsetKindMember
	return buf
}

// ZSetSubKey2Prefix is the common prefix of every SubKey2 (score+member)
// entry for logicalKey; used as a range-scan bound by the rank/score-range
// and ZREVRANK families.
func ZSetSubKey2Prefix(slot uint32, version int64, logicalKey []byte) []byte {
	prefix := CacheKey(slot, version, logicalKey)
	buf := make([]byte, len(prefix)+1)
	copy(buf, prefix)
	buf[len(prefix)] = zsetKindScore
	return buf
}

// ZSetMemberSubKey1 builds the member -> score sub-key (SubKey1 in spec.md
// §3.1).
func ZSetMemberSubKey1(slot uint32, version int64, logicalKey, member []byte) []byte {
	prefix := ZSetSubKey1Prefix(slot, version, logicalKey)
	buf := make([]byte, len(prefix)+len(member))
	copy(buf, prefix)
	copy(buf[len(prefix):], member)
	return buf
}

// DecodeZSetMemberBySubKey1 recovers the member encoded by ZSetMemberSubKey1.
func DecodeZSetMemberBySubKey1(subKey []byte, slot uint32, version int64, logicalKey []byte) []byte {
	prefixLen := len(ZSetSubKey1Prefix(slot, version, logicalKey))
	member := make([]byte, len(subKey)-prefixLen)
	copy(member, subKey[prefixLen:])
	return member
}

// ZSetMemberSubKey2 builds the score+member -> NULL sub-key (SubKey2 in
// spec.md §3.1). The member length is appended as a fixed 4-byte suffix so
// DecodeZSetMemberBySubKey2 can recover a variable-length member even though
// it sits after a fixed-length score.
func ZSetMemberSubKey2(slot uint32, version int64, logicalKey, member []byte, score float64) []byte {
	prefix := ZSetSubKey2Prefix(slot, version, logicalKey)
	scoreBytes := EncodeScore(score)

	buf := make([]byte, len(prefix)+len(scoreBytes)+len(member)+4)
	idx := 0
	copy(buf[idx:], prefix)
	idx += len(prefix)
	copy(buf[idx:], scoreBytes)
	idx += len(scoreBytes)
	copy(buf[idx:], member)
	idx += len(member)
	binary.BigEndian.PutUint32(buf[idx:], uint32(len(member)))

	return buf
}

// DecodeZSetScoreBySubKey2 recovers the score encoded by ZSetMemberSubKey2.
func DecodeZSetScoreBySubKey2(subKey []byte, slot uint32, version int64, logicalKey []byte) float64 {
	prefixLen := len(ZSetSubKey2Prefix(slot, version, logicalKey))
	return DecodeScore(subKey[prefixLen : prefixLen+8])
}

// DecodeZSetMemberBySubKey2 recovers the member encoded by ZSetMemberSubKey2.
func DecodeZSetMemberBySubKey2(subKey []byte, slot uint32, version int64, logicalKey []byte) []byte {
	sizeOffset := len(subKey) - 4
	memberSize := binary.BigEndian.Uint32(subKey[sizeOffset:])
	memberStart := sizeOffset - int(memberSize)

	member := make([]byte, memberSize)
	copy(member, subKey[memberStart:sizeOffset])
	return member
}

// ========================================= Hash =========================================

// actual data:
//                               +---------------+
// [cacheKey | field] =>        |     value     |
//                               +---------------+

// HashFieldSubKey builds the field sub-key for the Hash data structure.
func HashFieldSubKey(slot uint32, version int64, logicalKey, field []byte) []byte {
	prefix := CacheKey(slot, version, logicalKey)
	buf := make([]byte, len(prefix)+len(field))
	copy(buf, prefix)
	copy(buf[len(prefix):], field)
	return buf
}

// DecodeHashField recovers the field encoded by HashFieldSubKey.
func DecodeHashField(subKey []byte, slot uint32, version int64, logicalKey []byte) []byte {
	prefixLen := len(CacheKey(slot, version, logicalKey))
	field := make([]byte, len(subKey)-prefixLen)
	copy(field, subKey[prefixLen:])
	return field
}

// ========================================= Set =========================================

// actual data:
//                                           +---------------+
// [cacheKey | member | memberSize(4byte)] =>|     NULL      |
//                                           +---------------+

// SetMemberSubKey builds the member sub-key for the Set data structure.
func SetMemberSubKey(slot uint32, version int64, logicalKey, member []byte) []byte {
	prefix := CacheKey(slot, version, logicalKey)
	buf := make([]byte, len(prefix)+len(member)+4)
	idx := len(prefix)
	copy(buf, prefix)
	copy(buf[idx:], member)
	idx += len(member)
	binary.BigEndian.PutUint32(buf[idx:], uint32(len(member)))
	return buf
}

// DecodeSetMember recovers the member encoded by SetMemberSubKey.
func DecodeSetMember(subKey []byte, slot uint32, version int64, logicalKey []byte) []byte {
	sizeOffset := len(subKey) - 4
	memberSize := binary.BigEndian.Uint32(subKey[sizeOffset:])
	start := sizeOffset - int(memberSize)

	member := make([]byte, memberSize)
	copy(member, subKey[start:sizeOffset])
	return member
}
