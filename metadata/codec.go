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

package metadata

import "encoding/binary"

const maxFixedMetaSize = 1 + binary.MaxVarintLen64*2 + binary.MaxVarintLen32

// Encode serializes m the same way the teacher's metadata.encode did: a
// one-byte type tag followed by varint-encoded expire/version/size, with
// the string value (if any) appended verbatim afterward.
func (m *KeyMeta) Encode() []byte {
	buffer := make([]byte, maxFixedMetaSize+len(m.Value))
	buffer[0] = byte(m.Type)

	index := 1
	index += binary.PutVarint(buffer[index:], m.Expire)
	index += binary.PutVarint(buffer[index:], m.Version)
	index += binary.PutVarint(buffer[index:], int64(m.Size))

	if m.Type == TypeString {
		index += copy(buffer[index:], m.Value)
	}

	return buffer[:index]
}

// Decode reverses Encode.
func Decode(buffer []byte) *KeyMeta {
	dataType := DataType(buffer[0])

	index := 1
	expire, n := binary.Varint(buffer[index:])
	index += n

	version, n := binary.Varint(buffer[index:])
	index += n

	size, n := binary.Varint(buffer[index:])
	index += n

	meta := &KeyMeta{
		Type:    dataType,
		Expire:  expire,
		Version: version,
		Size:    uint32(size),
	}

	if dataType == TypeString && index < len(buffer) {
		meta.Value = append([]byte(nil), buffer[index:]...)
	}

	return meta
}
