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
	"github.com/kvredis/proxy/keydesign"
	"github.com/kvredis/proxy/kv"
	"github.com/kvredis/proxy/metadata"
)

// putMemberV0 writes both sub-key spaces for member/score directly against
// the KV engine, replacing any previous score for member.
func (c *Context) putMemberV0(slot uint32, meta *metadata.KeyMeta, key, member []byte, score float64) (isNew bool, err error) {
	sk1 := keydesign.ZSetMemberSubKey1(slot, meta.Version, key, member)

	batch := c.Engine.NewBatch()

	old, err := c.Engine.Get(sk1)
	switch err {
	case nil:
		oldSK2 := keydesign.ZSetMemberSubKey2(slot, meta.Version, key, member, keydesign.DecodeScore(old))
		if err := batch.Delete(oldSK2); err != nil {
			return false, err
		}
		isNew = false
	case kv.ErrKeyNotFound:
		isNew = true
	default:
		return false, err
	}

	if err := batch.Put(sk1, keydesign.EncodeScore(score)); err != nil {
		return false, err
	}
	sk2 := keydesign.ZSetMemberSubKey2(slot, meta.Version, key, member, score)
	if err := batch.Put(sk2, nil); err != nil {
		return false, err
	}

	return isNew, batch.Commit()
}

// removeMemberV0 deletes both sub-key spaces for member, returning whether
// it was present.
func (c *Context) removeMemberV0(slot uint32, meta *metadata.KeyMeta, key, member []byte) (bool, error) {
	sk1 := keydesign.ZSetMemberSubKey1(slot, meta.Version, key, member)

	raw, err := c.Engine.Get(sk1)
	if err == kv.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	sk2 := keydesign.ZSetMemberSubKey2(slot, meta.Version, key, member, keydesign.DecodeScore(raw))

	batch := c.Engine.NewBatch()
	if err := batch.Delete(sk1); err != nil {
		return false, err
	}
	if err := batch.Delete(sk2); err != nil {
		return false, err
	}
	return true, batch.Commit()
}

// scoreOfV0 is a point lookup of member's score via SubKey1, without
// materializing the whole zset.
func (c *Context) scoreOfV0(slot uint32, meta *metadata.KeyMeta, key, member []byte) (float64, bool, error) {
	sk1 := keydesign.ZSetMemberSubKey1(slot, meta.Version, key, member)
	raw, err := c.Engine.Get(sk1)
	if err == kv.ErrKeyNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return keydesign.DecodeScore(raw), true, nil
}
