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

// Package proxyerrors maps the proxy's internal errors onto RESP error
// replies, and standardizes the handful of sentinel errors every command
// layer needs.
package proxyerrors

import (
	"errors"
	"fmt"

	"github.com/kvredis/proxy/metadata"
)

var (
	ErrWrongNumberOfArguments = errors.New("ERR wrong number of arguments")
	ErrNotAFloat              = errors.New("ERR value is not a valid float")
	ErrNotAnInteger           = errors.New("ERR value is not an integer or out of range")
	ErrSyntax                 = errors.New("ERR syntax error")
)

// ToReplyMessage converts err into the message text a RESP error reply
// should carry, preserving Redis's existing error prefixes (WRONGTYPE,
// ERR, ...) where the error already has one and prefixing "ERR " otherwise.
func ToReplyMessage(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, metadata.ErrWrongType) {
		return metadata.ErrWrongType.Error()
	}

	msg := err.Error()
	if hasKnownPrefix(msg) {
		return msg
	}
	return fmt.Sprintf("ERR %s", msg)
}

func hasKnownPrefix(msg string) bool {
	for _, prefix := range []string{"ERR ", "WRONGTYPE ", "NOSCRIPT ", "MOVED ", "READONLY "} {
		if len(msg) >= len(prefix) && msg[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}
