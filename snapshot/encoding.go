/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// encodeFrames lays out every component as a length-prefixed frame:
// [id-len uint32][id][version int32][payload-len uint32][payload].
// A flat binary framing (rather than encoding/gob or JSON) keeps the
// on-disk revision format stable independent of Go's type reflection,
// matching the teacher's line-oriented stream/persistence.go encoding in
// spirit while allowing arbitrary binary payloads per component.
func encodeFrames(components []encodedComponent) []byte {
	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, c := range components {
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c.ID)))
		buf.Write(lenBuf[:])
		buf.WriteString(c.ID)

		binary.BigEndian.PutUint32(lenBuf[:], uint32(c.Version))
		buf.Write(lenBuf[:])

		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(c.Payload)))
		buf.Write(lenBuf[:])
		buf.Write(c.Payload)
	}
	return buf.Bytes()
}

func decodeFrames(data []byte) ([]encodedComponent, error) {
	var out []encodedComponent
	r := bytes.NewReader(data)
	var lenBuf [4]byte
	for r.Len() > 0 {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("snapshot: corrupt frame header: %w", err)
		}
		idLen := binary.BigEndian.Uint32(lenBuf[:])
		id := make([]byte, idLen)
		if _, err := io.ReadFull(r, id); err != nil {
			return nil, fmt.Errorf("snapshot: corrupt frame id: %w", err)
		}

		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("snapshot: corrupt frame version: %w", err)
		}
		version := int32(binary.BigEndian.Uint32(lenBuf[:]))

		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("snapshot: corrupt frame payload length: %w", err)
		}
		payloadLen := binary.BigEndian.Uint32(lenBuf[:])
		payload := make([]byte, payloadLen)
		if payloadLen > 0 {
			if _, err := io.ReadFull(r, payload); err != nil {
				return nil, fmt.Errorf("snapshot: corrupt frame payload: %w", err)
			}
		}

		out = append(out, encodedComponent{ID: string(id), Version: int(version), Payload: payload})
	}
	return out, nil
}
