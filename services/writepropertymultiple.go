// Copyright 2025 Scadalynx
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

import (
	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// WriteValue is one property/value/priority triple within a
// WritePropertyMultiple request's per-object list.
type WriteValue struct {
	Property   bacstack.PropertyIdentifier
	ArrayIndex *int
	Value      encoding.Value
	Priority   *uint8
}

// WriteAccessSpec is one object's worth of a WritePropertyMultiple
// request.
type WriteAccessSpec struct {
	Object bacstack.ObjectIdentifier
	Values []WriteValue
}

// EncodeWritePropertyMultipleRequest builds the service payload: a flat
// sequence of WriteAccessSpecification entries, mirroring
// ReadAccessSpecification's opening/closing tag 1 wrapper but with each
// entry carrying a value (tag 2, open/close) and optional priority (tag 3).
func EncodeWritePropertyMultipleRequest(specs []WriteAccessSpec) []byte {
	var out []byte
	for _, spec := range specs {
		out = append(out, encoding.EncodeContextObjectIdentifier(0, spec.Object)...)
		out = append(out, encoding.EncodeOpeningTag(1)...)
		for _, wv := range spec.Values {
			out = append(out, encoding.EncodeContextEnumerated(0, uint32(wv.Property))...)
			if wv.ArrayIndex != nil {
				out = append(out, encoding.EncodeContextUnsigned(1, uint32(*wv.ArrayIndex))...)
			}
			out = append(out, encoding.EncodeOpeningTag(2)...)
			out = append(out, encoding.EncodeApplicationValue(wv.Value)...)
			out = append(out, encoding.EncodeClosingTag(2)...)
			if wv.Priority != nil {
				out = append(out, encoding.EncodeContextUnsigned(3, uint32(*wv.Priority))...)
			}
		}
		out = append(out, encoding.EncodeClosingTag(1)...)
	}
	return out
}

// DecodeWritePropertyMultipleRequest parses the full sequence of
// WriteAccessSpecification entries.
func DecodeWritePropertyMultipleRequest(buf []byte) ([]WriteAccessSpec, error) {
	var specs []WriteAccessSpec
	offset := 0
	for offset < len(buf) {
		oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
		if err != nil {
			return nil, err
		}
		offset = next

		meta, next, err := encoding.DecodeTag(buf, offset)
		if err != nil {
			return nil, err
		}
		if !meta.Opening || meta.Number != 1 {
			return nil, bacstack.ErrMalformedTag
		}
		offset = next

		var values []WriteValue
		for {
			if meta, next, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 1 {
				offset = next
				break
			}
			propID, next, err := decodeContextEnumerated(buf, offset, 0)
			if err != nil {
				return nil, err
			}
			offset = next

			wv := WriteValue{Property: bacstack.PropertyIdentifier(propID)}
			if encoding.IsContextSpecific(buf, offset, 1) {
				idx, next, err := decodeContextUnsigned(buf, offset, 1)
				if err != nil {
					return nil, err
				}
				i := int(idx)
				wv.ArrayIndex = &i
				offset = next
			}

			meta, next, err := encoding.DecodeTag(buf, offset)
			if err != nil {
				return nil, err
			}
			if !meta.Opening || meta.Number != 2 {
				return nil, bacstack.ErrMalformedTag
			}
			value, next, err := encoding.DecodeApplicationValue(buf, next)
			if err != nil {
				return nil, err
			}
			offset = next
			if meta, next2, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 2 {
				offset = next2
			}
			wv.Value = value

			if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 3) {
				pr, next, err := decodeContextUnsigned(buf, offset, 3)
				if err != nil {
					return nil, err
				}
				p := uint8(pr)
				wv.Priority = &p
				offset = next
			}
			values = append(values, wv)
		}
		specs = append(specs, WriteAccessSpec{Object: oid, Values: values})
	}
	return specs, nil
}
