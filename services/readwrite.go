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

// Package services implements confirmed-service PDU encode/decode and the
// ConfirmedServiceChoice dispatch table that drives the object database
// (spec §4.8).
package services

import (
	"fmt"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// ReadPropertyRequest is the decoded body of a ReadProperty request.
type ReadPropertyRequest struct {
	Object     bacstack.ObjectIdentifier
	Property   bacstack.PropertyIdentifier
	ArrayIndex *int
}

// EncodeReadPropertyRequest builds the service payload for ReadProperty.
func EncodeReadPropertyRequest(r ReadPropertyRequest) []byte {
	out := encoding.EncodeContextObjectIdentifier(0, r.Object)
	out = append(out, encoding.EncodeContextEnumerated(1, uint32(r.Property))...)
	if r.ArrayIndex != nil {
		out = append(out, encoding.EncodeContextUnsigned(2, uint32(*r.ArrayIndex))...)
	}
	return out
}

// DecodeReadPropertyRequest parses a ReadProperty request payload.
func DecodeReadPropertyRequest(buf []byte) (ReadPropertyRequest, error) {
	offset := 0

	oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
	if err != nil {
		return ReadPropertyRequest{}, err
	}
	offset = next

	propID, next, err := decodeContextEnumerated(buf, offset, 1)
	if err != nil {
		return ReadPropertyRequest{}, err
	}
	offset = next

	req := ReadPropertyRequest{Object: oid, Property: bacstack.PropertyIdentifier(propID)}
	if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 2) {
		idx, next, err := decodeContextUnsigned(buf, offset, 2)
		if err != nil {
			return ReadPropertyRequest{}, err
		}
		i := int(idx)
		req.ArrayIndex = &i
		offset = next
	}
	return req, nil
}

// EncodeReadPropertyAck builds the ReadProperty-ACK payload.
func EncodeReadPropertyAck(r ReadPropertyRequest, value encoding.Value) []byte {
	out := encoding.EncodeContextObjectIdentifier(0, r.Object)
	out = append(out, encoding.EncodeContextEnumerated(1, uint32(r.Property))...)
	if r.ArrayIndex != nil {
		out = append(out, encoding.EncodeContextUnsigned(2, uint32(*r.ArrayIndex))...)
	}
	out = append(out, encoding.EncodeOpeningTag(3)...)
	out = append(out, encoding.EncodeApplicationValue(value)...)
	out = append(out, encoding.EncodeClosingTag(3)...)
	return out
}

// EncodeReadPropertyAckMulti builds a ReadProperty-ACK payload carrying
// every element of an Array-schema property between one tag-3 wrapper —
// the wire shape of a whole-array SEQUENCE OF read (e.g. object_list,
// subordinate_list).
func EncodeReadPropertyAckMulti(r ReadPropertyRequest, values []encoding.Value) []byte {
	out := encoding.EncodeContextObjectIdentifier(0, r.Object)
	out = append(out, encoding.EncodeContextEnumerated(1, uint32(r.Property))...)
	if r.ArrayIndex != nil {
		out = append(out, encoding.EncodeContextUnsigned(2, uint32(*r.ArrayIndex))...)
	}
	out = append(out, encoding.EncodeOpeningTag(3)...)
	for _, v := range values {
		out = append(out, encoding.EncodeApplicationValue(v)...)
	}
	out = append(out, encoding.EncodeClosingTag(3)...)
	return out
}

// DecodeReadPropertyAck parses a ReadProperty-ACK payload.
func DecodeReadPropertyAck(buf []byte) (ReadPropertyRequest, encoding.Value, error) {
	req, err := DecodeReadPropertyRequest(buf)
	if err != nil {
		return ReadPropertyRequest{}, encoding.Value{}, err
	}

	offset := 0
	_, offset, err = skipContextField(buf, offset, 0)
	if err != nil {
		return ReadPropertyRequest{}, encoding.Value{}, err
	}
	_, offset, err = skipContextField(buf, offset, 1)
	if err != nil {
		return ReadPropertyRequest{}, encoding.Value{}, err
	}
	if req.ArrayIndex != nil {
		_, offset, err = skipContextField(buf, offset, 2)
		if err != nil {
			return ReadPropertyRequest{}, encoding.Value{}, err
		}
	}

	meta, next, err := encoding.DecodeTag(buf, offset)
	if err != nil {
		return ReadPropertyRequest{}, encoding.Value{}, err
	}
	if !meta.Opening || meta.Number != 3 {
		return ReadPropertyRequest{}, encoding.Value{}, fmt.Errorf("%w: read-property-ack missing opening tag 3", bacstack.ErrMalformedTag)
	}
	value, _, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return ReadPropertyRequest{}, encoding.Value{}, err
	}
	return req, value, nil
}

// WritePropertyRequest is the decoded body of a WriteProperty request.
type WritePropertyRequest struct {
	Object     bacstack.ObjectIdentifier
	Property   bacstack.PropertyIdentifier
	ArrayIndex *int
	Value      encoding.Value
	Priority   *uint8
}

// EncodeWritePropertyRequest builds the service payload for WriteProperty.
func EncodeWritePropertyRequest(r WritePropertyRequest) []byte {
	out := encoding.EncodeContextObjectIdentifier(0, r.Object)
	out = append(out, encoding.EncodeContextEnumerated(1, uint32(r.Property))...)
	if r.ArrayIndex != nil {
		out = append(out, encoding.EncodeContextUnsigned(2, uint32(*r.ArrayIndex))...)
	}
	out = append(out, encoding.EncodeOpeningTag(3)...)
	out = append(out, encoding.EncodeApplicationValue(r.Value)...)
	out = append(out, encoding.EncodeClosingTag(3)...)
	if r.Priority != nil {
		out = append(out, encoding.EncodeContextUnsigned(4, uint32(*r.Priority))...)
	}
	return out
}

// DecodeWritePropertyRequest parses a WriteProperty request payload.
func DecodeWritePropertyRequest(buf []byte) (WritePropertyRequest, error) {
	offset := 0

	oid, next, err := decodeContextObjectIdentifier(buf, offset, 0)
	if err != nil {
		return WritePropertyRequest{}, err
	}
	offset = next

	propID, next, err := decodeContextEnumerated(buf, offset, 1)
	if err != nil {
		return WritePropertyRequest{}, err
	}
	offset = next

	req := WritePropertyRequest{Object: oid, Property: bacstack.PropertyIdentifier(propID)}

	if encoding.IsContextSpecific(buf, offset, 2) {
		idx, next, err := decodeContextUnsigned(buf, offset, 2)
		if err != nil {
			return WritePropertyRequest{}, err
		}
		i := int(idx)
		req.ArrayIndex = &i
		offset = next
	}

	meta, next, err := encoding.DecodeTag(buf, offset)
	if err != nil {
		return WritePropertyRequest{}, err
	}
	if !meta.Opening || meta.Number != 3 {
		return WritePropertyRequest{}, fmt.Errorf("%w: write-property missing opening tag 3", bacstack.ErrMalformedTag)
	}
	value, next, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return WritePropertyRequest{}, err
	}
	offset = next
	if meta, next2, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 3 {
		offset = next2
	}
	req.Value = value

	if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 4) {
		pr, _, err := decodeContextUnsigned(buf, offset, 4)
		if err != nil {
			return WritePropertyRequest{}, err
		}
		p := uint8(pr)
		req.Priority = &p
	}
	return req, nil
}

func decodeContextObjectIdentifier(buf []byte, offset int, expectTag uint8) (bacstack.ObjectIdentifier, int, error) {
	meta, next, err := decodeExpectedContextTag(buf, offset, expectTag)
	if err != nil {
		return bacstack.ObjectIdentifier{}, offset, err
	}
	oid, err := encoding.DecodeObjectIdentifier(buf[next : next+int(meta.Length)])
	return oid, next + int(meta.Length), err
}

func decodeContextEnumerated(buf []byte, offset int, expectTag uint8) (uint32, int, error) {
	meta, next, err := decodeExpectedContextTag(buf, offset, expectTag)
	if err != nil {
		return 0, offset, err
	}
	v, err := encoding.DecodeEnumerated(buf[next : next+int(meta.Length)])
	return v, next + int(meta.Length), err
}

func decodeContextUnsigned(buf []byte, offset int, expectTag uint8) (uint32, int, error) {
	meta, next, err := decodeExpectedContextTag(buf, offset, expectTag)
	if err != nil {
		return 0, offset, err
	}
	v, err := encoding.DecodeUnsigned(buf[next : next+int(meta.Length)])
	return v, next + int(meta.Length), err
}

func skipContextField(buf []byte, offset int, expectTag uint8) (encoding.TagMeta, int, error) {
	meta, next, err := decodeExpectedContextTag(buf, offset, expectTag)
	if err != nil {
		return encoding.TagMeta{}, offset, err
	}
	return meta, next + int(meta.Length), nil
}

func decodeExpectedContextTag(buf []byte, offset int, expectTag uint8) (encoding.TagMeta, int, error) {
	meta, next, err := encoding.DecodeTag(buf, offset)
	if err != nil {
		return encoding.TagMeta{}, offset, err
	}
	if meta.Class != encoding.TagClassContext || meta.Number != expectTag {
		return encoding.TagMeta{}, offset, fmt.Errorf("%w: expected context tag %d, got %d", bacstack.ErrMalformedTag, expectTag, meta.Number)
	}
	return meta, next, nil
}
