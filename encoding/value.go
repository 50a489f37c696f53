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

package encoding

import (
	"fmt"

	"github.com/scadalynx/bacstack"
)

// Value is a dynamically-typed BACnet application value: exactly one of
// the fields below is meaningful, selected by Tag. This is the Go analogue
// of the BACnet "ANY" application-encoded value used throughout
// ReadProperty/WriteProperty payloads and property maps.
type Value struct {
	Tag       ApplicationTag
	Boolean   bool
	Unsigned  uint32
	Signed    int32
	Real      float32
	Double    float64
	Octets    []byte
	Chars     string
	Bits      BitString
	Enum      uint32
	Date      Date
	Time      Time
	ObjectID  bacstack.ObjectIdentifier
}

// Null reports whether the value is the Null primitive.
func (v Value) Null() bool { return v.Tag == TagNull }

// NullValue constructs a Null value — the relinquish sentinel for priority
// array slots (spec §4.8).
func NullValue() Value { return Value{Tag: TagNull} }

func BooleanValue(b bool) Value               { return Value{Tag: TagBoolean, Boolean: b} }
func UnsignedValue(u uint32) Value            { return Value{Tag: TagUnsignedInt, Unsigned: u} }
func SignedValue(i int32) Value               { return Value{Tag: TagSignedInt, Signed: i} }
func RealValue(r float32) Value               { return Value{Tag: TagReal, Real: r} }
func DoubleValue(d float64) Value             { return Value{Tag: TagDouble, Double: d} }
func OctetStringValue(b []byte) Value         { return Value{Tag: TagOctetString, Octets: b} }
func CharacterStringValue(s string) Value     { return Value{Tag: TagCharacterString, Chars: s} }
func BitStringValue(b BitString) Value        { return Value{Tag: TagBitString, Bits: b} }
func EnumeratedValue(e uint32) Value          { return Value{Tag: TagEnumerated, Enum: e} }
func DateValue(d Date) Value                  { return Value{Tag: TagDate, Date: d} }
func TimeValue(t Time) Value                  { return Value{Tag: TagTime, Time: t} }
func ObjectIdentifierValue(o bacstack.ObjectIdentifier) Value {
	return Value{Tag: TagObjectID, ObjectID: o}
}

// EncodeApplicationValue encodes v with an application tag matching v.Tag.
func EncodeApplicationValue(v Value) []byte {
	switch v.Tag {
	case TagNull:
		return EncodeApplicationTag(TagNull, 0)
	case TagBoolean:
		return EncodeApplicationBoolean(v.Boolean)
	case TagUnsignedInt:
		return EncodeApplicationUnsigned(v.Unsigned)
	case TagSignedInt:
		return EncodeApplicationSigned(v.Signed)
	case TagReal:
		return EncodeApplicationReal(v.Real)
	case TagDouble:
		payload := EncodeDouble(v.Double)
		return append(EncodeApplicationTag(TagDouble, len(payload)), payload...)
	case TagOctetString:
		return EncodeApplicationOctetString(v.Octets)
	case TagCharacterString:
		return EncodeApplicationCharacterString(v.Chars)
	case TagBitString:
		return EncodeApplicationBitString(v.Bits)
	case TagEnumerated:
		return EncodeApplicationEnumerated(v.Enum)
	case TagDate:
		return EncodeApplicationDate(v.Date)
	case TagTime:
		return EncodeApplicationTime(v.Time)
	case TagObjectID:
		return EncodeApplicationObjectIdentifier(v.ObjectID)
	default:
		return nil
	}
}

// DecodeApplicationValue decodes the application-tagged value at
// buf[offset:], returning the value and the offset of the next tag.
func DecodeApplicationValue(buf []byte, offset int) (Value, int, error) {
	// An application Boolean carries its value in the tag's length field
	// and has no payload octet, so it is decoded here rather than through
	// DecodeTag's payload-length check.
	if offset < len(buf) && buf[offset]&0xF8 == uint8(TagBoolean)<<4 {
		return BooleanValue(buf[offset]&0x07 != 0), offset + 1, nil
	}
	meta, next, err := DecodeTag(buf, offset)
	if err != nil {
		return Value{}, offset, err
	}
	if meta.Class != TagClassApplication {
		return Value{}, offset, fmt.Errorf("%w: expected application tag at offset %d, got context tag %d", bacstack.ErrMalformedTag, offset, meta.Number)
	}
	payload := buf[next : next+int(meta.Length)]
	end := next + int(meta.Length)

	switch ApplicationTag(meta.Number) {
	case TagNull:
		return NullValue(), end, nil
	case TagBoolean:
		return BooleanValue(meta.Length != 0), end, nil
	case TagUnsignedInt:
		u, err := DecodeUnsigned(payload)
		return UnsignedValue(u), end, err
	case TagSignedInt:
		i, err := DecodeSigned(payload)
		return SignedValue(i), end, err
	case TagReal:
		r, err := DecodeReal(payload)
		return RealValue(r), end, err
	case TagDouble:
		d, err := DecodeDouble(payload)
		return DoubleValue(d), end, err
	case TagOctetString:
		return OctetStringValue(DecodeOctetString(payload)), end, nil
	case TagCharacterString:
		s, err := DecodeCharacterString(payload)
		return CharacterStringValue(s), end, err
	case TagBitString:
		b, err := DecodeBitString(payload)
		return BitStringValue(b), end, err
	case TagEnumerated:
		e, err := DecodeEnumerated(payload)
		return EnumeratedValue(e), end, err
	case TagDate:
		d, err := DecodeDate(payload)
		return DateValue(d), end, err
	case TagTime:
		t, err := DecodeTime(payload)
		return TimeValue(t), end, err
	case TagObjectID:
		o, err := DecodeObjectIdentifier(payload)
		return ObjectIdentifierValue(o), end, err
	default:
		return Value{}, offset, fmt.Errorf("%w: unknown application tag %d", bacstack.ErrMalformedTag, meta.Number)
	}
}
