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

// Package apdu implements Application Protocol Data Unit framing: the eight
// PDU types, segmentation header fields, and invoke-id/service-choice
// correlation (spec §4.2).
package apdu

import (
	"fmt"

	"github.com/scadalynx/bacstack"
)

// PDUType is the high nibble of the first APDU octet.
type PDUType uint8

const (
	TypeConfirmedRequest   PDUType = 0
	TypeUnconfirmedRequest PDUType = 1
	TypeSimpleACK          PDUType = 2
	TypeComplexACK         PDUType = 3
	TypeSegmentACK         PDUType = 4
	TypeError              PDUType = 5
	TypeReject             PDUType = 6
	TypeAbort              PDUType = 7
)

func (t PDUType) String() string {
	names := [...]string{
		"confirmed-request", "unconfirmed-request", "simple-ack", "complex-ack",
		"segment-ack", "error", "reject", "abort",
	}
	if int(t) < len(names) {
		return names[t]
	}
	return fmt.Sprintf("pdu-type(%d)", t)
}

// APDU is the decoded form of any of the eight PDU types. Not every field
// applies to every Type; see the per-type Encode/Decode helpers.
type APDU struct {
	Type PDUType

	// ConfirmedRequest / ComplexACK segmentation header
	Segmented       bool
	MoreFollows     bool
	SegmentedAccepted bool // ConfirmedRequest only: requires segmented response
	MaxSegmentsAccepted uint8
	MaxAPDULengthAccepted uint16
	SequenceNumber  uint8
	ProposedWindowSize uint8

	InvokeID uint8

	ConfirmedServiceChoice   bacstack.ConfirmedServiceChoice
	UnconfirmedServiceChoice bacstack.UnconfirmedServiceChoice

	// SegmentACK
	NegativeAck  bool
	Server       bool // SegmentACK/Abort: sent by server

	// Error
	ErrorClass ErrorClassCode
	ErrorCode  uint16

	// Reject
	RejectReason uint8

	// Abort
	AbortReason uint8

	Payload []byte // service payload / segment payload
}

// ErrorClassCode mirrors bacstack.ErrorClass but kept local to avoid an
// import cycle between apdu and the services layer that builds BACnetError.
type ErrorClassCode = bacstack.ErrorClass

// Header sizes used when budgeting segment payload capacity.
const (
	maxUnconfirmedHeaderLen = 2
	maxConfirmedHeaderLen   = 4 // non-segmented: type/flags, max-segs/max-apdu, invoke-id, service-choice
	maxSegmentedHeaderLen   = 6 // + sequence-number + window-size
)

// EncodeConfirmedRequest encodes a ConfirmedRequest APDU (segmented or not).
func EncodeConfirmedRequest(a APDU) []byte {
	flags := byte(0)
	if a.Segmented {
		flags |= 0x08
	}
	if a.MoreFollows {
		flags |= 0x04
	}
	if a.SegmentedAccepted {
		flags |= 0x02
	}
	out := []byte{byte(TypeConfirmedRequest)<<4 | flags, encodeMaxSegsAndAPDU(a.MaxSegmentsAccepted, a.MaxAPDULengthAccepted), a.InvokeID}
	if a.Segmented {
		out = append(out, a.SequenceNumber, a.ProposedWindowSize)
	}
	out = append(out, byte(a.ConfirmedServiceChoice))
	return append(out, a.Payload...)
}

// EncodeUnconfirmedRequest encodes an UnconfirmedRequest APDU.
func EncodeUnconfirmedRequest(choice bacstack.UnconfirmedServiceChoice, payload []byte) []byte {
	out := []byte{byte(TypeUnconfirmedRequest) << 4, byte(choice)}
	return append(out, payload...)
}

// EncodeSimpleACK encodes a SimpleACK APDU.
func EncodeSimpleACK(invokeID uint8, choice bacstack.ConfirmedServiceChoice) []byte {
	return []byte{byte(TypeSimpleACK) << 4, invokeID, byte(choice)}
}

// EncodeComplexACK encodes a ComplexACK APDU (segmented or not).
func EncodeComplexACK(a APDU) []byte {
	flags := byte(0)
	if a.Segmented {
		flags |= 0x08
	}
	if a.MoreFollows {
		flags |= 0x04
	}
	out := []byte{byte(TypeComplexACK)<<4 | flags, a.InvokeID, byte(a.ConfirmedServiceChoice)}
	if a.Segmented {
		out = append(out, a.SequenceNumber, a.ProposedWindowSize)
	}
	return append(out, a.Payload...)
}

// EncodeSegmentACK encodes a SegmentACK APDU.
func EncodeSegmentACK(invokeID, sequenceNumber, windowSize uint8, negative, server bool) []byte {
	flags := byte(0)
	if negative {
		flags |= 0x02
	}
	if server {
		flags |= 0x01
	}
	return []byte{byte(TypeSegmentACK)<<4 | flags, invokeID, sequenceNumber, windowSize}
}

// EncodeError encodes an Error APDU.
func EncodeError(invokeID uint8, choice bacstack.ConfirmedServiceChoice, class bacstack.ErrorClass, code bacstack.ErrorCode) []byte {
	out := []byte{byte(TypeError) << 4, invokeID, byte(choice)}
	out = append(out, byte(class))
	out = append(out, byte(code>>8), byte(code))
	return out
}

// EncodeReject encodes a Reject APDU.
func EncodeReject(invokeID uint8, reason bacstack.RejectReason) []byte {
	return []byte{byte(TypeReject) << 4, invokeID, byte(reason)}
}

// EncodeAbort encodes an Abort APDU.
func EncodeAbort(invokeID uint8, server bool, reason bacstack.AbortReason) []byte {
	flags := byte(0)
	if server {
		flags |= 0x01
	}
	return []byte{byte(TypeAbort)<<4 | flags, invokeID, byte(reason)}
}

func encodeMaxSegsAndAPDU(maxSegments uint8, maxAPDU uint16) byte {
	return (maxSegmentsCode(maxSegments) << 4) | maxAPDUCode(maxAPDU)
}

// maxSegmentsCode / maxAPDUCode implement the 3.5-clause tables mapping a
// nibble to a bounded set of standard segment counts / APDU sizes.
func maxSegmentsCode(n uint8) byte {
	switch {
	case n == 0:
		return 0
	case n <= 2:
		return 1
	case n <= 4:
		return 2
	case n <= 8:
		return 3
	case n <= 16:
		return 4
	case n <= 32:
		return 5
	case n <= 64:
		return 6
	default:
		return 7
	}
}

func maxSegmentsFromCode(code byte) uint8 {
	table := [...]uint8{0, 2, 4, 8, 16, 32, 64, 255}
	return table[code&0x07]
}

func maxAPDUCode(length uint16) byte {
	switch {
	case length <= 50:
		return 0
	case length <= 128:
		return 1
	case length <= 206:
		return 2
	case length <= 480:
		return 3
	case length <= 1024:
		return 4
	default:
		return 5
	}
}

func maxAPDUFromCode(code byte) uint16 {
	table := [...]uint16{50, 128, 206, 480, 1024, 1476}
	if int(code&0x0F) < len(table) {
		return table[code&0x0F]
	}
	return 1476
}

// DecodeAPDU decodes any of the eight APDU types from buf.
func DecodeAPDU(buf []byte) (APDU, error) {
	if len(buf) == 0 {
		return APDU{}, fmt.Errorf("%w: empty apdu", bacstack.ErrInvalidAPDU)
	}
	pduType := PDUType(buf[0] >> 4)
	switch pduType {
	case TypeConfirmedRequest:
		return decodeConfirmedRequest(buf)
	case TypeUnconfirmedRequest:
		return decodeUnconfirmedRequest(buf)
	case TypeSimpleACK:
		return decodeSimpleACK(buf)
	case TypeComplexACK:
		return decodeComplexACK(buf)
	case TypeSegmentACK:
		return decodeSegmentACK(buf)
	case TypeError:
		return decodeError(buf)
	case TypeReject:
		return decodeReject(buf)
	case TypeAbort:
		return decodeAbort(buf)
	default:
		return APDU{}, fmt.Errorf("%w: unknown pdu type %d", bacstack.ErrInvalidAPDU, pduType)
	}
}

func decodeConfirmedRequest(buf []byte) (APDU, error) {
	if len(buf) < 4 {
		return APDU{}, fmt.Errorf("%w: confirmed-request too short", bacstack.ErrInvalidAPDU)
	}
	flags := buf[0] & 0x0F
	a := APDU{
		Type:              TypeConfirmedRequest,
		Segmented:         flags&0x08 != 0,
		MoreFollows:       flags&0x04 != 0,
		SegmentedAccepted: flags&0x02 != 0,
	}
	a.MaxSegmentsAccepted = maxSegmentsFromCode(buf[1] >> 4)
	a.MaxAPDULengthAccepted = maxAPDUFromCode(buf[1])
	pos := 2
	a.InvokeID = buf[pos]
	pos++
	if a.Segmented {
		if len(buf) < pos+2 {
			return APDU{}, fmt.Errorf("%w: segmented confirmed-request missing sequence header", bacstack.ErrInvalidAPDU)
		}
		a.SequenceNumber = buf[pos]
		a.ProposedWindowSize = buf[pos+1]
		pos += 2
	}
	if pos >= len(buf) {
		return APDU{}, fmt.Errorf("%w: confirmed-request missing service choice", bacstack.ErrInvalidAPDU)
	}
	a.ConfirmedServiceChoice = bacstack.ConfirmedServiceChoice(buf[pos])
	pos++
	a.Payload = buf[pos:]
	return a, nil
}

func decodeUnconfirmedRequest(buf []byte) (APDU, error) {
	if len(buf) < 2 {
		return APDU{}, fmt.Errorf("%w: unconfirmed-request too short", bacstack.ErrInvalidAPDU)
	}
	return APDU{
		Type:                     TypeUnconfirmedRequest,
		UnconfirmedServiceChoice: bacstack.UnconfirmedServiceChoice(buf[1]),
		Payload:                  buf[2:],
	}, nil
}

func decodeSimpleACK(buf []byte) (APDU, error) {
	if len(buf) < 3 {
		return APDU{}, fmt.Errorf("%w: simple-ack too short", bacstack.ErrInvalidAPDU)
	}
	return APDU{
		Type:                   TypeSimpleACK,
		InvokeID:               buf[1],
		ConfirmedServiceChoice: bacstack.ConfirmedServiceChoice(buf[2]),
	}, nil
}

func decodeComplexACK(buf []byte) (APDU, error) {
	if len(buf) < 3 {
		return APDU{}, fmt.Errorf("%w: complex-ack too short", bacstack.ErrInvalidAPDU)
	}
	flags := buf[0] & 0x0F
	a := APDU{
		Type:        TypeComplexACK,
		Segmented:   flags&0x08 != 0,
		MoreFollows: flags&0x04 != 0,
		InvokeID:    buf[1],
	}
	a.ConfirmedServiceChoice = bacstack.ConfirmedServiceChoice(buf[2])
	pos := 3
	if a.Segmented {
		if len(buf) < pos+2 {
			return APDU{}, fmt.Errorf("%w: segmented complex-ack missing sequence header", bacstack.ErrInvalidAPDU)
		}
		a.SequenceNumber = buf[pos]
		a.ProposedWindowSize = buf[pos+1]
		pos += 2
	}
	a.Payload = buf[pos:]
	return a, nil
}

func decodeSegmentACK(buf []byte) (APDU, error) {
	if len(buf) < 4 {
		return APDU{}, fmt.Errorf("%w: segment-ack too short", bacstack.ErrInvalidAPDU)
	}
	flags := buf[0] & 0x0F
	return APDU{
		Type:           TypeSegmentACK,
		NegativeAck:    flags&0x02 != 0,
		Server:         flags&0x01 != 0,
		InvokeID:       buf[1],
		SequenceNumber: buf[2],
		ProposedWindowSize: buf[3],
	}, nil
}

func decodeError(buf []byte) (APDU, error) {
	if len(buf) < 6 {
		return APDU{}, fmt.Errorf("%w: error apdu too short", bacstack.ErrInvalidAPDU)
	}
	return APDU{
		Type:                   TypeError,
		InvokeID:               buf[1],
		ConfirmedServiceChoice: bacstack.ConfirmedServiceChoice(buf[2]),
		ErrorClass:             bacstack.ErrorClass(buf[3]),
		ErrorCode:              uint16(buf[4])<<8 | uint16(buf[5]),
		Payload:                buf[6:],
	}, nil
}

func decodeReject(buf []byte) (APDU, error) {
	if len(buf) < 3 {
		return APDU{}, fmt.Errorf("%w: reject apdu too short", bacstack.ErrInvalidAPDU)
	}
	return APDU{Type: TypeReject, InvokeID: buf[1], RejectReason: buf[2]}, nil
}

func decodeAbort(buf []byte) (APDU, error) {
	if len(buf) < 3 {
		return APDU{}, fmt.Errorf("%w: abort apdu too short", bacstack.ErrInvalidAPDU)
	}
	flags := buf[0] & 0x0F
	return APDU{
		Type:        TypeAbort,
		Server:      flags&0x01 != 0,
		InvokeID:    buf[1],
		AbortReason: buf[2],
	}, nil
}

// NegotiatedMaxAPDU returns min(local, remote) per spec §4.2.
func NegotiatedMaxAPDU(local, remote uint16) uint16 {
	if local < remote {
		return local
	}
	return remote
}

// SegmentHeaderSize returns the worst-case header size budgeted against
// negotiatedMaxAPDU when splitting a payload into segments.
func SegmentHeaderSize() int { return maxSegmentedHeaderLen }
