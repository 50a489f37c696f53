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

// Package bvll implements the BACnet Virtual Link Layer: frame codec, the
// BBMD forwarder (BDT/FDT, loop prevention, NAT awareness), and the
// foreign-device client (spec §4.5, §4.6).
package bvll

import (
	"fmt"

	"github.com/scadalynx/bacstack"
)

const bvlcType = 0x81

// Function identifies a BVLC function code.
type Function uint8

const (
	FunctionResult                      Function = 0x00
	FunctionWriteBroadcastDistributionTable Function = 0x01
	FunctionReadBroadcastDistributionTable  Function = 0x02
	FunctionReadBroadcastDistributionTableAck Function = 0x03
	FunctionForwardedNPDU               Function = 0x04
	FunctionRegisterForeignDevice       Function = 0x05
	FunctionReadForeignDeviceTable      Function = 0x06
	FunctionReadForeignDeviceTableAck   Function = 0x07
	FunctionDeleteForeignDeviceTableEntry Function = 0x08
	FunctionDistributeBroadcastToNetwork Function = 0x09
	FunctionOriginalUnicastNPDU         Function = 0x0A
	FunctionOriginalBroadcastNPDU       Function = 0x0B
	FunctionSecureBVLL                  Function = 0x0C
)

func (f Function) String() string {
	names := map[Function]string{
		FunctionResult: "bvlc-result", FunctionWriteBroadcastDistributionTable: "write-bdt",
		FunctionReadBroadcastDistributionTable: "read-bdt", FunctionReadBroadcastDistributionTableAck: "read-bdt-ack",
		FunctionForwardedNPDU: "forwarded-npdu", FunctionRegisterForeignDevice: "register-foreign-device",
		FunctionReadForeignDeviceTable: "read-fdt", FunctionReadForeignDeviceTableAck: "read-fdt-ack",
		FunctionDeleteForeignDeviceTableEntry: "delete-fdt-entry", FunctionDistributeBroadcastToNetwork: "distribute-broadcast-to-network",
		FunctionOriginalUnicastNPDU: "original-unicast-npdu", FunctionOriginalBroadcastNPDU: "original-broadcast-npdu",
		FunctionSecureBVLL: "secure-bvll",
	}
	if name, ok := names[f]; ok {
		return name
	}
	return fmt.Sprintf("function(0x%02x)", uint8(f))
}

// ResultCode is the payload of a BVLC-Result frame.
type ResultCode uint16

const (
	ResultSuccess                                  ResultCode = 0x0000
	ResultWriteBDTNAK                               ResultCode = 0x0010
	ResultReadBDTNAK                                ResultCode = 0x0020
	ResultRegisterForeignDeviceNAK                  ResultCode = 0x0030
	ResultReadForeignDeviceTableNAK                 ResultCode = 0x0040
	ResultDeleteForeignDeviceTableEntryNAK          ResultCode = 0x0050
	ResultDistributeBroadcastToNetworkNAK           ResultCode = 0x0060
)

// Frame is a decoded BVLC frame: header plus function-specific payload.
type Frame struct {
	Function Function
	Payload  []byte
}

// Encode serializes a Frame with the 4-byte BVLC header
// (type, function, total-length-big-endian-u16).
func Encode(f Frame) []byte {
	total := 4 + len(f.Payload)
	out := make([]byte, 4, total)
	out[0] = bvlcType
	out[1] = byte(f.Function)
	out[2] = byte(total >> 8)
	out[3] = byte(total)
	return append(out, f.Payload...)
}

// Decode parses a BVLC frame from a raw datagram.
func Decode(buf []byte) (Frame, error) {
	if len(buf) < 4 {
		return Frame{}, fmt.Errorf("%w: bvlc frame too short", bacstack.ErrInvalidBVLC)
	}
	if buf[0] != bvlcType {
		return Frame{}, fmt.Errorf("%w: bad bvlc type 0x%02x", bacstack.ErrInvalidBVLC, buf[0])
	}
	total := int(buf[2])<<8 | int(buf[3])
	if total != len(buf) {
		return Frame{}, fmt.Errorf("%w: bvlc length field %d does not match datagram length %d", bacstack.ErrInvalidBVLC, total, len(buf))
	}
	return Frame{Function: Function(buf[1]), Payload: buf[4:]}, nil
}

// EncodeResult encodes a BVLC-Result frame.
func EncodeResult(code ResultCode) []byte {
	return Encode(Frame{Function: FunctionResult, Payload: []byte{byte(code >> 8), byte(code)}})
}

// DecodeResult decodes a BVLC-Result payload.
func DecodeResult(payload []byte) (ResultCode, error) {
	if len(payload) != 2 {
		return 0, fmt.Errorf("%w: malformed bvlc-result payload", bacstack.ErrInvalidBVLC)
	}
	return ResultCode(payload[0])<<8 | ResultCode(payload[1]), nil
}

// EncodeOriginalUnicastNPDU wraps an NPDU for unicast delivery.
func EncodeOriginalUnicastNPDU(npdu []byte) []byte {
	return Encode(Frame{Function: FunctionOriginalUnicastNPDU, Payload: npdu})
}

// EncodeOriginalBroadcastNPDU wraps an NPDU for local-subnet broadcast.
func EncodeOriginalBroadcastNPDU(npdu []byte) []byte {
	return Encode(Frame{Function: FunctionOriginalBroadcastNPDU, Payload: npdu})
}

// EncodeForwardedNPDU wraps an NPDU with the 6-byte originating address
// prefix used when a BBMD relays a broadcast.
func EncodeForwardedNPDU(originating bacstack.MacAddress, npdu []byte) []byte {
	payload := append(append([]byte(nil), originating...), npdu...)
	return Encode(Frame{Function: FunctionForwardedNPDU, Payload: payload})
}

// DecodeForwardedNPDU splits a Forwarded-NPDU payload into its originating
// 6-byte address and the wrapped NPDU bytes.
func DecodeForwardedNPDU(payload []byte) (bacstack.MacAddress, []byte, error) {
	if len(payload) < 6 {
		return nil, nil, fmt.Errorf("%w: forwarded-npdu payload too short", bacstack.ErrInvalidBVLC)
	}
	return bacstack.MacAddress(payload[:6]), payload[6:], nil
}

// EncodeDistributeBroadcastToNetwork wraps an NPDU for a foreign device's
// distribute-broadcast-to-network request.
func EncodeDistributeBroadcastToNetwork(npdu []byte) []byte {
	return Encode(Frame{Function: FunctionDistributeBroadcastToNetwork, Payload: npdu})
}

// EncodeRegisterForeignDevice encodes a 2-byte TTL registration request.
func EncodeRegisterForeignDevice(ttlSeconds uint16) []byte {
	return Encode(Frame{Function: FunctionRegisterForeignDevice, Payload: []byte{byte(ttlSeconds >> 8), byte(ttlSeconds)}})
}

// DecodeRegisterForeignDevice decodes the 2-byte TTL payload.
func DecodeRegisterForeignDevice(payload []byte) (uint16, error) {
	if len(payload) != 2 {
		return 0, fmt.Errorf("%w: malformed register-foreign-device payload", bacstack.ErrInvalidBVLC)
	}
	return uint16(payload[0])<<8 | uint16(payload[1]), nil
}

// BDTEntry is one row of a Broadcast Distribution Table.
type BDTEntry struct {
	IP   [4]byte
	Port uint16
	Mask [4]byte
}

// AllOnesMask reports whether this entry's mask means "unicast only".
func (e BDTEntry) AllOnesMask() bool {
	return e.Mask == [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
}

// ForwardIP computes the address Forwarded-NPDU frames are sent to: the
// entry's own IP for an all-ones mask, else the directed-broadcast address
// ip | ~mask (spec §4.6).
func (e BDTEntry) ForwardIP() [4]byte {
	if e.AllOnesMask() {
		return e.IP
	}
	var out [4]byte
	for i := range out {
		out[i] = e.IP[i] | ^e.Mask[i]
	}
	return out
}

func encodeBDTEntries(entries []BDTEntry) []byte {
	out := make([]byte, 0, len(entries)*10)
	for _, e := range entries {
		out = append(out, e.IP[:]...)
		out = append(out, byte(e.Port>>8), byte(e.Port))
		out = append(out, e.Mask[:]...)
	}
	return out
}

func decodeBDTEntries(payload []byte) ([]BDTEntry, error) {
	if len(payload)%10 != 0 {
		return nil, fmt.Errorf("%w: malformed bdt payload", bacstack.ErrInvalidBVLC)
	}
	entries := make([]BDTEntry, 0, len(payload)/10)
	for i := 0; i < len(payload); i += 10 {
		var e BDTEntry
		copy(e.IP[:], payload[i:i+4])
		e.Port = uint16(payload[i+4])<<8 | uint16(payload[i+5])
		copy(e.Mask[:], payload[i+6:i+10])
		entries = append(entries, e)
	}
	return entries, nil
}

// EncodeWriteBDT encodes a Write-Broadcast-Distribution-Table request.
func EncodeWriteBDT(entries []BDTEntry) []byte {
	return Encode(Frame{Function: FunctionWriteBroadcastDistributionTable, Payload: encodeBDTEntries(entries)})
}

// EncodeReadBDTAck encodes a Read-BDT-Ack response.
func EncodeReadBDTAck(entries []BDTEntry) []byte {
	return Encode(Frame{Function: FunctionReadBroadcastDistributionTableAck, Payload: encodeBDTEntries(entries)})
}

// DecodeBDTEntries decodes a Write-BDT / Read-BDT-Ack payload.
func DecodeBDTEntries(payload []byte) ([]BDTEntry, error) { return decodeBDTEntries(payload) }

// FDTEntry is one row of a Foreign Device Table, as exposed over the wire
// by Read-FDT-Ack (ttl and remaining time, not the absolute expiry).
type FDTEntry struct {
	IP            [4]byte
	Port          uint16
	TTLSeconds    uint16
	RemainingSeconds uint16
}

// EncodeReadFDTAck encodes a Read-FDT-Ack response.
func EncodeReadFDTAck(entries []FDTEntry) []byte {
	out := make([]byte, 0, len(entries)*10)
	for _, e := range entries {
		out = append(out, e.IP[:]...)
		out = append(out, byte(e.Port>>8), byte(e.Port))
		out = append(out, byte(e.TTLSeconds>>8), byte(e.TTLSeconds))
		out = append(out, byte(e.RemainingSeconds>>8), byte(e.RemainingSeconds))
	}
	return Encode(Frame{Function: FunctionReadForeignDeviceTableAck, Payload: out})
}

// EncodeDeleteFDTEntry encodes a Delete-Foreign-Device-Table-Entry request.
func EncodeDeleteFDTEntry(ip [4]byte, port uint16) []byte {
	payload := append(append([]byte(nil), ip[:]...), byte(port>>8), byte(port))
	return Encode(Frame{Function: FunctionDeleteForeignDeviceTableEntry, Payload: payload})
}

// DecodeDeleteFDTEntry decodes a Delete-Foreign-Device-Table-Entry payload.
func DecodeDeleteFDTEntry(payload []byte) (ip [4]byte, port uint16, err error) {
	if len(payload) != 6 {
		return ip, 0, fmt.Errorf("%w: malformed delete-fdt-entry payload", bacstack.ErrInvalidBVLC)
	}
	copy(ip[:], payload[:4])
	port = uint16(payload[4])<<8 | uint16(payload[5])
	return ip, port, nil
}
