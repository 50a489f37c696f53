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

// Package npdu implements Network Protocol Data Unit framing: addressing
// headers, hop counts, and network-layer message dispatch (spec §4.11).
package npdu

import (
	"fmt"

	"github.com/scadalynx/bacstack"
)

const protocolVersion = 1

// control bits
const (
	ctrlNetworkLayerMessage = 0x80
	ctrlDestinationPresent  = 0x20
	ctrlSourcePresent       = 0x08
	ctrlExpectingReply      = 0x04
	ctrlPriorityMask        = 0x03
)

// NetworkMessageType identifies a network-layer control message (§4.11).
type NetworkMessageType uint8

const (
	MessageWhoIsRouterToNetwork     NetworkMessageType = 0x00
	MessageIAmRouterToNetwork       NetworkMessageType = 0x01
	MessageICouldBeRouterToNetwork  NetworkMessageType = 0x02
	MessageRejectMessageToNetwork   NetworkMessageType = 0x03
	MessageRouterBusyToNetwork      NetworkMessageType = 0x04
	MessageRouterAvailableToNetwork NetworkMessageType = 0x05
	MessageInitializeRoutingTable   NetworkMessageType = 0x06
	MessageInitializeRoutingTableAck NetworkMessageType = 0x07
	MessageEstablishConnectionToNetwork NetworkMessageType = 0x08
	MessageDisconnectConnectionToNetwork NetworkMessageType = 0x09
	MessageWhatIsNetworkNumber      NetworkMessageType = 0x12
	MessageNetworkNumberIs          NetworkMessageType = 0x13
)

// Priority is the NPCI priority field (spec §4.11 carries it through; not
// otherwise interpreted by this stack).
type Priority uint8

const (
	PriorityNormal             Priority = 0
	PriorityUrgent             Priority = 1
	PriorityCriticalEquipment  Priority = 2
	PriorityLifeSafety         Priority = 3
)

// NPDU is the decoded Network layer header plus its APDU/network-message payload.
type NPDU struct {
	Destination *bacstack.NetworkAddress
	Source      *bacstack.NetworkAddress
	HopCount    uint8
	Priority    Priority
	ExpectingReply bool

	NetworkMessage     bool
	NetworkMessageType NetworkMessageType
	VendorID           uint16 // only for proprietary message types >= 0x80

	Payload []byte // APDU bytes, or network-message payload
}

// Encode serializes an NPDU.
func Encode(n NPDU) []byte {
	control := byte(0)
	if n.NetworkMessage {
		control |= ctrlNetworkLayerMessage
	}
	if n.Destination != nil {
		control |= ctrlDestinationPresent
	}
	if n.Source != nil {
		control |= ctrlSourcePresent
	}
	if n.ExpectingReply {
		control |= ctrlExpectingReply
	}
	control |= byte(n.Priority) & ctrlPriorityMask

	out := []byte{protocolVersion, control}

	if n.Destination != nil {
		out = append(out, byte(n.Destination.Network>>8), byte(n.Destination.Network))
		out = append(out, byte(len(n.Destination.Mac)))
		out = append(out, n.Destination.Mac...)
	}
	if n.Source != nil {
		out = append(out, byte(n.Source.Network>>8), byte(n.Source.Network))
		out = append(out, byte(len(n.Source.Mac)))
		out = append(out, n.Source.Mac...)
	}
	if n.Destination != nil {
		out = append(out, n.HopCount)
	}
	if n.NetworkMessage {
		out = append(out, byte(n.NetworkMessageType))
		if n.NetworkMessageType >= 0x80 {
			out = append(out, byte(n.VendorID>>8), byte(n.VendorID))
		}
	}
	return append(out, n.Payload...)
}

// Decode parses an NPDU header and leaves the remainder as Payload.
func Decode(buf []byte) (NPDU, error) {
	if len(buf) < 2 {
		return NPDU{}, fmt.Errorf("%w: npdu too short", bacstack.ErrInvalidNPDU)
	}
	if buf[0] != protocolVersion {
		return NPDU{}, fmt.Errorf("%w: unsupported npdu protocol version %d", bacstack.ErrInvalidNPDU, buf[0])
	}
	control := buf[1]
	pos := 2
	n := NPDU{
		NetworkMessage: control&ctrlNetworkLayerMessage != 0,
		ExpectingReply: control&ctrlExpectingReply != 0,
		Priority:       Priority(control & ctrlPriorityMask),
	}

	if control&ctrlDestinationPresent != 0 {
		dest, next, err := decodeAddressSpecifier(buf, pos)
		if err != nil {
			return NPDU{}, err
		}
		n.Destination = &dest
		pos = next
	}
	if control&ctrlSourcePresent != 0 {
		src, next, err := decodeAddressSpecifier(buf, pos)
		if err != nil {
			return NPDU{}, err
		}
		n.Source = &src
		pos = next
	}
	if n.Destination != nil {
		if pos >= len(buf) {
			return NPDU{}, fmt.Errorf("%w: npdu missing hop count", bacstack.ErrInvalidNPDU)
		}
		n.HopCount = buf[pos]
		pos++
	}
	if n.NetworkMessage {
		if pos >= len(buf) {
			return NPDU{}, fmt.Errorf("%w: npdu missing network message type", bacstack.ErrInvalidNPDU)
		}
		n.NetworkMessageType = NetworkMessageType(buf[pos])
		pos++
		if n.NetworkMessageType >= 0x80 {
			if pos+2 > len(buf) {
				return NPDU{}, fmt.Errorf("%w: npdu missing vendor id", bacstack.ErrInvalidNPDU)
			}
			n.VendorID = uint16(buf[pos])<<8 | uint16(buf[pos+1])
			pos += 2
		}
	}
	n.Payload = buf[pos:]
	return n, nil
}

func decodeAddressSpecifier(buf []byte, pos int) (bacstack.NetworkAddress, int, error) {
	if pos+3 > len(buf) {
		return bacstack.NetworkAddress{}, pos, fmt.Errorf("%w: truncated address specifier", bacstack.ErrInvalidNPDU)
	}
	network := uint16(buf[pos])<<8 | uint16(buf[pos+1])
	macLen := int(buf[pos+2])
	pos += 3
	if pos+macLen > len(buf) {
		return bacstack.NetworkAddress{}, pos, fmt.Errorf("%w: truncated address mac", bacstack.ErrInvalidNPDU)
	}
	mac := bacstack.MacAddress(buf[pos : pos+macLen])
	pos += macLen
	addr := bacstack.NetworkAddress{Network: network, Mac: mac, Broadcast: macLen == 0}
	return addr, pos, nil
}

// EncodeWhoIsRouterToNetwork encodes the payload of a Who-Is-Router-To-Network
// message; an absent network argument (nil) queries all networks.
func EncodeWhoIsRouterToNetwork(network *uint16) []byte {
	if network == nil {
		return nil
	}
	return []byte{byte(*network >> 8), byte(*network)}
}

// DecodeWhoIsRouterToNetwork decodes the optional single network number.
func DecodeWhoIsRouterToNetwork(payload []byte) (*uint16, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	if len(payload) != 2 {
		return nil, fmt.Errorf("%w: malformed who-is-router-to-network payload", bacstack.ErrInvalidNPDU)
	}
	n := uint16(payload[0])<<8 | uint16(payload[1])
	return &n, nil
}

// EncodeIAmRouterToNetwork encodes the reachable-network list.
func EncodeIAmRouterToNetwork(networks []uint16) []byte {
	out := make([]byte, 0, len(networks)*2)
	for _, n := range networks {
		out = append(out, byte(n>>8), byte(n))
	}
	return out
}

// DecodeIAmRouterToNetwork decodes a list of reachable network numbers.
func DecodeIAmRouterToNetwork(payload []byte) ([]uint16, error) {
	if len(payload)%2 != 0 {
		return nil, fmt.Errorf("%w: malformed i-am-router-to-network payload", bacstack.ErrInvalidNPDU)
	}
	networks := make([]uint16, 0, len(payload)/2)
	for i := 0; i < len(payload); i += 2 {
		networks = append(networks, uint16(payload[i])<<8|uint16(payload[i+1]))
	}
	return networks, nil
}

// RoutingTableEntry is one row of an Initialize-Routing-Table(-Ack) message.
type RoutingTableEntry struct {
	Network   uint16
	PortID    uint8
	PortInfo  []byte
}

// EncodeInitializeRoutingTable encodes the routing table port list.
func EncodeInitializeRoutingTable(entries []RoutingTableEntry) []byte {
	out := []byte{byte(len(entries))}
	for _, e := range entries {
		out = append(out, byte(e.Network>>8), byte(e.Network), e.PortID, byte(len(e.PortInfo)))
		out = append(out, e.PortInfo...)
	}
	return out
}

// DecodeInitializeRoutingTable decodes an Initialize-Routing-Table(-Ack) payload.
func DecodeInitializeRoutingTable(payload []byte) ([]RoutingTableEntry, error) {
	if len(payload) == 0 {
		return nil, nil
	}
	count := int(payload[0])
	pos := 1
	entries := make([]RoutingTableEntry, 0, count)
	for i := 0; i < count; i++ {
		if pos+4 > len(payload) {
			return nil, fmt.Errorf("%w: truncated routing table entry", bacstack.ErrInvalidNPDU)
		}
		network := uint16(payload[pos])<<8 | uint16(payload[pos+1])
		portID := payload[pos+2]
		infoLen := int(payload[pos+3])
		pos += 4
		if pos+infoLen > len(payload) {
			return nil, fmt.Errorf("%w: truncated routing table port info", bacstack.ErrInvalidNPDU)
		}
		entries = append(entries, RoutingTableEntry{
			Network: network, PortID: portID,
			PortInfo: append([]byte(nil), payload[pos:pos+infoLen]...),
		})
		pos += infoLen
	}
	return entries, nil
}
