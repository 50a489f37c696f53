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
	"fmt"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// WhoIsRequest carries the optional device-instance range of a Who-Is
// broadcast; a nil Low/High pair means "every device" (spec §4.12
// discovery sweep).
type WhoIsRequest struct {
	Low  *uint32
	High *uint32
}

// EncodeWhoIsRequest encodes the unconfirmed Who-Is payload. Either both
// bounds are present or neither is (ASHRAE 135 12.11.2).
func EncodeWhoIsRequest(req WhoIsRequest) []byte {
	if req.Low == nil || req.High == nil {
		return nil
	}
	var out []byte
	out = append(out, encoding.EncodeContextUnsigned(0, *req.Low)...)
	out = append(out, encoding.EncodeContextUnsigned(1, *req.High)...)
	return out
}

// DecodeWhoIsRequest decodes a Who-Is payload, empty meaning "no range".
func DecodeWhoIsRequest(buf []byte) (WhoIsRequest, error) {
	if len(buf) == 0 {
		return WhoIsRequest{}, nil
	}
	low, next, err := decodeContextUnsigned(buf, 0, 0)
	if err != nil {
		return WhoIsRequest{}, err
	}
	high, _, err := decodeContextUnsigned(buf, next, 1)
	if err != nil {
		return WhoIsRequest{}, err
	}
	return WhoIsRequest{Low: &low, High: &high}, nil
}

// IAmRequest is the decoded body of an I-Am announcement (spec §4.7, §4.12).
type IAmRequest struct {
	Device             bacstack.ObjectIdentifier
	MaxAPDULength      uint32
	SegmentationSupported bacstack.Segmentation
	VendorID           uint32
}

// EncodeIAmRequest encodes an I-Am payload: four application-tagged
// values in fixed order (object-id, max-apdu, segmentation, vendor-id).
func EncodeIAmRequest(req IAmRequest) []byte {
	var out []byte
	out = append(out, encoding.EncodeApplicationObjectIdentifier(req.Device)...)
	out = append(out, encoding.EncodeApplicationUnsigned(req.MaxAPDULength)...)
	out = append(out, encoding.EncodeApplicationEnumerated(uint32(req.SegmentationSupported))...)
	out = append(out, encoding.EncodeApplicationUnsigned(req.VendorID)...)
	return out
}

// DecodeIAmRequest decodes an I-Am payload.
func DecodeIAmRequest(buf []byte) (IAmRequest, error) {
	device, next, err := encoding.DecodeApplicationValue(buf, 0)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("i-am device-id: %w", err)
	}
	maxAPDU, next, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("i-am max-apdu: %w", err)
	}
	seg, next, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("i-am segmentation: %w", err)
	}
	vendor, _, err := encoding.DecodeApplicationValue(buf, next)
	if err != nil {
		return IAmRequest{}, fmt.Errorf("i-am vendor-id: %w", err)
	}
	return IAmRequest{
		Device:                 device.ObjectID,
		MaxAPDULength:          maxAPDU.Unsigned,
		SegmentationSupported:  bacstack.Segmentation(seg.Enum),
		VendorID:               vendor.Unsigned,
	}, nil
}
