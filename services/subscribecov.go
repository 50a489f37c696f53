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

// SubscribeCOVRequest is the decoded body of a SubscribeCOV or
// SubscribeCOVProperty request (spec §4.9).
type SubscribeCOVRequest struct {
	ProcessID   uint32
	Monitored   bacstack.ObjectIdentifier
	Cancel      bool // true when neither IssueConfirmed nor Lifetime is present
	Confirmed   bool
	Lifetime    uint32 // seconds; zero means indefinite

	// Property/Increment are only meaningful for SubscribeCOVProperty.
	Property  *bacstack.PropertyIdentifier
	Increment *float32
}

// EncodeSubscribeCOVRequest builds the service payload for SubscribeCOV.
func EncodeSubscribeCOVRequest(r SubscribeCOVRequest) []byte {
	out := encoding.EncodeContextUnsigned(0, r.ProcessID)
	out = append(out, encoding.EncodeContextObjectIdentifier(1, r.Monitored)...)
	if !r.Cancel {
		out = append(out, encoding.EncodeContextBoolean(2, r.Confirmed)...)
		out = append(out, encoding.EncodeContextUnsigned(3, r.Lifetime)...)
	}
	return out
}

// DecodeSubscribeCOVRequest parses a SubscribeCOV request payload.
func DecodeSubscribeCOVRequest(buf []byte) (SubscribeCOVRequest, error) {
	offset := 0

	procID, next, err := decodeContextUnsigned(buf, offset, 0)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	offset = next

	oid, next, err := decodeContextObjectIdentifier(buf, offset, 1)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	offset = next

	req := SubscribeCOVRequest{ProcessID: procID, Monitored: oid, Cancel: true}
	if offset >= len(buf) {
		return req, nil
	}

	confirmed, next, err := decodeContextBoolean(buf, offset, 2)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	req.Confirmed = confirmed
	req.Cancel = false
	offset = next

	if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 3) {
		lifetime, next, err := decodeContextUnsigned(buf, offset, 3)
		if err != nil {
			return SubscribeCOVRequest{}, err
		}
		req.Lifetime = lifetime
		offset = next
	}
	return req, nil
}

// EncodeSubscribeCOVPropertyRequest builds the service payload for
// SubscribeCOVProperty, which adds a monitored-property reference and an
// optional increment after the base SubscribeCOV fields.
func EncodeSubscribeCOVPropertyRequest(r SubscribeCOVRequest) []byte {
	out := encoding.EncodeContextUnsigned(0, r.ProcessID)
	out = append(out, encoding.EncodeContextObjectIdentifier(1, r.Monitored)...)
	out = append(out, encoding.EncodeContextBoolean(2, r.Confirmed)...)
	out = append(out, encoding.EncodeContextUnsigned(3, r.Lifetime)...)
	out = append(out, encoding.EncodeOpeningTag(4)...)
	propID := bacstack.PropertyPresentValue
	if r.Property != nil {
		propID = *r.Property
	}
	out = append(out, encoding.EncodeContextEnumerated(0, uint32(propID))...)
	out = append(out, encoding.EncodeClosingTag(4)...)
	if r.Increment != nil {
		out = append(out, encodeContextReal(5, *r.Increment)...)
	}
	return out
}

func encodeContextReal(tagNumber uint8, value float32) []byte {
	payload := encoding.EncodeReal(value)
	return append(encoding.EncodeContextTag(tagNumber, len(payload)), payload...)
}

// DecodeSubscribeCOVPropertyRequest parses a SubscribeCOVProperty request.
func DecodeSubscribeCOVPropertyRequest(buf []byte) (SubscribeCOVRequest, error) {
	offset := 0

	procID, next, err := decodeContextUnsigned(buf, offset, 0)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	offset = next

	oid, next, err := decodeContextObjectIdentifier(buf, offset, 1)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	offset = next

	confirmed, next, err := decodeContextBoolean(buf, offset, 2)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	offset = next

	lifetime, next, err := decodeContextUnsigned(buf, offset, 3)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	offset = next

	meta, next, err := encoding.DecodeTag(buf, offset)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	if !meta.Opening || meta.Number != 4 {
		return SubscribeCOVRequest{}, bacstack.ErrMalformedTag
	}
	propID, next, err := decodeContextEnumerated(buf, next, 0)
	if err != nil {
		return SubscribeCOVRequest{}, err
	}
	if meta, next2, err := encoding.DecodeTag(buf, next); err == nil && meta.Closing && meta.Number == 4 {
		next = next2
	}
	offset = next

	p := bacstack.PropertyIdentifier(propID)
	req := SubscribeCOVRequest{ProcessID: procID, Monitored: oid, Confirmed: confirmed, Lifetime: lifetime, Property: &p}

	if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 5) {
		inc, _, err := decodeContextReal(buf, offset, 5)
		if err != nil {
			return SubscribeCOVRequest{}, err
		}
		req.Increment = &inc
	}
	return req, nil
}

func decodeContextBoolean(buf []byte, offset int, expectTag uint8) (bool, int, error) {
	meta, next, err := decodeExpectedContextTag(buf, offset, expectTag)
	if err != nil {
		return false, offset, err
	}
	if meta.Length != 1 {
		return false, offset, bacstack.ErrMalformedTag
	}
	return buf[next] != 0, next + 1, nil
}

func decodeContextReal(buf []byte, offset int, expectTag uint8) (float32, int, error) {
	meta, next, err := decodeExpectedContextTag(buf, offset, expectTag)
	if err != nil {
		return 0, offset, err
	}
	v, err := encoding.DecodeReal(buf[next : next+int(meta.Length)])
	return v, next + int(meta.Length), err
}
