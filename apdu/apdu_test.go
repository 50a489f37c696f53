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

package apdu

import (
	"bytes"
	"testing"

	"github.com/scadalynx/bacstack"
)

func TestConfirmedRequestRoundTripUnsegmented(t *testing.T) {
	want := APDU{
		Type:                  TypeConfirmedRequest,
		MaxSegmentsAccepted:   4,
		MaxAPDULengthAccepted: 1024,
		InvokeID:              42,
		ConfirmedServiceChoice: bacstack.ServiceReadProperty,
		Payload:               []byte{0x01, 0x02, 0x03},
	}
	encoded := EncodeConfirmedRequest(want)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if got.Type != want.Type || got.InvokeID != want.InvokeID || got.ConfirmedServiceChoice != want.ConfirmedServiceChoice {
		t.Fatalf("round trip mismatch: want %+v, got %+v", want, got)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("payload mismatch: want %v, got %v", want.Payload, got.Payload)
	}
	// max-segments/max-apdu are quantized to the nearest standard code, not
	// stored exactly; the decoded value should still reflect a value >= 4/1024.
	if got.MaxSegmentsAccepted < 4 || got.MaxAPDULengthAccepted < 1024 {
		t.Errorf("expected quantized header to round up, got %+v", got)
	}
}

func TestConfirmedRequestRoundTripSegmented(t *testing.T) {
	want := APDU{
		Type:                  TypeConfirmedRequest,
		Segmented:             true,
		MoreFollows:           true,
		SegmentedAccepted:     true,
		MaxSegmentsAccepted:   16,
		MaxAPDULengthAccepted: 480,
		InvokeID:              7,
		SequenceNumber:        3,
		ProposedWindowSize:    5,
		ConfirmedServiceChoice: bacstack.ServiceReadProperty,
		Payload:               []byte{0xAA, 0xBB},
	}
	encoded := EncodeConfirmedRequest(want)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if !got.Segmented || !got.MoreFollows || !got.SegmentedAccepted {
		t.Fatalf("expected segmentation flags preserved, got %+v", got)
	}
	if got.SequenceNumber != 3 || got.ProposedWindowSize != 5 {
		t.Errorf("expected sequence/window 3/5, got %d/%d", got.SequenceNumber, got.ProposedWindowSize)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("payload mismatch: want %v, got %v", want.Payload, got.Payload)
	}
}

func TestUnconfirmedRequestRoundTrip(t *testing.T) {
	payload := []byte{0x01, 0x02}
	encoded := EncodeUnconfirmedRequest(bacstack.ServiceWhoIs, payload)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if got.Type != TypeUnconfirmedRequest || got.UnconfirmedServiceChoice != bacstack.ServiceWhoIs {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if !bytes.Equal(got.Payload, payload) {
		t.Errorf("payload mismatch: want %v, got %v", payload, got.Payload)
	}
}

func TestSimpleACKRoundTrip(t *testing.T) {
	encoded := EncodeSimpleACK(9, bacstack.ServiceWriteProperty)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if got.Type != TypeSimpleACK || got.InvokeID != 9 || got.ConfirmedServiceChoice != bacstack.ServiceWriteProperty {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestComplexACKRoundTrip(t *testing.T) {
	want := APDU{
		Type:                   TypeComplexACK,
		Segmented:              true,
		MoreFollows:            true,
		InvokeID:               11,
		ConfirmedServiceChoice: bacstack.ServiceReadProperty,
		SequenceNumber:         1,
		ProposedWindowSize:     8,
		Payload:                []byte{0x10, 0x20},
	}
	encoded := EncodeComplexACK(want)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if !got.Segmented || !got.MoreFollows || got.SequenceNumber != 1 || got.ProposedWindowSize != 8 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("payload mismatch: want %v, got %v", want.Payload, got.Payload)
	}
}

func TestSegmentACKRoundTrip(t *testing.T) {
	encoded := EncodeSegmentACK(5, 2, 16, true, true)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if got.Type != TypeSegmentACK || !got.NegativeAck || !got.Server || got.InvokeID != 5 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.SequenceNumber != 2 || got.ProposedWindowSize != 16 {
		t.Errorf("expected sequence/window 2/16, got %d/%d", got.SequenceNumber, got.ProposedWindowSize)
	}
}

func TestErrorRoundTrip(t *testing.T) {
	encoded := EncodeError(3, bacstack.ServiceReadProperty, bacstack.ErrorClassProperty, bacstack.ErrorCodeUnknownProperty)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if got.Type != TypeError || got.InvokeID != 3 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.ErrorClass != bacstack.ErrorClassProperty || bacstack.ErrorCode(got.ErrorCode) != bacstack.ErrorCodeUnknownProperty {
		t.Errorf("unexpected error class/code: %v/%v", got.ErrorClass, got.ErrorCode)
	}
}

func TestRejectRoundTrip(t *testing.T) {
	encoded := EncodeReject(6, bacstack.RejectReasonInvalidTag)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if got.Type != TypeReject || got.InvokeID != 6 || got.RejectReason != uint8(bacstack.RejectReasonInvalidTag) {
		t.Fatalf("unexpected decode: %+v", got)
	}
}

func TestAbortRoundTrip(t *testing.T) {
	encoded := EncodeAbort(8, true, bacstack.AbortReasonSegmentationNotSupported)
	got, err := DecodeAPDU(encoded)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if got.Type != TypeAbort || !got.Server || got.InvokeID != 8 {
		t.Fatalf("unexpected decode: %+v", got)
	}
	if got.AbortReason != uint8(bacstack.AbortReasonSegmentationNotSupported) {
		t.Errorf("expected abort reason %d, got %d", bacstack.AbortReasonSegmentationNotSupported, got.AbortReason)
	}
}

func TestDecodeAPDUEmptyRejected(t *testing.T) {
	if _, err := DecodeAPDU(nil); err == nil {
		t.Fatal("expected empty buffer to be rejected")
	}
}

func TestDecodeAPDUTruncatedRejected(t *testing.T) {
	if _, err := DecodeAPDU([]byte{byte(TypeConfirmedRequest) << 4}); err == nil {
		t.Fatal("expected truncated confirmed-request to be rejected")
	}
}

func TestNegotiatedMaxAPDU(t *testing.T) {
	if got := NegotiatedMaxAPDU(1476, 480); got != 480 {
		t.Errorf("expected 480, got %d", got)
	}
	if got := NegotiatedMaxAPDU(206, 1024); got != 206 {
		t.Errorf("expected 206, got %d", got)
	}
}
