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
	"testing"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/objects"
)

func TestReadPropertyMultipleRequestRoundTrip(t *testing.T) {
	idx := 1
	specs := []ReadAccessSpec{
		{
			Object: bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogInput, Instance: 1},
			Properties: []PropertyReference{
				{Property: bacstack.PropertyPresentValue},
				{Property: bacstack.PropertyPriorityArray, ArrayIndex: &idx},
			},
		},
		{
			Object: bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 1},
			Properties: []PropertyReference{
				{Property: bacstack.PropertyObjectName},
			},
		},
	}

	buf := EncodeReadPropertyMultipleRequest(specs)
	got, err := DecodeReadPropertyMultipleRequest(buf)
	if err != nil {
		t.Fatalf("DecodeReadPropertyMultipleRequest failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 specs, got %d", len(got))
	}
	if len(got[0].Properties) != 2 {
		t.Fatalf("expected 2 properties on first spec, got %d", len(got[0].Properties))
	}
	if got[0].Properties[1].ArrayIndex == nil || *got[0].Properties[1].ArrayIndex != idx {
		t.Errorf("expected array index %d on second property, got %v", idx, got[0].Properties[1].ArrayIndex)
	}
	if got[1].Object.Type != bacstack.ObjectTypeDevice {
		t.Errorf("expected second spec to target Device, got %v", got[1].Object.Type)
	}
}

func TestBuildReadAccessResultsEmbedsPerPropertyError(t *testing.T) {
	db := objects.NewDatabase()
	oid := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogInput, Instance: 1}
	if _, err := db.Add(oid, "ai-1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	specs := []ReadAccessSpec{
		{
			Object: oid,
			Properties: []PropertyReference{
				{Property: bacstack.PropertyPresentValue},
				{Property: bacstack.PropertyIdentifier(9999)}, // unknown
			},
		},
	}

	results := BuildReadAccessResults(db, specs)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if len(results[0].Results) != 2 {
		t.Fatalf("expected 2 property results, got %d", len(results[0].Results))
	}
	if results[0].Results[0].Err != nil {
		t.Errorf("expected present_value to succeed, got error %v", results[0].Results[0].Err)
	}
	if results[0].Results[1].Err == nil {
		t.Fatalf("expected unknown property to fail within the ACK, not abort the request")
	}
	if results[0].Results[1].Err.Code != bacstack.ErrorCodeUnknownProperty {
		t.Errorf("expected unknown-property error, got %v", results[0].Results[1].Err.Code)
	}
}

func TestReadPropertyMultipleAckEncodesError(t *testing.T) {
	results := []ReadAccessResult{
		{
			Object: bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogInput, Instance: 1},
			Results: []PropertyResult{
				{Property: bacstack.PropertyPresentValue, Value: encoding.RealValue(72.5)},
				{Property: bacstack.PropertyIdentifier(9999), Err: bacstack.NewBACnetError(bacstack.ErrorClassProperty, bacstack.ErrorCodeUnknownProperty)},
			},
		},
	}
	buf := EncodeReadPropertyMultipleAck(results)
	if len(buf) == 0 {
		t.Fatal("expected non-empty ACK payload")
	}
}

func TestWritePropertyMultipleRequestRoundTrip(t *testing.T) {
	priority := uint8(8)
	specs := []WriteAccessSpec{
		{
			Object: bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogOutput, Instance: 1},
			Values: []WriteValue{
				{Property: bacstack.PropertyPresentValue, Value: encoding.RealValue(68.0), Priority: &priority},
				{Property: bacstack.PropertyOutOfService, Value: encoding.BooleanValue(true)},
			},
		},
	}

	buf := EncodeWritePropertyMultipleRequest(specs)
	got, err := DecodeWritePropertyMultipleRequest(buf)
	if err != nil {
		t.Fatalf("DecodeWritePropertyMultipleRequest failed: %v", err)
	}
	if len(got) != 1 || len(got[0].Values) != 2 {
		t.Fatalf("unexpected shape: %+v", got)
	}
	if got[0].Values[0].Value.Real != 68.0 {
		t.Errorf("expected present_value 68.0, got %v", got[0].Values[0].Value.Real)
	}
	if got[0].Values[0].Priority == nil || *got[0].Values[0].Priority != priority {
		t.Errorf("expected priority %d, got %v", priority, got[0].Values[0].Priority)
	}
	if got[0].Values[1].Value.Boolean != true {
		t.Errorf("expected out_of_service true, got %v", got[0].Values[1].Value.Boolean)
	}
}
