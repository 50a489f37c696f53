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

package objects

import (
	"testing"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

func newTestObject(t *testing.T, typ bacstack.ObjectType, instance uint32, name string) *Object {
	t.Helper()
	db := NewDatabase()
	obj, err := db.Add(bacstack.ObjectIdentifier{Type: typ, Instance: instance}, name)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	return obj
}

func TestObjectReadUnknownProperty(t *testing.T) {
	obj := newTestObject(t, bacstack.ObjectTypeAnalogValue, 1, "av-1")
	if _, err := obj.ReadProperty(bacstack.PropertyIdentifier(9999), nil); err == nil {
		t.Fatal("expected an error for an unknown property")
	}
}

func TestObjectWriteReadOnlyRejected(t *testing.T) {
	obj := newTestObject(t, bacstack.ObjectTypeAnalogInput, 1, "ai-1")
	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.RealValue(1), nil, nil); err == nil {
		t.Fatal("expected present_value on an input object to reject writes")
	}
}

func TestObjectCommandablePriorityArray(t *testing.T) {
	obj := newTestObject(t, bacstack.ObjectTypeAnalogOutput, 1, "ao-1")

	p8 := uint8(8)
	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.RealValue(50.0), &p8, nil); err != nil {
		t.Fatalf("write at priority 8 failed: %v", err)
	}
	v, err := obj.ReadProperty(bacstack.PropertyPresentValue, nil)
	if err != nil || v.Real != 50.0 {
		t.Fatalf("expected present_value 50.0, got %v, err %v", v, err)
	}

	p4 := uint8(4)
	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.RealValue(75.0), &p4, nil); err != nil {
		t.Fatalf("write at priority 4 failed: %v", err)
	}
	v, err = obj.ReadProperty(bacstack.PropertyPresentValue, nil)
	if err != nil || v.Real != 75.0 {
		t.Fatalf("expected priority-4 value to win, got %v, err %v", v, err)
	}

	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.NullValue(), &p4, nil); err != nil {
		t.Fatalf("relinquish at priority 4 failed: %v", err)
	}
	v, err = obj.ReadProperty(bacstack.PropertyPresentValue, nil)
	if err != nil || v.Real != 50.0 {
		t.Fatalf("expected present_value to fall back to priority 8's value, got %v, err %v", v, err)
	}

	idx := 8
	slot, err := obj.ReadProperty(bacstack.PropertyPriorityArray, &idx)
	if err != nil || slot.Real != 50.0 {
		t.Fatalf("expected priority array slot 8 to read back 50.0, got %v, err %v", slot, err)
	}
}

func TestObjectArrayPropertyElementReadWrite(t *testing.T) {
	db := NewDatabase()
	view, err := db.Add(bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeStructuredView, Instance: 1}, "view-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	child := encoding.ObjectIdentifierValue(bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 1})
	idx1 := 1
	if err := view.WriteProperty(bacstack.PropertySubordinateList, child, nil, &idx1); err != nil {
		t.Fatalf("write subordinate_list[1] failed: %v", err)
	}

	got, err := view.ReadProperty(bacstack.PropertySubordinateList, &idx1)
	if err != nil {
		t.Fatalf("read subordinate_list[1] failed: %v", err)
	}
	if got.ObjectID != child.ObjectID {
		t.Errorf("expected %v, got %v", child.ObjectID, got.ObjectID)
	}

	zero := 0
	count, err := view.ReadProperty(bacstack.PropertySubordinateList, &zero)
	if err != nil {
		t.Fatalf("read subordinate_list[0] (count) failed: %v", err)
	}
	if count.Unsigned != 1 {
		t.Errorf("expected count 1, got %d", count.Unsigned)
	}

	arr, err := view.ReadPropertyArray(bacstack.PropertySubordinateList)
	if err != nil {
		t.Fatalf("ReadPropertyArray failed: %v", err)
	}
	if len(arr) != 1 || arr[0].ObjectID != child.ObjectID {
		t.Errorf("expected single-element array %v, got %v", child.ObjectID, arr)
	}
}

func TestObjectArrayPropertyWriteGrowsWithNullPadding(t *testing.T) {
	db := NewDatabase()
	view, err := db.Add(bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeStructuredView, Instance: 1}, "view-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	idx3 := 3
	child := encoding.ObjectIdentifierValue(bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 9})
	if err := view.WriteProperty(bacstack.PropertySubordinateList, child, nil, &idx3); err != nil {
		t.Fatalf("write subordinate_list[3] failed: %v", err)
	}

	arr, err := view.ReadPropertyArray(bacstack.PropertySubordinateList)
	if err != nil {
		t.Fatalf("ReadPropertyArray failed: %v", err)
	}
	if len(arr) != 3 {
		t.Fatalf("expected array padded to length 3, got %d", len(arr))
	}
	if !arr[0].Null() || !arr[1].Null() {
		t.Errorf("expected slots 1 and 2 to be Null padding, got %+v", arr[:2])
	}
	if arr[2].ObjectID != child.ObjectID {
		t.Errorf("expected slot 3 to hold %v, got %v", child.ObjectID, arr[2].ObjectID)
	}
}

func TestObjectArrayPropertyWriteRequiresIndex(t *testing.T) {
	db := NewDatabase()
	view, err := db.Add(bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeStructuredView, Instance: 1}, "view-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	child := encoding.ObjectIdentifierValue(bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 1})
	if err := view.WriteProperty(bacstack.PropertySubordinateList, child, nil, nil); err == nil {
		t.Fatal("expected a whole-array write without an index to be rejected")
	}
}

func TestSetSystemPropertyBypassesWritability(t *testing.T) {
	obj := newTestObject(t, bacstack.ObjectTypeDevice, 1, "device-1")

	// system_status has no Writable entry in the Device schema; a plain
	// WriteProperty would be rejected.
	if err := obj.WriteProperty(bacstack.PropertySystemStatus, encoding.EnumeratedValue(0), nil, nil); err == nil {
		t.Fatal("expected system_status to reject a client WriteProperty")
	}

	obj.SetSystemProperty(bacstack.PropertySystemStatus, encoding.EnumeratedValue(uint32(bacstack.DeviceStatusOperational)))
	v, err := obj.ReadProperty(bacstack.PropertySystemStatus, nil)
	if err != nil {
		t.Fatalf("ReadProperty after SetSystemProperty failed: %v", err)
	}
	if v.Enum != uint32(bacstack.DeviceStatusOperational) {
		t.Errorf("expected operational status, got %d", v.Enum)
	}
}
