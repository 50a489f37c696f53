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
	"context"
	"testing"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
	"github.com/scadalynx/bacstack/cov"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/objects"
	"github.com/scadalynx/bacstack/tsm"
)

// recordingSender captures every APDU frame handed to SendAPDU, for
// inspection by dispatcher tests.
type recordingSender struct {
	frames [][]byte
}

func (r *recordingSender) SendAPDU(_ context.Context, _ bacstack.NetworkAddress, payload []byte) error {
	r.frames = append(r.frames, payload)
	return nil
}

func newTestAddress(instance byte) bacstack.NetworkAddress {
	return bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, instance, 0xBA, 0xC0})
}

func TestDispatcherReadPropertyHappyPath(t *testing.T) {
	db := objects.NewDatabase()
	oid := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 1}
	obj, err := db.Add(oid, "av-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.RealValue(72.5), nil, nil); err != nil {
		t.Fatalf("seed WriteProperty failed: %v", err)
	}

	sender := &recordingSender{}
	server := tsm.NewServer(sender)
	d := NewDispatcher(db, nil, server, nil)

	txn := tsm.ServerTransaction{Source: newTestAddress(1), InvokeID: 5, ServiceChoice: bacstack.ServiceReadProperty, MaxAPDU: 1476}
	payload := EncodeReadPropertyRequest(ReadPropertyRequest{Object: oid, Property: bacstack.PropertyPresentValue})

	d.Handle(context.Background(), txn, payload)

	if len(sender.frames) != 1 {
		t.Fatalf("expected 1 frame sent, got %d", len(sender.frames))
	}
	a, err := apdu.DecodeAPDU(sender.frames[0])
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	if a.Type != apdu.TypeComplexACK {
		t.Fatalf("expected ComplexACK, got %v", a.Type)
	}
	_, value, err := DecodeReadPropertyAck(a.Payload)
	if err != nil {
		t.Fatalf("DecodeReadPropertyAck failed: %v", err)
	}
	if value.Tag != encoding.TagReal || value.Real != 72.5 {
		t.Errorf("expected present_value 72.5, got %+v", value)
	}
}

func TestDispatcherWriteRelinquishDefault(t *testing.T) {
	db := objects.NewDatabase()
	oid := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogOutput, Instance: 1}
	obj, err := db.Add(oid, "ao-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sender := &recordingSender{}
	server := tsm.NewServer(sender)
	d := NewDispatcher(db, nil, server, nil)

	priority := uint8(8)
	writeReq := EncodeWritePropertyRequest(WritePropertyRequest{
		Object: oid, Property: bacstack.PropertyPresentValue, Value: encoding.RealValue(50.0), Priority: &priority,
	})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: newTestAddress(2), InvokeID: 1, ServiceChoice: bacstack.ServiceWriteProperty, MaxAPDU: 1476}, writeReq)

	relinquishReq := EncodeWritePropertyRequest(WritePropertyRequest{
		Object: oid, Property: bacstack.PropertyRelinquishDefault, Value: encoding.RealValue(68.0),
	})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: newTestAddress(2), InvokeID: 2, ServiceChoice: bacstack.ServiceWriteProperty, MaxAPDU: 1476}, relinquishReq)

	// Relinquish the priority-8 command so present_value falls back to
	// relinquish_default.
	relinquishSlot := EncodeWritePropertyRequest(WritePropertyRequest{
		Object: oid, Property: bacstack.PropertyPresentValue, Value: encoding.NullValue(), Priority: &priority,
	})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: newTestAddress(2), InvokeID: 3, ServiceChoice: bacstack.ServiceWriteProperty, MaxAPDU: 1476}, relinquishSlot)

	if len(sender.frames) != 3 {
		t.Fatalf("expected 3 simple ACKs, got %d", len(sender.frames))
	}
	for i, frame := range sender.frames {
		a, err := apdu.DecodeAPDU(frame)
		if err != nil {
			t.Fatalf("frame %d: DecodeAPDU failed: %v", i, err)
		}
		if a.Type != apdu.TypeSimpleACK {
			t.Fatalf("frame %d: expected SimpleACK, got %v", i, a.Type)
		}
	}

	v, err := obj.ReadProperty(bacstack.PropertyPresentValue, nil)
	if err != nil {
		t.Fatalf("ReadProperty failed: %v", err)
	}
	if v.Tag != encoding.TagReal || v.Real != 68.0 {
		t.Errorf("expected present_value to fall back to relinquish_default 68.0, got %+v", v)
	}
}

func TestDispatcherSubscribeCOVRoundTrip(t *testing.T) {
	db := objects.NewDatabase()
	oid := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 1}
	if _, err := db.Add(oid, "av-1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	device := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 1}
	notifier := &recordingCOVSender{}
	covMgr := cov.New(device, notifier, nil, nil)

	sender := &recordingSender{}
	server := tsm.NewServer(sender)
	d := NewDispatcher(db, covMgr, server, nil)

	subscriber := newTestAddress(3)
	subReq := EncodeSubscribeCOVRequest(SubscribeCOVRequest{ProcessID: 42, Monitored: oid, Confirmed: false, Lifetime: 3600})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: subscriber, InvokeID: 1, ServiceChoice: bacstack.ServiceSubscribeCOV, MaxAPDU: 1476}, subReq)

	if len(sender.frames) != 1 {
		t.Fatalf("expected 1 ack frame, got %d", len(sender.frames))
	}

	writeReq := EncodeWritePropertyRequest(WritePropertyRequest{Object: oid, Property: bacstack.PropertyPresentValue, Value: encoding.RealValue(99.0)})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: newTestAddress(4), InvokeID: 2, ServiceChoice: bacstack.ServiceWriteProperty, MaxAPDU: 1476}, writeReq)

	if len(notifier.unconfirmed) != 1 {
		t.Fatalf("expected 1 COV notification after write, got %d", len(notifier.unconfirmed))
	}
	if notifier.unconfirmed[0].processID != 42 {
		t.Errorf("expected process_id 42, got %d", notifier.unconfirmed[0].processID)
	}
	if v := notifier.unconfirmed[0].values[bacstack.PropertyPresentValue]; v.Real != 99.0 {
		t.Errorf("expected notified present_value 99.0, got %v", v.Real)
	}
}

type recordingCOVSender struct {
	unconfirmed []covNotification
}

type covNotification struct {
	dest      bacstack.NetworkAddress
	processID uint32
	values    map[bacstack.PropertyIdentifier]encoding.Value
}

func (r *recordingCOVSender) SendUnconfirmedCOVNotification(_ context.Context, dest bacstack.NetworkAddress, processID uint32, _, _ bacstack.ObjectIdentifier, _ uint32, values map[bacstack.PropertyIdentifier]encoding.Value) error {
	r.unconfirmed = append(r.unconfirmed, covNotification{dest: dest, processID: processID, values: values})
	return nil
}

func (r *recordingCOVSender) SendConfirmedCOVNotification(_ context.Context, _ bacstack.NetworkAddress, _ uint32, _, _ bacstack.ObjectIdentifier, _ uint32, _ map[bacstack.PropertyIdentifier]encoding.Value) (tsm.Response, error) {
	return tsm.Response{}, nil
}

func TestDispatcherAtomicFileRoundTrip(t *testing.T) {
	db := objects.NewDatabase()
	fileOID := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeFile, Instance: 1}
	if _, err := db.Add(fileOID, "backup-1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sender := &recordingSender{}
	server := tsm.NewServer(sender)
	d := NewDispatcher(db, nil, server, nil)

	writeReq := EncodeAtomicWriteFileRequest(AtomicWriteFileRequest{File: fileOID, StartPosition: 0, Data: []byte("hello world")})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: newTestAddress(1), InvokeID: 1, ServiceChoice: bacstack.ServiceAtomicWriteFile, MaxAPDU: 1476}, writeReq)

	readReq := EncodeAtomicReadFileRequest(AtomicReadFileRequest{File: fileOID, StartPosition: 0, RequestedCount: 100})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: newTestAddress(1), InvokeID: 2, ServiceChoice: bacstack.ServiceAtomicReadFile, MaxAPDU: 1476}, readReq)

	if len(sender.frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(sender.frames))
	}
	a, err := apdu.DecodeAPDU(sender.frames[1])
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	ack, err := DecodeAtomicReadFileAck(a.Payload)
	if err != nil {
		t.Fatalf("DecodeAtomicReadFileAck failed: %v", err)
	}
	if !ack.EndOfFile || string(ack.Data) != "hello world" {
		t.Errorf("expected full round-tripped file content, got %+v", ack)
	}
}

func TestDispatcherReinitializeDeviceInvokesHandler(t *testing.T) {
	db := objects.NewDatabase()
	sender := &recordingSender{}
	server := tsm.NewServer(sender)
	d := NewDispatcher(db, nil, server, nil)

	var got ReinitializeDeviceRequest
	d.ReinitializeHandler = func(_ bacstack.NetworkAddress, req ReinitializeDeviceRequest) error {
		got = req
		return nil
	}

	req := EncodeReinitializeDeviceRequest(ReinitializeDeviceRequest{State: ReinitializedStateStartBackup, Password: "pw"})
	d.Handle(context.Background(), tsm.ServerTransaction{Source: newTestAddress(1), InvokeID: 1, ServiceChoice: bacstack.ServiceReinitializeDevice, MaxAPDU: 1476}, req)

	if len(sender.frames) != 1 {
		t.Fatalf("expected 1 simple ack, got %d", len(sender.frames))
	}
	if got.State != ReinitializedStateStartBackup || got.Password != "pw" {
		t.Errorf("expected handler invoked with decoded request, got %+v", got)
	}
}
