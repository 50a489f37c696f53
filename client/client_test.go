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

package client

import (
	"context"
	"testing"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
	"github.com/scadalynx/bacstack/cov"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/objects"
	"github.com/scadalynx/bacstack/services"
	"github.com/scadalynx/bacstack/tsm"
)

// loopback wires a Client directly to a services.Dispatcher through the
// tsm client/server pair, without a real transport, so request/response
// round trips exercise the full encode/decode/dispatch chain.
type loopback struct {
	server     *tsm.Server
	dispatcher *services.Dispatcher
	clientAddr bacstack.NetworkAddress
}

func (l *loopback) SendAPDU(ctx context.Context, _ bacstack.NetworkAddress, frame []byte) error {
	a, err := apdu.DecodeAPDU(frame)
	if err != nil {
		return err
	}
	if a.Type != apdu.TypeConfirmedRequest {
		return nil
	}
	txn, payload, ready, err := l.server.ReceiveConfirmedRequest(ctx, l.clientAddr, a)
	if err != nil {
		return err
	}
	if ready {
		l.dispatcher.Handle(ctx, txn, payload)
	}
	return nil
}

type serverSender struct {
	client     *Client
	serverAddr bacstack.NetworkAddress
}

func (s *serverSender) SendAPDU(ctx context.Context, _ bacstack.NetworkAddress, frame []byte) error {
	a, err := apdu.DecodeAPDU(frame)
	if err != nil {
		return err
	}
	s.client.HandleIncoming(ctx, s.serverAddr, a)
	return nil
}

func newLoopback(t *testing.T, db *objects.Database, covMgr *cov.Manager) (*Client, bacstack.NetworkAddress) {
	t.Helper()
	clientAddr := bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, 10, 0xBA, 0xC0})
	serverAddr := bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, 20, 0xBA, 0xC0})

	c := New(nil, 99, 1476)
	ss := &serverSender{client: c, serverAddr: serverAddr}
	server := tsm.NewServer(ss)
	dispatcher := services.NewDispatcher(db, covMgr, server, nil)
	lb := &loopback{server: server, dispatcher: dispatcher, clientAddr: clientAddr}
	c.tsm = tsm.NewClient(lb, 1476)
	c.sender = lb
	return c, serverAddr
}

func TestClientReadWriteProperty(t *testing.T) {
	db := objects.NewDatabase()
	oid := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 1}
	obj, err := db.Add(oid, "av-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.RealValue(10.0), nil, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	c, dest := newLoopback(t, db, nil)

	v, err := c.ReadProperty(context.Background(), dest, oid, bacstack.PropertyPresentValue, nil)
	if err != nil {
		t.Fatalf("ReadProperty failed: %v", err)
	}
	if v.Real != 10.0 {
		t.Errorf("expected 10.0, got %v", v.Real)
	}

	if err := c.WriteProperty(context.Background(), dest, oid, bacstack.PropertyPresentValue, encoding.RealValue(42.5), nil, nil); err != nil {
		t.Fatalf("WriteProperty failed: %v", err)
	}
	v2, err := c.ReadProperty(context.Background(), dest, oid, bacstack.PropertyPresentValue, nil)
	if err != nil {
		t.Fatalf("ReadProperty after write failed: %v", err)
	}
	if v2.Real != 42.5 {
		t.Errorf("expected 42.5 after write, got %v", v2.Real)
	}
}

func TestClientReadPropertyMultiple(t *testing.T) {
	db := objects.NewDatabase()
	oid := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 1}
	obj, err := db.Add(oid, "av-1")
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.RealValue(72.5), nil, nil); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	c, dest := newLoopback(t, db, nil)

	results, err := c.ReadPropertyMultiple(context.Background(), dest, []services.ReadAccessSpec{
		{Object: oid, Properties: []services.PropertyReference{{Property: bacstack.PropertyPresentValue}}},
	})
	if err != nil {
		t.Fatalf("ReadPropertyMultiple failed: %v", err)
	}
	if len(results) != 1 || len(results[0].Results) != 1 {
		t.Fatalf("expected 1 object with 1 result, got %+v", results)
	}
	if results[0].Results[0].Value.Real != 72.5 {
		t.Errorf("expected 72.5, got %v", results[0].Results[0].Value.Real)
	}
}

func TestClientSubscribeCOVDeliversNotification(t *testing.T) {
	db := objects.NewDatabase()
	oid := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogValue, Instance: 1}
	if _, err := db.Add(oid, "av-1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	clientAddr := bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, 10, 0xBA, 0xC0})
	serverAddr := bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, 20, 0xBA, 0xC0})

	c := New(nil, 99, 1476)
	ss := &serverSender{client: c, serverAddr: serverAddr}
	server := tsm.NewServer(ss)

	device := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 1}
	notifier := services.NewNotifier(nil, ss, nil)
	covMgr := cov.New(device, notifier, nil, nil)

	dispatcher := services.NewDispatcher(db, covMgr, server, nil)
	lb := &loopback{server: server, dispatcher: dispatcher, clientAddr: clientAddr}
	c.tsm = tsm.NewClient(lb, 1476)
	c.sender = lb

	var gotValues map[bacstack.PropertyIdentifier]encoding.Value
	done := make(chan struct{}, 1)
	err := c.SubscribeCOV(context.Background(), serverAddr, 42, oid, false, 3600, func(_ bacstack.NetworkAddress, monitored bacstack.ObjectIdentifier, values map[bacstack.PropertyIdentifier]encoding.Value) {
		if monitored != oid {
			t.Errorf("expected notification for %s, got %s", oid.String(), monitored.String())
		}
		gotValues = values
		done <- struct{}{}
	})
	if err != nil {
		t.Fatalf("SubscribeCOV failed: %v", err)
	}

	obj := db.Get(oid)
	if err := obj.WriteProperty(bacstack.PropertyPresentValue, encoding.RealValue(99.0), nil, nil); err != nil {
		t.Fatalf("WriteProperty failed: %v", err)
	}
	statusFlags, err := obj.ReadProperty(bacstack.PropertyStatusFlags, nil)
	if err != nil {
		t.Fatalf("ReadProperty(status_flags) failed: %v", err)
	}
	covMgr.OnWrite(context.Background(), oid, bacstack.PropertyPresentValue, encoding.RealValue(99.0), statusFlags)

	select {
	case <-done:
	default:
		t.Fatal("expected COV handler to be invoked synchronously")
	}
	if v := gotValues[bacstack.PropertyPresentValue]; v.Real != 99.0 {
		t.Errorf("expected notified present_value 99.0, got %v", v.Real)
	}
	if sf, ok := gotValues[bacstack.PropertyStatusFlags]; !ok || sf.Tag != encoding.TagBitString {
		t.Errorf("expected the notification's list_of_values to include status_flags, got %+v", gotValues)
	}
}

func TestClientGetObjectList(t *testing.T) {
	db := objects.NewDatabase()
	device := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 1}
	if _, err := db.AddDevice(1, "device-1", objects.DeviceOptions{}); err != nil {
		t.Fatalf("AddDevice failed: %v", err)
	}
	ai := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogInput, Instance: 1}
	if _, err := db.Add(ai, "ai-1"); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	c, dest := newLoopback(t, db, nil)

	list, err := c.GetObjectList(context.Background(), dest, device)
	if err != nil {
		t.Fatalf("GetObjectList failed: %v", err)
	}
	if len(list) != 2 || list[0] != device || list[1] != ai {
		t.Errorf("expected [%s %s], got %v", device.String(), ai.String(), list)
	}
}

func TestClientHandleIncomingObservesIAm(t *testing.T) {
	c := New(&noopSender{}, 99, 1476)
	source := bacstack.NewUnicastAddress(0, bacstack.MacAddress{10, 0, 0, 5, 0xBA, 0xC0})

	payload := services.EncodeIAmRequest(services.IAmRequest{
		Device:                bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 7},
		MaxAPDULength:         1476,
		SegmentationSupported: bacstack.SegmentationBoth,
		VendorID:              260,
	})
	frame := apdu.EncodeUnconfirmedRequest(bacstack.ServiceIAm, payload)
	a, err := apdu.DecodeAPDU(frame)
	if err != nil {
		t.Fatalf("DecodeAPDU failed: %v", err)
	}
	c.HandleIncoming(context.Background(), source, a)

	info, ok := c.GetDevice(source)
	if !ok {
		t.Fatal("expected device info to be cached after I-Am")
	}
	if info.Device.Instance != 7 || info.VendorID != 260 {
		t.Errorf("unexpected cached info: %+v", info)
	}
}

type noopSender struct{}

func (*noopSender) SendAPDU(context.Context, bacstack.NetworkAddress, []byte) error { return nil }
