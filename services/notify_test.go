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
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/event"
)

func TestCOVNotificationRoundTrip(t *testing.T) {
	device := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 1}
	monitored := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogInput, Instance: 1}
	values := map[bacstack.PropertyIdentifier]encoding.Value{
		bacstack.PropertyPresentValue: encoding.RealValue(72.5),
		bacstack.PropertyStatusFlags:  encoding.BitStringValue(encoding.NewBitString(false, false, false, false)),
	}

	buf := EncodeCOVNotification(42, device, monitored, 3600, values)

	got, err := DecodeCOVNotification(buf)
	if err != nil {
		t.Fatalf("DecodeCOVNotification failed: %v", err)
	}
	if got.ProcessID != 42 || got.Device != device || got.Monitored != monitored || got.TimeRemaining != 3600 {
		t.Errorf("unexpected scalar fields: %+v", got)
	}
	if len(got.Values) != 2 {
		t.Fatalf("expected 2 values, got %d", len(got.Values))
	}
	if v := got.Values[bacstack.PropertyPresentValue]; v.Tag != encoding.TagReal || v.Real != 72.5 {
		t.Errorf("expected present_value 72.5, got %+v", v)
	}
}

func TestCOVNotificationEmptyValueList(t *testing.T) {
	device := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 1}
	monitored := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogInput, Instance: 1}

	buf := EncodeCOVNotification(1, device, monitored, 0, nil)

	got, err := DecodeCOVNotification(buf)
	if err != nil {
		t.Fatalf("DecodeCOVNotification failed: %v", err)
	}
	if len(got.Values) != 0 {
		t.Errorf("expected no values, got %d", len(got.Values))
	}
}

func TestEncodeEventNotificationOutOfRange(t *testing.T) {
	n := event.Notification{
		ProcessID:         1,
		InitiatingDevice:  bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: 1},
		EventObject:       bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeAnalogInput, Instance: 1},
		Timestamp:         encoding.Time{Hour: 12, Minute: 0, Second: 0, Hundredths: 0},
		NotificationClass: 5,
		Priority:          100,
		EventType:         bacstack.EventTypeOutOfRange,
		NotifyType:        bacstack.NotifyTypeAlarm,
		AckRequired:       true,
		FromState:         bacstack.EventStateNormal,
		ToState:           bacstack.EventStateHighLimit,
		Parameters: event.NotificationParameters{
			Type: bacstack.EventTypeOutOfRange,
		},
	}
	n.Parameters.OutOfRange.ExceedingValue = encoding.RealValue(85.0)
	n.Parameters.OutOfRange.Deadband = 2.0
	n.Parameters.OutOfRange.ExceededLimit = 80.0

	buf := EncodeEventNotification(n)
	if len(buf) == 0 {
		t.Fatal("expected non-empty encoding")
	}
}

func TestNotifierDispatchBroadcastWithoutAddress(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier(nil, sender, nil)

	n := event.Notification{
		EventType:  bacstack.EventTypeChangeOfValue,
		NotifyType: bacstack.NotifyTypeEvent,
		Parameters: event.NotificationParameters{Type: bacstack.EventTypeChangeOfValue},
	}

	if err := notifier.DispatchBroadcast(context.Background(), n); err != nil {
		t.Fatalf("DispatchBroadcast failed: %v", err)
	}
	if len(sender.frames) != 1 {
		t.Fatalf("expected 1 broadcast frame, got %d", len(sender.frames))
	}
}

func TestNotifierDispatchSkipsDestinationWithoutAddress(t *testing.T) {
	sender := &recordingSender{}
	notifier := NewNotifier(nil, sender, nil)

	n := event.Notification{
		EventType:  bacstack.EventTypeChangeOfValue,
		Parameters: event.NotificationParameters{Type: bacstack.EventTypeChangeOfValue},
	}
	if err := notifier.Dispatch(context.Background(), n, event.Destination{}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if len(sender.frames) != 0 {
		t.Errorf("expected no frame sent when destination address is nil, got %d", len(sender.frames))
	}
}
