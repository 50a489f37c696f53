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

package cov

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/tsm"
)

type recordedNotification struct {
	confirmed bool
	dest      bacstack.NetworkAddress
	processID uint32
	monitored bacstack.ObjectIdentifier
	remaining uint32
	values    map[bacstack.PropertyIdentifier]encoding.Value
}

type fakeNotifier struct {
	mu    sync.Mutex
	sends []recordedNotification
}

func (f *fakeNotifier) SendUnconfirmedCOVNotification(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, device, monitored bacstack.ObjectIdentifier, timeRemaining uint32, values map[bacstack.PropertyIdentifier]encoding.Value) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recordedNotification{dest: dest, processID: processID, monitored: monitored, remaining: timeRemaining, values: values})
	return nil
}

func (f *fakeNotifier) SendConfirmedCOVNotification(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, device, monitored bacstack.ObjectIdentifier, timeRemaining uint32, values map[bacstack.PropertyIdentifier]encoding.Value) (tsm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recordedNotification{confirmed: true, dest: dest, processID: processID, monitored: monitored, remaining: timeRemaining, values: values})
	return tsm.Response{}, nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeNotifier) last() recordedNotification {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sends[len(f.sends)-1]
}

func testDest() bacstack.NetworkAddress {
	return bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, 1, 0xBA, 0xC0})
}

func TestManagerOnWriteNotifiesOnFirstValue(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)

	key := Key{Subscriber: "sub1", ProcessID: 1, Monitored: ai}
	m.Subscribe(key, testDest(), false, 0, nil)

	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(72.5), encoding.Value{})

	if notifier.count() != 1 {
		t.Fatalf("expected one notification for the first observed value, got %d", notifier.count())
	}
	got := notifier.last()
	if got.confirmed {
		t.Error("expected an unconfirmed notification")
	}
	if got.monitored != ai {
		t.Errorf("expected monitored object %v, got %v", ai, got.monitored)
	}
}

func TestManagerOnWriteSkipsUnchangedValue(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	m.Subscribe(Key{Subscriber: "sub1", Monitored: ai}, testDest(), false, 0, nil)

	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(72.5), encoding.Value{})
	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(72.5), encoding.Value{})

	if notifier.count() != 1 {
		t.Fatalf("expected the unchanged repeat write to be suppressed, got %d notifications", notifier.count())
	}
}

func TestManagerOnWriteRespectsIncrementThreshold(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	increment := float32(1.0)
	m.Subscribe(Key{Subscriber: "sub1", Monitored: ai}, testDest(), false, 0, &increment)

	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(70.0), encoding.Value{})
	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(70.5), encoding.Value{})
	if notifier.count() != 1 {
		t.Fatalf("expected a sub-threshold delta to be suppressed, got %d notifications", notifier.count())
	}

	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(72.0), encoding.Value{})
	if notifier.count() != 2 {
		t.Fatalf("expected a delta exceeding the increment to notify, got %d notifications", notifier.count())
	}
}

func TestManagerOnWriteIgnoresOtherObjectsAndProperties(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	other := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 2)
	m := New(device, notifier, nil, nil)
	m.Subscribe(Key{Subscriber: "sub1", Monitored: ai}, testDest(), false, 0, nil)

	m.OnWrite(context.Background(), other, bacstack.PropertyPresentValue, encoding.RealValue(1.0), encoding.Value{})
	m.OnWrite(context.Background(), ai, bacstack.PropertyDescription, encoding.CharacterStringValue("hi"), encoding.Value{})

	if notifier.count() != 0 {
		t.Fatalf("expected unrelated writes to produce no notifications, got %d", notifier.count())
	}
}

func TestManagerSubscribeIsIdempotentPerKey(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	key := Key{Subscriber: "sub1", Monitored: ai}

	m.Subscribe(key, testDest(), false, 0, nil)
	m.Subscribe(key, testDest(), true, 0, nil)

	if len(m.subs) != 1 {
		t.Fatalf("expected re-subscribing the same key to replace, not accumulate, got %d entries", len(m.subs))
	}
	if !m.subs[key].confirmed {
		t.Error("expected the replacement subscription's confirmed flag to take effect")
	}
}

func TestManagerCancelRemovesSubscription(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	key := Key{Subscriber: "sub1", Monitored: ai}
	m.Subscribe(key, testDest(), false, 0, nil)

	m.Cancel(key)

	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(1.0), encoding.Value{})
	if notifier.count() != 0 {
		t.Fatalf("expected a cancelled subscription to receive no notifications, got %d", notifier.count())
	}
}

func TestManagerPurgeExpiredRemovesLapsedSubscriptions(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	key := Key{Subscriber: "sub1", Monitored: ai}
	m.Subscribe(key, testDest(), false, time.Millisecond, nil)

	time.Sleep(5 * time.Millisecond)

	if n := m.PurgeExpired(); n != 1 {
		t.Fatalf("expected exactly one expired subscription purged, got %d", n)
	}
	if len(m.subs) != 0 {
		t.Fatalf("expected the subscription table to be empty after purge, got %d entries", len(m.subs))
	}
}

func TestManagerPurgeExpiredKeepsIndefiniteSubscriptions(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	m.Subscribe(Key{Subscriber: "sub1", Monitored: ai}, testDest(), false, 0, nil)

	if n := m.PurgeExpired(); n != 0 {
		t.Fatalf("expected an indefinite (lifetime=0) subscription to survive purge, got %d removed", n)
	}
}

func TestManagerOnWriteFoldsStatusFlagsIntoNotification(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	m.Subscribe(Key{Subscriber: "sub1", Monitored: ai}, testDest(), false, 0, nil)

	flags := encoding.BitStringValue(encoding.NewBitString(false, false, false, false))
	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(60.0), flags)

	got := notifier.last()
	if got.values[bacstack.PropertyPresentValue].Real != 60.0 {
		t.Fatalf("expected present_value 60.0 in list_of_values, got %v", got.values[bacstack.PropertyPresentValue])
	}
	sf, ok := got.values[bacstack.PropertyStatusFlags]
	if !ok {
		t.Fatal("expected status_flags to be folded into list_of_values alongside the changed property")
	}
	if sf.Tag != encoding.TagBitString {
		t.Errorf("expected status_flags to be a BitString value, got tag %v", sf.Tag)
	}
}

func TestManagerOnWriteOmitsStatusFlagsWhenUnavailable(t *testing.T) {
	notifier := &fakeNotifier{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	m := New(device, notifier, nil, nil)
	m.Subscribe(Key{Subscriber: "sub1", Monitored: ai}, testDest(), false, 0, nil)

	m.OnWrite(context.Background(), ai, bacstack.PropertyPresentValue, encoding.RealValue(60.0), encoding.Value{})

	got := notifier.last()
	if _, ok := got.values[bacstack.PropertyStatusFlags]; ok {
		t.Error("expected a zero-value statusFlags argument to be omitted, not encoded as a bogus entry")
	}
}
