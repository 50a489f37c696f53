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

package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

type fakeSource struct {
	mu sync.Mutex

	eventType          bacstack.EventType
	params             Parameters
	reliability        bacstack.Reliability
	reliabilityInhibit bool
	algorithmInhibit   bool
	eventEnable        [3]bool
	timeDelay          time.Duration
	timeDelayNormal    time.Duration
	ncID               uint32
	notifyType         bacstack.NotifyType

	states []bacstack.EventState
}

func (s *fakeSource) EventType() bacstack.EventType                  { return s.eventType }
func (s *fakeSource) Parameters() Parameters                         { s.mu.Lock(); defer s.mu.Unlock(); return s.params }
func (s *fakeSource) Reliability() bacstack.Reliability              { return s.reliability }
func (s *fakeSource) ReliabilityEvaluationInhibit() bool             { return s.reliabilityInhibit }
func (s *fakeSource) EventAlgorithmInhibit() bool                    { return s.algorithmInhibit }
func (s *fakeSource) EventEnable() [3]bool                           { return s.eventEnable }
func (s *fakeSource) TimeDelay() time.Duration                       { return s.timeDelay }
func (s *fakeSource) TimeDelayNormal() time.Duration                 { return s.timeDelayNormal }
func (s *fakeSource) NotificationClassID() uint32                    { return s.ncID }
func (s *fakeSource) NotifyType() bacstack.NotifyType                { return s.notifyType }
func (s *fakeSource) BuildParameters(from, to bacstack.EventState) NotificationParameters {
	return NotificationParameters{Type: s.eventType}
}
func (s *fakeSource) SetEventState(st bacstack.EventState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *fakeSource) setPresentValue(v float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.params.PresentValue = encoding.RealValue(v)
}

type dispatchedCall struct {
	n    Notification
	dest Destination
}

type fakeDispatcher struct {
	mu         sync.Mutex
	dispatched []dispatchedCall
	broadcasts []Notification
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, n Notification, dest Destination) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dispatched = append(d.dispatched, dispatchedCall{n: n, dest: dest})
	return nil
}

func (d *fakeDispatcher) DispatchBroadcast(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.broadcasts = append(d.broadcasts, n)
	return nil
}

func noNotificationClass(uint32) (NotificationClass, bool) { return NotificationClass{}, false }

func newOutOfRangeSource() *fakeSource {
	return &fakeSource{
		eventType:   bacstack.EventTypeOutOfRange,
		eventEnable: [3]bool{true, true, true},
		reliability: bacstack.ReliabilityNoFaultDetected,
		params: Parameters{
			PresentValue: encoding.RealValue(50.0),
			HighLimit:    80.0,
			LowLimit:     20.0,
			Deadband:     2.0,
			LimitEnable:  LimitEnable{HighLimitEnable: true, LowLimitEnable: true},
		},
	}
}

func TestEngineFiresImmediateTransitionWithoutDelay(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	e := New(device, dispatcher, noNotificationClass, nil, nil)

	src := newOutOfRangeSource()
	e.Enroll(ai, src)
	src.setPresentValue(90.0)

	e.ScanOnce(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.broadcasts) != 1 {
		t.Fatalf("expected one broadcast notification with no delay and no notification class, got %d", len(dispatcher.broadcasts))
	}
	if dispatcher.broadcasts[0].ToState != bacstack.EventStateHighLimit {
		t.Errorf("expected the transition to HIGH_LIMIT, got %v", dispatcher.broadcasts[0].ToState)
	}
}

func TestEngineTimeDelayHoldsBeforeFiring(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	e := New(device, dispatcher, noNotificationClass, nil, nil)

	src := newOutOfRangeSource()
	src.timeDelay = 30 * time.Millisecond
	e.Enroll(ai, src)
	src.setPresentValue(90.0)

	e.ScanOnce(context.Background())
	dispatcher.mu.Lock()
	firstScanCount := len(dispatcher.broadcasts)
	dispatcher.mu.Unlock()
	if firstScanCount != 0 {
		t.Fatalf("expected the first scan to only arm the pending transition, got %d notifications", firstScanCount)
	}

	time.Sleep(40 * time.Millisecond)
	e.ScanOnce(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.broadcasts) != 1 {
		t.Fatalf("expected the transition to fire once the delay elapsed, got %d", len(dispatcher.broadcasts))
	}
}

func TestEngineEventEnableSuppressesTransition(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	e := New(device, dispatcher, noNotificationClass, nil, nil)

	src := newOutOfRangeSource()
	src.eventEnable = [3]bool{false, true, true} // to-offnormal/to-high-limit disabled
	e.Enroll(ai, src)
	src.setPresentValue(90.0)

	e.ScanOnce(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.broadcasts) != 0 {
		t.Fatalf("expected event_enable=false to suppress the notification entirely, got %d", len(dispatcher.broadcasts))
	}
	if len(src.states) != 0 {
		t.Errorf("expected a suppressed transition to not update event_state, got %v", src.states)
	}
}

func TestEngineReliabilityFaultOverridesAlgorithm(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	e := New(device, dispatcher, noNotificationClass, nil, nil)

	src := newOutOfRangeSource()
	src.reliability = bacstack.ReliabilityNoSensor
	e.Enroll(ai, src)

	e.ScanOnce(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.broadcasts) != 1 || dispatcher.broadcasts[0].ToState != bacstack.EventStateFault {
		t.Fatalf("expected a fault reliability to force a FAULT transition, got %+v", dispatcher.broadcasts)
	}
}

func TestEngineDispatchesToEligibleRecipient(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	dest := bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, 1, 0xBA, 0xC0})

	lookup := func(id uint32) (NotificationClass, bool) {
		if id != 5 {
			return NotificationClass{}, false
		}
		return NotificationClass{
			Instance: 5,
			RecipientList: []Destination{
				{Address: &dest, Transitions: encoding.NewBitString(true, true, true)},
			},
		}, true
	}
	e := New(device, dispatcher, lookup, nil, nil)

	src := newOutOfRangeSource()
	src.ncID = 5
	e.Enroll(ai, src)
	src.setPresentValue(90.0)

	e.ScanOnce(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.dispatched) != 1 {
		t.Fatalf("expected one recipient-targeted dispatch, got %d (broadcasts=%d)", len(dispatcher.dispatched), len(dispatcher.broadcasts))
	}
	if len(dispatcher.broadcasts) != 0 {
		t.Error("expected no broadcast fallback when a notification class recipient list is configured")
	}
}

func TestEngineSkipsIneligibleRecipient(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	dest := bacstack.NewUnicastAddress(0, bacstack.MacAddress{192, 168, 1, 1, 0xBA, 0xC0})

	// Only to-normal is requested; the out-of-range alarm fires to-offnormal
	// (or, since OUT_OF_RANGE reports HIGH_LIMIT, the non-normal bit).
	onlyToNormal := encoding.NewBitString(false, false, true)
	lookup := func(id uint32) (NotificationClass, bool) {
		return NotificationClass{
			RecipientList: []Destination{{Address: &dest, Transitions: onlyToNormal}},
		}, true
	}
	e := New(device, dispatcher, lookup, nil, nil)

	src := newOutOfRangeSource()
	e.Enroll(ai, src)
	src.setPresentValue(90.0)

	e.ScanOnce(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.dispatched) != 0 {
		t.Fatalf("expected the ineligible recipient to be skipped, got %d dispatches", len(dispatcher.dispatched))
	}
}

func TestEngineChangeOfValueEstablishesBaselineThenDetectsExcursion(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	av := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogValue, 1)
	e := New(device, dispatcher, noNotificationClass, nil, nil)

	src := &fakeSource{
		eventType:   bacstack.EventTypeChangeOfValue,
		eventEnable: [3]bool{true, true, true},
		reliability: bacstack.ReliabilityNoFaultDetected,
		params: Parameters{
			PresentValue: encoding.RealValue(10.0),
			COVIncrement: 2.0,
		},
	}
	e.Enroll(av, src)

	// First scan only establishes the baseline; nothing to compare yet.
	e.ScanOnce(context.Background())
	dispatcher.mu.Lock()
	afterFirst := len(dispatcher.broadcasts)
	dispatcher.mu.Unlock()
	if afterFirst != 0 {
		t.Fatalf("expected the first scan to only establish a baseline, got %d notifications", afterFirst)
	}

	// A small move within the increment stays NORMAL.
	src.setPresentValue(11.0)
	e.ScanOnce(context.Background())
	dispatcher.mu.Lock()
	afterSmallMove := len(dispatcher.broadcasts)
	dispatcher.mu.Unlock()
	if afterSmallMove != 0 {
		t.Fatalf("expected a sub-increment move to stay NORMAL, got %d notifications", afterSmallMove)
	}

	// A move past the increment relative to the current baseline (11.0,
	// taken on the previous NORMAL scan) fires.
	src.setPresentValue(15.0)
	e.ScanOnce(context.Background())
	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.broadcasts) != 1 {
		t.Fatalf("expected the increment-exceeding move to notify once, got %d", len(dispatcher.broadcasts))
	}
}

func TestEngineUnenrollStopsScanning(t *testing.T) {
	dispatcher := &fakeDispatcher{}
	device := bacstack.NewObjectIdentifier(bacstack.ObjectTypeDevice, 1)
	ai := bacstack.NewObjectIdentifier(bacstack.ObjectTypeAnalogInput, 1)
	e := New(device, dispatcher, noNotificationClass, nil, nil)

	src := newOutOfRangeSource()
	e.Enroll(ai, src)
	e.Unenroll(ai)
	src.setPresentValue(90.0)

	e.ScanOnce(context.Background())

	dispatcher.mu.Lock()
	defer dispatcher.mu.Unlock()
	if len(dispatcher.broadcasts) != 0 {
		t.Fatalf("expected an unenrolled object to not be scanned, got %d notifications", len(dispatcher.broadcasts))
	}
}
