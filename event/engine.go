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
	"log/slog"
	"sync"
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// trackedState is the per-object mutable state the engine maintains
// alongside the object's own properties (spec §4.10 "Per-object state
// machine").
type trackedState struct {
	eventState     bacstack.EventState
	eventEnable    [3]bool // indexed by TransitionBit
	timeDelay      time.Duration
	timeDelayNormal time.Duration // zero means "use timeDelay"
	reliabilityOK   bool
	algorithmInhibit bool

	pendingState *bacstack.EventState
	pendingSince time.Time

	covReference encoding.Value // CHANGE_OF_VALUE baseline; Null until first scan
}

// Source supplies the live properties an Enrollment needs each scan; the
// caller (the object database / service layer) owns the actual storage.
type Source interface {
	EventType() bacstack.EventType
	Parameters() Parameters
	Reliability() bacstack.Reliability
	ReliabilityEvaluationInhibit() bool
	EventAlgorithmInhibit() bool
	EventEnable() [3]bool
	TimeDelay() time.Duration
	TimeDelayNormal() time.Duration
	NotificationClassID() uint32
	NotifyType() bacstack.NotifyType
	BuildParameters(from, to bacstack.EventState) NotificationParameters
	SetEventState(bacstack.EventState)
}

// Enrollment ties an ObjectIdentifier to its Source and tracked state.
type Enrollment struct {
	Object bacstack.ObjectIdentifier
	Source Source
	state  trackedState
}

// NotificationDispatcher sends a fully-built Notification to one
// recipient, confirmed or unconfirmed.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, n Notification, dest Destination) error
	DispatchBroadcast(ctx context.Context, n Notification) error
}

// NotificationClassLookup resolves a notification_class property value to
// its NotificationClass configuration.
type NotificationClassLookup func(id uint32) (NotificationClass, bool)

// Engine is the background scan task that re-evaluates every enrollment's
// event condition each cycle (spec §4.10).
type Engine struct {
	device     bacstack.ObjectIdentifier
	dispatcher NotificationDispatcher
	lookupNC   NotificationClassLookup
	metrics    *bacstack.Metrics
	logger     *slog.Logger

	mu          sync.Mutex
	enrollments map[bacstack.ObjectIdentifier]*Enrollment
}

// New constructs an Engine.
func New(device bacstack.ObjectIdentifier, dispatcher NotificationDispatcher, lookupNC NotificationClassLookup, metrics *bacstack.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		device: device, dispatcher: dispatcher, lookupNC: lookupNC, metrics: metrics, logger: logger,
		enrollments: make(map[bacstack.ObjectIdentifier]*Enrollment),
	}
}

// Enroll registers (or replaces) an object for intrinsic event scanning.
func (e *Engine) Enroll(oid bacstack.ObjectIdentifier, src Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enrollments[oid] = &Enrollment{Object: oid, Source: src, state: trackedState{eventState: bacstack.EventStateNormal}}
}

// Unenroll removes an object from scanning.
func (e *Engine) Unenroll(oid bacstack.ObjectIdentifier) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.enrollments, oid)
}

// Run drives the scan loop at the given interval until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.ScanOnce(ctx)
		}
	}
}

// ScanOnce evaluates every enrollment exactly once; exported so callers can
// drive the engine deterministically (e.g. in tests).
func (e *Engine) ScanOnce(ctx context.Context) {
	e.mu.Lock()
	enrollments := make([]*Enrollment, 0, len(e.enrollments))
	for _, en := range e.enrollments {
		enrollments = append(enrollments, en)
	}
	e.mu.Unlock()

	now := time.Now()
	for _, en := range enrollments {
		e.scanOne(ctx, en, now)
	}
	if e.metrics != nil {
		e.metrics.EventScansRun.Inc()
	}
}

func (e *Engine) scanOne(ctx context.Context, en *Enrollment, now time.Time) {
	s := en.Source
	st := &en.state

	st.eventEnable = s.EventEnable()
	st.timeDelay = s.TimeDelay()
	st.timeDelayNormal = s.TimeDelayNormal()
	st.algorithmInhibit = s.EventAlgorithmInhibit()
	st.reliabilityOK = s.Reliability() == bacstack.ReliabilityNoFaultDetected || s.ReliabilityEvaluationInhibit()

	params := s.Parameters()
	params.ReferenceValue = st.covReference
	suggested := Evaluate(s.EventType(), params, st.eventState)

	target := suggested
	if !st.reliabilityOK {
		target = bacstack.EventStateFault
	} else if st.eventState == bacstack.EventStateFault {
		target = suggested // fault cleared, resume normal evaluation
	}

	// CHANGE_OF_VALUE's baseline only advances once the algorithm itself
	// is reporting NORMAL, so a sustained excursion keeps comparing
	// against the last accepted value rather than chasing a moving target.
	if s.EventType() == bacstack.EventTypeChangeOfValue && target == bacstack.EventStateNormal {
		st.covReference = params.PresentValue
	}

	if st.algorithmInhibit && target != bacstack.EventStateNormal && st.eventState != bacstack.EventStateNormal &&
		target != bacstack.EventStateFault && st.eventState != bacstack.EventStateFault {
		// Event_Algorithm_Inhibit suppresses everything except
		// transitions to/from NORMAL; transitions to or from FAULT are
		// exempt, so the fault path above is unaffected.
		target = st.eventState
	}

	if target == st.eventState {
		st.pendingState = nil
		return
	}

	delay := st.timeDelay
	if target == bacstack.EventStateNormal && st.timeDelayNormal > 0 {
		delay = st.timeDelayNormal
	}

	if st.pendingState == nil || *st.pendingState != target {
		next := target
		st.pendingState = &next
		st.pendingSince = now
		if delay > 0 {
			return
		}
	} else if now.Sub(st.pendingSince) < delay {
		return
	}

	bit := transitionBitFor(st.eventState, target)
	st.pendingState = nil
	if !st.eventEnable[bit] {
		return
	}

	e.fireTransition(ctx, en, st.eventState, target, bit, now)
	st.eventState = target
	s.SetEventState(target)
}

func transitionBitFor(from, to bacstack.EventState) TransitionBit {
	switch {
	case to == bacstack.EventStateNormal:
		return TransitionToNormal
	case to == bacstack.EventStateFault:
		return TransitionToFault
	default:
		return TransitionToOffnormal
	}
}

func (e *Engine) fireTransition(ctx context.Context, en *Enrollment, from, to bacstack.EventState, bit TransitionBit, now time.Time) {
	s := en.Source
	ncID := s.NotificationClassID()
	nc, found := e.lookupNC(ncID)

	n := Notification{
		InitiatingDevice:  e.device,
		EventObject:       en.Object,
		Timestamp:         encoding.Time{Hour: uint8(now.Hour()), Minute: uint8(now.Minute()), Second: uint8(now.Second())},
		NotificationClass: ncID,
		EventType:         s.EventType(),
		NotifyType:        s.NotifyType(),
		FromState:         from,
		ToState:           to,
		Parameters:        s.BuildParameters(from, to),
	}
	if found {
		n.Priority = nc.Priority[bit]
		n.AckRequired = nc.AckRequired[bit]
	}

	if e.metrics != nil {
		e.metrics.EventTransitionsFired.Inc()
	}

	if !found || len(nc.RecipientList) == 0 {
		if err := e.dispatcher.DispatchBroadcast(ctx, n); err != nil {
			e.logger.Warn("event: broadcast notification failed", "object", en.Object.String(), "error", err)
		} else if e.metrics != nil {
			e.metrics.NotificationsSent.Inc()
		}
		return
	}

	for _, dest := range nc.RecipientList {
		if !eligible(dest, bit, now) {
			continue
		}
		if dest.Address == nil {
			continue // device set without a resolvable address: skip
		}
		if err := e.dispatcher.Dispatch(ctx, n, dest); err != nil {
			e.logger.Warn("event: notification failed", "object", en.Object.String(), "recipient", dest.Address.String(), "error", err)
			continue
		}
		if e.metrics != nil {
			e.metrics.NotificationsSent.Inc()
		}
	}
}
