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

// Package event implements the algorithmic event-reporting engine: per-
// object state machines with time-delay hysteresis, a library of pure
// event algorithms selected by EventType, and notification dispatch
// walking a NotificationClass's recipient_list (spec §4.10).
package event

import (
	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// Parameters bundles the algorithm-specific inputs read from an object's
// properties each scan.
type Parameters struct {
	PresentValue  encoding.Value
	StatusFlags   bacstack.StatusFlags
	HighLimit     float32
	LowLimit      float32
	Deadband      float32
	LimitEnable   LimitEnable
	FeedbackValue *encoding.Value // for COMMAND_FAILURE
	AlarmValues   []uint32        // for CHANGE_OF_STATE (multi-state/binary)

	// COVIncrement and ReferenceValue feed CHANGE_OF_VALUE (ASHRAE
	// 135 13.3.2): ReferenceValue is the present_value last accepted as
	// the comparison baseline (the engine supplies this from its tracked
	// state; Tag is TagNull before the first scan), COVIncrement is the
	// Real threshold beyond which a new value is reported, and Bitmask
	// restricts a BitString comparison to the monitored bits only (nil
	// compares every bit).
	COVIncrement   float32
	ReferenceValue encoding.Value
	Bitmask        *encoding.BitString
}

// LimitEnable mirrors the two-bit Limit_Enable bitstring.
type LimitEnable struct {
	HighLimitEnable bool
	LowLimitEnable  bool
}

// Algorithm is a pure function from current properties (and the
// previously suggested state, for algorithms needing hysteresis memory
// like FLOATING_LIMIT) to a suggested event state.
type Algorithm func(p Parameters, previous bacstack.EventState) bacstack.EventState

// algorithms maps EventType to its pure evaluator. EventTypeNone and any
// unmodeled type always suggest NORMAL, the inert default.
var algorithms = map[bacstack.EventType]Algorithm{
	bacstack.EventTypeOutOfRange:     outOfRange,
	bacstack.EventTypeFloatingLimit:  floatingLimit,
	bacstack.EventTypeChangeOfState:  changeOfState,
	bacstack.EventTypeChangeOfValue:  changeOfValue,
	bacstack.EventTypeCommandFailure: commandFailure,
}

// Evaluate runs the algorithm registered for t, defaulting to NORMAL for
// NONE or an unmodeled type.
func Evaluate(t bacstack.EventType, p Parameters, previous bacstack.EventState) bacstack.EventState {
	if fn, ok := algorithms[t]; ok {
		return fn(p, previous)
	}
	return bacstack.EventStateNormal
}

// outOfRange implements the OUT_OF_RANGE algorithm: compares a Real
// present_value against High_Limit/Low_Limit with hysteresis deadband.
func outOfRange(p Parameters, previous bacstack.EventState) bacstack.EventState {
	if p.PresentValue.Tag != encoding.TagReal {
		return bacstack.EventStateNormal
	}
	v := p.PresentValue.Real

	if p.LimitEnable.HighLimitEnable && v > p.HighLimit {
		return bacstack.EventStateHighLimit
	}
	if p.LimitEnable.LowLimitEnable && v < p.LowLimit {
		return bacstack.EventStateLowLimit
	}

	switch previous {
	case bacstack.EventStateHighLimit:
		if p.LimitEnable.HighLimitEnable && v > p.HighLimit-p.Deadband {
			return bacstack.EventStateHighLimit
		}
	case bacstack.EventStateLowLimit:
		if p.LimitEnable.LowLimitEnable && v < p.LowLimit+p.Deadband {
			return bacstack.EventStateLowLimit
		}
	}
	return bacstack.EventStateNormal
}

// floatingLimit implements FLOATING_LIMIT: identical shape to OUT_OF_RANGE
// but High_Limit/Low_Limit are expected to have been computed by the
// caller relative to a setpoint before Parameters is built.
func floatingLimit(p Parameters, previous bacstack.EventState) bacstack.EventState {
	return outOfRange(p, previous)
}

// changeOfState implements CHANGE_OF_STATE: present_value (Enumerated or
// Unsigned) matching any listed alarm value is OFFNORMAL.
func changeOfState(p Parameters, _ bacstack.EventState) bacstack.EventState {
	var current uint32
	switch p.PresentValue.Tag {
	case encoding.TagEnumerated:
		current = p.PresentValue.Enum
	case encoding.TagUnsignedInt:
		current = p.PresentValue.Unsigned
	default:
		return bacstack.EventStateNormal
	}
	for _, v := range p.AlarmValues {
		if v == current {
			return bacstack.EventStateOffnormal
		}
	}
	return bacstack.EventStateNormal
}

// changeOfValue implements CHANGE_OF_VALUE (spec §4.10, ASHRAE 135
// 13.3.2): a Real present_value is OFFNORMAL once it has moved from the
// reference value by more than COVIncrement; a BitString present_value is
// OFFNORMAL once any bit selected by Bitmask (or, absent a mask, any bit)
// differs from the reference; anything else is OFFNORMAL on any change.
// Before a baseline has been established (ReferenceValue is Null) the
// algorithm always reports NORMAL, since there is nothing yet to compare
// against.
func changeOfValue(p Parameters, _ bacstack.EventState) bacstack.EventState {
	if p.ReferenceValue.Tag == encoding.TagNull {
		return bacstack.EventStateNormal
	}
	switch p.PresentValue.Tag {
	case encoding.TagReal:
		if p.ReferenceValue.Tag != encoding.TagReal {
			return bacstack.EventStateNormal
		}
		delta := p.PresentValue.Real - p.ReferenceValue.Real
		if delta < 0 {
			delta = -delta
		}
		if delta > p.COVIncrement {
			return bacstack.EventStateOffnormal
		}
		return bacstack.EventStateNormal
	case encoding.TagBitString:
		if p.ReferenceValue.Tag != encoding.TagBitString {
			return bacstack.EventStateNormal
		}
		if bitstringChanged(p.PresentValue.Bits, p.ReferenceValue.Bits, p.Bitmask) {
			return bacstack.EventStateOffnormal
		}
		return bacstack.EventStateNormal
	default:
		if !valueEqual(p.PresentValue, p.ReferenceValue) {
			return bacstack.EventStateOffnormal
		}
		return bacstack.EventStateNormal
	}
}

// bitstringChanged reports whether cur and ref differ in any bit selected
// by mask (every bit, when mask is nil).
func bitstringChanged(cur, ref encoding.BitString, mask *encoding.BitString) bool {
	n := cur.Len()
	if ref.Len() > n {
		n = ref.Len()
	}
	for i := 0; i < n; i++ {
		if mask != nil && (i >= mask.Len() || !mask.Bit(i)) {
			continue
		}
		if cur.Bit(i) != ref.Bit(i) {
			return true
		}
	}
	return false
}

// commandFailure implements COMMAND_FAILURE: present_value and
// feedback_value mismatch beyond time_delay is OFFNORMAL.
func commandFailure(p Parameters, _ bacstack.EventState) bacstack.EventState {
	if p.FeedbackValue == nil {
		return bacstack.EventStateNormal
	}
	if !valueEqual(p.PresentValue, *p.FeedbackValue) {
		return bacstack.EventStateOffnormal
	}
	return bacstack.EventStateNormal
}

func valueEqual(a, b encoding.Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case encoding.TagEnumerated:
		return a.Enum == b.Enum
	case encoding.TagUnsignedInt:
		return a.Unsigned == b.Unsigned
	case encoding.TagBoolean:
		return a.Boolean == b.Boolean
	case encoding.TagReal:
		return a.Real == b.Real
	default:
		return false
	}
}
