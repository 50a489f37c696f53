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
	"testing"
	"time"

	"github.com/scadalynx/bacstack/encoding"
)

func TestEligiblePassesOnEmptyFilters(t *testing.T) {
	d := Destination{}
	if !eligible(d, TransitionToOffnormal, time.Now()) {
		t.Error("expected a destination with no filters set to pass every transition")
	}
}

func TestEligibleFiltersDayOfWeek(t *testing.T) {
	// Monday=0 in BACnet's ValidDays bitstring; build a mask that allows
	// only Monday and verify a known Tuesday is rejected.
	allowMondayOnly := encoding.NewBitString(true, false, false, false, false, false, false)
	tuesday := time.Date(2026, time.July, 28, 12, 0, 0, 0, time.UTC) // a Tuesday
	d := Destination{ValidDays: allowMondayOnly}
	if eligible(d, TransitionToOffnormal, tuesday) {
		t.Error("expected a Monday-only mask to reject a Tuesday timestamp")
	}

	monday := time.Date(2026, time.July, 27, 12, 0, 0, 0, time.UTC)
	if !eligible(d, TransitionToOffnormal, monday) {
		t.Error("expected a Monday-only mask to accept a Monday timestamp")
	}
}

func TestEligibleFiltersTimeRange(t *testing.T) {
	from := encoding.Time{Hour: 9, Minute: 0, Second: 0}
	to := encoding.Time{Hour: 17, Minute: 0, Second: 0}
	d := Destination{FromTime: &from, ToTime: &to}

	inRange := time.Date(2026, time.July, 30, 12, 0, 0, 0, time.UTC)
	if !eligible(d, TransitionToOffnormal, inRange) {
		t.Error("expected noon to fall within a 9-17 window")
	}

	outOfRange := time.Date(2026, time.July, 30, 20, 0, 0, 0, time.UTC)
	if eligible(d, TransitionToOffnormal, outOfRange) {
		t.Error("expected 20:00 to fall outside a 9-17 window")
	}
}

func TestEligibleWildcardTimeAlwaysPasses(t *testing.T) {
	from := encoding.Time{Hour: encoding.WildcardByte, Minute: 0, Second: 0}
	to := encoding.Time{Hour: 17, Minute: 0, Second: 0}
	d := Destination{FromTime: &from, ToTime: &to}

	anytime := time.Date(2026, time.July, 30, 23, 0, 0, 0, time.UTC)
	if !eligible(d, TransitionToOffnormal, anytime) {
		t.Error("expected a wildcard FromTime to disable the time-range filter entirely")
	}
}

func TestEligibleFiltersTransitionBit(t *testing.T) {
	// Only to-normal (bit 2) is requested.
	onlyToNormal := encoding.NewBitString(false, false, true)
	d := Destination{Transitions: onlyToNormal}

	if eligible(d, TransitionToOffnormal, time.Now()) {
		t.Error("expected to-offnormal to be filtered out")
	}
	if !eligible(d, TransitionToNormal, time.Now()) {
		t.Error("expected to-normal to pass")
	}
}

func TestEligibleMissingTransitionsBitstringPasses(t *testing.T) {
	d := Destination{} // zero-length Transitions
	if !eligible(d, TransitionToFault, time.Now()) {
		t.Error("expected a missing/empty Transitions bitstring to pass every transition")
	}
}
