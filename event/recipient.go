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
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// TransitionBit indexes the 3-bit to-offnormal/to-fault/to-normal masks
// used by Event_Enable, Ack_Required, and a Destination's Transitions.
type TransitionBit uint8

const (
	TransitionToOffnormal TransitionBit = 0
	TransitionToFault     TransitionBit = 1
	TransitionToNormal    TransitionBit = 2
)

// Destination is one BACnetDestination entry of a NotificationClass's
// recipient_list (spec §4.10 step 3).
type Destination struct {
	ValidDays   encoding.BitString // 7 bits, Monday=0; zero-length ⇒ "pass" wildcard
	FromTime    *encoding.Time
	ToTime      *encoding.Time
	Device      bacstack.ObjectIdentifier
	Address     *bacstack.NetworkAddress // nil: the engine skips this recipient; Device is not resolved to an address
	Transitions encoding.BitString       // 3 bits: to-offnormal, to-fault, to-normal
	Confirmed   bool
	ProcessID   uint32
}

// NotificationClass holds the dispatch configuration an event-capable
// object points to via its notification_class property.
type NotificationClass struct {
	Instance     uint32
	Priority     [3]uint8 // indexed by TransitionBit
	AckRequired  [3]bool
	RecipientList []Destination
}

// eligible applies spec §4.10 step 3's three filters in order, each
// defaulting to "pass" when the corresponding field is absent or
// malformed.
func eligible(d Destination, transition TransitionBit, now time.Time) bool {
	if !dayMatches(d.ValidDays, now) {
		return false
	}
	if !timeInRange(d.FromTime, d.ToTime, now) {
		return false
	}
	if !transitionBitSet(d.Transitions, transition) {
		return false
	}
	return true
}

func dayMatches(bits encoding.BitString, now time.Time) bool {
	if bits.Len() < 7 {
		return true // missing/malformed ⇒ pass
	}
	// BACnet Monday=0 ... Sunday=6; time.Weekday Sunday=0 ... Saturday=6.
	weekday := (int(now.Weekday()) + 6) % 7
	return bits.Bit(weekday)
}

func timeInRange(from, to *encoding.Time, now time.Time) bool {
	if from == nil || to == nil {
		return true
	}
	if isWildcardTime(*from) || isWildcardTime(*to) {
		return true
	}
	cur := timeOfDaySeconds(now)
	f := timeSeconds(*from)
	t := timeSeconds(*to)
	return cur >= f && cur <= t
}

func isWildcardTime(t encoding.Time) bool {
	return t.Hour == encoding.WildcardByte || t.Minute == encoding.WildcardByte ||
		t.Second == encoding.WildcardByte
}

func timeSeconds(t encoding.Time) int {
	return int(t.Hour)*3600 + int(t.Minute)*60 + int(t.Second)
}

func timeOfDaySeconds(now time.Time) int {
	return now.Hour()*3600 + now.Minute()*60 + now.Second()
}

func transitionBitSet(bits encoding.BitString, transition TransitionBit) bool {
	if bits.Len() <= int(transition) {
		return true // missing/malformed ⇒ pass
	}
	return bits.Bit(int(transition))
}
