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
	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
)

// NotificationParameters is a tagged union over the event-type-specific
// payload carried by a ConfirmedEventNotification/UnconfirmedEventNotification
// service, selected by Type; exactly one of the fields below is meaningful.
// This mirrors the BACnetNotificationParameters CHOICE (spec §9).
type NotificationParameters struct {
	Type bacstack.EventType

	OutOfRange struct {
		ExceedingValue encoding.Value
		StatusFlags    bacstack.StatusFlags
		Deadband       float32
		ExceededLimit  float32
	}
	ChangeOfState struct {
		NewState    encoding.Value
		StatusFlags bacstack.StatusFlags
	}
	ChangeOfValue struct {
		NewValue    encoding.Value
		StatusFlags bacstack.StatusFlags
	}
	CommandFailure struct {
		CommandValue  encoding.Value
		StatusFlags   bacstack.StatusFlags
		FeedbackValue encoding.Value
	}
	FloatingLimit struct {
		ReferenceValue encoding.Value
		StatusFlags    bacstack.StatusFlags
		SetpointValue  encoding.Value
		ErrorLimit     float32
	}
}

// Notification is the full event-notification payload (spec §4.10 step 1-2
// plus the parameters CHOICE).
type Notification struct {
	ProcessID        uint32
	InitiatingDevice  bacstack.ObjectIdentifier
	EventObject       bacstack.ObjectIdentifier
	Timestamp         encoding.Time
	NotificationClass uint32
	Priority          uint8
	EventType         bacstack.EventType
	MessageText       string
	NotifyType        bacstack.NotifyType
	AckRequired       bool
	FromState         bacstack.EventState
	ToState           bacstack.EventState
	Parameters        NotificationParameters
}
