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
	"fmt"
	"log/slog"
	"sort"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
	"github.com/scadalynx/bacstack/cov"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/event"
	"github.com/scadalynx/bacstack/tsm"
)

// EncodeCOVNotification builds the parameter list shared by Confirmed- and
// UnconfirmedCOVNotification (spec §4.9): subscriber process id, device
// and monitored object identifiers, time remaining, and the changed
// property/value list wrapped in an opening/closing tag 4.
func EncodeCOVNotification(processID uint32, device, monitored bacstack.ObjectIdentifier, timeRemaining uint32, values map[bacstack.PropertyIdentifier]encoding.Value) []byte {
	var out []byte
	out = append(out, encoding.EncodeContextUnsigned(0, processID)...)
	out = append(out, encoding.EncodeContextObjectIdentifier(1, device)...)
	out = append(out, encoding.EncodeContextObjectIdentifier(2, monitored)...)
	out = append(out, encoding.EncodeContextUnsigned(3, timeRemaining)...)

	out = append(out, encoding.EncodeOpeningTag(4)...)
	for _, propID := range sortedProperties(values) {
		out = append(out, encoding.EncodeContextEnumerated(0, uint32(propID))...)
		out = append(out, encoding.EncodeOpeningTag(2)...)
		out = append(out, encoding.EncodeApplicationValue(values[propID])...)
		out = append(out, encoding.EncodeClosingTag(2)...)
	}
	out = append(out, encoding.EncodeClosingTag(4)...)
	return out
}

func sortedProperties(values map[bacstack.PropertyIdentifier]encoding.Value) []bacstack.PropertyIdentifier {
	out := make([]bacstack.PropertyIdentifier, 0, len(values))
	for p := range values {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// COVNotification is the decoded body of a Confirmed/UnconfirmedCOVNotification.
type COVNotification struct {
	ProcessID     uint32
	Device        bacstack.ObjectIdentifier
	Monitored     bacstack.ObjectIdentifier
	TimeRemaining uint32
	Values        map[bacstack.PropertyIdentifier]encoding.Value
}

// DecodeCOVNotification parses a Confirmed/UnconfirmedCOVNotification payload.
func DecodeCOVNotification(buf []byte) (COVNotification, error) {
	processID, offset, err := decodeContextUnsigned(buf, 0, 0)
	if err != nil {
		return COVNotification{}, fmt.Errorf("cov-notification process-id: %w", err)
	}
	device, offset, err := decodeContextObjectIdentifier(buf, offset, 1)
	if err != nil {
		return COVNotification{}, fmt.Errorf("cov-notification device: %w", err)
	}
	monitored, offset, err := decodeContextObjectIdentifier(buf, offset, 2)
	if err != nil {
		return COVNotification{}, fmt.Errorf("cov-notification monitored: %w", err)
	}
	remaining, offset, err := decodeContextUnsigned(buf, offset, 3)
	if err != nil {
		return COVNotification{}, fmt.Errorf("cov-notification time-remaining: %w", err)
	}

	if _, next, err := encoding.DecodeTag(buf, offset); err != nil || !isOpening(buf, offset, 4) {
		return COVNotification{}, fmt.Errorf("%w: expected opening tag 4 for list-of-values", bacstack.ErrMalformedTag)
	} else {
		offset = next
	}

	values := make(map[bacstack.PropertyIdentifier]encoding.Value)
	for !isClosing(buf, offset, 4) {
		propID, next, err := decodeContextEnumerated(buf, offset, 0)
		if err != nil {
			return COVNotification{}, fmt.Errorf("cov-notification property-id: %w", err)
		}
		offset = next
		if _, next, err := encoding.DecodeTag(buf, offset); err != nil || !isOpening(buf, offset, 2) {
			return COVNotification{}, fmt.Errorf("%w: expected opening tag 2 for property value", bacstack.ErrMalformedTag)
		} else {
			offset = next
		}
		value, next, err := encoding.DecodeApplicationValue(buf, offset)
		if err != nil {
			return COVNotification{}, fmt.Errorf("cov-notification value: %w", err)
		}
		offset = next
		offset, err = encoding.SkipClosingTag(buf, offset, 2)
		if err != nil {
			return COVNotification{}, err
		}
		values[bacstack.PropertyIdentifier(propID)] = value
	}
	return COVNotification{ProcessID: processID, Device: device, Monitored: monitored, TimeRemaining: remaining, Values: values}, nil
}

func isOpening(buf []byte, offset int, tagNumber uint8) bool {
	meta, _, err := encoding.DecodeTag(buf, offset)
	return err == nil && meta.Opening && meta.Number == tagNumber
}

func isClosing(buf []byte, offset int, tagNumber uint8) bool {
	meta, _, err := encoding.DecodeTag(buf, offset)
	return err == nil && meta.Closing && meta.Number == tagNumber
}

// Notifier implements cov.NotificationSender and event.NotificationDispatcher
// by encoding the corresponding service PDU and sending it through the
// client TSM (confirmed) or directly through a raw packet sender
// (unconfirmed), mirroring how the server-side Dispatcher builds its own
// wire payloads.
type Notifier struct {
	client *tsm.Client
	sender tsm.PacketSender
	logger *slog.Logger
}

// NewNotifier constructs a Notifier. sender is used for unconfirmed
// broadcasts; client drives confirmed notifications with full retry.
func NewNotifier(client *tsm.Client, sender tsm.PacketSender, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{client: client, sender: sender, logger: logger}
}

// SendUnconfirmedCOVNotification implements cov.NotificationSender.
func (n *Notifier) SendUnconfirmedCOVNotification(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, device, monitored bacstack.ObjectIdentifier, timeRemaining uint32, values map[bacstack.PropertyIdentifier]encoding.Value) error {
	payload := EncodeCOVNotification(processID, device, monitored, timeRemaining, values)
	return n.sendUnconfirmed(ctx, dest, bacstack.ServiceUnconfirmedCOVNotification, payload)
}

// SendConfirmedCOVNotification implements cov.NotificationSender.
func (n *Notifier) SendConfirmedCOVNotification(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, device, monitored bacstack.ObjectIdentifier, timeRemaining uint32, values map[bacstack.PropertyIdentifier]encoding.Value) (tsm.Response, error) {
	payload := EncodeCOVNotification(processID, device, monitored, timeRemaining, values)
	return n.client.SendRequest(ctx, dest, bacstack.ServiceConfirmedCOVNotification, payload)
}

var _ cov.NotificationSender = (*Notifier)(nil)

// Dispatch implements event.NotificationDispatcher for one recipient.
func (n *Notifier) Dispatch(ctx context.Context, note event.Notification, dest event.Destination) error {
	addr := dest.Address
	if addr == nil {
		return nil
	}
	payload := EncodeEventNotification(note)
	if dest.Confirmed {
		_, err := n.client.SendRequest(ctx, *addr, bacstack.ServiceConfirmedEventNotification, payload)
		return err
	}
	return n.sendUnconfirmed(ctx, *addr, bacstack.ServiceUnconfirmedEventNotification, payload)
}

// DispatchBroadcast implements event.NotificationDispatcher for the
// empty-recipient-list fallback (spec §4.10 step 4).
func (n *Notifier) DispatchBroadcast(ctx context.Context, note event.Notification) error {
	payload := EncodeEventNotification(note)
	return n.sendUnconfirmed(ctx, bacstack.LocalBroadcast, bacstack.ServiceUnconfirmedEventNotification, payload)
}

func (n *Notifier) sendUnconfirmed(ctx context.Context, dest bacstack.NetworkAddress, choice bacstack.UnconfirmedServiceChoice, payload []byte) error {
	frame := apdu.EncodeUnconfirmedRequest(choice, payload)
	if err := n.sender.SendAPDU(ctx, dest, frame); err != nil {
		n.logger.Warn("services: unconfirmed send failed", "choice", choice.String(), "dest", dest.String(), "error", err)
		return err
	}
	return nil
}

var _ event.NotificationDispatcher = (*Notifier)(nil)

// EncodeEventNotification builds the parameter list shared by Confirmed-
// and UnconfirmedEventNotification (spec §4.10 step 1-2). The
// event-values CHOICE (parameter 12) is encoded only for the variants
// NotificationParameters currently models; EventType NONE omits it.
func EncodeEventNotification(n event.Notification) []byte {
	var out []byte
	out = append(out, encoding.EncodeContextUnsigned(0, n.ProcessID)...)
	out = append(out, encoding.EncodeContextObjectIdentifier(1, n.InitiatingDevice)...)
	out = append(out, encoding.EncodeContextObjectIdentifier(2, n.EventObject)...)

	out = append(out, encoding.EncodeOpeningTag(3)...)
	out = append(out, encoding.EncodeContextTime(2, n.Timestamp)...)
	out = append(out, encoding.EncodeClosingTag(3)...)

	out = append(out, encoding.EncodeContextUnsigned(4, n.NotificationClass)...)
	out = append(out, encoding.EncodeContextUnsigned(5, uint32(n.Priority))...)
	out = append(out, encoding.EncodeContextEnumerated(6, uint32(n.EventType))...)
	if n.MessageText != "" {
		out = append(out, encoding.EncodeContextCharacterString(7, n.MessageText)...)
	}
	out = append(out, encoding.EncodeContextEnumerated(8, uint32(n.NotifyType))...)
	out = append(out, encoding.EncodeContextBoolean(9, n.AckRequired)...)
	out = append(out, encoding.EncodeContextEnumerated(10, uint32(n.FromState))...)
	out = append(out, encoding.EncodeContextEnumerated(11, uint32(n.ToState))...)

	if params := encodeEventValues(n); params != nil {
		out = append(out, encoding.EncodeOpeningTag(12)...)
		out = append(out, params...)
		out = append(out, encoding.EncodeClosingTag(12)...)
	}
	return out
}

// encodeEventValues encodes the EventType-selected arm of the
// BACnetNotificationParameters CHOICE. Each arm is itself wrapped in a
// context tag matching its EventType ordinal, per ASHRAE 135 clause 21.
func encodeEventValues(n event.Notification) []byte {
	p := n.Parameters
	switch p.Type {
	case bacstack.EventTypeOutOfRange:
		inner := encoding.EncodeApplicationValue(p.OutOfRange.ExceedingValue)
		inner = append(inner, encoding.EncodeContextBitString(1, statusFlagsBits(p.OutOfRange.StatusFlags))...)
		inner = append(inner, encodeContextReal(2, p.OutOfRange.Deadband)...)
		inner = append(inner, encodeContextReal(3, p.OutOfRange.ExceededLimit)...)
		return wrapChoice(5, inner)
	case bacstack.EventTypeChangeOfState:
		inner := encoding.EncodeApplicationValue(p.ChangeOfState.NewState)
		inner = append(inner, encoding.EncodeContextBitString(1, statusFlagsBits(p.ChangeOfState.StatusFlags))...)
		return wrapChoice(1, inner)
	case bacstack.EventTypeChangeOfValue:
		inner := encoding.EncodeApplicationValue(p.ChangeOfValue.NewValue)
		inner = append(inner, encoding.EncodeContextBitString(1, statusFlagsBits(p.ChangeOfValue.StatusFlags))...)
		return wrapChoice(2, inner)
	case bacstack.EventTypeFloatingLimit:
		inner := encoding.EncodeApplicationValue(p.FloatingLimit.ReferenceValue)
		inner = append(inner, encoding.EncodeContextBitString(1, statusFlagsBits(p.FloatingLimit.StatusFlags))...)
		inner = append(inner, encoding.EncodeApplicationValue(p.FloatingLimit.SetpointValue)...)
		inner = append(inner, encodeContextReal(3, p.FloatingLimit.ErrorLimit)...)
		return wrapChoice(4, inner)
	case bacstack.EventTypeCommandFailure:
		inner := encoding.EncodeApplicationValue(p.CommandFailure.CommandValue)
		inner = append(inner, encoding.EncodeContextBitString(1, statusFlagsBits(p.CommandFailure.StatusFlags))...)
		inner = append(inner, encoding.EncodeApplicationValue(p.CommandFailure.FeedbackValue)...)
		return wrapChoice(3, inner)
	default:
		return nil
	}
}

func statusFlagsBits(f bacstack.StatusFlags) encoding.BitString {
	return encoding.NewBitString(f.InAlarm, f.Fault, f.Overridden, f.OutOfService)
}

func wrapChoice(tagNumber uint8, inner []byte) []byte {
	out := encoding.EncodeOpeningTag(tagNumber)
	out = append(out, inner...)
	return append(out, encoding.EncodeClosingTag(tagNumber)...)
}
