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

// Package cov implements the Change-of-Value subscription manager: keyed
// subscriptions, increment-threshold change detection, lifetime expiry,
// and notification dispatch through the client transaction state machine
// (spec §4.9).
package cov

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/tsm"
)

// Key identifies one subscription uniquely. Property is nil for a
// whole-object SubscribeCOV; set for SubscribeCOVProperty. Subscriber is
// keyed by its string form since NetworkAddress embeds a MAC byte slice
// and so isn't itself comparable (the same convention tsm.Client uses for
// its per-destination transaction maps).
type Key struct {
	Subscriber string
	ProcessID  uint32
	Monitored  bacstack.ObjectIdentifier
	Property   *bacstack.PropertyIdentifier
}

func (k Key) propKey() bacstack.PropertyIdentifier {
	if k.Property == nil {
		return bacstack.PropertyPresentValue
	}
	return *k.Property
}

type subscription struct {
	key        Key
	dest       bacstack.NetworkAddress
	confirmed  bool
	expires    time.Time
	increment  *float32
	lastValue  encoding.Value
	haveValue  bool
}

// NotificationSender delivers a COV notification to a subscriber, confirmed
// or unconfirmed.
type NotificationSender interface {
	SendUnconfirmedCOVNotification(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, device, monitored bacstack.ObjectIdentifier, timeRemaining uint32, values map[bacstack.PropertyIdentifier]encoding.Value) error
	SendConfirmedCOVNotification(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, device, monitored bacstack.ObjectIdentifier, timeRemaining uint32, values map[bacstack.PropertyIdentifier]encoding.Value) (tsm.Response, error)
}

// Manager owns the subscription table (spec §4.9).
type Manager struct {
	device  bacstack.ObjectIdentifier
	sender  NotificationSender
	logger  *slog.Logger
	metrics *bacstack.Metrics

	mu   sync.Mutex
	subs map[Key]*subscription
}

// New constructs a Manager. device identifies the local Device object
// (carried in every outgoing notification). metrics may be nil.
func New(device bacstack.ObjectIdentifier, sender NotificationSender, logger *slog.Logger, metrics *bacstack.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{device: device, sender: sender, logger: logger, metrics: metrics, subs: make(map[Key]*subscription)}
}

// Subscribe installs or replaces a subscription. lifetime of zero means
// "indefinite" (until explicitly cancelled); Cancel should be used for
// the no-lifetime cancellation request described in spec §4.9 when the
// caller means to remove rather than keep an indefinite subscription.
func (m *Manager) Subscribe(key Key, dest bacstack.NetworkAddress, confirmed bool, lifetime time.Duration, increment *float32) {
	expires := time.Time{}
	if lifetime > 0 {
		expires = time.Now().Add(lifetime)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Identical key replaces without leaking the old entry (spec §8
	// idempotence property).
	_, replaced := m.subs[key]
	m.subs[key] = &subscription{key: key, dest: dest, confirmed: confirmed, expires: expires, increment: increment}
	if m.metrics != nil {
		m.metrics.COVSubscriptions.Inc()
		if !replaced {
			m.metrics.ActiveSubscriptions.Inc()
		}
	}
}

// Cancel removes a subscription explicitly.
func (m *Manager) Cancel(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[key]; ok {
		delete(m.subs, key)
		if m.metrics != nil {
			m.metrics.ActiveSubscriptions.Dec()
		}
	}
}

// PurgeExpired removes subscriptions past their lifetime; it should be
// called periodically by a background task.
func (m *Manager) PurgeExpired() int {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	purged := 0
	for k, s := range m.subs {
		if !s.expires.IsZero() && s.expires.Before(now) {
			delete(m.subs, k)
			purged++
		}
	}
	if m.metrics != nil && purged > 0 {
		m.metrics.COVExpired.Add(int64(purged))
		m.metrics.ActiveSubscriptions.Add(-int64(purged))
	}
	return purged
}

// OnWrite is consulted after every object property write. It emits
// notifications for each matching subscription whose value changed by
// more than the configured increment (Real properties) or changed at all
// (spec §4.9). statusFlags is the monitored object's current status_flags
// value, folded into every notification's list_of_values alongside the
// changed property as ASHRAE 135 requires; pass the zero Value if it is
// unavailable and it is omitted.
func (m *Manager) OnWrite(ctx context.Context, oid bacstack.ObjectIdentifier, propID bacstack.PropertyIdentifier, newValue encoding.Value, statusFlags encoding.Value) {
	type pending struct {
		dest      bacstack.NetworkAddress
		processID uint32
		confirmed bool
		remaining uint32
	}
	var toNotify []pending

	m.mu.Lock()
	for _, s := range m.subs {
		if s.key.Monitored != oid || s.key.propKey() != propID {
			continue
		}
		if !m.changedEnough(s, newValue) {
			continue
		}
		s.lastValue = newValue
		s.haveValue = true

		remaining := uint32(0)
		if !s.expires.IsZero() {
			if d := time.Until(s.expires); d > 0 {
				remaining = uint32(d / time.Second)
			}
		}
		toNotify = append(toNotify, pending{dest: s.dest, processID: s.key.ProcessID, confirmed: s.confirmed, remaining: remaining})
	}
	m.mu.Unlock()

	values := map[bacstack.PropertyIdentifier]encoding.Value{propID: newValue}
	if statusFlags.Tag == encoding.TagBitString {
		values[bacstack.PropertyStatusFlags] = statusFlags
	}
	for _, p := range toNotify {
		if p.confirmed {
			if _, err := m.sender.SendConfirmedCOVNotification(ctx, p.dest, p.processID, m.device, oid, p.remaining, values); err != nil {
				m.logger.Warn("cov: confirmed notification failed", "dest", p.dest.String(), "error", err)
				continue
			}
			if m.metrics != nil {
				m.metrics.COVNotifications.Inc()
			}
			continue
		}
		if err := m.sender.SendUnconfirmedCOVNotification(ctx, p.dest, p.processID, m.device, oid, p.remaining, values); err != nil {
			m.logger.Warn("cov: unconfirmed notification failed", "dest", p.dest.String(), "error", err)
			continue
		}
		if m.metrics != nil {
			m.metrics.COVNotifications.Inc()
		}
	}
}

func (m *Manager) changedEnough(s *subscription, newValue encoding.Value) bool {
	if !s.haveValue {
		return true
	}
	if s.increment != nil && newValue.Tag == encoding.TagReal && s.lastValue.Tag == encoding.TagReal {
		delta := newValue.Real - s.lastValue.Real
		if delta < 0 {
			delta = -delta
		}
		return delta > *s.increment
	}
	return !valuesEqual(s.lastValue, newValue)
}

func valuesEqual(a, b encoding.Value) bool {
	if a.Tag != b.Tag {
		return false
	}
	switch a.Tag {
	case encoding.TagBoolean:
		return a.Boolean == b.Boolean
	case encoding.TagUnsignedInt:
		return a.Unsigned == b.Unsigned
	case encoding.TagSignedInt:
		return a.Signed == b.Signed
	case encoding.TagReal:
		return a.Real == b.Real
	case encoding.TagDouble:
		return a.Double == b.Double
	case encoding.TagEnumerated:
		return a.Enum == b.Enum
	case encoding.TagCharacterString:
		return a.Chars == b.Chars
	default:
		return false
	}
}

// Run starts the background expiry-purging loop; it returns when ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.PurgeExpired(); n > 0 {
				m.logger.Debug("cov: purged expired subscriptions", "count", n)
			}
		}
	}
}
