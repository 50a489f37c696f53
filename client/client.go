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

// Package client implements the high-level application façade (spec
// §4.12): device discovery, ReadProperty/WriteProperty/RPM convenience
// calls, COV subscription with a process-id-keyed handler table,
// object-list traversal with segmentation fallback, and backup/restore
// orchestration over ReinitializeDevice/AtomicReadFile/AtomicWriteFile.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
	"github.com/scadalynx/bacstack/devinfo"
	"github.com/scadalynx/bacstack/encoding"
	"github.com/scadalynx/bacstack/services"
	"github.com/scadalynx/bacstack/tsm"
)

// COVHandler receives one property-value update for an active
// subscription: the monitored object and the notified properties (always
// including status_flags, per ASHRAE 135 13.1.2).
type COVHandler func(subscriber bacstack.NetworkAddress, monitored bacstack.ObjectIdentifier, values map[bacstack.PropertyIdentifier]encoding.Value)

// Client is the high-level BACnet application façade. It owns the client
// TSM, the device-info cache, and the table of active COV subscriptions;
// it does not own a transport directly, matching the dependency-injected
// PacketSender pattern used throughout tsm and services.
type Client struct {
	tsm    *tsm.Client
	sender tsm.PacketSender
	devs   *devinfo.Cache
	logger *slog.Logger

	localDeviceID uint32
	maxAPDU       uint16

	mu   sync.Mutex
	subs map[uint32]COVHandler // keyed by process id
}

// Option configures a Client.
type Option func(*Client)

// WithLogger overrides the default slog.Default() logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
		c.tsm.SetLogger(logger)
	}
}

// WithMetrics attaches a Metrics instance the underlying transaction state
// machine increments at every request/retry/segment boundary.
func WithMetrics(m *bacstack.Metrics) Option {
	return func(c *Client) { c.tsm.SetMetrics(m) }
}

// WithAPDUTimeout overrides the per-attempt confirmed-request timeout.
func WithAPDUTimeout(d time.Duration) Option {
	return func(c *Client) { c.tsm.SetAPDUTimeout(d) }
}

// WithRetries overrides the confirmed-request retry count.
func WithRetries(n int) Option {
	return func(c *Client) { c.tsm.SetRetries(n) }
}

// New constructs a Client bound to sender, announcing localDeviceID and
// negotiating up to maxAPDU bytes per unsegmented request.
func New(sender tsm.PacketSender, localDeviceID uint32, maxAPDU uint16, opts ...Option) *Client {
	c := &Client{
		tsm:           tsm.NewClient(sender, maxAPDU),
		sender:        sender,
		devs:          devinfo.New(),
		logger:        slog.Default(),
		localDeviceID: localDeviceID,
		maxAPDU:       maxAPDU,
		subs:          make(map[uint32]COVHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Devices returns the device-info cache populated by HandleIncoming's
// I-Am observations.
func (c *Client) Devices() *devinfo.Cache { return c.devs }

// HandleIncoming routes one decoded APDU received from source: confirmed
// ACK/Error/Reject/Abort PDUs go to the client TSM for invoke-id
// correlation, I-Am announcements populate the device-info cache, and COV
// notifications are delivered to the matching subscription handler.
func (c *Client) HandleIncoming(ctx context.Context, source bacstack.NetworkAddress, a apdu.APDU) {
	switch a.Type {
	case apdu.TypeSimpleACK, apdu.TypeComplexACK, apdu.TypeError, apdu.TypeReject, apdu.TypeAbort, apdu.TypeSegmentACK:
		c.tsm.HandleIncoming(ctx, source, a, a.ConfirmedServiceChoice)
	case apdu.TypeUnconfirmedRequest:
		c.handleUnconfirmed(source, a)
	case apdu.TypeConfirmedRequest:
		if a.ConfirmedServiceChoice == bacstack.ServiceConfirmedCOVNotification {
			c.handleCOVNotification(source, a.Payload)
		}
	}
}

func (c *Client) handleUnconfirmed(source bacstack.NetworkAddress, a apdu.APDU) {
	switch a.UnconfirmedServiceChoice {
	case bacstack.ServiceIAm:
		req, err := services.DecodeIAmRequest(a.Payload)
		if err != nil {
			c.logger.Warn("client: malformed i-am", "source", source.String(), "error", err)
			return
		}
		c.devs.Observe(source, devinfo.Info{
			Device:                req.Device,
			MaxAPDULength:         req.MaxAPDULength,
			SegmentationSupported: req.SegmentationSupported,
			VendorID:              req.VendorID,
		})
	case bacstack.ServiceUnconfirmedCOVNotification:
		c.handleCOVNotification(source, a.Payload)
	}
}

func (c *Client) handleCOVNotification(source bacstack.NetworkAddress, payload []byte) {
	note, err := services.DecodeCOVNotification(payload)
	if err != nil {
		c.logger.Warn("client: malformed cov notification", "source", source.String(), "error", err)
		return
	}
	c.mu.Lock()
	handler := c.subs[note.ProcessID]
	c.mu.Unlock()
	if handler != nil {
		handler(source, note.Monitored, note.Values)
	}
}

// negotiatedMaxAPDU returns the per-destination max APDU, falling back to
// the client's configured ceiling for an unknown device.
func (c *Client) negotiatedMaxAPDU(dest bacstack.NetworkAddress) uint16 {
	return c.devs.NegotiatedMaxAPDU(dest, c.maxAPDU)
}

// WhoIs broadcasts a Who-Is request over dest (usually a local or global
// broadcast address). A nil low/high pair requests every device; I-Am
// responses arrive asynchronously through HandleIncoming.
func (c *Client) WhoIs(ctx context.Context, dest bacstack.NetworkAddress, low, high *uint32) error {
	payload := services.EncodeWhoIsRequest(services.WhoIsRequest{Low: low, High: high})
	frame := apdu.EncodeUnconfirmedRequest(bacstack.ServiceWhoIs, payload)
	return c.sender.SendAPDU(ctx, dest, frame)
}

// Discover sends a Who-Is to dest and collects I-Am responses observed in
// the device-info cache for timeout, returning every device announced
// during the window (spec §4.12: discovery with optional early
// termination via ctx cancellation).
func (c *Client) Discover(ctx context.Context, dest bacstack.NetworkAddress, timeout time.Duration) ([]devinfo.Entry, error) {
	seen := make(map[string]bool)
	for _, e := range c.devs.Snapshot() {
		seen[e.Addr.String()] = true
	}

	if err := c.WhoIs(ctx, dest, nil, nil); err != nil {
		return nil, err
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	select {
	case <-ctx.Done():
	case <-deadline.C:
	}

	var found []devinfo.Entry
	for _, e := range c.devs.Snapshot() {
		if !seen[e.Addr.String()] {
			found = append(found, e)
		}
	}
	return found, nil
}

// GetDevice resolves addr's cached device info, if any I-Am has been
// observed from it.
func (c *Client) GetDevice(addr bacstack.NetworkAddress) (devinfo.Info, bool) {
	return c.devs.Lookup(addr)
}

// ReadProperty issues a confirmed ReadProperty request to dest.
func (c *Client) ReadProperty(ctx context.Context, dest bacstack.NetworkAddress, object bacstack.ObjectIdentifier, property bacstack.PropertyIdentifier, arrayIndex *int) (encoding.Value, error) {
	payload := services.EncodeReadPropertyRequest(services.ReadPropertyRequest{Object: object, Property: property, ArrayIndex: arrayIndex})
	resp, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceReadProperty, payload)
	if err != nil {
		return encoding.Value{}, err
	}
	_, value, err := services.DecodeReadPropertyAck(resp.Payload)
	return value, err
}

// WriteProperty issues a confirmed WriteProperty request to dest.
func (c *Client) WriteProperty(ctx context.Context, dest bacstack.NetworkAddress, object bacstack.ObjectIdentifier, property bacstack.PropertyIdentifier, value encoding.Value, priority *uint8, arrayIndex *int) error {
	payload := services.EncodeWritePropertyRequest(services.WritePropertyRequest{
		Object: object, Property: property, Value: value, Priority: priority, ArrayIndex: arrayIndex,
	})
	_, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceWriteProperty, payload)
	return err
}

// ReadPropertyMultiple issues a confirmed ReadPropertyMultiple request.
func (c *Client) ReadPropertyMultiple(ctx context.Context, dest bacstack.NetworkAddress, specs []services.ReadAccessSpec) ([]services.ReadAccessResult, error) {
	payload := services.EncodeReadPropertyMultipleRequest(specs)
	resp, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceReadPropertyMultiple, payload)
	if err != nil {
		return nil, err
	}
	return services.DecodeReadPropertyMultipleAck(resp.Payload)
}

// WritePropertyMultiple issues a confirmed WritePropertyMultiple request.
func (c *Client) WritePropertyMultiple(ctx context.Context, dest bacstack.NetworkAddress, specs []services.WriteAccessSpec) error {
	payload := services.EncodeWritePropertyMultipleRequest(specs)
	_, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceWritePropertyMultiple, payload)
	return err
}

// SubscribeCOV issues a confirmed SubscribeCOV request and registers
// handler under processID; a zero lifetime subscribes indefinitely.
func (c *Client) SubscribeCOV(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, monitored bacstack.ObjectIdentifier, confirmed bool, lifetime uint32, handler COVHandler) error {
	payload := services.EncodeSubscribeCOVRequest(services.SubscribeCOVRequest{
		ProcessID: processID, Monitored: monitored, Confirmed: confirmed, Lifetime: lifetime,
	})
	if _, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceSubscribeCOV, payload); err != nil {
		return err
	}
	c.mu.Lock()
	c.subs[processID] = handler
	c.mu.Unlock()
	return nil
}

// UnsubscribeCOV cancels a prior SubscribeCOV and removes its handler.
func (c *Client) UnsubscribeCOV(ctx context.Context, dest bacstack.NetworkAddress, processID uint32, monitored bacstack.ObjectIdentifier) error {
	payload := services.EncodeSubscribeCOVRequest(services.SubscribeCOVRequest{ProcessID: processID, Monitored: monitored, Cancel: true})
	_, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceSubscribeCOV, payload)
	c.mu.Lock()
	delete(c.subs, processID)
	c.mu.Unlock()
	return err
}

// GetObjectList reads device's object_list property as a whole array,
// falling back to element-by-element reads (array_index 0 for the
// count, then 1..N) when the device aborts the whole-array read with
// segmentation-not-supported (spec §4.12).
func (c *Client) GetObjectList(ctx context.Context, dest bacstack.NetworkAddress, device bacstack.ObjectIdentifier) ([]bacstack.ObjectIdentifier, error) {
	payload := services.EncodeReadPropertyRequest(services.ReadPropertyRequest{Object: device, Property: bacstack.PropertyObjectList})
	resp, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceReadProperty, payload)
	if err == nil {
		return decodeObjectListAck(resp.Payload)
	}
	if !bacstack.IsSegmentationNotSupported(err) {
		return nil, err
	}

	zero := 0
	count, err := c.ReadProperty(ctx, dest, device, bacstack.PropertyObjectList, &zero)
	if err != nil {
		return nil, fmt.Errorf("client: object-list count: %w", err)
	}
	n := int(count.Unsigned)
	out := make([]bacstack.ObjectIdentifier, 0, n)
	for i := 1; i <= n; i++ {
		idx := i
		v, err := c.ReadProperty(ctx, dest, device, bacstack.PropertyObjectList, &idx)
		if err != nil {
			return nil, fmt.Errorf("client: object-list[%d]: %w", i, err)
		}
		out = append(out, v.ObjectID)
	}
	return out, nil
}

// decodeObjectListAck parses a ReadProperty-ACK for object_list: the
// standard object-id/property header followed by an opening/closing tag 3
// wrapping a SEQUENCE OF object-identifier, rather than the single scalar
// DecodeReadPropertyAck assumes.
func decodeObjectListAck(buf []byte) ([]bacstack.ObjectIdentifier, error) {
	_, offset, err := skipReadPropertyAckHeader(buf)
	if err != nil {
		return nil, err
	}
	meta, next, err := encoding.DecodeTag(buf, offset)
	if err != nil {
		return nil, err
	}
	if !meta.Opening || meta.Number != 3 {
		return nil, fmt.Errorf("%w: object-list ack missing opening tag 3", bacstack.ErrMalformedTag)
	}
	offset = next

	var out []bacstack.ObjectIdentifier
	for {
		if meta, next, err := encoding.DecodeTag(buf, offset); err == nil && meta.Closing && meta.Number == 3 {
			_ = next
			break
		}
		v, next, err := encoding.DecodeApplicationValue(buf, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, v.ObjectID)
		offset = next
	}
	return out, nil
}

func skipReadPropertyAckHeader(buf []byte) (bacstack.ObjectIdentifier, int, error) {
	meta, next, err := encoding.DecodeTag(buf, 0)
	if err != nil {
		return bacstack.ObjectIdentifier{}, 0, err
	}
	oid, err := encoding.DecodeObjectIdentifier(buf[next : next+int(meta.Length)])
	if err != nil {
		return bacstack.ObjectIdentifier{}, 0, err
	}
	offset := next + int(meta.Length)

	meta, next, err = encoding.DecodeTag(buf, offset)
	if err != nil {
		return bacstack.ObjectIdentifier{}, 0, err
	}
	offset = next + int(meta.Length)

	if offset < len(buf) && encoding.IsContextSpecific(buf, offset, 2) {
		meta, next, err = encoding.DecodeTag(buf, offset)
		if err != nil {
			return bacstack.ObjectIdentifier{}, 0, err
		}
		offset = next + int(meta.Length)
	}
	return oid, offset, nil
}
