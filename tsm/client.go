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

// Package tsm implements the client and server Transaction State Machines:
// invoke-id correlation, retransmission, and the segmentation send/receive
// windows that ride on top of the APDU layer (spec §4.3, §4.4).
package tsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
)

const (
	defaultAPDUTimeout = 6 * time.Second
	defaultRetries     = 3
	defaultWindowSize  = 1
)

// PacketSender transmits a fully-framed NPDU+APDU datagram to dest.
type PacketSender interface {
	SendAPDU(ctx context.Context, dest bacstack.NetworkAddress, payload []byte) error
}

type clientTransaction struct {
	dest     bacstack.NetworkAddress
	invokeID uint8
	result   chan result

	mu            sync.Mutex
	segments      [][]byte // outgoing segments awaiting ACK
	windowBase    int      // index of first un-ACKed segment
	windowSize    uint8
	reassembly    map[uint8][]byte // incoming segments by sequence number, for segmented ComplexACK
	expectedNext  uint8
	done          bool
}

type result struct {
	apdu apdu.APDU
	err  error
}

// Client drives outgoing confirmed requests: invoke-id allocation per
// destination, retransmission on timeout, and both sides of a segmented
// exchange.
type Client struct {
	sender  PacketSender
	metrics *bacstack.Metrics
	logger  *slog.Logger

	maxAPDU     uint16
	apduTimeout time.Duration
	retries     int
	windowSize  uint8

	mu          sync.Mutex
	nextInvoke  map[string]uint8 // per-destination invoke id cursor
	txByInvoke  map[string]map[uint8]*clientTransaction
}

// NewClient constructs a Client. maxAPDU bounds outgoing segment size.
func NewClient(sender PacketSender, maxAPDU uint16) *Client {
	return &Client{
		sender:      sender,
		maxAPDU:     maxAPDU,
		apduTimeout: defaultAPDUTimeout,
		retries:     defaultRetries,
		windowSize:  defaultWindowSize,
		logger:      slog.Default(),
		nextInvoke:  make(map[string]uint8),
		txByInvoke:  make(map[string]map[uint8]*clientTransaction),
	}
}

// SetAPDUTimeout overrides the default 6s per-attempt timer.
func (c *Client) SetAPDUTimeout(d time.Duration) { c.apduTimeout = d }

// SetRetries overrides the default retry count (3).
func (c *Client) SetRetries(n int) { c.retries = n }

// SetWindowSize overrides the default proposed segmentation window (1).
func (c *Client) SetWindowSize(n uint8) { c.windowSize = n }

// SetMetrics attaches a Metrics instance the client increments at every
// request/retry/segment boundary; nil (the default) disables collection.
func (c *Client) SetMetrics(m *bacstack.Metrics) { c.metrics = m }

// SetLogger overrides the default slog.Default() logger.
func (c *Client) SetLogger(l *slog.Logger) {
	if l != nil {
		c.logger = l
	}
}

func (c *Client) logSendError(_ context.Context, what string, dest bacstack.NetworkAddress, err error) {
	c.logger.Warn("tsm: failed sending "+what, "dest", dest.String(), "error", err)
}

func destKey(dest bacstack.NetworkAddress) string { return dest.String() }

// allocInvokeID returns the next free invoke id for dest: randomized on
// first use, then incrementing and wrapping in [0,255] (spec §4.3 step 1).
func (c *Client) allocInvokeID(dest bacstack.NetworkAddress) uint8 {
	key := destKey(dest)
	c.mu.Lock()
	defer c.mu.Unlock()

	cur, seen := c.nextInvoke[key]
	if !seen {
		cur = uint8(rand.Intn(256))
	}
	inUse := c.txByInvoke[key]
	id := cur
	for {
		if _, busy := inUse[id]; !busy {
			break
		}
		id++
	}
	c.nextInvoke[key] = id + 1
	return id
}

func (c *Client) registerTransaction(dest bacstack.NetworkAddress, txn *clientTransaction) {
	key := destKey(dest)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.txByInvoke[key] == nil {
		c.txByInvoke[key] = make(map[uint8]*clientTransaction)
	}
	c.txByInvoke[key][txn.invokeID] = txn
}

func (c *Client) removeTransaction(dest bacstack.NetworkAddress, invokeID uint8) {
	key := destKey(dest)
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.txByInvoke[key], invokeID)
}

func (c *Client) lookupTransaction(dest bacstack.NetworkAddress, invokeID uint8) (*clientTransaction, bool) {
	key := destKey(dest)
	c.mu.Lock()
	defer c.mu.Unlock()
	txn, ok := c.txByInvoke[key][invokeID]
	return txn, ok
}

// CancelAll fails every outstanding transaction, for use during shutdown
// before sockets close (spec §4.3 cancellation rule).
func (c *Client) CancelAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, byInvoke := range c.txByInvoke {
		for _, txn := range byInvoke {
			c.deliver(txn, result{err: bacstack.ErrCancelled})
		}
	}
	c.txByInvoke = make(map[string]map[uint8]*clientTransaction)
}

func (c *Client) deliver(txn *clientTransaction, r result) {
	txn.mu.Lock()
	if txn.done {
		txn.mu.Unlock()
		return
	}
	txn.done = true
	txn.mu.Unlock()
	select {
	case txn.result <- r:
	default:
	}
}

// Response is what SendRequest returns on success: the fully reassembled
// service payload and the service choice echoed by the ACK.
type Response struct {
	ServiceChoice bacstack.ConfirmedServiceChoice
	Payload       []byte
}

// SendRequest sends one confirmed request, retrying up to c.retries times
// on timeout and handling a segmented response transparently (spec §4.3).
func (c *Client) SendRequest(ctx context.Context, dest bacstack.NetworkAddress, choice bacstack.ConfirmedServiceChoice, payload []byte) (Response, error) {
	invokeID := c.allocInvokeID(dest)
	txn := &clientTransaction{
		dest: dest, invokeID: invokeID, result: make(chan result, 1),
		reassembly: make(map[uint8][]byte),
	}
	c.registerTransaction(dest, txn)
	defer c.removeTransaction(dest, invokeID)

	headerBudget := apdu.SegmentHeaderSize()
	segmentLen := int(c.maxAPDU) - headerBudget
	segmented := segmentLen > 0 && len(payload) > int(c.maxAPDU)

	if c.metrics != nil {
		c.metrics.RequestsSent.Inc()
		c.metrics.ActiveRequests.Inc()
		defer c.metrics.ActiveRequests.Dec()
	}

	attempt := 0
	for {
		if err := c.sendAttempt(ctx, dest, invokeID, choice, payload, segmented, segmentLen); err != nil {
			c.recordFailure(nil)
			return Response{}, err
		}

		select {
		case <-ctx.Done():
			c.recordFailure(nil)
			return Response{}, ctx.Err()
		case r := <-txn.result:
			if r.err != nil {
				c.recordFailure(r.err)
				return Response{}, r.err
			}
			resp, err := c.finishResponse(r.apdu)
			if c.metrics != nil {
				if err != nil {
					c.metrics.RequestsFailed.Inc()
				} else {
					c.metrics.RequestsSucceeded.Inc()
					c.metrics.ResponsesReceived.Inc()
				}
			}
			return resp, err
		case <-time.After(c.apduTimeout):
			if attempt >= c.retries {
				if c.metrics != nil {
					c.metrics.RequestsTimedOut.Inc()
					c.metrics.RequestsFailed.Inc()
				}
				return Response{}, fmt.Errorf("bacstack: %w: invoke id %d to %s", bacstack.ErrTimeout, invokeID, dest.String())
			}
			attempt++
			txn.mu.Lock()
			txn.done = false
			txn.mu.Unlock()
		}
	}
}

// recordFailure classifies a terminal request error for the Metrics
// counters; err is nil for a local send/context failure.
func (c *Client) recordFailure(err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.RequestsFailed.Inc()
	var bacErr *bacstack.BACnetError
	var rejectErr *bacstack.RejectError
	var abortErr *bacstack.AbortError
	switch {
	case errors.As(err, &bacErr):
		c.metrics.ErrorsReceived.Inc()
	case errors.As(err, &rejectErr):
		c.metrics.RejectsReceived.Inc()
	case errors.As(err, &abortErr):
		c.metrics.AbortsReceived.Inc()
		if abortErr.Reason == bacstack.AbortReasonSegmentationNotSupported {
			c.metrics.SegmentationAborts.Inc()
		}
	}
}

func (c *Client) sendAttempt(ctx context.Context, dest bacstack.NetworkAddress, invokeID uint8, choice bacstack.ConfirmedServiceChoice, payload []byte, segmented bool, segmentLen int) error {
	if !segmented {
		frame := apdu.EncodeConfirmedRequest(apdu.APDU{
			Type: apdu.TypeConfirmedRequest, InvokeID: invokeID,
			ConfirmedServiceChoice: choice, MaxAPDULengthAccepted: c.maxAPDU,
			MaxSegmentsAccepted: 0, Payload: payload,
		})
		return c.sender.SendAPDU(ctx, dest, frame)
	}

	segments := splitSegments(payload, segmentLen)
	window := int(c.windowSize)
	for i := 0; i < len(segments) && i < window; i++ {
		frame := apdu.EncodeConfirmedRequest(apdu.APDU{
			Type: apdu.TypeConfirmedRequest, InvokeID: invokeID,
			ConfirmedServiceChoice: choice, MaxAPDULengthAccepted: c.maxAPDU,
			SegmentedAccepted: true, Segmented: true,
			MoreFollows:        i < len(segments)-1,
			SequenceNumber:     uint8(i),
			ProposedWindowSize: c.windowSize,
			Payload:            segments[i],
		})
		if err := c.sender.SendAPDU(ctx, dest, frame); err != nil {
			return err
		}
		if c.metrics != nil {
			c.metrics.SegmentsSent.Inc()
		}
	}
	return nil
}

func splitSegments(payload []byte, segmentLen int) [][]byte {
	if segmentLen <= 0 {
		return [][]byte{payload}
	}
	var out [][]byte
	for len(payload) > 0 {
		n := segmentLen
		if n > len(payload) {
			n = len(payload)
		}
		out = append(out, payload[:n])
		payload = payload[n:]
	}
	if len(out) == 0 {
		out = [][]byte{{}}
	}
	return out
}

func (c *Client) finishResponse(a apdu.APDU) (Response, error) {
	switch a.Type {
	case apdu.TypeSimpleACK:
		return Response{ServiceChoice: a.ConfirmedServiceChoice}, nil
	case apdu.TypeComplexACK:
		return Response{ServiceChoice: a.ConfirmedServiceChoice, Payload: a.Payload}, nil
	}
	return Response{}, fmt.Errorf("bacstack: unexpected terminal apdu type %s", a.Type)
}

// HandleIncoming dispatches a decoded APDU addressed to this client from
// source, matching it to its transaction by (source, invoke id).
// SegmentACKs, segmented ComplexACKs, and terminal PDUs are all routed
// through here.
func (c *Client) HandleIncoming(ctx context.Context, source bacstack.NetworkAddress, a apdu.APDU, choice bacstack.ConfirmedServiceChoice) {
	txn, ok := c.lookupTransaction(source, a.InvokeID)
	if !ok {
		return
	}

	switch a.Type {
	case apdu.TypeSimpleACK:
		c.deliver(txn, result{apdu: a})

	case apdu.TypeComplexACK:
		if !a.Segmented {
			c.deliver(txn, result{apdu: a})
			return
		}
		c.handleSegment(ctx, source, txn, a)

	case apdu.TypeError:
		c.deliver(txn, result{err: &bacstack.BACnetError{Class: a.ErrorClass, Code: bacstack.ErrorCode(a.ErrorCode)}})

	case apdu.TypeReject:
		c.deliver(txn, result{err: &bacstack.RejectError{InvokeID: a.InvokeID, Reason: bacstack.RejectReason(a.RejectReason)}})

	case apdu.TypeAbort:
		c.deliver(txn, result{err: &bacstack.AbortError{InvokeID: a.InvokeID, Server: a.Server, Reason: bacstack.AbortReason(a.AbortReason)}})

	case apdu.TypeSegmentACK:
		c.handleSegmentAck(ctx, source, txn, a)
	}
}

// handleSegment accumulates an incoming segmented ComplexACK and sends a
// SegmentACK for every segment received, not once per window.
func (c *Client) handleSegment(ctx context.Context, source bacstack.NetworkAddress, txn *clientTransaction, a apdu.APDU) {
	if c.metrics != nil {
		c.metrics.SegmentsReceived.Inc()
	}

	txn.mu.Lock()
	txn.reassembly[a.SequenceNumber] = a.Payload
	complete := !a.MoreFollows
	var assembled []byte
	if complete {
		for i := uint8(0); ; i++ {
			seg, ok := txn.reassembly[i]
			if !ok {
				break
			}
			assembled = append(assembled, seg...)
			if i == 255 {
				break
			}
		}
	}
	txn.mu.Unlock()

	ack := apdu.EncodeSegmentACK(a.InvokeID, a.SequenceNumber, c.windowSize, false, false)
	if err := c.sender.SendAPDU(ctx, source, ack); err != nil {
		c.logSendError(ctx, "segment-ack", source, err)
	} else if c.metrics != nil {
		c.metrics.SegmentAcksSent.Inc()
	}

	if complete {
		a.Payload = assembled
		c.deliver(txn, result{apdu: a})
	}
}

// handleSegmentAck records the acknowledged position in windowBase: the
// next sequence number after a positive SegmentACK, the requested one
// after a negative SegmentACK. It sends nothing; neither further windows
// nor retransmissions are sent from here.
func (c *Client) handleSegmentAck(ctx context.Context, dest bacstack.NetworkAddress, txn *clientTransaction, a apdu.APDU) {
	txn.mu.Lock()
	defer txn.mu.Unlock()
	if a.NegativeAck {
		if c.metrics != nil {
			c.metrics.SegmentNaksReceived.Inc()
		}
		txn.windowBase = int(a.SequenceNumber)
		return
	}
	txn.windowBase = int(a.SequenceNumber) + 1
}
