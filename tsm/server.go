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

package tsm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
)

type assemblyState uint8

const (
	assemblyIdle assemblyState = iota
	assemblyInProgress
)

// ServerTransaction identifies one inbound confirmed-request exchange,
// passed back to the caller of ReceiveConfirmedRequest so it can be handed
// to StartSegmentedResponse.
type ServerTransaction struct {
	Source        bacstack.NetworkAddress
	InvokeID      uint8
	ServiceChoice bacstack.ConfirmedServiceChoice
	MaxAPDU       uint16
	Segmented     bool // whether the peer requested a segmented response
	WindowSize    uint8
}

type serverAssembly struct {
	state      assemblyState
	segments   map[uint8][]byte
	maxSeqSeen int
	txn        ServerTransaction
}

// Server is the receive side of confirmed exchanges: request-segment
// reassembly, duplicate-first-segment handling, and segmented-response
// transmission (spec §4.4).
type Server struct {
	sender  PacketSender
	metrics *bacstack.Metrics
	logger  *slog.Logger

	mu         sync.Mutex
	assemblies map[string]*serverAssembly // keyed by source+invoke-id
}

// NewServer constructs a Server.
func NewServer(sender PacketSender) *Server {
	return &Server{sender: sender, logger: slog.Default(), assemblies: make(map[string]*serverAssembly)}
}

// SetMetrics attaches a Metrics instance the server increments at every
// segment-assembly boundary; nil (the default) disables collection.
func (s *Server) SetMetrics(m *bacstack.Metrics) { s.metrics = m }

// SetLogger overrides the default slog.Default() logger.
func (s *Server) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

func assemblyKey(source bacstack.NetworkAddress, invokeID uint8) string {
	return fmt.Sprintf("%s#%d", source.String(), invokeID)
}

// ReceiveConfirmedRequest feeds one ConfirmedRequest APDU through
// reassembly. It returns (txn, payload, true) once the request is fully
// assembled, or (_, nil, false) while more segments are expected. It sends
// SegmentACKs for arriving segments itself.
func (s *Server) ReceiveConfirmedRequest(ctx context.Context, source bacstack.NetworkAddress, a apdu.APDU) (ServerTransaction, []byte, bool, error) {
	txn := ServerTransaction{
		Source: source, InvokeID: a.InvokeID, ServiceChoice: a.ConfirmedServiceChoice,
		MaxAPDU: a.MaxAPDULengthAccepted, Segmented: a.SegmentedAccepted, WindowSize: a.ProposedWindowSize,
	}

	if !a.Segmented {
		return txn, a.Payload, true, nil
	}

	if s.metrics != nil {
		s.metrics.SegmentsReceived.Inc()
	}

	key := assemblyKey(source, a.InvokeID)
	s.mu.Lock()
	entry, exists := s.assemblies[key]
	if a.SequenceNumber == 0 {
		// A duplicate first segment restarts the assembly only if the
		// stored state is idle; otherwise it is dropped silently
		// (spec §4.4).
		if exists && entry.state != assemblyIdle {
			s.mu.Unlock()
			return ServerTransaction{}, nil, false, nil
		}
		entry = &serverAssembly{state: assemblyInProgress, segments: make(map[uint8][]byte), txn: txn}
		s.assemblies[key] = entry
	} else if !exists {
		s.mu.Unlock()
		return ServerTransaction{}, nil, false, fmt.Errorf("bacstack: segment received with no prior first segment")
	}
	entry.segments[a.SequenceNumber] = a.Payload
	complete := !a.MoreFollows
	var assembled []byte
	if complete {
		for i := uint8(0); ; i++ {
			seg, ok := entry.segments[i]
			if !ok {
				break
			}
			assembled = append(assembled, seg...)
			if i == 255 {
				break
			}
		}
		entry.state = assemblyIdle
		delete(s.assemblies, key)
	}
	s.mu.Unlock()

	ack := apdu.EncodeSegmentACK(a.InvokeID, a.SequenceNumber, entry.txn.WindowSize, false, true)
	if err := s.sender.SendAPDU(ctx, source, ack); err != nil {
		return ServerTransaction{}, nil, false, err
	}
	if s.metrics != nil {
		s.metrics.SegmentAcksSent.Inc()
	}

	if !complete {
		return ServerTransaction{}, nil, false, nil
	}
	return entry.txn, assembled, true, nil
}

// StartSegmentedResponse packages payload into a segmented ComplexACK
// stream and sends the initial window (spec §4.4). Only that window is
// sent: the Server has no SegmentACK handling, so segments beyond the
// first window are not transmitted.
func (s *Server) StartSegmentedResponse(ctx context.Context, txn ServerTransaction, payload []byte) error {
	headerBudget := apdu.SegmentHeaderSize()
	segmentLen := int(txn.MaxAPDU) - headerBudget
	if segmentLen <= 0 {
		segmentLen = len(payload)
	}
	segments := splitSegments(payload, segmentLen)

	window := int(txn.WindowSize)
	if window == 0 {
		window = defaultWindowSize
	}
	for i := 0; i < len(segments) && i < window; i++ {
		frame := apdu.EncodeComplexACK(apdu.APDU{
			Type: apdu.TypeComplexACK, InvokeID: txn.InvokeID, ConfirmedServiceChoice: txn.ServiceChoice,
			Segmented: true, MoreFollows: i < len(segments)-1,
			SequenceNumber: uint8(i), ProposedWindowSize: txn.WindowSize,
			Payload: segments[i],
		})
		if err := s.sender.SendAPDU(ctx, txn.Source, frame); err != nil {
			return err
		}
		if s.metrics != nil {
			s.metrics.SegmentsSent.Inc()
		}
	}
	return nil
}

// RespondSimple sends a SimpleACK for a non-segmented confirmed request.
func (s *Server) RespondSimple(ctx context.Context, txn ServerTransaction) error {
	frame := apdu.EncodeSimpleACK(txn.InvokeID, txn.ServiceChoice)
	return s.sender.SendAPDU(ctx, txn.Source, frame)
}

// RespondComplex sends a single-PDU ComplexACK when payload fits within
// the negotiated max APDU.
func (s *Server) RespondComplex(ctx context.Context, txn ServerTransaction, payload []byte) error {
	frame := apdu.EncodeComplexACK(apdu.APDU{
		Type: apdu.TypeComplexACK, InvokeID: txn.InvokeID, ConfirmedServiceChoice: txn.ServiceChoice,
		Payload: payload,
	})
	return s.sender.SendAPDU(ctx, txn.Source, frame)
}

// RespondError maps a failure from request decoding or dispatch to the
// correct PDU per spec §4.4's failure semantics: MalformedTag → Reject
// (INVALID_TAG), RejectError → Reject with its reason, BACnetError →
// Error, AbortError → Abort with its reason, anything else → Abort(OTHER).
func (s *Server) RespondError(ctx context.Context, txn ServerTransaction, err error) error {
	var bacErr *bacstack.BACnetError
	var rejectErr *bacstack.RejectError
	var abortErr *bacstack.AbortError

	switch {
	case errors.Is(err, bacstack.ErrMalformedTag):
		frame := apdu.EncodeReject(txn.InvokeID, bacstack.RejectReasonInvalidTag)
		return s.sender.SendAPDU(ctx, txn.Source, frame)
	case errors.As(err, &rejectErr):
		frame := apdu.EncodeReject(txn.InvokeID, rejectErr.Reason)
		return s.sender.SendAPDU(ctx, txn.Source, frame)
	case errors.As(err, &bacErr):
		frame := apdu.EncodeError(txn.InvokeID, txn.ServiceChoice, bacErr.Class, bacErr.Code)
		return s.sender.SendAPDU(ctx, txn.Source, frame)
	case errors.As(err, &abortErr):
		frame := apdu.EncodeAbort(txn.InvokeID, true, abortErr.Reason)
		return s.sender.SendAPDU(ctx, txn.Source, frame)
	default:
		frame := apdu.EncodeAbort(txn.InvokeID, true, bacstack.AbortReasonOther)
		return s.sender.SendAPDU(ctx, txn.Source, frame)
	}
}
