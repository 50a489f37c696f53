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

package router

import (
	"context"
	"testing"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/npdu"
)

type recordingPortSender struct {
	frames []sentFrame
}

type sentFrame struct {
	mac   bacstack.MacAddress
	frame []byte
}

func (s *recordingPortSender) SendNPDU(_ context.Context, mac bacstack.MacAddress, frame []byte) error {
	s.frames = append(s.frames, sentFrame{mac: mac, frame: frame})
	return nil
}

func TestHandleIncomingDeliversOwnNetworkLocally(t *testing.T) {
	var delivered []byte
	var deliveredSource bacstack.NetworkAddress
	r := New(func(source bacstack.NetworkAddress, payload []byte) {
		delivered = payload
		deliveredSource = source
	}, nil)

	sender := &recordingPortSender{}
	port := &Port{Network: 1, Sender: sender}
	r.AddPort(port)

	frame := npdu.Encode(npdu.NPDU{Payload: []byte{0xAA, 0xBB}})
	mac := bacstack.MacAddress{192, 168, 1, 1, 0xBA, 0xC0}

	if err := r.HandleIncoming(context.Background(), port, mac, frame); err != nil {
		t.Fatalf("HandleIncoming failed: %v", err)
	}
	if string(delivered) != string([]byte{0xAA, 0xBB}) {
		t.Errorf("expected payload delivered locally, got %v", delivered)
	}
	if deliveredSource.Network != 1 {
		t.Errorf("expected source network 1, got %d", deliveredSource.Network)
	}
	if len(sender.frames) != 0 {
		t.Errorf("expected no outgoing frames for local delivery, got %d", len(sender.frames))
	}
}

func TestHandleIncomingForwardsToLearnedRoute(t *testing.T) {
	r := New(nil, nil)

	localPort := &Port{Network: 1, Sender: &recordingPortSender{}}
	remoteSender := &recordingPortSender{}
	remotePort := &Port{Network: 2, Sender: remoteSender}
	r.AddPort(localPort)
	r.AddPort(remotePort)

	nextHop := bacstack.MacAddress{10, 0, 0, 2, 0xBA, 0xC0}
	r.LearnRoute(3, remotePort, nextHop)

	dest := bacstack.NewUnicastAddress(3, bacstack.MacAddress{10, 0, 0, 9, 0xBA, 0xC0})
	frame := npdu.Encode(npdu.NPDU{Destination: &dest, HopCount: 255, Payload: []byte{0x01}})

	srcMac := bacstack.MacAddress{192, 168, 1, 5, 0xBA, 0xC0}
	if err := r.HandleIncoming(context.Background(), localPort, srcMac, frame); err != nil {
		t.Fatalf("HandleIncoming failed: %v", err)
	}

	if len(remoteSender.frames) != 1 {
		t.Fatalf("expected 1 forwarded frame on remote port, got %d", len(remoteSender.frames))
	}
	got, err := npdu.Decode(remoteSender.frames[0].frame)
	if err != nil {
		t.Fatalf("Decode forwarded frame failed: %v", err)
	}
	if got.HopCount != 254 {
		t.Errorf("expected hop count decremented to 254, got %d", got.HopCount)
	}
}

func TestHandleIncomingDropsExhaustedHopCount(t *testing.T) {
	r := New(nil, nil)
	localPort := &Port{Network: 1, Sender: &recordingPortSender{}}
	remoteSender := &recordingPortSender{}
	remotePort := &Port{Network: 2, Sender: remoteSender}
	r.AddPort(localPort)
	r.AddPort(remotePort)
	r.LearnRoute(3, remotePort, nil)

	dest := bacstack.RemoteBroadcast(3)
	frame := npdu.Encode(npdu.NPDU{Destination: &dest, HopCount: 0, Payload: []byte{0x01}})

	if err := r.HandleIncoming(context.Background(), localPort, bacstack.MacAddress{1, 2, 3, 4, 0, 0}, frame); err != nil {
		t.Fatalf("HandleIncoming failed: %v", err)
	}
	if len(remoteSender.frames) != 0 {
		t.Errorf("expected exhausted-hop-count frame to be dropped, got %d frames", len(remoteSender.frames))
	}
}

func TestWhoIsRouterToNetworkRespondsExcludingQueryingPort(t *testing.T) {
	r := New(nil, nil)
	queryPort := &Port{Network: 1, Sender: &recordingPortSender{}}
	otherPort := &Port{Network: 2, Sender: &recordingPortSender{}}
	r.AddPort(queryPort)
	r.AddPort(otherPort)

	querySender := queryPort.Sender.(*recordingPortSender)
	sourceMac := bacstack.MacAddress{192, 168, 1, 9, 0xBA, 0xC0}

	frame := npdu.Encode(npdu.NPDU{
		NetworkMessage:     true,
		NetworkMessageType: npdu.MessageWhoIsRouterToNetwork,
	})
	if err := r.HandleIncoming(context.Background(), queryPort, sourceMac, frame); err != nil {
		t.Fatalf("HandleIncoming failed: %v", err)
	}

	if len(querySender.frames) != 1 {
		t.Fatalf("expected 1 I-Am-Router-To-Network reply, got %d", len(querySender.frames))
	}
	reply, err := npdu.Decode(querySender.frames[0].frame)
	if err != nil {
		t.Fatalf("Decode reply failed: %v", err)
	}
	if reply.NetworkMessageType != npdu.MessageIAmRouterToNetwork {
		t.Fatalf("expected I-Am-Router-To-Network, got %v", reply.NetworkMessageType)
	}
	networks, err := npdu.DecodeIAmRouterToNetwork(reply.Payload)
	if err != nil {
		t.Fatalf("DecodeIAmRouterToNetwork failed: %v", err)
	}
	if len(networks) != 1 || networks[0] != 2 {
		t.Errorf("expected reachable networks [2], got %v", networks)
	}
}

func TestIAmRouterToNetworkLearnsRoute(t *testing.T) {
	r := New(nil, nil)
	port := &Port{Network: 1, Sender: &recordingPortSender{}}
	r.AddPort(port)

	sourceMac := bacstack.MacAddress{10, 0, 0, 5, 0xBA, 0xC0}
	frame := npdu.Encode(npdu.NPDU{
		NetworkMessage:     true,
		NetworkMessageType: npdu.MessageIAmRouterToNetwork,
		Payload:            npdu.EncodeIAmRouterToNetwork([]uint16{7, 8}),
	})
	if err := r.HandleIncoming(context.Background(), port, sourceMac, frame); err != nil {
		t.Fatalf("HandleIncoming failed: %v", err)
	}

	r.mu.Lock()
	rt7, ok7 := r.routes[7]
	rt8, ok8 := r.routes[8]
	r.mu.Unlock()
	if !ok7 || !ok8 {
		t.Fatalf("expected routes for networks 7 and 8 to be learned")
	}
	if rt7.port != port || rt8.port != port {
		t.Error("expected learned routes to point at the announcing port")
	}
}
