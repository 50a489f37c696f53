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

// Package router implements the BACnet network layer's routing behavior:
// delivering NPDUs destined for our own network, forwarding NPDUs bound
// for a remote network through a learned routing table, and answering
// Who-Is-Router-To-Network queries (spec §4.11).
package router

import (
	"context"
	"log/slog"
	"sync"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/npdu"
)

// PortSender transmits a framed NPDU out a single port to a MAC on that
// port's network (or the port's broadcast MAC when mac is empty).
type PortSender interface {
	SendNPDU(ctx context.Context, mac bacstack.MacAddress, frame []byte) error
}

// LocalDeliverFunc hands an NPDU's APDU payload up to the application layer
// once the router has determined it is destined for this node's network.
type LocalDeliverFunc func(source bacstack.NetworkAddress, payload []byte)

// Port is one network attached to this router: a network number and the
// transport used to reach stations on it.
type Port struct {
	Network uint16
	Sender  PortSender
}

type route struct {
	port    *Port
	nextHop bacstack.MacAddress // empty means the destination network is directly attached to port
}

// Router dispatches NPDUs between Ports, maintaining a routing table
// learned from Who-Is-Router-To-Network / I-Am-Router-To-Network
// exchanges (spec §4.11).
type Router struct {
	deliver LocalDeliverFunc
	logger  *slog.Logger

	mu     sync.Mutex
	ports  map[uint16]*Port
	routes map[uint16]route
}

// New constructs a Router with no ports and an empty routing table.
func New(deliver LocalDeliverFunc, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		deliver: deliver,
		logger:  logger,
		ports:   make(map[uint16]*Port),
		routes:  make(map[uint16]route),
	}
}

// AddPort attaches a network to this router.
func (r *Router) AddPort(p *Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ports[p.Network] = p
}

// Networks returns the set of directly-attached network numbers.
func (r *Router) Networks() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]uint16, 0, len(r.ports))
	for n := range r.ports {
		out = append(out, n)
	}
	return out
}

// LearnRoute records that network is reachable via port, forwarding
// through nextHop (empty if network is directly attached to port).
func (r *Router) LearnRoute(network uint16, port *Port, nextHop bacstack.MacAddress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes[network] = route{port: port, nextHop: nextHop}
}

// HandleIncoming processes one NPDU received on inPort from the given MAC.
// It either delivers the APDU locally, forwards it toward its destination
// network, or answers/applies a network-layer control message.
func (r *Router) HandleIncoming(ctx context.Context, inPort *Port, sourceMac bacstack.MacAddress, frame []byte) error {
	n, err := npdu.Decode(frame)
	if err != nil {
		return err
	}

	if n.NetworkMessage {
		return r.handleNetworkMessage(ctx, inPort, sourceMac, n)
	}

	if r.ownNetwork(inPort, n.Destination) {
		if r.deliver != nil {
			source := n.Source
			if source == nil {
				addr := bacstack.NewUnicastAddress(inPort.Network, sourceMac)
				source = &addr
			}
			r.deliver(*source, n.Payload)
		}
		return nil
	}

	return r.forward(ctx, inPort, sourceMac, n)
}

// ownNetwork reports whether dest names this router's local delivery
// scope for the port the NPDU arrived on: no destination specifier,
// global broadcast, or an explicit match on the port's network number.
func (r *Router) ownNetwork(inPort *Port, dest *bacstack.NetworkAddress) bool {
	if dest == nil {
		return true
	}
	if dest.Network == bacstack.NetworkGlobal {
		return true
	}
	return dest.Network == inPort.Network
}

// forward looks up dest.Network in the routing table and resends the NPDU
// out the matching port with the hop count decremented, per spec §4.11.
// Frames whose hop count has already reached zero are dropped silently,
// as ASHRAE 135 requires.
func (r *Router) forward(ctx context.Context, inPort *Port, sourceMac bacstack.MacAddress, n npdu.NPDU) error {
	if n.Destination == nil {
		return nil
	}
	if n.HopCount == 0 {
		r.logger.Warn("router: dropping npdu with exhausted hop count", "network", n.Destination.Network)
		return nil
	}

	r.mu.Lock()
	rt, ok := r.routes[n.Destination.Network]
	r.mu.Unlock()
	if !ok {
		r.logger.Debug("router: no route to network", "network", n.Destination.Network)
		return nil
	}

	out := n
	out.HopCount = n.HopCount - 1
	if out.Source == nil {
		src := bacstack.NewUnicastAddress(inPort.Network, sourceMac)
		out.Source = &src
	}
	frame := npdu.Encode(out)

	nextHop := rt.nextHop
	if nextHop == nil {
		nextHop = n.Destination.Mac
	}
	return rt.port.Sender.SendNPDU(ctx, nextHop, frame)
}

func (r *Router) handleNetworkMessage(ctx context.Context, inPort *Port, sourceMac bacstack.MacAddress, n npdu.NPDU) error {
	switch n.NetworkMessageType {
	case npdu.MessageWhoIsRouterToNetwork:
		return r.handleWhoIsRouterToNetwork(ctx, inPort, sourceMac, n)
	case npdu.MessageIAmRouterToNetwork:
		return r.handleIAmRouterToNetwork(inPort, sourceMac, n)
	default:
		return nil
	}
}

// handleWhoIsRouterToNetwork answers with I-Am-Router-To-Network listing
// every network reachable through this router other than the querying
// port itself (spec §4.11).
func (r *Router) handleWhoIsRouterToNetwork(ctx context.Context, inPort *Port, sourceMac bacstack.MacAddress, n npdu.NPDU) error {
	queried, err := npdu.DecodeWhoIsRouterToNetwork(n.Payload)
	if err != nil {
		return err
	}

	reachable := r.reachableExcluding(inPort.Network)
	if queried != nil {
		found := false
		for _, net := range reachable {
			if net == *queried {
				found = true
				break
			}
		}
		if !found {
			return nil
		}
		reachable = []uint16{*queried}
	}
	if len(reachable) == 0 {
		return nil
	}

	reply := npdu.NPDU{
		NetworkMessage:     true,
		NetworkMessageType: npdu.MessageIAmRouterToNetwork,
		Payload:            npdu.EncodeIAmRouterToNetwork(reachable),
	}
	return inPort.Sender.SendNPDU(ctx, sourceMac, npdu.Encode(reply))
}

func (r *Router) handleIAmRouterToNetwork(inPort *Port, sourceMac bacstack.MacAddress, n npdu.NPDU) error {
	networks, err := npdu.DecodeIAmRouterToNetwork(n.Payload)
	if err != nil {
		return err
	}
	for _, network := range networks {
		r.LearnRoute(network, inPort, sourceMac)
	}
	return nil
}

// reachableExcluding returns every network number known to this router
// (attached ports plus learned routes) other than excluded.
func (r *Router) reachableExcluding(excluded uint16) []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[uint16]bool)
	var out []uint16
	for network, p := range r.ports {
		if network == excluded || p.Network == excluded {
			continue
		}
		if !seen[network] {
			seen[network] = true
			out = append(out, network)
		}
	}
	for network, rt := range r.routes {
		if network == excluded || rt.port.Network == excluded {
			continue
		}
		if !seen[network] {
			seen[network] = true
			out = append(out, network)
		}
	}
	return out
}
