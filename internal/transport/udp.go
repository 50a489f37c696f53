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

// Package transport provides the BACnet/IP (and BACnet/SC virtual MAC)
// datagram transport: a UDP socket that can unicast, subnet-broadcast, and
// receive with deadlines bound to a context.
package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"
)

// UDPTransport implements BACnet/IP transport over UDP, for both IPv4
// (standard BIP) and IPv6 (BACnet/SC-style framing carried by higher
// layers; this transport only handles datagram I/O).
type UDPTransport struct {
	localAddr    string
	network      string // "udp4" or "udp6"
	conn         *net.UDPConn
	mu           sync.RWMutex
	readTimeout  time.Duration
	writeTimeout time.Duration
	closed       bool
}

// NewUDPTransport creates a UDP transport bound to localAddr on first Open.
// An empty localAddr lets the OS choose an ephemeral port.
func NewUDPTransport(localAddr string) *UDPTransport {
	return &UDPTransport{
		localAddr:    localAddr,
		network:      "udp4",
		readTimeout:  3 * time.Second,
		writeTimeout: 3 * time.Second,
	}
}

// NewUDPTransportV6 creates an IPv6 UDP transport for BACnet/SC framing.
func NewUDPTransportV6(localAddr string) *UDPTransport {
	t := NewUDPTransport(localAddr)
	t.network = "udp6"
	return t
}

func (t *UDPTransport) SetReadTimeout(d time.Duration) {
	t.mu.Lock()
	t.readTimeout = d
	t.mu.Unlock()
}

func (t *UDPTransport) SetWriteTimeout(d time.Duration) {
	t.mu.Lock()
	t.writeTimeout = d
	t.mu.Unlock()
}

// Open binds the UDP socket. Idempotent: a second call on an already-open
// transport is a no-op.
func (t *UDPTransport) Open(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn != nil {
		return nil
	}

	var addr *net.UDPAddr
	var err error
	if t.localAddr != "" {
		addr, err = net.ResolveUDPAddr(t.network, t.localAddr)
		if err != nil {
			return fmt.Errorf("bacstack: resolve local address: %w", err)
		}
	}

	conn, err := net.ListenUDP(t.network, addr)
	if err != nil {
		return fmt.Errorf("bacstack: listen udp: %w", err)
	}

	t.conn = conn
	t.closed = false
	return nil
}

// Close shuts down the socket. Safe to call more than once.
func (t *UDPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conn == nil || t.closed {
		return nil
	}
	t.closed = true
	return t.conn.Close()
}

// LocalAddr returns the bound local address, or nil if not open.
func (t *UDPTransport) LocalAddr() net.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.conn == nil {
		return nil
	}
	return t.conn.LocalAddr()
}

// Send writes data to addr, honoring ctx's deadline (falling back to the
// configured write timeout).
func (t *UDPTransport) Send(ctx context.Context, addr *net.UDPAddr, data []byte) error {
	t.mu.RLock()
	conn := t.conn
	writeTimeout := t.writeTimeout
	t.mu.RUnlock()

	if conn == nil {
		return fmt.Errorf("bacstack: transport not open")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("bacstack: set write deadline: %w", err)
	}

	n, err := conn.WriteToUDP(data, addr)
	if err != nil {
		return fmt.Errorf("bacstack: write udp: %w", err)
	}
	if n != len(data) {
		return fmt.Errorf("bacstack: partial write: %d of %d bytes", n, len(data))
	}
	return nil
}

// Broadcast sends data to the IPv4 limited-broadcast address on port.
func (t *UDPTransport) Broadcast(ctx context.Context, port int, data []byte) error {
	addr := &net.UDPAddr{IP: net.IPv4bcast, Port: port}
	return t.Send(ctx, addr, data)
}

// DirectedBroadcast sends data to a directed-broadcast IP (BBMD forwarding
// to a BDT entry whose mask is not all-ones) on port.
func (t *UDPTransport) DirectedBroadcast(ctx context.Context, ip net.IP, port int, data []byte) error {
	return t.Send(ctx, &net.UDPAddr{IP: ip, Port: port}, data)
}

// Receive reads one datagram, honoring ctx's deadline (falling back to the
// configured read timeout).
func (t *UDPTransport) Receive(ctx context.Context) ([]byte, *net.UDPAddr, error) {
	t.mu.RLock()
	conn := t.conn
	readTimeout := t.readTimeout
	t.mu.RUnlock()

	if conn == nil {
		return nil, nil, fmt.Errorf("bacstack: transport not open")
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(readTimeout)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, nil, fmt.Errorf("bacstack: set read deadline: %w", err)
	}

	buf := make([]byte, 1500)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		return nil, nil, err
	}
	return buf[:n], addr, nil
}

// ReceiveWithTimeout is a convenience wrapper for Receive with a bare timeout.
func (t *UDPTransport) ReceiveWithTimeout(timeout time.Duration) ([]byte, *net.UDPAddr, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return t.Receive(ctx)
}

// IsClosed reports whether Close has been called.
func (t *UDPTransport) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
