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

package bvll

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/scadalynx/bacstack"
)

const (
	defaultMaxForeignDevices = 128
	registrationGracePeriod  = 30 * time.Second
)

// Sender is the minimal transport surface the BBMD needs: unicast send and
// directed-broadcast send, both addressed by raw IPv4 + port.
type Sender interface {
	Send(ctx context.Context, addr *net.UDPAddr, data []byte) error
	DirectedBroadcast(ctx context.Context, ip net.IP, port int, data []byte) error
}

// LocalDeliverFunc hands a decoded broadcast NPDU payload up to the
// application layer as if it had arrived as any other incoming packet.
type LocalDeliverFunc func(npdu []byte, source bacstack.MacAddress)

type foreignDeviceEntry struct {
	ip      [4]byte
	port    uint16
	ttl     time.Duration
	expires time.Time
}

// BBMD is a BACnet Broadcast Management Device: it holds a Broadcast
// Distribution Table and a Foreign Device Table and forwards broadcasts
// between IP subnets per spec §4.6.
type BBMD struct {
	selfIP   [4]byte
	selfPort uint16
	globalIP *[4]byte // set when NAT-aware

	writeBDTEnabled bool
	maxForeignDevices int

	persistPath string

	mu  sync.Mutex
	bdt []BDTEntry
	fdt map[[6]byte]*foreignDeviceEntry

	sender Sender
	deliver LocalDeliverFunc
	logger  *slog.Logger
	metrics *bacstack.Metrics

	stop chan struct{}
}

// Config configures a new BBMD.
type Config struct {
	SelfIP            [4]byte
	SelfPort          uint16
	GlobalIP          *[4]byte
	WriteBDTEnabled   bool
	MaxForeignDevices int
	PersistPath       string
	Sender            Sender
	Deliver           LocalDeliverFunc
	Logger            *slog.Logger
	Metrics           *bacstack.Metrics
}

// New constructs a BBMD and restores its BDT from PersistPath if the
// in-memory table is empty (spec §4.6 persistence rule).
func New(cfg Config) *BBMD {
	maxFD := cfg.MaxForeignDevices
	if maxFD == 0 {
		maxFD = defaultMaxForeignDevices
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := &BBMD{
		selfIP: cfg.SelfIP, selfPort: cfg.SelfPort, globalIP: cfg.GlobalIP,
		writeBDTEnabled: cfg.WriteBDTEnabled, maxForeignDevices: maxFD,
		persistPath: cfg.PersistPath,
		fdt:         make(map[[6]byte]*foreignDeviceEntry),
		sender:      cfg.Sender, deliver: cfg.Deliver, logger: logger, metrics: cfg.Metrics,
		stop: make(chan struct{}),
	}
	if cfg.PersistPath != "" {
		if entries, err := LoadBDT(cfg.PersistPath); err == nil {
			b.bdt = entries
		} else {
			logger.Warn("bbmd: failed to load persisted bdt, starting empty", "path", cfg.PersistPath, "error", err)
		}
	}
	return b
}

// SetBDT installs a programmatic BDT at startup, which wins over any
// persisted file per spec §4.6.
func (b *BBMD) SetBDT(entries []BDTEntry) {
	b.mu.Lock()
	b.bdt = entries
	b.mu.Unlock()
}

func (b *BBMD) persist() {
	if b.persistPath == "" {
		return
	}
	if err := SaveBDT(b.persistPath, b.bdt); err != nil {
		b.logger.Error("bbmd: failed to persist bdt", "error", err)
	}
}

// Run starts the FDT cleanup background task; it returns when ctx is
// cancelled or Stop is called.
func (b *BBMD) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-ticker.C:
			b.cleanupExpired()
		}
	}
}

// Stop ends the background cleanup loop.
func (b *BBMD) Stop() { close(b.stop) }

func (b *BBMD) cleanupExpired() {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, entry := range b.fdt {
		if entry.expires.Before(now) {
			delete(b.fdt, key)
			if b.metrics != nil {
				b.metrics.ForeignDevicesExpired.Inc()
			}
			b.logger.Info("bbmd: foreign device expired", "ip", net.IP(entry.ip[:]).String(), "port", entry.port)
		}
	}
}

func fdtKey(ip [4]byte, port uint16) [6]byte {
	var k [6]byte
	copy(k[:4], ip[:])
	k[4], k[5] = byte(port>>8), byte(port)
	return k
}

// HandleOriginalBroadcastNPDU implements spec §4.6 "Original-Broadcast-NPDU
// received from a local-wire client": deliver locally, then forward to
// every BDT peer (except self and any whose forward address equals the
// source) and to every FDT entry.
func (b *BBMD) HandleOriginalBroadcastNPDU(ctx context.Context, source [4]byte, sourcePort uint16, npdu []byte) {
	b.deliverLocal(npdu, source, sourcePort)

	b.mu.Lock()
	bdt := append([]BDTEntry(nil), b.bdt...)
	fdt := b.fdtSnapshotLocked()
	b.mu.Unlock()

	mac := bacstack.MacAddressFromUDP(net.IP(source[:]), sourcePort)
	frame := EncodeForwardedNPDU(mac, npdu)

	for _, entry := range bdt {
		if entry.IP == b.selfIP && entry.Port == b.selfPort {
			continue
		}
		forwardIP := entry.ForwardIP()
		if forwardIP == source {
			continue
		}
		b.sendForwarded(ctx, entry, frame)
	}
	for _, fd := range fdt {
		b.sendUnicast(ctx, fd.ip, fd.port, frame)
	}
}

// HandleForwardedNPDU implements spec §4.6 "Forwarded-NPDU received from
// another BBMD": loop-prevention, local delivery, FDT relay, and
// conditional wire re-broadcast.
func (b *BBMD) HandleForwardedNPDU(ctx context.Context, originating bacstack.MacAddress, npdu []byte, fromBDTMask *[4]byte) {
	if b.isSelfOriginating(originating) {
		return // loop prevention
	}

	var originIP [4]byte
	var originPort uint16
	if addr, err := originating.UDPAddr(); err == nil {
		copy(originIP[:], addr.IP.To4())
		originPort = uint16(addr.Port)
	}

	b.deliverLocal(npdu, originIP, originPort)

	b.mu.Lock()
	fdt := b.fdtSnapshotLocked()
	b.mu.Unlock()

	frame := EncodeForwardedNPDU(originating, npdu)
	originKey := fdtKey(originIP, originPort)
	for _, fd := range fdt {
		if fdtKey(fd.ip, fd.port) == originKey {
			continue
		}
		b.sendUnicast(ctx, fd.ip, fd.port, frame)
	}

	// All-ones mask ⇒ sender unicast-only, local wire never saw this
	// broadcast ⇒ we must re-broadcast it onto our own subnet. Unknown
	// peers default to the unicast assumption, per spec.
	wireSawIt := fromBDTMask != nil && *fromBDTMask != [4]byte{0xFF, 0xFF, 0xFF, 0xFF}
	if !wireSawIt {
		b.broadcastLocalWire(ctx, frame)
	}
}

// HandleDistributeBroadcastToNetwork implements spec §4.6 for broadcasts
// originated by a registered foreign device.
func (b *BBMD) HandleDistributeBroadcastToNetwork(ctx context.Context, sender [4]byte, senderPort uint16, npdu []byte) ResultCode {
	b.mu.Lock()
	_, registered := b.fdt[fdtKey(sender, senderPort)]
	bdt := append([]BDTEntry(nil), b.bdt...)
	fdt := b.fdtSnapshotLocked()
	b.mu.Unlock()

	if !registered {
		return ResultDistributeBroadcastToNetworkNAK
	}

	b.deliverLocal(npdu, sender, senderPort)

	mac := bacstack.MacAddressFromUDP(net.IP(sender[:]), senderPort)
	frame := EncodeForwardedNPDU(mac, npdu)
	senderKey := fdtKey(sender, senderPort)

	for _, entry := range bdt {
		if entry.IP == b.selfIP && entry.Port == b.selfPort {
			continue
		}
		if entry.ForwardIP() == sender {
			continue
		}
		b.sendForwarded(ctx, entry, frame)
	}
	for _, fd := range fdt {
		if fdtKey(fd.ip, fd.port) == senderKey {
			continue
		}
		b.sendUnicast(ctx, fd.ip, fd.port, frame)
	}
	return ResultSuccess
}

// HandleRegisterForeignDevice implements spec §4.6's registration rule: a
// new entry is rejected once the table is full; re-registration always
// succeeds.
func (b *BBMD) HandleRegisterForeignDevice(ip [4]byte, port uint16, ttlSeconds uint16) ResultCode {
	key := fdtKey(ip, port)
	ttl := time.Duration(ttlSeconds) * time.Second
	expiry := time.Now().Add(ttl).Add(registrationGracePeriod)

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.fdt[key]; !exists && len(b.fdt) >= b.maxForeignDevices {
		return ResultRegisterForeignDeviceNAK
	}
	b.fdt[key] = &foreignDeviceEntry{ip: ip, port: port, ttl: ttl, expires: expiry}
	if b.metrics != nil {
		b.metrics.ForeignDevicesAdded.Inc()
	}
	return ResultSuccess
}

// HandleWriteBDT applies a Write-BDT request if enabled at construction.
func (b *BBMD) HandleWriteBDT(entries []BDTEntry) ResultCode {
	if !b.writeBDTEnabled {
		return ResultWriteBDTNAK
	}
	b.mu.Lock()
	b.bdt = entries
	b.mu.Unlock()
	b.persist()
	return ResultSuccess
}

// ReadBDT returns the current table, even when empty.
func (b *BBMD) ReadBDT() []BDTEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]BDTEntry(nil), b.bdt...)
}

// ReadFDT returns the current foreign-device table as wire entries.
func (b *BBMD) ReadFDT() []FDTEntry {
	now := time.Now()
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FDTEntry, 0, len(b.fdt))
	for _, fd := range b.fdt {
		remaining := fd.expires.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		out = append(out, FDTEntry{
			IP: fd.ip, Port: fd.port,
			TTLSeconds:       uint16(fd.ttl / time.Second),
			RemainingSeconds: uint16(remaining / time.Second),
		})
	}
	return out
}

// HandleDeleteFDTEntry removes an entry, reporting NAK if unknown.
func (b *BBMD) HandleDeleteFDTEntry(ip [4]byte, port uint16) ResultCode {
	key := fdtKey(ip, port)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.fdt[key]; !ok {
		return ResultDeleteForeignDeviceTableEntryNAK
	}
	delete(b.fdt, key)
	return ResultSuccess
}

func (b *BBMD) fdtSnapshotLocked() []*foreignDeviceEntry {
	out := make([]*foreignDeviceEntry, 0, len(b.fdt))
	for _, fd := range b.fdt {
		out = append(out, fd)
	}
	return out
}

func (b *BBMD) isSelfOriginating(originating bacstack.MacAddress) bool {
	addr, err := originating.UDPAddr()
	if err != nil {
		return false
	}
	var ip [4]byte
	copy(ip[:], addr.IP.To4())
	if ip == b.selfIP && uint16(addr.Port) == b.selfPort {
		return true
	}
	if b.globalIP != nil && ip == *b.globalIP && uint16(addr.Port) == b.selfPort {
		return true
	}
	return false
}

func (b *BBMD) deliverLocal(npdu []byte, ip [4]byte, port uint16) {
	if b.deliver == nil {
		return
	}
	b.deliver(npdu, bacstack.MacAddressFromUDP(net.IP(ip[:]), port))
}

func (b *BBMD) sendForwarded(ctx context.Context, entry BDTEntry, frame []byte) {
	if b.sender == nil {
		return
	}
	forwardIP := entry.ForwardIP()
	// NAT awareness: skip a peer whose forward address equals our own
	// globally-visible address, avoiding a self-send through the NAT.
	if b.globalIP != nil && forwardIP == *b.globalIP {
		return
	}
	if entry.AllOnesMask() {
		if err := b.sender.Send(ctx, &net.UDPAddr{IP: net.IP(forwardIP[:]), Port: int(entry.Port)}, frame); err != nil {
			b.logger.Warn("bvll: forwarded-npdu send failed", "peer", net.IP(forwardIP[:]).String(), "error", err)
			return
		}
	} else {
		if err := b.sender.DirectedBroadcast(ctx, net.IP(forwardIP[:]), int(entry.Port), frame); err != nil {
			b.logger.Warn("bvll: forwarded-npdu broadcast failed", "peer", net.IP(forwardIP[:]).String(), "error", err)
			return
		}
	}
	if b.metrics != nil {
		b.metrics.BBMDForwarded.Inc()
	}
}

func (b *BBMD) sendUnicast(ctx context.Context, ip [4]byte, port uint16, frame []byte) {
	if b.sender == nil {
		return
	}
	if err := b.sender.Send(ctx, &net.UDPAddr{IP: net.IP(ip[:]), Port: int(port)}, frame); err != nil {
		b.logger.Warn("bvll: unicast send failed", "peer", net.IP(ip[:]).String(), "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.BBMDForwarded.Inc()
	}
}

func (b *BBMD) broadcastLocalWire(ctx context.Context, frame []byte) {
	if b.sender == nil {
		return
	}
	if err := b.sender.DirectedBroadcast(ctx, net.IPv4bcast, int(b.selfPort), frame); err != nil {
		b.logger.Warn("bvll: local broadcast failed", "error", err)
		return
	}
	if b.metrics != nil {
		b.metrics.BBMDBroadcastsSent.Inc()
	}
}
