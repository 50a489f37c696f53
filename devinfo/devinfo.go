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

// Package devinfo caches per-device communication parameters learned from
// I-Am announcements, so outgoing confirmed requests can negotiate a max
// APDU size without a discovery round trip on every call (spec §4.7).
package devinfo

import (
	"sync"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
)

// Capacity is the maximum number of cached entries. At overflow the
// EvictBatch oldest entries are dropped in FIFO order.
const Capacity = 1000

// EvictBatch is the number of oldest entries dropped when the cache is
// full and a new entry arrives.
const EvictBatch = 100

// Info is the set of per-device parameters learned from an I-Am.
type Info struct {
	Device                bacstack.ObjectIdentifier
	MaxAPDULength         uint32
	SegmentationSupported bacstack.Segmentation
	VendorID              uint32
}

type entry struct {
	addr bacstack.NetworkAddress
	info Info
}

// Cache is a FIFO-bounded map from NetworkAddress to the last I-Am seen
// from that address. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   []string // insertion order, oldest first
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*entry)}
}

// Observe records or refreshes the device info learned from an I-Am
// received from addr. Refreshing an existing entry does not move it in
// the FIFO eviction order.
func (c *Cache) Observe(addr bacstack.NetworkAddress, info Info) {
	key := addr.String()

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.info = info
		return
	}

	if len(c.entries) >= Capacity {
		c.evictLocked()
	}
	c.entries[key] = &entry{addr: addr, info: info}
	c.order = append(c.order, key)
}

// evictLocked drops the EvictBatch oldest entries. Callers hold c.mu.
func (c *Cache) evictLocked() {
	n := EvictBatch
	if n > len(c.order) {
		n = len(c.order)
	}
	for _, key := range c.order[:n] {
		delete(c.entries, key)
	}
	c.order = c.order[n:]
}

// Lookup returns the cached info for addr, if any.
func (c *Cache) Lookup(addr bacstack.NetworkAddress) (Info, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[addr.String()]
	if !ok {
		return Info{}, false
	}
	return e.info, true
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Entry pairs a cached device's address with its last-observed Info.
type Entry struct {
	Addr bacstack.NetworkAddress
	Info Info
}

// Snapshot returns every cached entry in FIFO order. The returned slice is
// a copy; mutating it does not affect the cache.
func (c *Cache) Snapshot() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, 0, len(c.order))
	for _, key := range c.order {
		e := c.entries[key]
		out = append(out, Entry{Addr: e.addr, Info: e.info})
	}
	return out
}

// NegotiatedMaxAPDU returns the max APDU length to use for an outgoing
// confirmed request to addr: the smaller of the local limit and the
// cached remote limit, or the local limit if addr is unknown.
func (c *Cache) NegotiatedMaxAPDU(addr bacstack.NetworkAddress, local uint16) uint16 {
	info, ok := c.Lookup(addr)
	if !ok {
		return local
	}
	return apdu.NegotiatedMaxAPDU(local, uint16(info.MaxAPDULength))
}
