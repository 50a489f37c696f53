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
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// ForeignDeviceClient registers this device with a remote BBMD and keeps
// the registration alive by re-registering at half the TTL, per spec §4.6.
type ForeignDeviceClient struct {
	bbmdAddr *net.UDPAddr
	ttl      time.Duration
	sender   Sender
	logger   *slog.Logger

	mu         sync.Mutex
	registered bool
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewForeignDeviceClient prepares a client targeting the given BBMD. ttl
// must be at least one second.
func NewForeignDeviceClient(bbmdAddr *net.UDPAddr, ttl time.Duration, sender Sender, logger *slog.Logger) *ForeignDeviceClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ForeignDeviceClient{bbmdAddr: bbmdAddr, ttl: ttl, sender: sender, logger: logger}
}

// Start sends the initial registration and launches the re-registration
// loop at ttl/2. Stop deregisters with ttl=0; cancelling ctx only ends the
// re-registration loop and sends no deregistration.
func (c *ForeignDeviceClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return fmt.Errorf("bacstack: foreign device client already started")
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	c.mu.Unlock()

	if err := c.register(runCtx, c.ttl); err != nil {
		cancel()
		return err
	}
	c.setRegistered(true)

	go c.reregisterLoop(runCtx)
	return nil
}

// Stop deregisters (ttl=0) and ends the re-registration loop.
func (c *ForeignDeviceClient) Stop(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}

	err := c.register(ctx, 0)
	cancel()
	if done != nil {
		<-done
	}
	c.setRegistered(false)
	return err
}

// IsRegistered reports whether the last registration attempt succeeded.
func (c *ForeignDeviceClient) IsRegistered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registered
}

// DistributeBroadcastToNetwork asks the BBMD to relay npdu as a broadcast
// on the BBMD's subnet, valid only while registered.
func (c *ForeignDeviceClient) DistributeBroadcastToNetwork(ctx context.Context, npdu []byte) error {
	if !c.IsRegistered() {
		return fmt.Errorf("bacstack: foreign device client is not registered")
	}
	frame := EncodeDistributeBroadcastToNetwork(npdu)
	return c.sender.Send(ctx, c.bbmdAddr, frame)
}

func (c *ForeignDeviceClient) register(ctx context.Context, ttl time.Duration) error {
	ttlSeconds := uint16(ttl / time.Second)
	frame := EncodeRegisterForeignDevice(ttlSeconds)
	if err := c.sender.Send(ctx, c.bbmdAddr, frame); err != nil {
		return fmt.Errorf("bacstack: register foreign device: %w", err)
	}
	c.logger.Info("fd: sent registration", "bbmd", c.bbmdAddr.String(), "ttl_seconds", ttlSeconds)
	return nil
}

func (c *ForeignDeviceClient) reregisterLoop(ctx context.Context) {
	defer close(c.done)
	interval := c.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.register(ctx, c.ttl); err != nil {
				c.logger.Warn("fd: re-registration failed", "error", err)
				c.setRegistered(false)
				continue
			}
			c.setRegistered(true)
		}
	}
}

func (c *ForeignDeviceClient) setRegistered(v bool) {
	c.mu.Lock()
	c.registered = v
	c.mu.Unlock()
}
