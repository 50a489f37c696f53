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

package bacstack

import (
	"log/slog"
	"time"
)

// ApplicationOptions holds the full configuration for a running BACnet
// application instance: local device identity, network binding, BBMD/FD
// registration, APDU negotiation defaults, and background task intervals.
type ApplicationOptions struct {
	LocalDeviceID uint32
	LocalAddress  string
	NetworkNumber uint16

	BBMDAddress      string
	BBMDPort         int
	ForeignDeviceTTL time.Duration

	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration

	MaxAPDULength      uint16
	Segmentation       Segmentation
	ProposedWindowSize uint8

	AutoDiscover    bool
	DiscoverTimeout time.Duration

	EventScanInterval  time.Duration
	COVCleanupInterval time.Duration
	FDTCleanupInterval time.Duration

	AuditRequests bool

	Logger  *slog.Logger
	Metrics *Metrics
}

// DefaultOptions returns the baseline ApplicationOptions used when no
// functional Option overrides a field.
func DefaultOptions() *ApplicationOptions {
	return &ApplicationOptions{
		LocalDeviceID:      0xFFFFFFFF,
		NetworkNumber:      NetworkLocal,
		Timeout:            3 * time.Second,
		Retries:            3,
		RetryDelay:         500 * time.Millisecond,
		MaxAPDULength:      1476,
		Segmentation:       SegmentationBoth,
		ProposedWindowSize: 1,
		AutoDiscover:       false,
		DiscoverTimeout:    5 * time.Second,
		EventScanInterval:  1 * time.Second,
		COVCleanupInterval: 5 * time.Second,
		FDTCleanupInterval: 10 * time.Second,
		Logger:             slog.Default(),
		Metrics:            NewMetrics(),
	}
}

// Option configures an ApplicationOptions.
type Option func(*ApplicationOptions)

func WithDeviceID(id uint32) Option {
	return func(o *ApplicationOptions) { o.LocalDeviceID = id }
}

func WithLocalAddress(addr string) Option {
	return func(o *ApplicationOptions) { o.LocalAddress = addr }
}

func WithNetworkNumber(network uint16) Option {
	return func(o *ApplicationOptions) { o.NetworkNumber = network }
}

func WithBBMD(addr string, port int, ttl time.Duration) Option {
	return func(o *ApplicationOptions) {
		o.BBMDAddress = addr
		o.BBMDPort = port
		o.ForeignDeviceTTL = ttl
	}
}

func WithTimeout(d time.Duration) Option {
	return func(o *ApplicationOptions) { o.Timeout = d }
}

func WithRetries(n int) Option {
	return func(o *ApplicationOptions) { o.Retries = n }
}

func WithRetryDelay(d time.Duration) Option {
	return func(o *ApplicationOptions) { o.RetryDelay = d }
}

func WithMaxAPDULength(length uint16) Option {
	return func(o *ApplicationOptions) { o.MaxAPDULength = length }
}

func WithSegmentation(seg Segmentation) Option {
	return func(o *ApplicationOptions) { o.Segmentation = seg }
}

func WithProposedWindowSize(size uint8) Option {
	return func(o *ApplicationOptions) { o.ProposedWindowSize = size }
}

func WithAutoDiscover(enable bool) Option {
	return func(o *ApplicationOptions) { o.AutoDiscover = enable }
}

func WithDiscoverTimeout(d time.Duration) Option {
	return func(o *ApplicationOptions) { o.DiscoverTimeout = d }
}

func WithEventScanInterval(d time.Duration) Option {
	return func(o *ApplicationOptions) { o.EventScanInterval = d }
}

func WithAuditRequests(enable bool) Option {
	return func(o *ApplicationOptions) { o.AuditRequests = enable }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *ApplicationOptions) { o.Logger = logger }
}

func WithMetrics(m *Metrics) Option {
	return func(o *ApplicationOptions) { o.Metrics = m }
}

// DiscoverOptions configures a Who-Is device discovery sweep.
type DiscoverOptions struct {
	LowLimit  *uint32
	HighLimit *uint32
	Timeout   time.Duration
	Network   uint16
}

type DiscoverOption func(*DiscoverOptions)

func DefaultDiscoverOptions() *DiscoverOptions {
	return &DiscoverOptions{Timeout: 5 * time.Second}
}

func WithDeviceRange(low, high uint32) DiscoverOption {
	return func(o *DiscoverOptions) { o.LowLimit, o.HighLimit = &low, &high }
}

func WithDiscoveryTimeout(d time.Duration) DiscoverOption {
	return func(o *DiscoverOptions) { o.Timeout = d }
}

func WithTargetNetwork(network uint16) DiscoverOption {
	return func(o *DiscoverOptions) { o.Network = network }
}

// ReadOptions configures a ReadProperty request.
type ReadOptions struct {
	ArrayIndex *uint32
}

type ReadOption func(*ReadOptions)

func WithArrayIndex(index uint32) ReadOption {
	return func(o *ReadOptions) { o.ArrayIndex = &index }
}

// WriteOptions configures a WriteProperty request.
type WriteOptions struct {
	ArrayIndex *uint32
	Priority   *uint8
}

type WriteOption func(*WriteOptions)

func WithWriteArrayIndex(index uint32) WriteOption {
	return func(o *WriteOptions) { o.ArrayIndex = &index }
}

func WithPriority(priority uint8) WriteOption {
	return func(o *WriteOptions) {
		if priority >= 1 && priority <= 16 {
			o.Priority = &priority
		}
	}
}

// SubscribeOptions configures a SubscribeCOV(Property) request.
type SubscribeOptions struct {
	Lifetime     *uint32
	COVIncrement *float32
	Confirmed    bool
}

type SubscribeOption func(*SubscribeOptions)

func WithSubscriptionLifetime(seconds uint32) SubscribeOption {
	return func(o *SubscribeOptions) { o.Lifetime = &seconds }
}

func WithCOVIncrement(increment float32) SubscribeOption {
	return func(o *SubscribeOptions) { o.COVIncrement = &increment }
}

func WithConfirmedNotifications(confirmed bool) SubscribeOption {
	return func(o *SubscribeOptions) { o.Confirmed = confirmed }
}
