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

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
	"github.com/scadalynx/bacstack/bvll"
	"github.com/scadalynx/bacstack/client"
	"github.com/scadalynx/bacstack/internal/transport"
	"github.com/scadalynx/bacstack/npdu"
)

var whoisTimeout time.Duration

var whoisCmd = &cobra.Command{
	Use:   "whois",
	Short: "Broadcast a Who-Is and print I-Am responses",
	RunE:  runWhoIs,
}

func init() {
	whoisCmd.Flags().DurationVar(&whoisTimeout, "timeout", 3*time.Second, "discovery window")
}

func runWhoIs(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), whoisTimeout+time.Second)
	defer cancel()

	udp := transport.NewUDPTransport("")
	if err := udp.Open(ctx); err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer udp.Close()

	sender := &datagramSender{transport: udp, network: networkNumber}
	c := client.New(sender, deviceID, maxAPDU, client.WithLogger(logger))

	go func() {
		for {
			datagram, peer, err := udp.Receive(ctx)
			if err != nil {
				return
			}
			frame, err := bvll.Decode(datagram)
			if err != nil {
				continue
			}
			if frame.Function != bvll.FunctionOriginalUnicastNPDU && frame.Function != bvll.FunctionOriginalBroadcastNPDU {
				continue
			}
			n, err := npdu.Decode(frame.Payload)
			if err != nil || n.NetworkMessage {
				continue
			}
			a, err := apdu.DecodeAPDU(n.Payload)
			if err != nil {
				continue
			}
			source := bacstack.NewUnicastAddress(0, bacstack.MacAddressFromUDP(peer.IP, uint16(peer.Port)))
			c.HandleIncoming(ctx, source, a)
		}
	}()

	found, err := c.Discover(ctx, bacstack.LocalBroadcast, whoisTimeout)
	if err != nil {
		return fmt.Errorf("discover: %w", err)
	}

	if len(found) == 0 {
		fmt.Println("No devices found")
		return nil
	}

	fmt.Printf("%-12s %-22s %-10s %-8s\n", "DEVICE ID", "ADDRESS", "MAX APDU", "VENDOR")
	for _, e := range found {
		fmt.Printf("%-12d %-22s %-10d %-8d\n", e.Info.Device.Instance, e.Addr.String(), e.Info.MaxAPDULength, e.Info.VendorID)
	}
	return nil
}
