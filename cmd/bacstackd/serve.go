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
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/apdu"
	"github.com/scadalynx/bacstack/bvll"
	"github.com/scadalynx/bacstack/client"
	"github.com/scadalynx/bacstack/cov"
	"github.com/scadalynx/bacstack/internal/transport"
	"github.com/scadalynx/bacstack/npdu"
	"github.com/scadalynx/bacstack/objects"
	"github.com/scadalynx/bacstack/services"
	"github.com/scadalynx/bacstack/tsm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a BACnet/IP device application",
	Long: `serve opens a UDP socket, bootstraps a local Device object, and
dispatches incoming confirmed/unconfirmed service requests against it
until interrupted.`,
	RunE: runServe,
}

// datagramSender implements tsm.PacketSender by wrapping an already-framed
// APDU in an NPDU header and a BVLC original-unicast/original-broadcast
// frame before handing it to the UDP transport.
type datagramSender struct {
	transport *transport.UDPTransport
	network   uint16
}

func (s *datagramSender) SendAPDU(ctx context.Context, dest bacstack.NetworkAddress, payload []byte) error {
	n := npdu.NPDU{Payload: payload}
	if dest.Network != 0 && dest.Network != s.network {
		d := dest
		n.Destination = &d
		n.HopCount = 255
	}
	frame := npdu.Encode(n)

	if dest.Broadcast {
		bvlc := bvll.Encode(bvll.Frame{Function: bvll.FunctionOriginalBroadcastNPDU, Payload: frame})
		return s.transport.Broadcast(ctx, bacstack.DefaultPort, bvlc)
	}

	addr, err := dest.Mac.UDPAddr()
	if err != nil {
		return fmt.Errorf("bacstackd: resolve destination mac: %w", err)
	}
	bvlc := bvll.Encode(bvll.Frame{Function: bvll.FunctionOriginalUnicastNPDU, Payload: frame})
	return s.transport.Send(ctx, addr, bvlc)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	udp := transport.NewUDPTransport(localAddress)
	if err := udp.Open(ctx); err != nil {
		return fmt.Errorf("open transport: %w", err)
	}
	defer udp.Close()

	sender := &datagramSender{transport: udp, network: networkNumber}

	db := objects.NewDatabase()
	device := bacstack.ObjectIdentifier{Type: bacstack.ObjectTypeDevice, Instance: deviceID}
	if _, err := db.AddDevice(deviceID, deviceName, objects.DeviceOptions{
		VendorIdentifier:      vendorID,
		ModelName:             "bacstackd",
		ProtocolVersion:       1,
		ProtocolRevision:      24,
		MaxAPDULengthAccepted: uint32(maxAPDU),
		SegmentationSupported: bacstack.SegmentationBoth,
		APDUTimeout:           3000,
		NumberOfAPDURetries:   3,
	}); err != nil {
		return fmt.Errorf("bootstrap device object: %w", err)
	}

	metrics := bacstack.NewMetrics()

	server := tsm.NewServer(sender)
	server.SetMetrics(metrics)
	server.SetLogger(logger)
	appClient := client.New(sender, deviceID, maxAPDU, client.WithLogger(logger), client.WithMetrics(metrics))
	notifier := services.NewNotifier(nil, sender, logger)
	covMgr := cov.New(device, notifier, logger, metrics)
	dispatcher := services.NewDispatcher(db, covMgr, server, logger)
	if auditLog {
		dispatcher.AuditLog = func(source bacstack.NetworkAddress, invokeID uint8, choice bacstack.ConfirmedServiceChoice, result error) {
			if result != nil {
				logger.Info("bacstackd: audit", "source", source.String(), "invoke_id", invokeID, "method", choice.String(), "result", "error", "error", result)
				return
			}
			logger.Info("bacstackd: audit", "source", source.String(), "invoke_id", invokeID, "method", choice.String(), "result", "ok")
		}
	}

	go covMgr.Run(ctx, time.Second)

	if bbmdAddress != "" {
		bbmdAddr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", bbmdAddress, bbmdPort))
		if err != nil {
			return fmt.Errorf("resolve bbmd address: %w", err)
		}
		fdClient := bvll.NewForeignDeviceClient(bbmdAddr, bbmdTTL, udp, logger)
		if err := fdClient.Start(ctx); err != nil {
			return fmt.Errorf("register with bbmd: %w", err)
		}
		defer fdClient.Stop(context.Background())
	}

	logger.Info("bacstackd: listening", "local", localAddress, "device", device.String())

	for {
		select {
		case <-ctx.Done():
			logger.Info("bacstackd: shutting down")
			return nil
		default:
		}

		datagram, peer, err := udp.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			logger.Warn("bacstackd: receive failed", "error", err)
			continue
		}

		handleDatagram(ctx, datagram, peer, server, dispatcher, appClient)
	}
}

func handleDatagram(ctx context.Context, datagram []byte, peer *net.UDPAddr, server *tsm.Server, dispatcher *services.Dispatcher, appClient *client.Client) {
	frame, err := bvll.Decode(datagram)
	if err != nil {
		logger.Debug("bacstackd: malformed bvlc frame", "peer", peer.String(), "error", err)
		return
	}

	var npduBytes []byte
	source := bacstack.NewUnicastAddress(0, bacstack.MacAddressFromUDP(peer.IP, uint16(peer.Port)))

	switch frame.Function {
	case bvll.FunctionOriginalUnicastNPDU, bvll.FunctionOriginalBroadcastNPDU:
		npduBytes = frame.Payload
	case bvll.FunctionForwardedNPDU:
		originating, payload, err := bvll.DecodeForwardedNPDU(frame.Payload)
		if err != nil {
			logger.Debug("bacstackd: malformed forwarded-npdu", "error", err)
			return
		}
		npduBytes = payload
		source = bacstack.NewUnicastAddress(0, originating)
	default:
		return
	}

	n, err := npdu.Decode(npduBytes)
	if err != nil || n.NetworkMessage {
		return
	}

	a, err := apdu.DecodeAPDU(n.Payload)
	if err != nil {
		logger.Debug("bacstackd: malformed apdu", "peer", peer.String(), "error", err)
		return
	}

	if a.Type == apdu.TypeConfirmedRequest {
		txn, payload, ready, err := server.ReceiveConfirmedRequest(ctx, source, a)
		if err != nil {
			logger.Warn("bacstackd: confirmed request rejected", "peer", peer.String(), "error", err)
			return
		}
		if ready {
			dispatcher.Handle(ctx, txn, payload)
		}
		return
	}

	appClient.HandleIncoming(ctx, source, a)
}
