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

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/scadalynx/bacstack"
	"github.com/scadalynx/bacstack/services"
)

// backupChunkSize is the stream-access read/write granularity used by
// Backup/Restore; real exchanges negotiate this against the peer's max
// APDU, but a conservative fixed size avoids a second round trip here.
const backupChunkSize = 512

// Backup drives ReinitializeDevice(start-backup) → repeated AtomicReadFile
// against file, polling backup_and_restore_state until the device reports
// idle again (spec §4.12). It returns the full file content.
func (c *Client) Backup(ctx context.Context, dest bacstack.NetworkAddress, device, file bacstack.ObjectIdentifier, password string, pollInterval time.Duration) ([]byte, error) {
	if err := c.reinitialize(ctx, dest, services.ReinitializedStateStartBackup, password); err != nil {
		return nil, fmt.Errorf("client: backup start: %w", err)
	}
	if err := c.awaitBackupRestoreState(ctx, dest, device, pollInterval); err != nil {
		return nil, err
	}

	var content []byte
	for {
		ack, err := c.atomicReadFile(ctx, dest, file, int32(len(content)), backupChunkSize)
		if err != nil {
			return nil, fmt.Errorf("client: backup read at %d: %w", len(content), err)
		}
		content = append(content, ack.Data...)
		if ack.EndOfFile {
			break
		}
	}

	if err := c.reinitialize(ctx, dest, services.ReinitializedStateEndBackup, password); err != nil {
		return nil, fmt.Errorf("client: backup end: %w", err)
	}
	return content, nil
}

// Restore drives ReinitializeDevice(start-restore) → repeated
// AtomicWriteFile of content into file → ReinitializeDevice(end-restore),
// polling backup_and_restore_state the same way Backup does.
func (c *Client) Restore(ctx context.Context, dest bacstack.NetworkAddress, device, file bacstack.ObjectIdentifier, password string, content []byte, pollInterval time.Duration) error {
	if err := c.reinitialize(ctx, dest, services.ReinitializedStateStartRestore, password); err != nil {
		return fmt.Errorf("client: restore start: %w", err)
	}
	if err := c.awaitBackupRestoreState(ctx, dest, device, pollInterval); err != nil {
		return err
	}

	for start := 0; start < len(content); start += backupChunkSize {
		end := start + backupChunkSize
		if end > len(content) {
			end = len(content)
		}
		if err := c.atomicWriteFile(ctx, dest, file, int32(start), content[start:end]); err != nil {
			return fmt.Errorf("client: restore write at %d: %w", start, err)
		}
	}

	if err := c.reinitialize(ctx, dest, services.ReinitializedStateEndRestore, password); err != nil {
		return fmt.Errorf("client: restore end: %w", err)
	}
	return nil
}

func (c *Client) reinitialize(ctx context.Context, dest bacstack.NetworkAddress, state services.ReinitializedState, password string) error {
	payload := services.EncodeReinitializeDeviceRequest(services.ReinitializeDeviceRequest{State: state, Password: password})
	_, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceReinitializeDevice, payload)
	return err
}

// awaitBackupRestoreState polls device's backup_and_restore_state until it
// reports idle (0), per ASHRAE 135 Annex L: the device stays in a
// backup/restore state for the duration of the file transfer.
func (c *Client) awaitBackupRestoreState(ctx context.Context, dest bacstack.NetworkAddress, device bacstack.ObjectIdentifier, pollInterval time.Duration) error {
	const idle = 0
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		v, err := c.ReadProperty(ctx, dest, device, bacstack.PropertyBackupAndRestoreState, nil)
		if err != nil {
			return fmt.Errorf("client: poll backup_and_restore_state: %w", err)
		}
		if v.Enum == idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) atomicReadFile(ctx context.Context, dest bacstack.NetworkAddress, file bacstack.ObjectIdentifier, start int32, count uint32) (services.AtomicReadFileAck, error) {
	payload := services.EncodeAtomicReadFileRequest(services.AtomicReadFileRequest{File: file, StartPosition: start, RequestedCount: count})
	resp, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceAtomicReadFile, payload)
	if err != nil {
		return services.AtomicReadFileAck{}, err
	}
	return services.DecodeAtomicReadFileAck(resp.Payload)
}

func (c *Client) atomicWriteFile(ctx context.Context, dest bacstack.NetworkAddress, file bacstack.ObjectIdentifier, start int32, data []byte) error {
	payload := services.EncodeAtomicWriteFileRequest(services.AtomicWriteFileRequest{File: file, StartPosition: start, Data: data})
	_, err := c.tsm.SendRequest(ctx, dest, bacstack.ServiceAtomicWriteFile, payload)
	return err
}
