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

package services

import (
	"fmt"

	"github.com/scadalynx/bacstack/encoding"
)

// ReinitializedState is the BACnetReinitializedStateOfDevice enumeration
// (ASHRAE 135 clause 21), used to drive backup/restore orchestration.
type ReinitializedState uint32

const (
	ReinitializedStateColdstart ReinitializedState = 0
	ReinitializedStateWarmstart ReinitializedState = 1
	ReinitializedStateStartBackup ReinitializedState = 2
	ReinitializedStateEndBackup ReinitializedState = 3
	ReinitializedStateStartRestore ReinitializedState = 4
	ReinitializedStateEndRestore ReinitializedState = 5
	ReinitializedStateAbortRestore ReinitializedState = 6
)

// ReinitializeDeviceRequest is the decoded body of a ReinitializeDevice
// confirmed request.
type ReinitializeDeviceRequest struct {
	State    ReinitializedState
	Password string
}

// EncodeReinitializeDeviceRequest encodes a ReinitializeDevice request. An
// empty password omits the optional tag 1.
func EncodeReinitializeDeviceRequest(req ReinitializeDeviceRequest) []byte {
	out := encoding.EncodeContextEnumerated(0, uint32(req.State))
	if req.Password != "" {
		out = append(out, encoding.EncodeContextCharacterString(1, req.Password)...)
	}
	return out
}

// DecodeReinitializeDeviceRequest parses a ReinitializeDevice request.
func DecodeReinitializeDeviceRequest(buf []byte) (ReinitializeDeviceRequest, error) {
	state, next, err := decodeContextEnumerated(buf, 0, 0)
	if err != nil {
		return ReinitializeDeviceRequest{}, fmt.Errorf("reinitialize-device: state: %w", err)
	}
	req := ReinitializeDeviceRequest{State: ReinitializedState(state)}
	if next < len(buf) {
		meta, valueOffset, err := decodeExpectedContextTag(buf, next, 1)
		if err != nil {
			return ReinitializeDeviceRequest{}, fmt.Errorf("reinitialize-device: password: %w", err)
		}
		pw, err := encoding.DecodeCharacterString(buf[valueOffset : valueOffset+int(meta.Length)])
		if err != nil {
			return ReinitializeDeviceRequest{}, fmt.Errorf("reinitialize-device: password: %w", err)
		}
		req.Password = pw
	}
	return req, nil
}
