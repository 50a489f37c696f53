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

import "testing"

func TestReinitializeDeviceRequestRoundTripWithPassword(t *testing.T) {
	req := ReinitializeDeviceRequest{State: ReinitializedStateStartBackup, Password: "s3cret"}
	buf := EncodeReinitializeDeviceRequest(req)
	got, err := DecodeReinitializeDeviceRequest(buf)
	if err != nil {
		t.Fatalf("DecodeReinitializeDeviceRequest failed: %v", err)
	}
	if got != req {
		t.Errorf("expected %+v, got %+v", req, got)
	}
}

func TestReinitializeDeviceRequestRoundTripWithoutPassword(t *testing.T) {
	req := ReinitializeDeviceRequest{State: ReinitializedStateColdstart}
	buf := EncodeReinitializeDeviceRequest(req)
	got, err := DecodeReinitializeDeviceRequest(buf)
	if err != nil {
		t.Fatalf("DecodeReinitializeDeviceRequest failed: %v", err)
	}
	if got.State != req.State || got.Password != "" {
		t.Errorf("expected no password, got %+v", got)
	}
}
