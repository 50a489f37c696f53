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
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestSaveLoadBDTRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bdt.json")
	want := []BDTEntry{
		{IP: [4]byte{192, 168, 1, 1}, Port: 47808, Mask: [4]byte{255, 255, 255, 255}},
		{IP: [4]byte{192, 168, 2, 0}, Port: 47808, Mask: [4]byte{255, 255, 255, 0}},
	}

	if err := SaveBDT(path, want); err != nil {
		t.Fatalf("SaveBDT failed: %v", err)
	}
	got, err := LoadBDT(path)
	if err != nil {
		t.Fatalf("LoadBDT failed: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch: want %+v, got %+v", want, got)
	}
}

func TestLoadBDTMissingFileIsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.json")
	entries, err := LoadBDT(path)
	if err != nil {
		t.Fatalf("expected a missing file to not error, got %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected an empty table, got %v", entries)
	}
}

func TestLoadBDTMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("not json"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}
	if _, err := LoadBDT(path); err == nil {
		t.Fatal("expected malformed json to fail")
	}
}
