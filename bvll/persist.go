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
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
)

// bdtEntryJSON is the on-disk representation of a BDTEntry: dotted-decimal
// strings are friendlier to hand-edit than raw byte arrays.
type bdtEntryJSON struct {
	IP   string `json:"ip"`
	Port uint16 `json:"port"`
	Mask string `json:"mask"`
}

// SaveBDT writes entries to path as JSON, replacing the file atomically via
// a temp-file-then-rename so a crash mid-write never corrupts it.
func SaveBDT(path string, entries []BDTEntry) error {
	rows := make([]bdtEntryJSON, len(entries))
	for i, e := range entries {
		rows[i] = bdtEntryJSON{
			IP:   net.IP(e.IP[:]).String(),
			Port: e.Port,
			Mask: net.IP(e.Mask[:]).String(),
		}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("bacstack: marshal bdt: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".bdt-*.tmp")
	if err != nil {
		return fmt.Errorf("bacstack: create bdt temp file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("bacstack: write bdt temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bacstack: close bdt temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bacstack: replace bdt file: %w", err)
	}
	return nil
}

// LoadBDT reads a BDT previously written by SaveBDT. A missing file yields
// an empty table and no error; a malformed file yields an empty table and
// the parse error, letting the caller decide whether to log and continue.
func LoadBDT(path string) ([]BDTEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("bacstack: read bdt file: %w", err)
	}

	var rows []bdtEntryJSON
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("bacstack: parse bdt file: %w", err)
	}

	entries := make([]BDTEntry, 0, len(rows))
	for _, row := range rows {
		ip := net.ParseIP(row.IP)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("bacstack: bdt entry has invalid ip %q", row.IP)
		}
		mask := net.ParseIP(row.Mask)
		if mask == nil || mask.To4() == nil {
			return nil, fmt.Errorf("bacstack: bdt entry has invalid mask %q", row.Mask)
		}
		var entry BDTEntry
		copy(entry.IP[:], ip.To4())
		copy(entry.Mask[:], mask.To4())
		entry.Port = row.Port
		entries = append(entries, entry)
	}
	return entries, nil
}
