// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
)

// ProcMapEntry describes one mapped region of a process's address
// space: the backing file, its load address and size. The
// post-processor's symbolizer uses these to turn a raw IP into a
// (file, offset) pair before consulting that file's DWARF info.
type ProcMapEntry struct {
	Filename string `json:"filename"`
	Address  uint64 `json:"address"`
	Size     uint64 `json:"size"`
}

// ProcMap is the full set of mapped regions captured for one process,
// accumulated from the PERF_RECORD_MMAP records the recorder observes
// during the capture. See spec.md §6, proc_map.json.
type ProcMap struct {
	PID     uint32         `json:"pid"`
	Entries []ProcMapEntry `json:"entries"`
}

// Find returns the entry covering ip, or false if ip falls outside
// every mapped region.
func (m ProcMap) Find(ip uint64) (ProcMapEntry, bool) {
	entries := m.Entries
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].Address+entries[i].Size > ip
	})
	if i < len(entries) && entries[i].Address <= ip {
		return entries[i], true
	}
	return ProcMapEntry{}, false
}

// WriteProcMaps serializes maps as the proc_map.json array described
// in spec.md §6.
func WriteProcMaps(w io.Writer, maps []ProcMap) error {
	enc := json.NewEncoder(w)
	return enc.Encode(maps)
}

// ReadProcMaps parses a proc_map.json array, sorting each ProcMap's
// entries by address so Find's binary search is valid regardless of
// the order the recorder wrote them in.
func ReadProcMaps(r io.Reader) ([]ProcMap, error) {
	var maps []ProcMap
	if err := json.NewDecoder(r).Decode(&maps); err != nil {
		return nil, fmt.Errorf("event: decoding proc_map.json: %w", err)
	}
	for i := range maps {
		entries := maps[i].Entries
		sort.Slice(entries, func(a, b int) bool { return entries[a].Address < entries[b].Address })
	}
	return maps, nil
}

// LoadProcMapsFile reads and parses the proc_map.json file at path.
func LoadProcMapsFile(path string) ([]ProcMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadProcMaps(f)
}

// ProcMapSet indexes a capture's ProcMaps by pid for symbolization.
type ProcMapSet struct {
	byPID map[uint32]ProcMap
}

// NewProcMapSet builds a ProcMapSet from a parsed proc_map.json.
func NewProcMapSet(maps []ProcMap) *ProcMapSet {
	s := &ProcMapSet{byPID: make(map[uint32]ProcMap, len(maps))}
	for _, m := range maps {
		s.byPID[m.PID] = m
	}
	return s
}

// Lookup returns the ProcMap captured for pid, or false if none was
// recorded (e.g. a process that exited before the snapshot).
func (s *ProcMapSet) Lookup(pid uint32) (ProcMap, bool) {
	m, ok := s.byPID[pid]
	return m, ok
}
