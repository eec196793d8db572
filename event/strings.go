// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// IString is one entry of the capture's string table: a monotonically
// assigned id and the UTF-8 string it stands for. CallFrame.Location
// fields index this table instead of carrying strings inline.
type IString struct {
	ID    uint64 `json:"id"`
	Value string `json:"value"`
}

// WriteStrings serializes strings as the strings.json array described
// in spec.md §6.
func WriteStrings(w io.Writer, strings []IString) error {
	enc := json.NewEncoder(w)
	return enc.Encode(strings)
}

// ReadStrings parses a strings.json array.
func ReadStrings(r io.Reader) ([]IString, error) {
	var strings []IString
	if err := json.NewDecoder(r).Decode(&strings); err != nil {
		return nil, fmt.Errorf("event: decoding strings.json: %w", err)
	}
	return strings, nil
}

// LoadStringsFile reads and parses the strings.json file at path.
func LoadStringsFile(path string) ([]IString, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadStrings(f)
}

// Table is an in-memory id -> string lookup built from a parsed
// strings.json, used by the post-processor to render human-readable
// names from the ids embedded in events and proc_map rows.
type Table struct {
	byID map[uint64]string
}

// NewTable builds a lookup Table from a parsed string list.
func NewTable(strings []IString) *Table {
	t := &Table{byID: make(map[uint64]string, len(strings))}
	for _, s := range strings {
		t.byID[s.ID] = s.Value
	}
	return t
}

// Lookup returns the string for id, or "", false if id is unknown.
func (t *Table) Lookup(id uint64) (string, bool) {
	s, ok := t.byID[id]
	return s, ok
}
