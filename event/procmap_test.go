// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcMapsRoundTrip(t *testing.T) {
	want := []ProcMap{
		{
			PID: 42,
			Entries: []ProcMapEntry{
				{Filename: "/usr/bin/app", Address: 0x1000, Size: 0x1000},
				{Filename: "/lib/libc.so", Address: 0x10000, Size: 0x2000},
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteProcMaps(&buf, want))

	got, err := ReadProcMaps(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestProcMapFind(t *testing.T) {
	m := ProcMap{Entries: []ProcMapEntry{
		{Filename: "a", Address: 0x1000, Size: 0x100},
		{Filename: "b", Address: 0x2000, Size: 0x100},
	}}

	e, ok := m.Find(0x1050)
	require.True(t, ok)
	assert.Equal(t, "a", e.Filename)

	e, ok = m.Find(0x2099)
	require.True(t, ok)
	assert.Equal(t, "b", e.Filename)

	_, ok = m.Find(0x1200)
	assert.False(t, ok)

	_, ok = m.Find(0x500)
	assert.False(t, ok)
}

func TestProcMapFindUnsortedInput(t *testing.T) {
	// ReadProcMaps sorts entries by address; Find relies on that.
	var buf bytes.Buffer
	maps := []ProcMap{{PID: 1, Entries: []ProcMapEntry{
		{Filename: "b", Address: 0x2000, Size: 0x100},
		{Filename: "a", Address: 0x1000, Size: 0x100},
	}}}
	require.NoError(t, WriteProcMaps(&buf, maps))

	got, err := ReadProcMaps(&buf)
	require.NoError(t, err)
	e, ok := got[0].Find(0x1050)
	require.True(t, ok)
	assert.Equal(t, "a", e.Filename)
}

func TestProcMapSetLookup(t *testing.T) {
	s := NewProcMapSet([]ProcMap{{PID: 7}, {PID: 8}})

	_, ok := s.Lookup(7)
	assert.True(t, ok)
	_, ok = s.Lookup(9)
	assert.False(t, ok)
}
