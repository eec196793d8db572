// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUIDComposition(t *testing.T) {
	u := NewUID(1234, 5, 99)
	assert.Equal(t, uint32(1234), u.ProcessID())
	assert.Equal(t, uint32(5), u.ThreadID())
	assert.Equal(t, uint64(99), u.Counter())
	assert.False(t, u.Zero())
	assert.True(t, (UID{}).Zero())
}

func TestUIDOrdering(t *testing.T) {
	a := NewUID(1, 1, 0)
	b := NewUID(1, 1, 1)
	c := NewUID(1, 2, 0)
	assert.True(t, a.Less(b))
	assert.False(t, b.Less(a))
	assert.True(t, b.Less(c))
}

func TestUIDString(t *testing.T) {
	u := NewUID(10, 20, 30)
	assert.Equal(t, "10.20.30", u.String())
}

func TestKindClassification(t *testing.T) {
	assert.True(t, KindPMUCycles.IsPMU())
	assert.False(t, KindPMUCycles.IsOS())
	assert.True(t, KindOSPageFaults.IsOS())
	assert.True(t, KindRooflineBytesLoad.IsRoofline())
	assert.True(t, KindRooflineBytesLoad.IsRooflineStat())
	assert.False(t, KindRooflineLoopStart.IsRooflineStat())
	assert.True(t, KindRooflineLoopStart.IsRoofline())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "pmu_cycles", KindPMUCycles.String())
	assert.Equal(t, "roofline_loop_end", KindRooflineLoopEnd.String())
	assert.Contains(t, Kind(250).String(), "kind(250)")
}

func TestCallFrameAsIP(t *testing.T) {
	f := FrameIP(0xdeadbeef)
	assert.Equal(t, uint64(0xdeadbeef), f.AsIP())

	loc := FrameLocation(StringRef(1), StringRef(2), 42)
	assert.Panics(t, func() { loc.AsIP() })
}

func TestStringRefRoundTrip(t *testing.T) {
	ref := StringRef(0xabcd)
	assert.Equal(t, uint64(0xabcd), ref.StringID())
	assert.Equal(t, uint64(0), ref.Hi)
}
