// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package collector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mperf-go/mperf/event"
)

func TestLoopBeginDisabledReturnsNilHandle(t *testing.T) {
	// global() is a package-wide singleton; in this process no
	// MPERF_COLLECTOR_ENABLED was ever set, so every call short-circuits.
	h := LoopBegin(LoopInfo{SourceLine: 42, Filename: "loop.c"})
	assert.Nil(t, h)

	// LoopEnd on a nil handle must be a no-op, never a panic.
	LoopEnd(h, LoopStats{BytesLoad: 1024})
}

func TestRooflineStatsOrderAndFiltering(t *testing.T) {
	stats := LoopStats{
		BytesLoad:      1024,
		ScalarFloatOps: 512,
		VectorFloatOps: 64,
	}
	got := rooflineStats(stats)
	require.Len(t, got, 3)
	assert.Equal(t, event.KindRooflineBytesLoad, got[0].kind)
	assert.Equal(t, uint64(1024), got[0].value)
	assert.Equal(t, event.KindRooflineScalarFloatOps, got[1].kind)
	assert.Equal(t, event.KindRooflineVectorFloatOps, got[2].kind)
}

func TestRooflineStatsAllZeroIsEmpty(t *testing.T) {
	got := rooflineStats(LoopStats{})
	assert.Empty(t, got)
}
