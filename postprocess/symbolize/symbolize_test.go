// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symbolize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mperf-go/mperf/event"
)

func TestResolveUnmappedIPIsUnknown(t *testing.T) {
	maps := event.NewProcMapSet(nil)
	r := NewResolver(maps)

	got := r.Resolve(1234, 0xdeadbeef)
	assert.Equal(t, UnknownFunc, got.FuncName)
	assert.Equal(t, UnknownFile, got.FileName)
	assert.Zero(t, got.Line)
}

func TestResolveMappedButNoDebugInfo(t *testing.T) {
	maps := event.NewProcMapSet([]event.ProcMap{{
		PID: 42,
		Entries: []event.ProcMapEntry{
			{Filename: "/nonexistent/libfoo.so", Address: 0x1000, Size: 0x2000},
		},
	}})
	r := NewResolver(maps)

	got := r.Resolve(42, 0x1800)
	assert.Equal(t, UnknownFunc, got.FuncName)
	assert.Equal(t, "/nonexistent/libfoo.so", got.FileName)
}

func TestResolveCachesObjectTableLookup(t *testing.T) {
	maps := event.NewProcMapSet([]event.ProcMap{{
		PID: 1,
		Entries: []event.ProcMapEntry{
			{Filename: "/nonexistent/a.so", Address: 0x1000, Size: 0x1000},
		},
	}})
	r := NewResolver(maps)

	r.Resolve(1, 0x1100)
	r.Resolve(1, 0x1200)

	r.mu.Lock()
	defer r.mu.Unlock()
	assert.Len(t, r.tables, 1)
}
