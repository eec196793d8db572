// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dispatcher

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mperf-go/mperf/event"
)

func TestUniqueIDIsMonotonic(t *testing.T) {
	dir := t.TempDir()
	d, jh, err := New(dir)
	require.NoError(t, err)
	defer jh.Join()

	a := d.UniqueID()
	b := d.UniqueID()
	c := d.UniqueID()
	assert.Equal(t, a+1, b)
	assert.Equal(t, b+1, c)
}

func TestStringIDInterning(t *testing.T) {
	dir := t.TempDir()
	d, jh, err := New(dir)
	require.NoError(t, err)
	defer jh.Join()

	id1 := d.StringID("main.main")
	id2 := d.StringID("main.main")
	id3 := d.StringID("main.helper")

	assert.Equal(t, id1, id2)
	assert.NotEqual(t, id1, id3)
}

func TestPublishEventWritesEventsBin(t *testing.T) {
	dir := t.TempDir()
	d, jh, err := New(dir)
	require.NoError(t, err)

	want := &event.Event{UniqueID: event.NewUID(1, 2, 3), Kind: event.KindPMUCycles}
	d.PublishEvent(want)
	time.Sleep(10 * time.Millisecond) // let the events worker drain before cancellation races it
	jh.Join()

	f, err := os.Open(dir + "/events.bin")
	require.NoError(t, err)
	defer f.Close()

	r := event.NewReader(f)
	require.True(t, r.Next())
	assert.Equal(t, want.UniqueID, r.Event.UniqueID)
	require.NoError(t, r.Err())
}

func TestJoinFlushesStringsFile(t *testing.T) {
	dir := t.TempDir()
	d, jh, err := New(dir)
	require.NoError(t, err)

	d.StringID("hello")
	time.Sleep(10 * time.Millisecond)
	jh.Join()

	strs, err := event.LoadStringsFile(dir + "/strings.json")
	require.NoError(t, err)
	require.Len(t, strs, 1)
	assert.Equal(t, "hello", strs[0].Value)
}
