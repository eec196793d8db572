// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEvent() *Event {
	return &Event{
		UniqueID:      NewUID(1, 2, 3),
		CorrelationID: NewUID(1, 2, 4),
		ParentID:      NewUID(1, 2, 2),
		Kind:          KindPMUCycles,
		ThreadID:      2,
		ProcessID:     1,
		TimeEnabled:   1000,
		TimeRunning:   900,
		Value:         12345,
		Timestamp:     99999,
		IP:            0x401000,
		Callstack: []CallFrame{
			FrameIP(0x401000),
			FrameLocation(StringRef(7), StringRef(8), 120),
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	want := sampleEvent()
	require.NoError(t, Encode(&buf, want))

	got, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestEncodeDecodeRoofline(t *testing.T) {
	want := &Event{
		UniqueID:     NewUID(10, 20, 1),
		Kind:         KindRooflineLoopStart,
		ThreadID:     20,
		ProcessID:    10,
		Timestamp:    500,
		RooflineFile: "loops/matmul.c",
		RooflineLine: 88,
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, want))
	got, err := Decode(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodeEOF(t *testing.T) {
	_, err := Decode(bufio.NewReader(bytes.NewReader(nil)))
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecodeTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, sampleEvent()))
	truncated := buf.Bytes()[:buf.Len()-5]

	_, err := Decode(bufio.NewReader(bytes.NewReader(truncated)))
	assert.Error(t, err)
}

func TestEncodeRejectsOversizeCallstack(t *testing.T) {
	e := sampleEvent()
	e.Callstack = make([]CallFrame, MaxCallstack+1)
	err := Encode(io.Discard, e)
	assert.Error(t, err)
}

func TestReaderStreamsMultipleEvents(t *testing.T) {
	var buf bytes.Buffer
	a, b := sampleEvent(), sampleEvent()
	b.UniqueID = NewUID(1, 2, 5)
	require.NoError(t, Encode(&buf, a))
	require.NoError(t, Encode(&buf, b))

	r := NewReader(&buf)
	var got []*Event
	for r.Next() {
		e := *r.Event
		got = append(got, &e)
	}
	require.NoError(t, r.Err())
	require.Len(t, got, 2)
	assert.Equal(t, a.UniqueID, got[0].UniqueID)
	assert.Equal(t, b.UniqueID, got[1].UniqueID)
}

func TestReaderErrReturnsNilOnCleanEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	assert.False(t, r.Next())
	assert.NoError(t, r.Err())
}

// TestReaderOffsetMatchesTrueFrameBoundary exercises spec.md §7 item
// 4: Offset must name the exact byte a corrupt frame starts at, not
// an approximation of one. A roofline event's variable-length
// RooflineFile string is exactly what the old size-estimate heuristic
// got wrong, so the second frame here carries one.
func TestReaderOffsetMatchesTrueFrameBoundary(t *testing.T) {
	var buf bytes.Buffer
	first := sampleEvent()
	second := &Event{
		UniqueID:     NewUID(10, 20, 1),
		Kind:         KindRooflineLoopStart,
		ThreadID:     20,
		ProcessID:    10,
		RooflineFile: "loops/matmul.c",
		RooflineLine: 88,
	}
	require.NoError(t, Encode(&buf, first))
	firstFrameSize := buf.Len()
	require.NoError(t, Encode(&buf, second))

	r := NewReader(bytes.NewReader(buf.Bytes()))
	require.True(t, r.Next())
	assert.Equal(t, int64(0), r.Offset())

	require.True(t, r.Next())
	assert.Equal(t, int64(firstFrameSize), r.Offset())

	require.False(t, r.Next())
	require.NoError(t, r.Err())
}
