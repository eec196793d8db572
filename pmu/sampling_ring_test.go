// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSamplingRingReadWrapsAround(t *testing.T) {
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}
	r := &samplingRing{data: data}

	// Reading 4 bytes starting 2 bytes before the end wraps into the front.
	got := r.read(14, 4)
	assert.Equal(t, []byte{14, 15, 0, 1}, got)
}

func TestSamplingRingReadWithinBounds(t *testing.T) {
	data := []byte{0, 1, 2, 3, 4, 5, 6, 7}
	r := &samplingRing{data: data}

	got := r.read(2, 4)
	assert.Equal(t, []byte{2, 3, 4, 5}, got)
}
