// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s)
}

func TestSummarizeBasic(t *testing.T) {
	s := Summarize([]float64{0.5, 0.75, 1.0})
	assert.Equal(t, 0.5, s.Min)
	assert.Equal(t, 1.0, s.Max)
	assert.InDelta(t, 0.75, s.Mean, 1e-9)
	assert.Equal(t, 3, s.N)
}
