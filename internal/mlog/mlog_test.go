// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package mlog

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerIncludesComponent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	l := New("pmu")
	l.Info().Msg("counters armed")

	assert.Contains(t, buf.String(), "pmu")
	assert.Contains(t, buf.String(), "counters armed")
}
