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

func TestRecordInfoRoundTrip(t *testing.T) {
	want := &RecordInfo{
		Scenario: ScenarioRoofline,
		Info: ScenarioInfo{
			PerfPID:         100,
			InstPID:         101,
			Command:         []string{"./app", "--flag"},
			CPUModel:        "Intel(R) Core(TM) i7",
			CPUVendor:       "GenuineIntel",
			EnabledCounters: []string{"cycles", "instructions"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteRecordInfo(&buf, want))

	got, err := ReadRecordInfo(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecordInfoRejectsUnknownScenario(t *testing.T) {
	_, err := ReadRecordInfo(bytes.NewReader([]byte(`{"scenario":"bogus","info":{}}`)))
	assert.Error(t, err)
}
