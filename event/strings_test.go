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

func TestStringsRoundTrip(t *testing.T) {
	want := []IString{
		{ID: 1, Value: "main.main"},
		{ID: 2, Value: "/home/user/main.go"},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteStrings(&buf, want))

	got, err := ReadStrings(&buf)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestTableLookup(t *testing.T) {
	tbl := NewTable([]IString{{ID: 5, Value: "foo"}})

	v, ok := tbl.Lookup(5)
	assert.True(t, ok)
	assert.Equal(t, "foo", v)

	_, ok = tbl.Lookup(6)
	assert.False(t, ok)
}

func TestReadStringsRejectsMalformed(t *testing.T) {
	_, err := ReadStrings(bytes.NewReader([]byte("not json")))
	assert.Error(t, err)
}
