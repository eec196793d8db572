// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

// See arch/arm64/include/asm/unistd32.h / the generic syscall table;
// perf_event_open is syscall 241 on arm64.
const sysPerfEventOpen = 241
