// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package pmu

// Syscall numbers are architecture-specific and golang.org/x/sys/unix
// does not define perf_event_open's; see arch/x86/entry/syscalls/syscall_64.tbl.
const sysPerfEventOpen = 298
