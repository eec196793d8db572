// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package postprocess

import "fmt"

// CorruptInputError reports a fatal defect in a capture directory's
// input: a truncated event frame, an orphan RooflineLoopEnd, or a
// duplicate unique_id, per spec.md §7 item 4. Offset is the byte
// offset in events.bin where the offending frame starts, or -1 when
// the defect isn't tied to one frame.
type CorruptInputError struct {
	Reason string
	Offset int64
}

func (e *CorruptInputError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("postprocess: corrupt input: %s", e.Reason)
	}
	return fmt.Sprintf("postprocess: corrupt input at offset %d: %s", e.Offset, e.Reason)
}
