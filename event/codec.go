// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package event

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// frameTagIP and frameTagLocation discriminate the two CallFrame
// variants in the wire encoding.
const (
	frameTagIP       = 0
	frameTagLocation = 1
)

// Encode appends the packed little-endian encoding of e to w, prefixed
// by a varint byte count as described in spec.md §6. The varint header
// lets a reader skip frames it doesn't understand (e.g. written by a
// newer producer) without parsing their body.
func Encode(w io.Writer, e *Event) error {
	if len(e.Callstack) > MaxCallstack {
		return fmt.Errorf("event: callstack has %d frames, max is %d", len(e.Callstack), MaxCallstack)
	}

	body := make([]byte, 0, 96+len(e.Callstack)*17+6+len(e.RooflineFile))
	body = appendUID(body, e.UniqueID)
	body = appendUID(body, e.CorrelationID)
	body = appendUID(body, e.ParentID)
	body = append(body, byte(e.Kind))
	body = binary.LittleEndian.AppendUint32(body, e.ThreadID)
	body = binary.LittleEndian.AppendUint32(body, e.ProcessID)
	body = binary.LittleEndian.AppendUint64(body, e.TimeEnabled)
	body = binary.LittleEndian.AppendUint64(body, e.TimeRunning)
	body = binary.LittleEndian.AppendUint64(body, e.Value)
	body = binary.LittleEndian.AppendUint64(body, e.Timestamp)
	body = binary.LittleEndian.AppendUint64(body, e.IP)
	body = binary.LittleEndian.AppendUint16(body, uint16(len(e.RooflineFile)))
	body = append(body, e.RooflineFile...)
	body = binary.LittleEndian.AppendUint32(body, e.RooflineLine)
	body = append(body, byte(len(e.Callstack)))
	for _, f := range e.Callstack {
		if f.IsLocation {
			body = append(body, frameTagLocation)
			body = appendUID(body, f.FunctionName)
			body = appendUID(body, f.FileName)
			body = binary.LittleEndian.AppendUint32(body, f.Line)
		} else {
			body = append(body, frameTagIP)
			body = binary.LittleEndian.AppendUint64(body, f.IP)
		}
	}

	var hdr [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(hdr[:], uint64(len(body)))
	if _, err := w.Write(hdr[:n]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func appendUID(b []byte, u UID) []byte {
	b = binary.LittleEndian.AppendUint64(b, u.Hi)
	b = binary.LittleEndian.AppendUint64(b, u.Lo)
	return b
}

// Decode reads one length-prefixed Event frame from r. It returns
// io.EOF (unwrapped) when r is exhausted between frames; any other
// error, including a short read inside a frame, indicates a truncated
// or corrupt log.
func Decode(r *bufio.Reader) (*Event, error) {
	size, err := binary.ReadUvarint(r)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("event: reading frame length: %w", err)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("event: reading frame body (%d bytes): %w", size, err)
	}

	d := &bufDecoder{buf: body}
	e := &Event{
		UniqueID:      d.uid(),
		CorrelationID: d.uid(),
		ParentID:      d.uid(),
	}
	e.Kind = Kind(d.u8())
	e.ThreadID = d.u32()
	e.ProcessID = d.u32()
	e.TimeEnabled = d.u64()
	e.TimeRunning = d.u64()
	e.Value = d.u64()
	e.Timestamp = d.u64()
	e.IP = d.u64()
	fileLen := int(d.u16())
	e.RooflineFile = string(d.need(fileLen))
	e.RooflineLine = d.u32()

	n := int(d.u8())
	if n > 0 {
		e.Callstack = make([]CallFrame, n)
		for i := range e.Callstack {
			switch tag := d.u8(); tag {
			case frameTagLocation:
				fn := d.uid()
				file := d.uid()
				line := d.u32()
				e.Callstack[i] = FrameLocation(fn, file, line)
			case frameTagIP:
				e.Callstack[i] = FrameIP(d.u64())
			default:
				return nil, fmt.Errorf("event: unknown call frame tag %d", tag)
			}
		}
	}

	if d.err != nil {
		return nil, fmt.Errorf("event: malformed frame: %w", d.err)
	}

	return e, nil
}

// bufDecoder reads little-endian fields from a fixed in-memory buffer,
// tracking the first short-read error rather than panicking on it.
type bufDecoder struct {
	buf []byte
	err error
}

func (d *bufDecoder) need(n int) []byte {
	if d.err != nil || len(d.buf) < n {
		if d.err == nil {
			d.err = fmt.Errorf("short frame: need %d bytes, have %d", n, len(d.buf))
		}
		return make([]byte, n)
	}
	out := d.buf[:n]
	d.buf = d.buf[n:]
	return out
}

func (d *bufDecoder) u8() byte {
	return d.need(1)[0]
}

func (d *bufDecoder) u16() uint16 {
	return binary.LittleEndian.Uint16(d.need(2))
}

func (d *bufDecoder) u32() uint32 {
	return binary.LittleEndian.Uint32(d.need(4))
}

func (d *bufDecoder) u64() uint64 {
	return binary.LittleEndian.Uint64(d.need(8))
}

func (d *bufDecoder) uid() UID {
	return UID{Hi: d.u64(), Lo: d.u64()}
}

// countingReader tracks the total number of bytes pulled from the
// underlying source, so Reader can recover bufio.Reader's true logical
// position (total read minus what's still sitting in its buffer)
// without re-deriving a frame's wire size from its decoded fields.
type countingReader struct {
	r     io.Reader
	total int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.total += int64(n)
	return n, err
}

// Reader streams Events out of an io.Reader (typically events.bin,
// memory-mapped and wrapped in a bytes.Reader), tracking the byte
// offset of each frame so a corrupt-input error can name the offset,
// per spec.md §7 item 4.
type Reader struct {
	cr          *countingReader
	br          *bufio.Reader
	frameOffset int64 // start offset of the frame currently in Event
	Event       *Event
	err         error
}

// NewReader wraps r for streaming Event decoding.
func NewReader(r io.Reader) *Reader {
	cr := &countingReader{r: r}
	return &Reader{cr: cr, br: bufio.NewReader(cr)}
}

// Next decodes the next event into r.Event, returning false at EOF or
// on error; callers must check Err after Next returns false.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	// bufio.Reader prefetches past the current frame, so "bytes pulled
	// from the source" overstates the logical stream position; what
	// it hasn't handed out yet (Buffered) brings it back in line.
	start := r.cr.total - int64(r.br.Buffered())
	e, err := Decode(r.br)
	if err == io.EOF {
		r.err = io.EOF
		return false
	}
	if err != nil {
		r.err = fmt.Errorf("event: decoding frame at offset %d: %w", start, err)
		return false
	}
	r.frameOffset = start
	r.Event = e
	return true
}

// Offset returns the start byte offset of the frame Next most
// recently decoded, so a caller can name it in a corrupt-input error.
func (r *Reader) Offset() int64 { return r.frameOffset }

// Err returns the first non-EOF error encountered by Next, or nil.
func (r *Reader) Err() error {
	if r.err == io.EOF {
		return nil
	}
	return r.err
}
