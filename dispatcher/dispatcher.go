// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dispatcher fans events and interned strings produced by the
// PMU driver and the collector into the two files a capture directory
// is made of: events.bin and strings.json. Producers call PublishEvent
// and StringID directly; two background workers own the files.
package dispatcher

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/mperf-go/mperf/event"
	"github.com/mperf-go/mperf/internal/mlog"
)

const channelCapacity = 8192

var log = mlog.New("dispatcher")

// EventDispatcher is the single point of entry for everything a
// capture writes to disk. It is safe for concurrent use by any number
// of producer goroutines.
type EventDispatcher struct {
	lastUniqueID uint64 // atomic

	mu      sync.RWMutex
	strings map[string]uint64

	eventsCh chan *event.Event
	stringCh chan event.IString
}

// JoinHandle lets the owner of an EventDispatcher signal its workers
// to flush and exit, then wait for that to happen.
type JoinHandle struct {
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New starts an EventDispatcher writing events.bin and strings.json
// into outputDir, which must already exist.
func New(outputDir string) (*EventDispatcher, *JoinHandle, error) {
	eventsFile, err := os.Create(filepath.Join(outputDir, "events.bin"))
	if err != nil {
		return nil, nil, errors.Wrap(err, "dispatcher: creating events.bin")
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &EventDispatcher{
		strings:  make(map[string]uint64),
		eventsCh: make(chan *event.Event, channelCapacity),
		stringCh: make(chan event.IString, channelCapacity),
	}

	jh := &JoinHandle{cancel: cancel}
	jh.wg.Add(2)
	go d.runEventsWorker(ctx, &jh.wg, eventsFile)
	go d.runStringWorker(ctx, &jh.wg, filepath.Join(outputDir, "strings.json"))

	return d, jh, nil
}

func (d *EventDispatcher) runEventsWorker(ctx context.Context, wg *sync.WaitGroup, f *os.File) {
	defer wg.Done()
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for {
		select {
		case <-ctx.Done():
			// Drain whatever producers queued before Join cancelled.
			for {
				select {
				case evt := <-d.eventsCh:
					if err := event.Encode(w, evt); err != nil {
						log.Error().Err(err).Msg("dropping event, encode failed")
					}
				default:
					return
				}
			}
		case evt := <-d.eventsCh:
			if err := event.Encode(w, evt); err != nil {
				log.Error().Err(err).Msg("dropping event, encode failed")
			}
		}
	}
}

func (d *EventDispatcher) runStringWorker(ctx context.Context, wg *sync.WaitGroup, path string) {
	defer wg.Done()

	var strings []event.IString
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case s := <-d.stringCh:
					strings = append(strings, s)
				default:
					d.flushStrings(path, strings)
					return
				}
			}
		case s := <-d.stringCh:
			strings = append(strings, s)
		}
	}
}

func (d *EventDispatcher) flushStrings(path string, strings []event.IString) {
	f, err := os.Create(path)
	if err != nil {
		log.Error().Err(err).Msg("dispatcher: creating strings.json")
		return
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(strings); err != nil {
		log.Error().Err(err).Msg("dispatcher: writing strings.json")
	}
}

// UniqueID returns a process-wide monotonic id, distinct from the
// 128-bit event UID scheme: it is used for lightweight references
// such as the string ids embedded in resolved call frames.
func (d *EventDispatcher) UniqueID() uint64 {
	return atomic.AddUint64(&d.lastUniqueID, 1) - 1
}

// StringID interns s, returning the same id for repeated calls with an
// equal string. The first call for a given string enqueues it for the
// string worker to persist.
func (d *EventDispatcher) StringID(s string) uint64 {
	d.mu.RLock()
	if id, ok := d.strings[s]; ok {
		d.mu.RUnlock()
		return id
	}
	d.mu.RUnlock()

	d.mu.Lock()
	if id, ok := d.strings[s]; ok {
		d.mu.Unlock()
		return id
	}
	id := d.UniqueID()
	d.strings[s] = id
	d.mu.Unlock()

	d.stringCh <- event.IString{ID: id, Value: s}
	return id
}

// PublishEvent hands evt to the events worker. It blocks if the
// worker has fallen channelCapacity events behind.
func (d *EventDispatcher) PublishEvent(evt *event.Event) {
	d.eventsCh <- evt
}

// Join signals both workers to drain what is already queued, flush and
// exit, and waits for them.
func (jh *JoinHandle) Join() {
	jh.cancel()
	jh.wg.Wait()
}
