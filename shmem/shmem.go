// Copyright 2015 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package shmem provides the POSIX shared-memory primitives the
// collector and the recorder use to exchange events without a kernel
// round trip: a named mapped region (Region) and a counting semaphore
// built directly on top of it (Semaphore). Ring, in ring.go, composes
// both into a bounded SPSC channel.
package shmem

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// shmDir is where Linux conventionally mounts tmpfs for POSIX shared
// memory objects. golang.org/x/sys/unix has no shm_open wrapper (it's
// a glibc veneer over open(2), not a syscall), so Region opens the
// backing file directly, as shm_open itself would.
const shmDir = "/dev/shm"

// Region is a POSIX shared-memory mapping: a named, sized region of
// /dev/shm that two processes can open independently and see the same
// bytes through, once one of them has Created it.
type Region struct {
	name    string
	fd      int
	size    int
	data    []byte
	owner   bool
}

// Create allocates a new named region of size bytes, truncating any
// stale region left behind by a previous run under the same name.
func Create(name string, size int) (*Region, error) {
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT|unix.O_TRUNC, 0600)
	if err != nil {
		return nil, errors.Wrapf(err, "shmem: create %s", name)
	}

	r, err := mapRegion(name, fd, size, true)
	if err != nil {
		unix.Close(fd)
		os.Remove(path)
		return nil, err
	}
	return r, nil
}

// Open attaches to a region a peer process already Created. size must
// match the size it was created with.
func Open(name string, size int) (*Region, error) {
	path, err := shmPath(name)
	if err != nil {
		return nil, err
	}

	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "shmem: open %s", name)
	}

	return mapRegion(name, fd, size, false)
}

func mapRegion(name string, fd, size int, owner bool) (*Region, error) {
	if owner {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			return nil, errors.Wrapf(err, "shmem: ftruncate %s to %d", name, size)
		}
	}

	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "shmem: mmap %s", name)
	}

	return &Region{name: name, fd: fd, size: size, data: data, owner: owner}, nil
}

func shmPath(name string) (string, error) {
	if name == "" || filepath.Base(name) != name {
		return "", errors.Errorf("shmem: invalid region name %q", name)
	}
	return filepath.Join(shmDir, name), nil
}

// Name returns the region's name, as passed to Create or Open.
func (r *Region) Name() string { return r.name }

// Bytes returns the mapped region. Callers must not resize the slice;
// the backing memory is only as large as the region was created with.
func (r *Region) Bytes() []byte { return r.data }

// Close unmaps the region. If this Region was Created (not Opened),
// Close also unlinks the backing /dev/shm file so the name can be
// reused by a future run.
func (r *Region) Close() error {
	err := unix.Munmap(r.data)
	if cerr := unix.Close(r.fd); err == nil {
		err = cerr
	}
	if r.owner {
		if path, perr := shmPath(r.name); perr == nil {
			os.Remove(path)
		}
	}
	return err
}
