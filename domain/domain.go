//
// Copyright 2019-2020 Nestybox, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package domain holds the interfaces shared across tcmur's packages:
// the handler ABI a plug-in implements, and the small set of types the
// registry, dispatcher, tree and control interpreter pass between them.
//
// Keeping these in their own package (rather than, say, defining Handler
// in package handler and importing handler from dispatch, tree, control
// and fuseadapter) avoids import cycles between the packages that all
// need to agree on the shape of a handler or a device.
package domain

import (
	"io"
)

// Status is the small closed set of completion statuses a handler
// reports back through a Completion. It is distinct from an error:
// a handler never returns a Go error from Read/Write/Flush, it reports
// one of these, and the dispatcher's caller (fuseadapter) is the only
// place that translates a Status into a negative-errno.
type Status int

const (
	// StatusOK indicates the operation completed successfully.
	StatusOK Status = iota
	// StatusNoMem indicates the handler could not obtain resources to
	// service the request (maps to -ENOMEM when surfaced synchronously).
	StatusNoMem
	// StatusIOError is the catch-all failure status (maps to -EIO).
	StatusIOError
	// StatusNotSupported indicates a handler does not implement the
	// requested operation at all (distinct from ENXIO on the dispatcher
	// side, which is raised before the handler is ever invoked).
	StatusNotSupported
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusNoMem:
		return "NO_RESOURCE"
	case StatusNotSupported:
		return "NOT_SUPPORTED"
	default:
		return "IO_ERROR"
	}
}

// CheckConfig validates a handler's config-string tail (the portion after
// "/subtype/"). It returns a non-nil error plus a human-readable reason on
// failure; see SPEC_FULL.md's supplemented-features section 4.
type CheckConfigFunc func(cfgTail string) (error, string)

// Handler is the stable ABI a plug-in exports, matching spec.md section 3's
// "Handler descriptor". It is deliberately small: core dispatches only
// Open/Close/Read/Write/Flush, never anything SCSI-shaped.
type Handler interface {
	// Subtype is the short alphanumeric identifier used as the config
	// string prefix ("/ram/...") and as the plug-in's .so basename.
	Subtype() string
	// Name is the human-readable long name, distinct from Subtype (see
	// SPEC_FULL.md supplemented feature 5).
	Name() string

	// Open is called once when a device is added. reopen is true when
	// the handler is being reattached to a device that already existed
	// (core never sets this today, it is carried for ABI completeness).
	Open(dev *Device, reopen bool) error
	// Close is called once when a device is removed.
	Close(dev *Device) error

	// Read/Write perform byte-addressable I/O. They return a Status,
	// never an error: dispatch.go maps a non-OK status to -errno.
	Read(dev *Device, iov [][]byte, nbyte int, seek int64, cb func(Status)) Status
	Write(dev *Device, iov [][]byte, nbyte int, seek int64, cb func(Status)) Status
	// Flush has no byte range. A handler without Flush support should
	// be represented by CanFlush() returning false, not a no-op method.
	Flush(dev *Device, cb func(Status)) Status
	CanFlush() bool

	// CheckConfig validates a device config-string tail. Returns nil if
	// the handler supplies no validator (any config accepted).
	CheckConfig() CheckConfigFunc

	// NThreads is the nr_threads hint from spec.md section 3: zero means
	// the handler completes entirely within its synchronous Read/Write/
	// Flush return; non-zero means it may complete asynchronously on its
	// own goroutines but must still invoke cb exactly once.
	NThreads() int
}

// Device is a single open instance of a Handler at a given minor, matching
// spec.md section 3's "Device". The handler-private pointer is opaque to
// everything outside the owning Handler implementation.
type Device struct {
	Minor        int
	Name         string
	Handler      Handler
	CfgString    string // verbatim, as first supplied
	CfgWorking   string // handler's mutable working copy, reseeded on add
	BlockSize    int64
	BlockCount   int64
	MaxTransfer  int64
	WriteCache   bool
	Private      interface{}
	InFlight     int64
	Completed    int64
}

// Size returns the logical device size in bytes.
func (d *Device) Size() int64 {
	return d.BlockSize * d.BlockCount
}

// Registrar is what a plug-in's registration entry point calls back into,
// matching the original ABI's register_handler() callback rather than a
// plug-in simply exporting a descriptor value to be read. See
// SPEC_FULL.md's Open Questions entry 3 for why loading is split by build
// tag; both tags present this same Registrar to plug-in code.
type Registrar interface {
	RegisterHandler(h Handler) error
}

// ReadWriteCloser is the minimal file-like abstraction fsio hands to
// handlers that back themselves with a real file (as opposed to an
// in-memory buffer); it is satisfied by both *os.File and afero's File.
type ReadWriteCloser interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
}
