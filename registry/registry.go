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

// Package registry holds the two tables spec.md section 3 describes:
// the fixed-capacity handler table (64 slots) and minor/device table
// (256 slots). Handler lookup by config-string prefix is implemented
// with github.com/hashicorp/go-immutable-radix, the same structure the
// teacher repo's handler/handlerDB.go uses for its path-keyed handler
// lookup (LongestPrefix there, exact Get here since tcmur's config
// strings name a handler subtype exactly rather than a filesystem
// path prefix).
package registry

import (
	"fmt"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/sirupsen/logrus"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
)

// Limits from spec.md section 3: "Handler table" and "Minor table".
const (
	MaxHandlers = 64
	MaxMinors   = 256
)

// Registry owns both tables and is the sole place that mutates them;
// everything else (control, dispatch, fuseadapter) goes through it.
type Registry struct {
	mu sync.RWMutex

	handlerTree *iradix.Tree // subtype string -> domain.Handler
	handlerCnt  int

	devices    [MaxMinors]*domain.Device
	deviceCnt  int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{handlerTree: iradix.New()}
}

// RegisterHandler implements domain.Registrar: it's the callback a
// loaded plug-in (or a compiled-in handler's init) invokes to join the
// handler table, matching the style of handlerDB.go's RegisterHandler
// but keyed by Subtype rather than filesystem path, and bounded by
// MaxHandlers per spec.md section 3.
func (r *Registry) RegisterHandler(h domain.Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	subtype := h.Subtype()
	if _, ok := r.handlerTree.Get([]byte(subtype)); ok {
		logrus.Errorf("handler %q already registered", subtype)
		return errno.Newf(17, "handler %q already registered", subtype) // EEXIST
	}
	if r.handlerCnt >= MaxHandlers {
		return errno.Newf(28, "handler table full (%d slots)", MaxHandlers) // ENOSPC
	}

	tree, _, _ := r.handlerTree.Insert([]byte(subtype), h)
	r.handlerTree = tree
	r.handlerCnt++
	return nil
}

// UnregisterHandler drops a handler from the table. It is ENOENT (no
// such handler) if the subtype was never registered, or EBUSY if any
// device is still attached to it -- a handler cannot be unloaded out
// from under a live device, per spec.md section 4.1's unload
// semantics.
func (r *Registry) UnregisterHandler(subtype string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.handlerTree.Get([]byte(subtype))
	if !ok {
		return errno.New(2) // ENOENT
	}
	h := v.(domain.Handler)

	for _, d := range r.devices {
		if d != nil && d.Handler == h {
			return errno.Newf(16, "handler %q has attached devices", subtype) // EBUSY
		}
	}

	tree, _, _ := r.handlerTree.Delete([]byte(subtype))
	r.handlerTree = tree
	r.handlerCnt--
	return nil
}

// FindHandler looks up a handler by its exact subtype name.
func (r *Registry) FindHandler(subtype string) (domain.Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.handlerTree.Get([]byte(subtype))
	if !ok {
		return nil, false
	}
	return v.(domain.Handler), true
}

// Handlers returns every registered handler, in subtype order.
func (r *Registry) Handlers() []domain.Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.Handler
	r.handlerTree.Root().Walk(func(_ []byte, v interface{}) bool {
		out = append(out, v.(domain.Handler))
		return false
	})
	return out
}

// Defaults supplied for any metadata a handler's Open does not set,
// per spec.md section 4.2's "add" operation.
const (
	DefaultBlockSize   = 4096
	DefaultBlockCount  = 262144
	DefaultMaxTransfer = 1 << 20 // 1 MiB
)

// AddDevice registers a new device at minor, bound to h, per spec.md
// section 4.1/4.2's "add" operation: validate the slot, run
// check_config, allocate the device, call the handler's Open with a
// pristine working config copy, re-seed that copy afterward (the
// handler may have tokenized it in place), fill in any metadata Open
// left zero, then install the device. If Open fails, nothing is
// installed and its error surfaces to the caller.
func (r *Registry) AddDevice(minor int, name, cfgTail string, h domain.Handler) (*domain.Device, error) {
	if minor < 0 || minor >= MaxMinors {
		return nil, errno.Newf(19, "minor %d out of range [0,%d)", minor, MaxMinors) // ENODEV
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.devices[minor] != nil {
		return nil, errno.Newf(16, "minor %d already in use", minor) // EBUSY
	}

	if check := h.CheckConfig(); check != nil {
		if err, reason := check(cfgTail); err != nil {
			return nil, errno.Newf(22, "config rejected: %s", reason) // EINVAL
		}
	}

	dev := &domain.Device{
		Minor:      minor,
		Name:       name,
		Handler:    h,
		CfgString:  fmt.Sprintf("/%s/%s", h.Subtype(), cfgTail),
		CfgWorking: cfgTail,
	}

	if err := h.Open(dev, false); err != nil {
		return nil, err
	}
	dev.CfgWorking = cfgTail // re-seed: Open may have tokenized its copy

	if dev.BlockSize == 0 {
		dev.BlockSize = DefaultBlockSize
	}
	if dev.BlockCount == 0 {
		dev.BlockCount = DefaultBlockCount
	}
	if dev.MaxTransfer == 0 {
		dev.MaxTransfer = DefaultMaxTransfer
	}

	r.devices[minor] = dev
	r.deviceCnt++
	return dev, nil
}

// RemoveDevice detaches and forgets the device at minor: ENODEV if no
// device occupies that slot, otherwise invoke the handler's Close
// (per spec.md section 4.2's "invokes handler.close(device), frees
// the device") before the slot is vacated. A Close failure is logged
// but does not block removal -- the slot must free regardless, same
// as handlerDB.go's teardown never lets a callback error wedge the
// table.
func (r *Registry) RemoveDevice(minor int) (*domain.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if minor < 0 || minor >= MaxMinors {
		return nil, errno.New(22) // EINVAL
	}
	dev := r.devices[minor]
	if dev == nil {
		return nil, errno.New(19) // ENODEV
	}
	if err := dev.Handler.Close(dev); err != nil {
		logrus.Warnf("registry: close minor %d: %v", minor, err)
	}
	r.devices[minor] = nil
	r.deviceCnt--
	return dev, nil
}

// Device returns the device occupying minor, if any.
func (r *Registry) Device(minor int) (*domain.Device, bool) {
	if minor < 0 || minor >= MaxMinors {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	dev := r.devices[minor]
	return dev, dev != nil
}

// Devices returns every occupied device slot, in minor order.
func (r *Registry) Devices() []*domain.Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Device, 0, r.deviceCnt)
	for _, d := range r.devices {
		if d != nil {
			out = append(out, d)
		}
	}
	return out
}
