// Package dispatch implements the I/O dispatcher described in spec.md
// section 4.3: per-request validation, optional per-device worker
// queueing, and the "exactly one completion callback per submit"
// invariant from the Design Notes (spec.md section 9).
//
// The owned-task-plus-channel shape mirrors
// original_source/libtcmur/libtcmur.h's struct libtcmur_task, which
// carries a completion callback and the request's parameters; here the
// single-shot notification that C models with a condition variable
// inside the task is a Go channel instead, since goroutines already
// give us a cheap one-shot wakeup primitive without hand-rolled
// locking.
package dispatch

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
)

// Completion is the single-shot synchronization object a Task carries:
// signalled exactly once by the handler's callback (directly, or via
// the dispatcher standing in for a handler that completed
// synchronously), and waited on by the submitter.
type Completion struct {
	done chan domain.Status
}

func newCompletion() *Completion {
	return &Completion{done: make(chan domain.Status, 1)}
}

// Signal delivers the one and only completion status. A second call is
// a programmer error in the handler and is dropped rather than
// panicking, since a misbehaving plug-in should not be able to bring
// down the adapter thread.
func (c *Completion) Signal(status domain.Status) {
	select {
	case c.done <- status:
	default:
		logrus.Warn("dispatch: completion signalled more than once")
	}
}

// Wait blocks until Signal is called.
func (c *Completion) Wait() domain.Status {
	return <-c.done
}

// Task is a per-I/O-operation record: spec.md section 3's "Task".
type Task struct {
	Dev        *domain.Device
	Iov        [][]byte
	NByte      int
	Seek       int64
	Completion *Completion
	Submitted  time.Time
}

// Dispatcher owns optional per-device worker queues and performs the
// validate-then-submit sequence spec.md section 4.3 specifies.
type Dispatcher struct {
	mu      sync.Mutex
	queues  map[int]chan func()
	running map[int]bool
}

// New returns a Dispatcher with no per-device queues; devices dispatch
// inline until EnableQueue is called for their minor.
func New() *Dispatcher {
	return &Dispatcher{
		queues:  make(map[int]chan func()),
		running: make(map[int]bool),
	}
}

// EnableQueue starts a worker goroutine consuming a bounded work queue
// for dev's minor, matching spec.md section 4.3's "submission ...
// enqueues a work item consumed by a worker thread". Depth is the
// queue capacity; submissions beyond it block, applying natural
// backpressure rather than growing without bound.
func (d *Dispatcher) EnableQueue(minor int, depth int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running[minor] {
		return
	}
	q := make(chan func(), depth)
	d.queues[minor] = q
	d.running[minor] = true
	go func() {
		for work := range q {
			work()
		}
	}()
}

// DisableQueue stops and removes minor's worker queue, if any. Callers
// must ensure no task is in flight on the queue before calling this
// (it is invoked from device removal, after the EBUSY check already
// guarantees that).
func (d *Dispatcher) DisableQueue(minor int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[minor]; ok {
		close(q)
		delete(d.queues, minor)
		delete(d.running, minor)
	}
}

func (d *Dispatcher) queueFor(minor int) (chan func(), bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	q, ok := d.queues[minor]
	return q, ok
}

// checkBounds is the validation step 3 from spec.md section 4.3: the
// requested range must not overflow and must not exceed the device's
// logical size. spec.md's Boundaries test also names a zero-length
// request landing exactly at the end of the device (seek == size,
// nbyte == 0) as a rejection, not a silent no-op -- end == seek == size
// would otherwise pass the "end > size" check below, so it is called
// out explicitly here rather than folded into the overflow/size check.
func checkBounds(dev *domain.Device, seek int64, nbyte int) error {
	if seek < 0 || nbyte < 0 {
		return errno.New(22) // EINVAL
	}
	if seek == dev.Size() && nbyte == 0 {
		return errno.New(22)
	}
	end := seek + int64(nbyte)
	if end < seek { // overflow
		return errno.New(22)
	}
	if end > dev.Size() {
		return errno.New(22)
	}
	return nil
}

// Read performs steps 1-3 from spec.md section 4.3 then submits, per
// the rules in that section: dev must be non-nil and live (callers
// pass the registry-looked-up device, ENODEV is the caller's
// responsibility to have already ruled out by that lookup), the
// handler must implement Read (it always does per the domain.Handler
// ABI, so no ENXIO check is made; Flush's optional nature is handled
// through CanFlush in Flush), and the bounds must validate.
func (d *Dispatcher) Read(dev *domain.Device, iov [][]byte, nbyte int, seek int64) (*Completion, error) {
	return d.submitIO(dev, iov, nbyte, seek, dev.Handler.Read)
}

// Write mirrors Read.
func (d *Dispatcher) Write(dev *domain.Device, iov [][]byte, nbyte int, seek int64) (*Completion, error) {
	return d.submitIO(dev, iov, nbyte, seek, dev.Handler.Write)
}

type ioFunc func(dev *domain.Device, iov [][]byte, nbyte int, seek int64, cb func(domain.Status)) domain.Status

func (d *Dispatcher) submitIO(dev *domain.Device, iov [][]byte, nbyte int, seek int64, fn ioFunc) (*Completion, error) {
	if err := checkBounds(dev, seek, nbyte); err != nil {
		return nil, err
	}

	c := newCompletion()
	submit := func() {
		status := fn(dev, iov, nbyte, seek, c.Signal)
		// "each successful submit produces exactly one completion
		// callback": a synchronous non-OK status, or any status from a
		// handler that declared nr_threads == 0 (which completes within
		// its synchronous return and never invokes the callback), is
		// signalled here; a handler with nr_threads > 0 that returned OK
		// signals through the callback itself.
		if status != domain.StatusOK || dev.Handler.NThreads() == 0 {
			c.Signal(status)
		}
	}

	if q, ok := d.queueFor(dev.Minor); ok {
		q <- submit
	} else {
		submit()
	}
	return c, nil
}

// Flush dispatches a flush with no byte range. Per spec.md section 4.3
// and the Open Questions resolution in SPEC_FULL.md: a handler that
// does not support flush is treated as an immediate no-callback
// success, so the caller gets back a pre-signalled Completion rather
// than one it must wait on.
func (d *Dispatcher) Flush(dev *domain.Device) (*Completion, error) {
	if !dev.Handler.CanFlush() {
		c := newCompletion()
		c.Signal(domain.StatusOK)
		return c, nil
	}

	c := newCompletion()
	submit := func() {
		status := dev.Handler.Flush(dev, c.Signal)
		if status != domain.StatusOK || dev.Handler.NThreads() == 0 {
			c.Signal(status)
		}
	}

	if q, ok := d.queueFor(dev.Minor); ok {
		q <- submit
	} else {
		submit()
	}
	return c, nil
}

// StatusToErrno maps a handler completion status to the errno the
// adapter boundary surfaces, per spec.md section 4.3's "Status
// mapping": OK to success, the resource-exhaustion status to ENOMEM,
// everything else to EIO.
func StatusToErrno(s domain.Status) error {
	switch s {
	case domain.StatusOK:
		return nil
	case domain.StatusNoMem:
		return errno.New(12) // ENOMEM
	default:
		return errno.New(5) // EIO
	}
}
