// Package tree implements the in-memory virtual filesystem hierarchy
// described in spec.md section 4.4: named nodes with reference-counted
// lifetimes, per-node operation vectors, and a single process-wide mutex
// guarding structural changes (spec.md section 5's "Shared resource
// policy").
//
// It is deliberately independent of bazil.org/fuse: package fuseadapter
// is the only thing that knows a tree.Node exists to back a FUSE request.
// This mirrors the original C split between fuse_tree.c (a tree any
// application could use) and fuse_tcmur.c (the FUSE glue on top of it) --
// see original_source/libtcmur/fuse_tree.c.
package tree

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tcmur/tcmur/errno"
)

// Mode mirrors the three node types spec.md section 3 allows: exactly one
// of regular file, directory, or block device.
type Mode int

const (
	ModeRegular Mode = iota
	ModeDir
	ModeBlockDevice
)

// Ops is the per-node operation vector spec.md section 3 describes. A
// directory-only node (no I/O) may leave this nil.
type Ops struct {
	Open    func(n *Node) error
	Release func(n *Node) error
	Read    func(n *Node, buf []byte, off int64) (int, error)
	Write   func(n *Node, buf []byte, off int64) (int, error)
	Fsync   func(n *Node) error
}

// Node is one entry in the tree: spec.md section 3's "Tree node".
type Node struct {
	mu sync.Mutex

	id     uint64 // stable synthetic identity, stands in for the original's pointer identity in dump output
	name   string
	mode   Mode
	parent *Node
	sibling *Node // next sibling in parent's child list
	child   *Node // first child

	ops  *Ops
	data interface{}

	refs int32 // atomic; >=1 while linked

	size      int64
	blockSize int64 // only meaningful for ModeBlockDevice
	devID     int   // handler-assigned minor, for ModeBlockDevice nodes

	atime, mtime, ctime time.Time
}

var nodeSerial uint64

func nextID() uint64 {
	return atomic.AddUint64(&nodeSerial, 1)
}

// Name, Mode, Size, DevID and BlockSize are read-only accessors: tree
// nodes are otherwise mutated only through the Tree methods below so that
// every structural change goes through the tree's lock.
func (n *Node) Name() string { return n.name }
func (n *Node) Mode() Mode   { return n.mode }
func (n *Node) Size() int64  { return atomic.LoadInt64(&n.size) }
func (n *Node) Parent() *Node      { return n.parent }
func (n *Node) DevID() int        { return n.devID }
func (n *Node) BlockSize() int64  { return n.blockSize }
func (n *Node) Data() interface{} { return n.data }
func (n *Node) Ops() *Ops         { return n.ops }

// AttachDevice sets the opaque client data word a block-device node
// carries (spec.md section 3's "opaque client data word"), replacing
// the data passed to Tree.Add. fuseadapter recovers a block-device
// node's *domain.Device from this word without a registry query.
func (n *Node) AttachDevice(data interface{}) {
	n.mu.Lock()
	n.data = data
	n.mu.Unlock()
}

// SetDeviceInfo records the handler minor and block size for a
// block-device node, used by the control interpreter's "add" once the
// registry has attached the device to its handler.
func (n *Node) SetDeviceInfo(devID int, blockSize int64) {
	n.mu.Lock()
	n.devID = devID
	n.blockSize = blockSize
	n.mu.Unlock()
}

func (n *Node) Times() (atime, mtime, ctime time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.atime, n.mtime, n.ctime
}

// TouchAtime stamps the node's access time with the current time,
// per spec.md section 4.5's "update atime/mtime on success" for a
// read.
func (n *Node) TouchAtime() {
	n.mu.Lock()
	n.atime = time.Now()
	n.mu.Unlock()
}

// TouchMtime stamps the node's modification time with the current
// time, per spec.md section 4.5's "update atime/mtime on success" for
// a write or fsync.
func (n *Node) TouchMtime() {
	n.mu.Lock()
	n.mtime = time.Now()
	n.mu.Unlock()
}

// SetSize updates a node's reported size (used after a device's geometry
// becomes known, and on writes that extend a regular file).
func (n *Node) SetSize(size int64) {
	atomic.StoreInt64(&n.size, size)
	n.TouchMtime()
}

// Acquire increments the reference count (spec.md section 4.4's "open"
// half of the state machine) and returns the new count.
func (n *Node) Acquire() int32 {
	return atomic.AddInt32(&n.refs, 1)
}

// Release decrements the reference count ("release"). It never destroys
// the node itself -- destruction happens only via Tree.Remove once the
// node is unlinked and its count reaches zero, matching the state machine
// in spec.md section 4.4.
func (n *Node) Release() int32 {
	return atomic.AddInt32(&n.refs, -1)
}

func (n *Node) refCount() int32 {
	return atomic.LoadInt32(&n.refs)
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n.mode == ModeDir }

// unixModeBits returns the S_IF* type bits matching the original's i_mode
// encoding, so Format's "0%o" (with 0644 or-ed in) prints the familiar
// 040644 / 0100644 shapes rather than Go's own os.FileMode bit layout.
func unixModeBits(m Mode) uint32 {
	switch m {
	case ModeDir:
		return 0040000
	case ModeBlockDevice:
		// Reported as a regular file at the FUSE surface (spec.md section
		// 4.5); dump still shows the underlying type via the BLK suffix.
		return 0100000
	default:
		return 0100000
	}
}

func typeSuffix(m Mode) string {
	switch m {
	case ModeDir:
		return "DIR"
	case ModeBlockDevice:
		return "BLK"
	default:
		return "REG"
	}
}

// validName matches the original's fnode_check: non-empty, no '/'.
func validName(name string) error {
	if name == "" {
		return errno.New(22 /* EINVAL */)
	}
	if strings.Contains(name, "/") {
		return errno.Newf(22, "name %q contains '/'", name)
	}
	return nil
}
