// Package implementations provides the handlers bundled with tcmur:
// ram (anonymous or file-backed memory, grounded on
// original_source/ram.c), null (discard writes, read zeros), and
// distributed (a stub -- spec.md's Non-goals section notes the
// repository carries one but delegates all actual distribution logic
// to the plug-in, which this tree does not implement).
package implementations

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
	"github.com/tcmur/tcmur/fsio"
)

// ramState is the handler-private data stored in domain.Device.Private,
// mirroring original_source/ram.c's "struct tcmu_ram": an in-memory
// backing buffer plus (for file-backed configs) the filesystem and path
// the buffer is persisted to on flush and close.
type ramState struct {
	mu   sync.Mutex
	buf  []byte
	file *fsio.Service
	path string
}

// RAM is a byte-addressable in-memory (or optionally file-backed)
// block-storage handler. Its config tail is either "@" for an
// anonymous backing buffer or a filesystem path to persist to,
// matching original_source/ram.c's "Config string should be the
// pathname of the backing file, or '/@' for an anonymous mmap."
type RAM struct {
	fs *fsio.Service
}

// NewRAM constructs a RAM handler that uses fs for any file-backed
// devices (tests pass an fsio.NewMem(), production an fsio.NewOS()).
func NewRAM(fs *fsio.Service) *RAM {
	return &RAM{fs: fs}
}

func (h *RAM) Subtype() string { return "ram" }
func (h *RAM) Name() string    { return "RAM-backed block storage" }

func (h *RAM) CheckConfig() domain.CheckConfigFunc {
	return func(tail string) (error, string) {
		if tail == "" {
			return errno.New(22), "ram handler requires a config tail (\"@\" or a file path)"
		}
		return nil, ""
	}
}

func (h *RAM) NThreads() int { return 0 }
func (h *RAM) CanFlush() bool { return true }

// defaultRAMSize matches original_source/ram.c's DEFAULT_FILE_SIZE (1
// GiB): ram sets its own geometry during Open rather than relying on
// the registry's post-Open defaults, since it needs a concrete size to
// allocate a backing buffer before Open returns.
const defaultRAMSize = 1 * 1024 * 1024 * 1024

func (h *RAM) Open(dev *domain.Device, reopen bool) error {
	if dev.BlockSize == 0 {
		dev.BlockSize = 4096
	}
	if dev.BlockCount == 0 {
		dev.BlockCount = defaultRAMSize / dev.BlockSize
	}
	size := dev.Size()

	st := &ramState{}
	if dev.CfgWorking == "@" {
		st.buf = make([]byte, size)
	} else {
		st.path = dev.CfgWorking
		st.file = h.fs
		existing, err := fsio.ReadFileIfExists(h.fs, st.path)
		if err != nil {
			return errno.Newf(5, "ram: opening backing file %q: %v", st.path, err) // EIO
		}
		st.buf = make([]byte, size)
		copy(st.buf, existing)
	}

	dev.Private = st
	return nil
}

func (h *RAM) Close(dev *domain.Device) error {
	st, ok := dev.Private.(*ramState)
	if !ok {
		return nil
	}
	if st.path != "" {
		if err := fsio.WriteFile(st.file, st.path, st.buf); err != nil {
			logrus.Warnf("ram: close could not persist %q: %v", st.path, err)
		}
	}
	dev.Private = nil
	return nil
}

func (h *RAM) Read(dev *domain.Device, iov [][]byte, nbyte int, seek int64, cb func(domain.Status)) domain.Status {
	st := dev.Private.(*ramState)
	st.mu.Lock()
	defer st.mu.Unlock()

	if seek < 0 || seek+int64(nbyte) > int64(len(st.buf)) {
		return domain.StatusIOError
	}
	copyToIov(iov, st.buf[seek:seek+int64(nbyte)])
	return domain.StatusOK
}

func (h *RAM) Write(dev *domain.Device, iov [][]byte, nbyte int, seek int64, cb func(domain.Status)) domain.Status {
	st := dev.Private.(*ramState)
	st.mu.Lock()
	defer st.mu.Unlock()

	if seek < 0 || seek+int64(nbyte) > int64(len(st.buf)) {
		return domain.StatusIOError
	}
	copyFromIov(st.buf[seek:seek+int64(nbyte)], iov)
	return domain.StatusOK
}

func (h *RAM) Flush(dev *domain.Device, cb func(domain.Status)) domain.Status {
	st := dev.Private.(*ramState)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.path == "" {
		return domain.StatusOK
	}
	if err := fsio.WriteFile(st.file, st.path, st.buf); err != nil {
		return domain.StatusIOError
	}
	return domain.StatusOK
}

// copyToIov and copyFromIov move bytes between a flat buffer and a
// scatter/gather iovec view, the same role
// tcmu_memcpy_into_iovec/tcmu_memcpy_from_iovec play in
// original_source/ram.c.
func copyToIov(iov [][]byte, src []byte) {
	for _, seg := range iov {
		n := copy(seg, src)
		src = src[n:]
		if len(src) == 0 {
			return
		}
	}
}

func copyFromIov(dst []byte, iov [][]byte) {
	for _, seg := range iov {
		n := copy(dst, seg)
		dst = dst[n:]
		if len(dst) == 0 {
			return
		}
	}
}
