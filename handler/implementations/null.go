package implementations

import (
	"github.com/tcmur/tcmur/domain"
)

// Null is the simplest possible handler: writes are discarded, reads
// return zeroed buffers, flush is a no-op success. It exists for the
// same reason tcmu-runner ships one -- exercising the dispatch and VFS
// paths without any real storage behind them.
type Null struct{}

func NewNull() *Null { return &Null{} }

func (h *Null) Subtype() string                       { return "null" }
func (h *Null) Name() string                          { return "Discard/zero-fill block storage" }
func (h *Null) CheckConfig() domain.CheckConfigFunc    { return nil }
func (h *Null) NThreads() int                         { return 0 }
func (h *Null) CanFlush() bool                         { return true }
func (h *Null) Open(dev *domain.Device, reopen bool) error { return nil }
func (h *Null) Close(dev *domain.Device) error             { return nil }

func (h *Null) Read(dev *domain.Device, iov [][]byte, nbyte int, seek int64, cb func(domain.Status)) domain.Status {
	for _, seg := range iov {
		for i := range seg {
			seg[i] = 0
		}
	}
	return domain.StatusOK
}

func (h *Null) Write(dev *domain.Device, iov [][]byte, nbyte int, seek int64, cb func(domain.Status)) domain.Status {
	return domain.StatusOK
}

func (h *Null) Flush(dev *domain.Device, cb func(domain.Status)) domain.Status {
	return domain.StatusOK
}
