package implementations

import (
	"github.com/tcmur/tcmur/domain"
)

// Distributed is the stub spec.md's Non-goals section mentions: its
// presence demonstrates the handler ABI can host a replicating or
// clustered backend, but actually coordinating between hosts is
// delegated entirely to a real plug-in, which is out of scope here.
// Every I/O call returns StatusNotSupported.
type Distributed struct{}

func NewDistributed() *Distributed { return &Distributed{} }

func (h *Distributed) Subtype() string { return "distributed" }
func (h *Distributed) Name() string    { return "Distributed block storage (stub)" }
func (h *Distributed) CheckConfig() domain.CheckConfigFunc {
	return nil
}
func (h *Distributed) NThreads() int             { return 0 }
func (h *Distributed) CanFlush() bool            { return false }
func (h *Distributed) Open(*domain.Device, bool) error { return nil }
func (h *Distributed) Close(*domain.Device) error      { return nil }

func (h *Distributed) Read(*domain.Device, [][]byte, int, int64, func(domain.Status)) domain.Status {
	return domain.StatusNotSupported
}

func (h *Distributed) Write(*domain.Device, [][]byte, int, int64, func(domain.Status)) domain.Status {
	return domain.StatusNotSupported
}

func (h *Distributed) Flush(*domain.Device, func(domain.Status)) domain.Status {
	return domain.StatusNotSupported
}
