package implementations

import (
	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/fsio"
)

// Builtins maps each bundled handler's subtype to a constructor,
// mirroring the teacher repo's handler/handlerDB.go "DefaultHandlers"
// slice of ready-to-register handlers. cmd/tcmur registers these with
// the builtin loader (handler.RegisterBuiltin) at startup, and
// plug-ins loaded from a .so at runtime use the real loader instead.
func Builtins(fs *fsio.Service) map[string]func() domain.Handler {
	return map[string]func() domain.Handler{
		"ram":         func() domain.Handler { return NewRAM(fs) },
		"null":        func() domain.Handler { return NewNull() },
		"distributed": func() domain.Handler { return NewDistributed() },
	}
}
