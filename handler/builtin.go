package handler

import (
	"sync"

	"github.com/tcmur/tcmur/domain"
)

// builtinCtors holds handler constructors registered via RegisterBuiltin,
// the compiled-in substitute for dlopen/plugin.Open used by
// builtinLoader (loader_builtin.go, active on every build other than
// linux with cgo), and consulted first by the plugin loader too.
// It exists outside that build tag because tcmur's own bundled
// handlers (package handler/implementations: ram, null, distributed)
// are registered here unconditionally by cmd/tcmur at startup -- they
// are compiled in regardless of which loader variant is active, since
// they are part of this repository rather than an externally loaded
// plug-in.
var (
	builtinMu    sync.Mutex
	builtinCtors = map[string]func() domain.Handler{}
)

// RegisterBuiltin makes ctor available under subtype to the builtin
// loader. Call sites outside this package pass a constructor that
// returns a fresh domain.Handler each time, matching the style of a
// plug-in's registration entry point.
func RegisterBuiltin(subtype string, ctor func() domain.Handler) {
	builtinMu.Lock()
	defer builtinMu.Unlock()
	builtinCtors[subtype] = ctor
}
