//go:build linux && cgo

package handler

import (
	"os"
	"plugin"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
)

// pluginLoader resolves a subtype to a real .so via the Go plugin
// package, per spec.md section 4.1: "load(subtype) resolves a shared
// object file located at <handler_prefix><subtype>.so, invokes its
// zero-argument initialization symbol, which in turn calls back into
// register_handler(descriptor)".
//
// Unlike libtcmu's C handlers, a Go plugin's init symbol can't take a
// Registrar argument across the plugin boundary in a portable way, so
// the exported symbol here is a zero-argument function matching the
// spec's description, and it reaches back into this process's handler
// package via a package-level registrar slot (read with
// PendingRegistrar) that is set just before the symbol is called.
type pluginLoader struct {
	prefix string
}

func newLoader(prefix string) loader {
	return &pluginLoader{prefix: prefix}
}

// registerHandlerSymbol is the name a plug-in's .so must export: a
// func() that calls back into the Registrar passed to load() through
// the package-level pendingRegistrar.
const registerHandlerSymbol = "RegisterHandler"

var pendingRegistrar domain.Registrar

// PendingRegistrar returns the Registrar of the load in progress; a
// plug-in's RegisterHandler symbol registers its handler through it.
func PendingRegistrar() domain.Registrar { return pendingRegistrar }

func (l *pluginLoader) load(subtype string, reg domain.Registrar) error {
	// Handlers bundled with this repository (package
	// handler/implementations) are compiled in regardless of build
	// tag; only subtypes absent from that table fall through to
	// resolving an external .so.
	builtinMu.Lock()
	ctor, ok := builtinCtors[subtype]
	builtinMu.Unlock()
	if ok {
		return reg.RegisterHandler(ctor())
	}

	soFile := soPath(l.prefix, subtype)
	if _, err := os.Stat(soFile); err != nil {
		return errno.Newf(2, "handler %q: %v", subtype, err) // ENOENT
	}

	p, err := plugin.Open(soFile)
	if err != nil {
		return errno.Newf(2, "handler %q: %v", subtype, err)
	}

	sym, err := p.Lookup(registerHandlerSymbol)
	if err != nil {
		return errno.Newf(9, "handler %q missing %s symbol: %v", subtype, registerHandlerSymbol, err) // EBADF
	}
	initFn, ok := sym.(func())
	if !ok {
		return errno.Newf(9, "handler %q has wrong %s signature", subtype, registerHandlerSymbol)
	}

	pendingRegistrar = reg
	initFn()
	pendingRegistrar = nil
	return nil
}
