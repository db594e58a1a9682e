//go:build !(linux && cgo)

package handler

import (
	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
)

type builtinLoader struct{}

func newLoader(prefix string) loader {
	return &builtinLoader{}
}

func (l *builtinLoader) load(subtype string, reg domain.Registrar) error {
	builtinMu.Lock()
	ctor, ok := builtinCtors[subtype]
	builtinMu.Unlock()
	if !ok {
		return errno.Newf(2, "no builtin handler registered for subtype %q", subtype) // ENOENT
	}
	return reg.RegisterHandler(ctor())
}
