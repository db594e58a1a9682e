// Package handler implements the plug-in loader and registry
// operations from spec.md section 4.1: load, unload, and check_config.
// The actual mechanism for turning a subtype name into a
// domain.Handler differs by build: see loader_plugin.go and
// loader_builtin.go.
package handler

import (
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
)

const pathMax = 4096 // PATH_MAX on Linux; see libtcmur.h's check_config comment

// loader is satisfied by both build-tagged implementations: resolve a
// subtype to a shared object (or compiled-in entry) and run its
// registration entry point against reg.
type loader interface {
	load(subtype string, reg domain.Registrar) error
}

// Service ties a registry to a loader, implementing spec.md section
// 4.1's three operations.
type Service struct {
	reg    *registrarFuncs
	ld     loader
	prefix string
}

// registrarFuncs adapts any object with a RegisterHandler method into
// domain.Registrar; it exists only so Service doesn't need to import
// package registry (avoiding a dependency cycle, since registry will
// eventually want to reference handler-level types for dump output).
type registrarFuncs struct {
	register func(domain.Handler) error
	find     func(string) (domain.Handler, bool)
	drop     func(string) error
}

func (r *registrarFuncs) RegisterHandler(h domain.Handler) error { return r.register(h) }

// NewService builds a handler.Service against a registry-like object
// (anything exposing RegisterHandler/FindHandler/UnregisterHandler --
// *registry.Registry satisfies this) and a handler-prefix directory
// used by the plugin loader (ignored by the builtin loader).
func NewService(prefix string, register func(domain.Handler) error, find func(string) (domain.Handler, bool), drop func(string) error) *Service {
	return &Service{
		reg:    &registrarFuncs{register: register, find: find, drop: drop},
		ld:     newLoader(prefix),
		prefix: prefix,
	}
}

// Load resolves subtype (via the active loader) and registers it,
// spec.md section 4.1's load(subtype).
func (s *Service) Load(subtype string) error {
	if err := s.ld.load(subtype, s.reg); err != nil {
		logrus.Errorf("handler load %q failed: %v", subtype, err)
		return err
	}
	return nil
}

// Unload removes subtype from the registry, spec.md section 4.1's
// unload(subtype). The registry itself enforces ENOENT/EBUSY; this
// just forwards.
func (s *Service) Unload(subtype string) error {
	return s.reg.drop(subtype)
}

// CheckConfig validates cfg against the handler named in its leading
// "/subtype/" segment, spec.md section 4.1's check_config(cfg).
func (s *Service) CheckConfig(cfg string) (error, string) {
	if !strings.HasPrefix(cfg, "/") {
		return errno.New(22), "config string must start with '/'" // EINVAL
	}
	if len(cfg) > pathMax-1 {
		return errno.New(22), "config string exceeds PATH_MAX-1"
	}

	subtype, tail := splitSubtype(cfg)
	h, ok := s.reg.find(subtype)
	if !ok {
		return errno.New(6), "no handler for subtype " + subtype // ENXIO
	}

	check := h.CheckConfig()
	if check == nil {
		return nil, ""
	}
	return check(tail)
}

// splitSubtype parses "/subtype/rest" into ("subtype", "rest"), the
// form tcmur_check_config documents in libtcmur.h.
func splitSubtype(cfg string) (subtype, tail string) {
	trimmed := strings.TrimPrefix(cfg, "/")
	idx := strings.IndexByte(trimmed, '/')
	if idx < 0 {
		return trimmed, ""
	}
	return trimmed[:idx], trimmed[idx+1:]
}

// SplitConfig exports splitSubtype for package control, which parses
// the same "/subtype/cfg-tail" form out of its "add" verb's argument.
func SplitConfig(cfg string) (subtype, tail string) {
	return splitSubtype(cfg)
}

// soPath returns the shared-object path the plugin loader resolves a
// subtype to: "<prefix><subtype>.so", per libtcmur.h's comment
// "Expected handler name concatenates: handler_prefix subtype .so".
func soPath(prefix, subtype string) string {
	return prefix + subtype + ".so"
}
