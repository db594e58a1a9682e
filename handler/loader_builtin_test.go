//go:build !(linux && cgo)

package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
)

func TestBuiltinLoaderActivatesRegisteredConstructor(t *testing.T) {
	RegisterBuiltin("testsubtype", func() domain.Handler {
		return &fakeHandler{subtype: "testsubtype"}
	})

	r := newFakeRegistry()
	ld := newLoader("")
	require.NoError(t, ld.load("testsubtype", &registrarFuncs{register: r.register}))

	_, ok := r.find("testsubtype")
	assert.True(t, ok)
}

func TestBuiltinLoaderMissingSubtypeIsENOENT(t *testing.T) {
	ld := newLoader("")
	err := ld.load("nope-at-all", &registrarFuncs{register: func(domain.Handler) error { return nil }})
	require.Error(t, err)
	assert.True(t, errno.Is(err, 2))
}
