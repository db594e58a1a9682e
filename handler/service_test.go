package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/errno"
)

type fakeHandler struct {
	subtype string
	check   domain.CheckConfigFunc
}

func (h *fakeHandler) Subtype() string                                      { return h.subtype }
func (h *fakeHandler) Name() string                                         { return "Fake" }
func (h *fakeHandler) Open(*domain.Device, bool) error                      { return nil }
func (h *fakeHandler) Close(*domain.Device) error                           { return nil }
func (h *fakeHandler) Read(*domain.Device, [][]byte, int, int64, func(domain.Status)) domain.Status {
	return domain.StatusOK
}
func (h *fakeHandler) Write(*domain.Device, [][]byte, int, int64, func(domain.Status)) domain.Status {
	return domain.StatusOK
}
func (h *fakeHandler) Flush(*domain.Device, func(domain.Status)) domain.Status { return domain.StatusOK }
func (h *fakeHandler) CanFlush() bool                                         { return false }
func (h *fakeHandler) CheckConfig() domain.CheckConfigFunc                   { return h.check }
func (h *fakeHandler) NThreads() int                                        { return 0 }

// fakeRegistry is a minimal stand-in for *registry.Registry sufficient
// to exercise Service without importing package registry (which would
// create an import cycle once registry grows to reference handler
// metadata for dump formatting).
type fakeRegistry struct {
	byName map[string]domain.Handler
}

func newFakeRegistry() *fakeRegistry { return &fakeRegistry{byName: map[string]domain.Handler{}} }

func (r *fakeRegistry) register(h domain.Handler) error {
	r.byName[h.Subtype()] = h
	return nil
}
func (r *fakeRegistry) find(subtype string) (domain.Handler, bool) {
	h, ok := r.byName[subtype]
	return h, ok
}
func (r *fakeRegistry) drop(subtype string) error {
	if _, ok := r.byName[subtype]; !ok {
		return errno.New(2) // ENOENT
	}
	delete(r.byName, subtype)
	return nil
}

func TestCheckConfigRejectsMissingLeadingSlash(t *testing.T) {
	r := newFakeRegistry()
	s := NewService("/prefix/", r.register, r.find, r.drop)

	err, reason := s.CheckConfig("ram/dev0")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 22))
	assert.NotEmpty(t, reason)
}

func TestCheckConfigRejectsUnknownSubtype(t *testing.T) {
	r := newFakeRegistry()
	s := NewService("/prefix/", r.register, r.find, r.drop)

	err, _ := s.CheckConfig("/ram/dev0")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 6)) // ENXIO
}

func TestCheckConfigForwardsTailToValidator(t *testing.T) {
	r := newFakeRegistry()
	var gotTail string
	h := &fakeHandler{subtype: "ram", check: func(tail string) (error, string) {
		gotTail = tail
		return nil, ""
	}}
	require.NoError(t, r.register(h))

	s := NewService("/prefix/", r.register, r.find, r.drop)
	err, _ := s.CheckConfig("/ram/size=4M")
	require.NoError(t, err)
	assert.Equal(t, "size=4M", gotTail)
}

func TestSplitSubtypeNoTail(t *testing.T) {
	subtype, tail := splitSubtype("/ram")
	assert.Equal(t, "ram", subtype)
	assert.Equal(t, "", tail)
}

func TestUnloadDelegatesToRegistry(t *testing.T) {
	r := newFakeRegistry()
	require.NoError(t, r.register(&fakeHandler{subtype: "ram"}))
	s := NewService("/prefix/", r.register, r.find, r.drop)

	require.NoError(t, s.Unload("ram"))
	err := s.Unload("ram")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 2))
}
