package fuseadapter

import (
	"context"
	"syscall"
	"testing"

	"bazil.org/fuse"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmur/tcmur/dispatch"
	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/tree"
)

type echoHandler struct {
	buf []byte
}

func (h *echoHandler) Subtype() string { return "echo" }
func (h *echoHandler) Name() string    { return "echo" }
func (h *echoHandler) Open(*domain.Device, bool) error { return nil }
func (h *echoHandler) Close(*domain.Device) error      { return nil }
func (h *echoHandler) Read(dev *domain.Device, iov [][]byte, nbyte int, seek int64, cb func(domain.Status)) domain.Status {
	n := copy(iov[0], h.buf[seek:seek+int64(nbyte)])
	_ = n
	return domain.StatusOK
}
func (h *echoHandler) Write(dev *domain.Device, iov [][]byte, nbyte int, seek int64, cb func(domain.Status)) domain.Status {
	copy(h.buf[seek:], iov[0][:nbyte])
	return domain.StatusOK
}
func (h *echoHandler) Flush(dev *domain.Device, cb func(domain.Status)) domain.Status { return domain.StatusOK }
func (h *echoHandler) CanFlush() bool                                                { return true }
func (h *echoHandler) CheckConfig() domain.CheckConfigFunc                           { return nil }
func (h *echoHandler) NThreads() int                                                 { return 0 }

func TestLookupAndReadDirAll(t *testing.T) {
	tr := tree.New()
	_, err := tr.Add(tr.Root(), "a", tree.ModeRegular, nil, nil)
	require.NoError(t, err)
	_, err = tr.Add(tr.Root(), "b", tree.ModeDir, nil, nil)
	require.NoError(t, err)

	root := newNode(tr.Root(), tr, dispatch.New())
	ents, err := root.ReadDirAll(context.Background())
	require.NoError(t, err)
	require.Len(t, ents, 2)
	assert.Equal(t, "a", ents[0].Name)
	assert.Equal(t, "b", ents[1].Name)

	got, err := root.Lookup(context.Background(), "a")
	require.NoError(t, err)
	assert.NotNil(t, got)

	_, err = root.Lookup(context.Background(), "missing")
	assert.Equal(t, fuse.ENOENT, err)
}

func TestLookupThroughNonDirReturnsENOTDIR(t *testing.T) {
	tr := tree.New()
	n, err := tr.Add(tr.Root(), "a", tree.ModeRegular, nil, nil)
	require.NoError(t, err)

	leaf := newNode(n, tr, dispatch.New())
	_, err = leaf.Lookup(context.Background(), "anything")
	assert.Equal(t, syscall.ENOTDIR, err)
}

func TestOpenOnDirectoryIsEISDIR(t *testing.T) {
	tr := tree.New()
	root := newNode(tr.Root(), tr, dispatch.New())

	_, err := root.Open(context.Background(), &fuse.OpenRequest{}, &fuse.OpenResponse{})
	assert.Equal(t, syscall.EISDIR, err)
}

func TestOpenIncrementsRefAndReleaseDecrements(t *testing.T) {
	tr := tree.New()
	n, err := tr.Add(tr.Root(), "dev0", tree.ModeBlockDevice, nil, nil)
	require.NoError(t, err)

	nd := newNode(n, tr, dispatch.New())
	_, err = nd.Open(context.Background(), &fuse.OpenRequest{}, &fuse.OpenResponse{})
	require.NoError(t, err)

	err = tr.Remove(tr.Root(), "dev0")
	require.Error(t, err, "node with an open reference must not be removable")

	require.NoError(t, nd.Release(context.Background(), &fuse.ReleaseRequest{}))
	require.NoError(t, tr.Remove(tr.Root(), "dev0"))
}

func TestReadWriteRoundTripThroughDispatcher(t *testing.T) {
	tr := tree.New()
	n, err := tr.Add(tr.Root(), "dev0", tree.ModeBlockDevice, nil, nil)
	require.NoError(t, err)

	h := &echoHandler{buf: make([]byte, 4096)}
	dev := &domain.Device{Minor: 0, Handler: h, BlockSize: 4096, BlockCount: 1}
	n.SetDeviceInfo(0, 4096)
	n.SetSize(4096)
	n.AttachDevice(dev)

	disp := dispatch.New()
	nd := newNode(n, tr, disp)

	writeReq := &fuse.WriteRequest{Data: []byte("hello"), Offset: 0}
	writeResp := &fuse.WriteResponse{}
	require.NoError(t, nd.Write(context.Background(), writeReq, writeResp))
	assert.Equal(t, 5, writeResp.Size)

	readReq := &fuse.ReadRequest{Offset: 0, Size: 5}
	readResp := &fuse.ReadResponse{}
	require.NoError(t, nd.Read(context.Background(), readReq, readResp))
	assert.Equal(t, "hello", string(readResp.Data))
}

func TestReadWriteFsyncUpdateTimestamps(t *testing.T) {
	tr := tree.New()
	n, err := tr.Add(tr.Root(), "dev0", tree.ModeBlockDevice, nil, nil)
	require.NoError(t, err)

	h := &echoHandler{buf: make([]byte, 4096)}
	dev := &domain.Device{Minor: 0, Handler: h, BlockSize: 4096, BlockCount: 1}
	n.SetDeviceInfo(0, 4096)
	n.SetSize(4096)
	n.AttachDevice(dev)

	disp := dispatch.New()
	nd := newNode(n, tr, disp)

	atimeBeforeRead, zeroMtime, _ := n.Times()
	assert.False(t, atimeBeforeRead.IsZero(), "Add stamps atime at creation")
	assert.False(t, zeroMtime.IsZero(), "SetSize above already stamped mtime")

	readReq := &fuse.ReadRequest{Offset: 0, Size: 5}
	readResp := &fuse.ReadResponse{}
	require.NoError(t, nd.Read(context.Background(), readReq, readResp))
	atimeAfterRead, _, _ := n.Times()
	assert.False(t, atimeAfterRead.Before(atimeBeforeRead), "a successful read must stamp atime")

	_, mtimeBeforeWrite, _ := n.Times()
	writeReq := &fuse.WriteRequest{Data: []byte("hi"), Offset: 1}
	writeResp := &fuse.WriteResponse{}
	require.NoError(t, nd.Write(context.Background(), writeReq, writeResp))
	_, mtimeAfterWrite, _ := n.Times()
	assert.True(t, mtimeAfterWrite.After(mtimeBeforeWrite) || mtimeAfterWrite.Equal(mtimeBeforeWrite),
		"a non-extending write must still refresh mtime")

	_, mtimeBeforeFsync, _ := n.Times()
	require.NoError(t, nd.Fsync(context.Background(), &fuse.FsyncRequest{}))
	_, mtimeAfterFsync, _ := n.Times()
	assert.False(t, mtimeAfterFsync.Before(mtimeBeforeFsync), "a successful fsync must refresh mtime")
}
