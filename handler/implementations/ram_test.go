package implementations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmur/tcmur/domain"
	"github.com/tcmur/tcmur/fsio"
)

func newTestDevice(cfgTail string, size int64) *domain.Device {
	return &domain.Device{
		Minor:      3,
		Name:       "ram003",
		CfgWorking: cfgTail,
		BlockSize:  4096,
		BlockCount: size / 4096,
	}
}

// TestRAMWriteThenReadRoundTrip is spec.md's scenario 1: load ram, add
// an anonymous device, write 4096 bytes of 'A' at offset 0, read them
// back.
func TestRAMWriteThenReadRoundTrip(t *testing.T) {
	h := NewRAM(fsio.NewMem())
	dev := newTestDevice("@", 4096*1024)
	require.NoError(t, h.Open(dev, false))
	defer h.Close(dev)

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = 'A'
	}
	status := h.Write(dev, [][]byte{payload}, 4096, 0, nil)
	require.Equal(t, domain.StatusOK, status)

	out := make([]byte, 4096)
	status = h.Read(dev, [][]byte{out}, 4096, 0, nil)
	require.Equal(t, domain.StatusOK, status)
	assert.Equal(t, payload, out)
}

func TestRAMReadWriteOutOfBoundsIsIOError(t *testing.T) {
	h := NewRAM(fsio.NewMem())
	dev := newTestDevice("@", 4096)
	require.NoError(t, h.Open(dev, false))
	defer h.Close(dev)

	buf := make([]byte, 4096)
	status := h.Read(dev, [][]byte{buf}, 4096, 1, nil)
	assert.Equal(t, domain.StatusIOError, status)
}

func TestRAMFilePersistsAcrossOpenClose(t *testing.T) {
	fs := fsio.NewMem()
	h := NewRAM(fs)
	dev := newTestDevice("/data/ram0.img", 4096)
	require.NoError(t, h.Open(dev, false))

	payload := make([]byte, 4096)
	for i := range payload {
		payload[i] = 'B'
	}
	require.Equal(t, domain.StatusOK, h.Write(dev, [][]byte{payload}, 4096, 0, nil))
	require.NoError(t, h.Close(dev))

	dev2 := newTestDevice("/data/ram0.img", 4096)
	require.NoError(t, h.Open(dev2, true))
	out := make([]byte, 4096)
	require.Equal(t, domain.StatusOK, h.Read(dev2, [][]byte{out}, 4096, 0, nil))
	assert.Equal(t, payload, out)
}

func TestRAMCheckConfigRejectsEmptyTail(t *testing.T) {
	h := NewRAM(fsio.NewMem())
	err, reason := h.CheckConfig()("")
	require.Error(t, err)
	assert.NotEmpty(t, reason)
}

func TestRAMScatterGatherIovec(t *testing.T) {
	h := NewRAM(fsio.NewMem())
	dev := newTestDevice("@", 4096)
	require.NoError(t, h.Open(dev, false))

	part1 := []byte("hello ")
	part2 := []byte("world!")
	status := h.Write(dev, [][]byte{part1, part2}, len(part1)+len(part2), 0, nil)
	require.Equal(t, domain.StatusOK, status)

	out := make([]byte, len(part1)+len(part2))
	status = h.Read(dev, [][]byte{out}, len(out), 0, nil)
	require.Equal(t, domain.StatusOK, status)
	assert.Equal(t, "hello world!", string(out))
}
