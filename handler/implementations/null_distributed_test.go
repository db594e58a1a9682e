package implementations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmur/tcmur/domain"
)

func TestNullReadReturnsZeroedBuffer(t *testing.T) {
	h := NewNull()
	buf := []byte{1, 2, 3, 4}
	status := h.Read(nil, [][]byte{buf}, len(buf), 0, nil)
	require.Equal(t, domain.StatusOK, status)
	assert.Equal(t, []byte{0, 0, 0, 0}, buf)
}

func TestNullWriteAlwaysSucceeds(t *testing.T) {
	h := NewNull()
	status := h.Write(nil, [][]byte{[]byte("anything")}, 8, 0, nil)
	assert.Equal(t, domain.StatusOK, status)
}

func TestDistributedIsUnsupportedEverywhere(t *testing.T) {
	h := NewDistributed()
	assert.Equal(t, domain.StatusNotSupported, h.Read(nil, nil, 0, 0, nil))
	assert.Equal(t, domain.StatusNotSupported, h.Write(nil, nil, 0, 0, nil))
	assert.Equal(t, domain.StatusNotSupported, h.Flush(nil, nil))
	assert.False(t, h.CanFlush())
}
