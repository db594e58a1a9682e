package tree

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tcmur/tcmur/errno"
)

func TestAddLookupRoundTrip(t *testing.T) {
	tr := New()
	n, err := tr.Add(tr.Root(), "ram", ModeDir, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, n)

	got, err := tr.Lookup("ram")
	require.NoError(t, err)
	assert.Same(t, n, got)

	// leading slash tolerated
	got, err = tr.Lookup("/ram")
	require.NoError(t, err)
	assert.Same(t, n, got)
}

func TestAddDuplicateNameFails(t *testing.T) {
	tr := New()
	_, err := tr.Add(tr.Root(), "ram", ModeDir, nil, nil)
	require.NoError(t, err)

	_, err = tr.Add(tr.Root(), "ram", ModeDir, nil, nil)
	require.Error(t, err)
	assert.True(t, errno.Is(err, 17)) // EEXIST
}

func TestLookupMissingIsENOENT(t *testing.T) {
	tr := New()
	_, err := tr.Lookup("nope")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 2))
}

func TestLookupThroughNonDirIsENOTDIR(t *testing.T) {
	tr := New()
	_, err := tr.Add(tr.Root(), "leaf", ModeRegular, nil, nil)
	require.NoError(t, err)

	_, err = tr.Lookup("leaf/anything")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 20)) // ENOTDIR
}

func TestMkdirIsIdempotentForExistingDirs(t *testing.T) {
	tr := New()
	a, err := tr.Mkdir("a/b/c")
	require.NoError(t, err)
	require.Equal(t, "c", a.Name())

	// Re-running Mkdir on an existing directory path must not error and
	// must return the same node, not a duplicate.
	a2, err := tr.Mkdir("a/b/c")
	require.NoError(t, err)
	assert.Same(t, a, a2)
}

func TestMkdirThroughExistingFileFails(t *testing.T) {
	tr := New()
	_, err := tr.Add(tr.Root(), "a", ModeRegular, nil, nil)
	require.NoError(t, err)

	_, err = tr.Mkdir("a/b")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 20))
}

func TestRemoveNonEmptyDirFails(t *testing.T) {
	tr := New()
	_, err := tr.Mkdir("a/b")
	require.NoError(t, err)

	err = tr.Remove(tr.Root(), "a")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 39)) // ENOTEMPTY
}

func TestRemoveBusyNodeFails(t *testing.T) {
	tr := New()
	n, err := tr.Add(tr.Root(), "dev0", ModeBlockDevice, nil, nil)
	require.NoError(t, err)
	n.Acquire() // simulate an open handle beyond the tree's own reference

	err = tr.Remove(tr.Root(), "dev0")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 16)) // EBUSY

	n.Release()
	require.NoError(t, tr.Remove(tr.Root(), "dev0"))
}

func TestRemoveMissingIsENOENT(t *testing.T) {
	tr := New()
	err := tr.Remove(tr.Root(), "nope")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 2))
}

func TestRemoveThenLookupFails(t *testing.T) {
	tr := New()
	_, err := tr.Add(tr.Root(), "leaf", ModeRegular, nil, nil)
	require.NoError(t, err)
	require.NoError(t, tr.Remove(tr.Root(), "leaf"))

	_, err = tr.Lookup("leaf")
	require.Error(t, err)
	assert.True(t, errno.Is(err, 2))
}

func TestChildrenOrderMatchesInsertion(t *testing.T) {
	tr := New()
	_, _ = tr.Add(tr.Root(), "one", ModeRegular, nil, nil)
	_, _ = tr.Add(tr.Root(), "two", ModeRegular, nil, nil)
	_, _ = tr.Add(tr.Root(), "three", ModeRegular, nil, nil)

	kids := tr.Children(tr.Root())
	require.Len(t, kids, 3)
	assert.Equal(t, []string{"one", "two", "three"}, []string{kids[0].Name(), kids[1].Name(), kids[2].Name()})
}

func TestFormatProducesIndentedDump(t *testing.T) {
	tr := New()
	dir, err := tr.Mkdir("ram")
	require.NoError(t, err)
	_, err = tr.Add(dir, "0", ModeBlockDevice, nil, nil)
	require.NoError(t, err)

	out := tr.Format()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "node@"))
	assert.Contains(t, lines[0], "DIR")
	assert.True(t, strings.HasPrefix(lines[1], "    node@"))
	assert.Contains(t, lines[1], "name='ram'")
	assert.True(t, strings.HasPrefix(lines[2], "        node@"))
	assert.Contains(t, lines[2], "name='0'")
	assert.Contains(t, lines[2], "BLK")
}

func TestAddRejectsInvalidName(t *testing.T) {
	tr := New()
	_, err := tr.Add(tr.Root(), "has/slash", ModeRegular, nil, nil)
	require.Error(t, err)
	assert.True(t, errno.Is(err, 22)) // EINVAL

	_, err = tr.Add(tr.Root(), "", ModeRegular, nil, nil)
	require.Error(t, err)
	assert.True(t, errno.Is(err, 22))
}

func TestSetSizeAndDeviceInfo(t *testing.T) {
	tr := New()
	n, err := tr.Add(tr.Root(), "dev0", ModeBlockDevice, nil, nil)
	require.NoError(t, err)

	n.SetDeviceInfo(3, 4096)
	n.SetSize(4096 * 1024)

	assert.EqualValues(t, 3, n.DevID())
	assert.EqualValues(t, 4096, n.BlockSize())
	assert.EqualValues(t, 4096*1024, n.Size())
}
