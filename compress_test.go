package kundli

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/kundli/internal/testutil"
	"github.com/meigma/kundli/internal/write"
)

// wideTree has enough entries for eight workers and a data section spanning
// several chunks.
func wideTree() map[string]testutil.Node {
	tree := map[string]testutil.Node{
		"wide":             testutil.Dir(0o755),
		"wide/big.bin":     testutil.File(testutil.RandomContent(42, 3*write.MinChunk+777), 0o644),
		"wide/link":        testutil.Symlink("big.bin"),
		"wide/nested/deep": testutil.File("deep", 0o640),
	}
	for i := range 12 {
		tree[fmt.Sprintf("wide/f%02d.txt", i)] = testutil.File(testutil.RandomContent(uint64(i), 1000*i+1), 0o644)
	}
	return tree
}

func TestCompressParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, wideTree())
	a := newTestArchive(t, src)
	_, err := a.AddDirectory("wide")
	require.NoError(t, err)
	require.GreaterOrEqual(t, a.Len(), 8)

	dir := t.TempDir()
	seqPath := filepath.Join(dir, "seq.kndl")
	require.NoError(t, a.Compress(seqPath))
	want, err := os.ReadFile(seqPath)
	require.NoError(t, err)

	for _, n := range []int{1, 2, 8} {
		parPath := filepath.Join(dir, fmt.Sprintf("par-%d.kndl", n))
		require.NoError(t, a.CompressParallel(parPath, n))
		got, err := os.ReadFile(parPath)
		require.NoError(t, err)
		assert.Equal(t, want, got, "threads %d", n)

		loaded, err := LoadFull(parPath)
		require.NoError(t, err)
		assert.Equal(t, a.Len(), loaded.Len())
		require.NoError(t, loaded.Close())
	}

	// no temp or lock files are left behind
	names, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, names, 4)
}

func TestCompressParallelFallsBack(t *testing.T) {
	t.Parallel()

	src := helloWorldTree(t)
	a := newTestArchive(t, src)
	_, err := a.AddFile("hello.txt")
	require.NoError(t, err)

	dir := t.TempDir()
	seq := filepath.Join(dir, "seq.kndl")
	par := filepath.Join(dir, "par.kndl")
	require.NoError(t, a.Compress(seq))
	// more threads than entries
	require.NoError(t, a.CompressParallel(par, 16))

	want, err := os.ReadFile(seq)
	require.NoError(t, err)
	got, err := os.ReadFile(par)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	assert.ErrorIs(t, a.CompressParallel(par, -1), ErrConfiguration)
}

func TestCompressEmptyArchive(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, t.TempDir())
	out := filepath.Join(t.TempDir(), "empty.kndl")
	require.NoError(t, a.Compress(out))

	loaded, err := LoadFull(out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })
	assert.Equal(t, 0, loaded.Len())
	assert.Equal(t, uint32(0), loaded.Header().Checksum)

	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, archiveMode, fi.Mode().Perm())
}

func TestCompressLockContention(t *testing.T) {
	t.Parallel()

	src := helloWorldTree(t)
	a := newTestArchive(t, src)
	_, err := a.AddFile("hello.txt")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "locked.kndl")
	held := flock.New(out + ".lock")
	ok, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, a.Compress(out), ErrConfiguration)
	assert.ErrorIs(t, a.CompressParallel(out, 2), ErrConfiguration)
	_, err = os.Stat(out)
	assert.ErrorIs(t, err, os.ErrNotExist)

	require.NoError(t, held.Unlock())
	require.NoError(t, a.Compress(out))
}

func TestCompressRejectsDirectoryPath(t *testing.T) {
	t.Parallel()

	a := newTestArchive(t, t.TempDir())
	assert.ErrorIs(t, a.Compress(t.TempDir()), ErrConfiguration)
	assert.ErrorIs(t, a.Compress(""), ErrConfiguration)
}

func TestCompressKeepsExistingMode(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, wideTree())
	a := newTestArchive(t, src)
	_, err := a.AddDirectory("wide")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "mode.kndl")
	require.NoError(t, os.WriteFile(out, nil, 0o600))
	require.NoError(t, os.Chmod(out, 0o600))

	require.NoError(t, a.CompressParallel(out, 4))
	fi, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), fi.Mode().Perm())
}
