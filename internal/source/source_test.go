package source

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFixture(t *testing.T, prefix, section string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "archive.kndl")
	require.NoError(t, os.WriteFile(path, []byte(prefix+section), 0o644))
	return path
}

func TestMemory(t *testing.T) {
	t.Parallel()

	m := NewMemory(nil)
	assert.Equal(t, KindMemory, m.Kind())
	assert.Equal(t, uint64(0), m.Append([]byte("hello")))
	assert.Equal(t, uint64(5), m.Append([]byte("world")))
	assert.Equal(t, uint64(10), m.Len())

	buf := make([]byte, 5)
	n, err := m.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	n, err = m.ReadAt(buf, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)

	_, err = m.ReadAt(buf, 10)
	assert.ErrorIs(t, err, io.EOF)

	b, ok := Bytes(m)
	require.True(t, ok)
	assert.Equal(t, "helloworld", string(b))
}

func TestMemoryAppendFrom(t *testing.T) {
	t.Parallel()

	m := NewMemory([]byte("abc"))
	payload := bytes.Repeat([]byte("xyz"), 1000)
	off, n, err := m.AppendFrom(bytes.NewReader(payload), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), off)
	assert.Equal(t, uint64(len(payload)), n)
	assert.Equal(t, "abc", string(m.Bytes()[:3]))
	assert.Equal(t, payload, m.Bytes()[3:])
}

func TestMemoryAppendFromErrorRollsBack(t *testing.T) {
	t.Parallel()

	m := NewMemory([]byte("abc"))
	boom := errors.New("boom")
	r := io.MultiReader(bytes.NewReader([]byte("partial")), iotest.ErrReader(boom))
	_, _, err := m.AppendFrom(r, 4)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "abc", string(m.Bytes()))

	_, _, err = m.AppendFrom(bytes.NewReader(nil), 0)
	assert.Error(t, err)
}

func TestFile(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "HEADER", "helloworld")
	f := NewFile(path, 6, 10)
	assert.Equal(t, KindFile, f.Kind())
	assert.Equal(t, uint64(10), f.Len())

	_, ok := Bytes(f)
	assert.False(t, ok)

	buf := make([]byte, 5)
	n, err := f.ReadAt(buf, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "world", string(buf))

	// clipped to the section even though the file is longer
	big := make([]byte, 20)
	n, err = f.ReadAt(big, 0)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "helloworld", string(big[:n]))

	require.NoError(t, f.Close())
	_, err = f.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFileMissing(t *testing.T) {
	t.Parallel()

	f := NewFile(filepath.Join(t.TempDir(), "gone"), 0, 4)
	_, err := f.ReadAt(make([]byte, 4), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMapped(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "HDR", "mapped-section")
	m, err := OpenMapped(path, 3, 14)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	assert.Equal(t, KindMapped, m.Kind())
	assert.Equal(t, uint64(14), m.Len())
	b, ok := Bytes(m)
	require.True(t, ok)
	assert.Equal(t, "mapped-section", string(b))

	buf := make([]byte, 7)
	n, err := m.ReadAt(buf, 7)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
	assert.Equal(t, "section", string(buf))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())
	_, err = m.ReadAt(buf, 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMappedSectionTooLong(t *testing.T) {
	t.Parallel()

	path := writeFixture(t, "HDR", "short")
	_, err := OpenMapped(path, 3, 100)
	assert.Error(t, err)
}

func TestKindString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "memory", KindMemory.String())
	assert.Equal(t, "file", KindFile.String())
	assert.Equal(t, "mapped", KindMapped.String())
}
