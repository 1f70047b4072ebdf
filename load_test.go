package kundli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/kundli/internal/checksum"
	"github.com/meigma/kundli/internal/format"
	"github.com/meigma/kundli/internal/source"
	"github.com/meigma/kundli/internal/testutil"
)

// buildArchive writes tree under a temp dir, adds each top-level name, and
// compresses the result. It returns the source dir and archive path.
func buildArchive(t *testing.T, tree map[string]testutil.Node, names ...string) (string, string) {
	t.Helper()
	src := t.TempDir()
	testutil.WriteTree(t, src, tree)

	a := newTestArchive(t, src)
	for _, name := range names {
		_, err := a.AddFile(name)
		require.NoError(t, err)
	}
	out := filepath.Join(t.TempDir(), "test.kndl")
	require.NoError(t, a.Compress(out))
	return src, out
}

func mixedTree() map[string]testutil.Node {
	return map[string]testutil.Node{
		"proj":               testutil.Dir(0o755),
		"proj/README":        testutil.File("read me\n", 0o644),
		"proj/bin/run.sh":    testutil.File("#!/bin/sh\necho hi\n", 0o755),
		"proj/bin":           testutil.Dir(0o750),
		"proj/secret":        testutil.File("s3cr3t", 0o600),
		"proj/data/blob.bin": testutil.File(testutil.RandomContent(1, 300<<10), 0o644),
		"proj/data/empty":    testutil.File("", 0o644),
		"proj/data":          testutil.Dir(0o755),
		"proj/private":       testutil.Dir(0o700),
		"proj/private/key":   testutil.File("k", 0o400),
		"proj/link":          testutil.Symlink("README"),
		"proj/data/up":       testutil.Symlink("../bin/run.sh"),
	}
}

// dataSectionStart returns the file offset of the data section of path.
func dataSectionStart(t *testing.T, path string) int64 {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	layout, err := format.ReadLayout(f)
	require.NoError(t, err)
	return layout.DataStart
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()

	src, out := buildArchive(t, mixedTree(), "proj")

	for _, tc := range []struct {
		name string
		load func(string, ...Option) (*Archive, error)
	}{
		{"full", LoadFull},
		{"lazy", Load},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			a, err := tc.load(out)
			require.NoError(t, err)
			t.Cleanup(func() { _ = a.Close() })

			dest := t.TempDir()
			stats, err := a.Decompress(dest)
			require.NoError(t, err)
			assert.Equal(t, 0, stats.Failed)
			assert.Equal(t, 6, stats.Files)
			assert.Equal(t, 2, stats.Symlinks)
			assert.Equal(t, 4, stats.Dirs)

			if diff := cmp.Diff(testutil.ReadTree(t, src), testutil.ReadTree(t, dest)); diff != "" {
				t.Errorf("tree mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadPreservesTable(t *testing.T) {
	t.Parallel()

	src := t.TempDir()
	testutil.WriteTree(t, src, mixedTree())
	a := newTestArchive(t, src)
	_, err := a.AddDirectory("proj")
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "t.kndl")
	require.NoError(t, a.Compress(out))

	loaded, err := LoadFull(out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = loaded.Close() })

	if diff := cmp.Diff(a.Entries(), loaded.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, a.Header(), loaded.Header())
	assert.Equal(t, uint64(fixedTime.Unix()), loaded.Header().Timestamp)
}

func TestCorruptionDetection(t *testing.T) {
	t.Parallel()

	_, out := buildArchive(t, map[string]testutil.Node{
		"a.txt": testutil.File("alpha", 0o644),
		"b.txt": testutil.File("bravo", 0o644),
	}, "a.txt", "b.txt")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	start := dataSectionStart(t, out)
	raw[start+1] ^= 0xff // inside a.txt
	require.NoError(t, os.WriteFile(out, raw, 0o644))

	_, err = LoadFull(out)
	require.ErrorIs(t, err, ErrIntegrity)

	lazy, err := Load(out)
	require.NoError(t, err, "lazy load reads only the table")
	t.Cleanup(func() { _ = lazy.Close() })

	// single-entry reads do not verify the checksum
	b, err := lazy.FileDataByPath("b.txt")
	require.NoError(t, err)
	assert.Equal(t, "bravo", string(b))
	corrupted, err := lazy.FileDataByPath("a.txt")
	require.NoError(t, err)
	assert.NotEqual(t, "alpha", string(corrupted))

	require.ErrorIs(t, lazy.Materialize(), ErrIntegrity)
	assert.Equal(t, "file", lazy.Describe().Source, "failed materialize leaves the source in place")

	// rewriting needs a verified data section
	require.NoError(t, lazy.RemoveFile("a.txt"))
	require.ErrorIs(t, lazy.Compress(filepath.Join(t.TempDir(), "copy.kndl")), ErrIntegrity)
}

func TestMaterialize(t *testing.T) {
	t.Parallel()

	_, out := buildArchive(t, mixedTree(), "proj")
	a, err := Load(out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, "file", a.Describe().Source)
	assert.False(t, a.Describe().Loaded)

	require.NoError(t, a.Materialize())
	require.NoError(t, a.Materialize())
	assert.Equal(t, "memory", a.Describe().Source)
	assert.True(t, a.Describe().Loaded)

	data, err := a.FileDataByPath("proj/README")
	require.NoError(t, err)
	assert.Equal(t, "read me\n", string(data))
}

func TestMaterializeConcurrent(t *testing.T) {
	t.Parallel()

	_, out := buildArchive(t, mixedTree(), "proj")
	a, err := Load(out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	errs := make(chan error, 8)
	for range 8 {
		go func() { errs <- a.Materialize() }()
	}
	for range 8 {
		require.NoError(t, <-errs)
	}
	assert.Equal(t, "memory", a.Describe().Source)
}

func TestLoadMapped(t *testing.T) {
	t.Parallel()

	src, out := buildArchive(t, mixedTree(), "proj")
	a, err := Load(out, WithMapThreshold(1))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	assert.Equal(t, "mapped", a.Describe().Source)
	data, err := a.FileDataByPath("proj/data/blob.bin")
	require.NoError(t, err)
	want, err := os.ReadFile(filepath.Join(src, "proj", "data", "blob.bin"))
	require.NoError(t, err)
	assert.Equal(t, want, data)

	// materializing a mapping verifies in place
	require.NoError(t, a.Materialize())
	assert.Equal(t, "mapped", a.Describe().Source)

	dest := t.TempDir()
	_, err = a.DecompressParallel(dest, 4)
	require.NoError(t, err)
	if diff := cmp.Diff(testutil.ReadTree(t, src), testutil.ReadTree(t, dest)); diff != "" {
		t.Errorf("tree mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMapThresholdPolicy(t *testing.T) {
	t.Parallel()

	_, out := buildArchive(t, map[string]testutil.Node{
		"f": testutil.File("0123456789", 0o644),
	}, "f")

	tests := []struct {
		threshold int64
		want      source.Kind
	}{
		{0, source.KindFile},
		{-1, source.KindFile},
		{10, source.KindMapped},
		{11, source.KindFile},
		{DefaultMapThreshold, source.KindFile},
	}
	for _, tt := range tests {
		a, err := Load(out, WithMapThreshold(tt.threshold))
		require.NoError(t, err)
		assert.Equal(t, tt.want.String(), a.Describe().Source, "threshold %d", tt.threshold)
		require.NoError(t, a.Close())
	}
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, out := buildArchive(t, map[string]testutil.Node{
		"f": testutil.File("payload", 0o644),
	}, "f")
	raw, err := os.ReadFile(out)
	require.NoError(t, err)

	write := func(name string, b []byte) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, b, 0o644))
		return p
	}

	badMagic := append([]byte("NOPE!"), raw[5:]...)
	badVersion := append([]byte{}, raw...)
	badVersion[5] = 9
	truncatedData := raw[:len(raw)-3]
	truncatedTable := raw[:format.HeaderSizeV1+10]

	for _, load := range []func(string, ...Option) (*Archive, error){Load, LoadFull} {
		_, err = load(write("magic", badMagic))
		assert.ErrorIs(t, err, ErrFormat)

		_, err = load(write("version", badVersion))
		assert.ErrorIs(t, err, ErrFormat)

		_, err = load(write("table", truncatedTable))
		assert.ErrorIs(t, err, ErrIO)

		_, err = load(filepath.Join(dir, "missing"))
		assert.ErrorIs(t, err, ErrFilesystem)
		assert.ErrorIs(t, err, os.ErrNotExist)
	}

	_, err = Load(write("data", truncatedData))
	assert.ErrorIs(t, err, ErrFormat)
	_, err = LoadFull(write("data", truncatedData))
	assert.ErrorIs(t, err, ErrIO)
}

func TestLoadRejectsInconsistentSize(t *testing.T) {
	t.Parallel()

	e := format.NewEntry("f", TypeRegular, [3]uint8{6, 4, 4}, 0, 3)
	e.Size = 100
	b, err := format.AppendLayout(nil, format.NewHeader(0), []Entry{e}, 3)
	require.NoError(t, err)
	b = append(b, "abc"...)

	p := filepath.Join(t.TempDir(), "bad.kndl")
	require.NoError(t, os.WriteFile(p, b, 0o644))

	_, err = Load(p)
	assert.ErrorIs(t, err, ErrFormat)
}

func TestLoadLegacyVersion(t *testing.T) {
	t.Parallel()

	entries := []Entry{
		format.NewEntry("old", TypeDirectory, [3]uint8{7, 5, 5}, 0, 0),
		format.NewEntry("old/file.txt", TypeRegular, [3]uint8{6, 4, 4}, 0, 6),
	}
	hdr := format.Header{Version: format.Version0, Flags: format.FlagNone}
	b, err := format.AppendLayout(nil, hdr, entries, 6)
	require.NoError(t, err)
	b = append(b, "legacy"...)
	assert.Equal(t, "KUNDLI\x00", string(b[:7]))

	p := filepath.Join(t.TempDir(), "v0.kndl")
	require.NoError(t, os.WriteFile(p, b, 0o644))

	a, err := LoadFull(p, WithClock(fixedClock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.Equal(t, Version0, a.Header().Version)
	assert.False(t, a.Describe().HasChecksum)

	data, err := a.FileDataByPath("old/file.txt")
	require.NoError(t, err)
	assert.Equal(t, "legacy", string(data))

	lazy, err := Load(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = lazy.Close() })
	require.NoError(t, lazy.Materialize())

	// rewriting upgrades to the current version
	upgraded := filepath.Join(t.TempDir(), "v1.kndl")
	require.NoError(t, a.Compress(upgraded))
	b1, err := LoadFull(upgraded)
	require.NoError(t, err)
	t.Cleanup(func() { _ = b1.Close() })
	assert.Equal(t, CurrentVersion, b1.Header().Version)
	assert.Equal(t, uint64(fixedTime.Unix()), b1.Header().Timestamp)
	assert.Equal(t, checksum.Sum([]byte("legacy")), b1.Header().Checksum)
	if diff := cmp.Diff(entries, b1.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}
}

func TestExtendLazyArchive(t *testing.T) {
	t.Parallel()

	src := helloWorldTree(t)
	a := newTestArchive(t, src)
	_, err := a.AddFile("hello.txt")
	require.NoError(t, err)
	out := filepath.Join(t.TempDir(), "ext.kndl")
	require.NoError(t, a.Compress(out))

	lazy, err := Load(out, WithBaseDir(src))
	require.NoError(t, err)
	t.Cleanup(func() { _ = lazy.Close() })

	_, err = lazy.AddFile("sub/world.txt")
	require.NoError(t, err)
	assert.Equal(t, "memory", lazy.Describe().Source)
	require.NoError(t, lazy.CompressParallel(out, 2))

	full, err := LoadFull(out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = full.Close() })
	assert.Equal(t, []entrySummary{
		{"hello.txt", TypeRegular, 5},
		{"sub", TypeDirectory, 0},
		{"sub/world.txt", TypeRegular, 5},
	}, summarize(full.Entries()))

	hello, err := full.FileDataByPath("hello.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(hello))
	world, err := full.FileDataByPath("sub/world.txt")
	require.NoError(t, err)
	assert.Equal(t, "world", string(world))
}
