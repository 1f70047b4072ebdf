// Package testutil builds and snapshots directory trees for archive tests.
package testutil

import (
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

// Kind is the type of a tree node.
type Kind int

// Node kinds.
const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Node describes one filesystem object in a tree. Paths are the map keys,
// slash-separated and relative to the tree root.
type Node struct {
	Kind    Kind
	Content string
	Target  string
	Perm    fs.FileMode
}

// File returns a regular file node.
func File(content string, perm fs.FileMode) Node {
	return Node{Kind: KindFile, Content: content, Perm: perm}
}

// Dir returns a directory node.
func Dir(perm fs.FileMode) Node {
	return Node{Kind: KindDir, Perm: perm}
}

// Symlink returns a symlink node. Symlink permissions are not compared.
func Symlink(target string) Node {
	return Node{Kind: KindSymlink, Target: target}
}

// RandomContent returns n pseudo-random bytes derived from seed.
func RandomContent(seed uint64, n int) string {
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(rng.UintN(256))
	}
	return string(b)
}

// WriteTree creates tree beneath root. Parent directories missing from tree
// are created with 0o755. Directory permissions are applied last so
// read-only directories can still be populated.
func WriteTree(tb testing.TB, root string, tree map[string]Node) {
	tb.Helper()

	paths := make([]string, 0, len(tree))
	for p := range tree {
		paths = append(paths, p)
	}
	slices.Sort(paths)

	var dirs []string
	for _, p := range paths {
		n := tree[p]
		full := filepath.Join(root, filepath.FromSlash(p))
		require.NoError(tb, os.MkdirAll(filepath.Dir(full), 0o755))
		switch n.Kind {
		case KindDir:
			require.NoError(tb, os.MkdirAll(full, 0o755))
			dirs = append(dirs, p)
		case KindSymlink:
			require.NoError(tb, os.Symlink(n.Target, full))
		default:
			require.NoError(tb, os.WriteFile(full, []byte(n.Content), 0o600))
			require.NoError(tb, os.Chmod(full, n.Perm))
		}
	}
	for _, p := range slices.Backward(dirs) {
		require.NoError(tb, os.Chmod(filepath.Join(root, filepath.FromSlash(p)), tree[p].Perm))
	}
}

// ReadTree snapshots every object beneath root, excluding root itself.
func ReadTree(tb testing.TB, root string) map[string]Node {
	tb.Helper()

	tree := make(map[string]Node)
	err := filepath.WalkDir(root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if full == root {
			return nil
		}
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := os.Lstat(full)
		if err != nil {
			return err
		}
		switch {
		case info.Mode()&fs.ModeSymlink != 0:
			target, err := os.Readlink(full)
			if err != nil {
				return err
			}
			tree[rel] = Symlink(target)
		case info.IsDir():
			tree[rel] = Dir(info.Mode().Perm())
		default:
			content, err := os.ReadFile(full)
			if err != nil {
				return err
			}
			tree[rel] = File(string(content), info.Mode().Perm())
		}
		return nil
	})
	require.NoError(tb, err)
	return tree
}
