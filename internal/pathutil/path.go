// Package pathutil provides lexical path handling for archive entry paths.
//
// Archive paths are stored in slash form. None of these helpers touch the
// filesystem.
package pathutil

import (
	"path"
	"path/filepath"
	"strings"
)

// Normalize returns the lexically normal, slash-separated form of p.
//
// It collapses "." and ".." elements and duplicate separators, and strips
// trailing separators except for the root path:
//   - "a/./b//c/" → "a/b/c"
//   - "a/b/../c"  → "a/c"
//   - "/"         → "/"
//   - ""          → "."
func Normalize(p string) string {
	return path.Clean(filepath.ToSlash(p))
}

// Relative strips leading separators so p can be joined under a destination
// directory. The root path and "." both become ".".
func Relative(p string) string {
	p = strings.TrimLeft(Normalize(p), "/")
	if p == "" {
		return "."
	}
	return p
}

// Ancestors returns the parent directories of p, ordered from the outermost
// to the immediate parent. The root and "." are never included, and paths
// that climb above their base ("../x") have no ancestors.
//
// Ancestors("a/b/c.txt") returns ["a", "a/b"].
func Ancestors(p string) []string {
	p = Normalize(p)
	if p == ".." || strings.HasPrefix(p, "../") {
		return nil
	}
	var parents []string
	for dir := path.Dir(p); dir != "." && dir != "/"; dir = path.Dir(dir) {
		parents = append(parents, dir)
	}
	// collected leaf-first
	for i, j := 0, len(parents)-1; i < j; i, j = i+1, j-1 {
		parents[i], parents[j] = parents[j], parents[i]
	}
	return parents
}

// Parent returns the slash-form parent of p, or "" when p has none.
func Parent(p string) string {
	dir := path.Dir(Normalize(p))
	if dir == "." || dir == "/" {
		return ""
	}
	return dir
}
