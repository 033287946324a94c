// Package fstree models the hierarchical file/directory structure consumed by
// the sandbox mount operation.
//
// A Tree maps one path segment to a Node. A Node is either a file carrying its
// contents or a directory carrying a nested Tree, never both:
//
//	{"src": {"directory": {"index.astro": {"file": {"contents": "..."}}}}}
//
// Paths handed to this package are absolute ("/"-rooted). The leading empty
// segment is discarded, so "/a/b.txt" becomes the chain ["a", "b.txt"] and a
// path with no directory component lands directly at the tree root.
package fstree

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrPathConflict is returned when a segment would have to be both a file and
// a directory.
var ErrPathConflict = errors.New("path segment is both file and directory")

// File holds the contents of a leaf node.
type File struct {
	Contents string `json:"contents"`
}

// Node is one entry of a Tree.
type Node struct {
	File      *File `json:"file,omitempty"`
	Directory Tree  `json:"directory,omitempty"`
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool { return n != nil && n.File == nil }

// Tree maps a path segment to its node.
type Tree map[string]*Node

// Entry is one flattened (path, contents) pair.
type Entry struct {
	Path     string `json:"path"`
	Contents string `json:"contents"`
}

// Split returns the segments of an absolute path with the leading empty
// segment removed. Empty segments produced by doubled slashes are dropped.
func Split(p string) []string {
	raw := strings.Split(p, "/")
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Build creates a tree from the given entries. Later entries overwrite earlier
// ones at the same path.
func Build(entries []Entry) (Tree, error) {
	t := Tree{}
	for _, e := range entries {
		if err := t.Insert(e.Path, e.Contents); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Insert writes a file at path, creating intermediate directories.
func (t Tree) Insert(path, contents string) error {
	parts := Split(path)
	if len(parts) == 0 {
		return fmt.Errorf("insert %q: empty path", path)
	}
	target := t
	for i, part := range parts[:len(parts)-1] {
		node, ok := target[part]
		if !ok {
			node = &Node{Directory: Tree{}}
			target[part] = node
		}
		if !node.IsDir() {
			return fmt.Errorf("insert %q at %q: %w", path, "/"+strings.Join(parts[:i+1], "/"), ErrPathConflict)
		}
		if node.Directory == nil {
			node.Directory = Tree{}
		}
		target = node.Directory
	}
	name := parts[len(parts)-1]
	if existing, ok := target[name]; ok && existing.IsDir() {
		return fmt.Errorf("insert %q: %w", path, ErrPathConflict)
	}
	target[name] = &Node{File: &File{Contents: contents}}
	return nil
}

// Lookup returns the node at path, or nil.
func (t Tree) Lookup(path string) *Node {
	parts := Split(path)
	if len(parts) == 0 {
		return nil
	}
	target := t
	for _, part := range parts[:len(parts)-1] {
		node, ok := target[part]
		if !ok || !node.IsDir() {
			return nil
		}
		target = node.Directory
	}
	return target[parts[len(parts)-1]]
}

// Has reports whether a file or directory exists at path.
func (t Tree) Has(path string) bool { return t.Lookup(path) != nil }

// Merge copies every file of other into t. When overwrite is false, files that
// already exist in t are kept.
func (t Tree) Merge(other Tree, overwrite bool) error {
	for _, e := range other.Flatten() {
		if !overwrite && t.Has(e.Path) {
			continue
		}
		if err := t.Insert(e.Path, e.Contents); err != nil {
			return err
		}
	}
	return nil
}

// Flatten returns every file in the tree as absolute-path entries sorted by path.
func (t Tree) Flatten() []Entry {
	var out []Entry
	t.walk("", func(p string, f *File) {
		out = append(out, Entry{Path: p, Contents: f.Contents})
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Count returns the number of files in the tree.
func (t Tree) Count() int {
	n := 0
	t.walk("", func(string, *File) { n++ })
	return n
}

func (t Tree) walk(prefix string, fn func(string, *File)) {
	for name, node := range t {
		p := prefix + "/" + name
		if node.IsDir() {
			node.Directory.walk(p, fn)
			continue
		}
		fn(p, node.File)
	}
}

// Single builds the one-entry tree used for incremental writes. It returns the
// tree holding only the file name and the directory (relative, no leading
// slash) the tree must be mounted at, below root.
//
//	Single("projects/p-0", "/src/pages/index.astro", "x")
//	  -> {"index.astro": file}, "projects/p-0/src/pages"
func Single(root, path, contents string) (Tree, string) {
	parts := Split(path)
	name := ""
	if len(parts) > 0 {
		name = parts[len(parts)-1]
		parts = parts[:len(parts)-1]
	}
	mountPoint := strings.Trim(root, "/")
	if len(parts) > 0 {
		if mountPoint != "" {
			mountPoint += "/"
		}
		mountPoint += strings.Join(parts, "/")
	}
	return Tree{name: {File: &File{Contents: contents}}}, mountPoint
}

// Wrap nests t under the given directory chain, e.g. Wrap(t, "projects", "p-0").
func Wrap(t Tree, dirs ...string) Tree {
	out := t
	for i := len(dirs) - 1; i >= 0; i-- {
		out = Tree{dirs[i]: {Directory: out}}
	}
	return out
}
