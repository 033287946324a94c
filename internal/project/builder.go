package project

import (
	"fmt"
	"strings"

	"playground/internal/fstree"
)

const (
	// EntryPath is the routable page the dev server serves at "/".
	EntryPath = "/src/pages/index.astro"

	componentExt = ".astro"
)

// Builder turns a project's files into the tree mounted in the sandbox.
type Builder struct {
	scaffold *Scaffold
}

// NewBuilder returns a builder merging the given scaffold.
func NewBuilder(scaffold *Scaffold) *Builder {
	return &Builder{scaffold: scaffold}
}

// Build produces the project tree: the user's files, a synthesized entry when
// none is present, and the scaffold files the user did not provide.
func (b *Builder) Build(files []ProjectFile) (fstree.Tree, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	files = WithEntry(files)

	entries := make([]fstree.Entry, 0, len(files))
	for _, f := range files {
		entries = append(entries, fstree.Entry{Path: f.Path, Contents: f.Content})
	}
	tree, err := fstree.Build(entries)
	if err != nil {
		return nil, fmt.Errorf("build project tree: %w", err)
	}

	if b.scaffold != nil {
		defaults, err := fstree.Build(b.scaffold.Files)
		if err != nil {
			return nil, fmt.Errorf("build scaffold tree: %w", err)
		}
		if err := tree.Merge(defaults, false); err != nil {
			return nil, fmt.Errorf("merge scaffold: %w", err)
		}
	}
	return tree, nil
}

// WithEntry returns files with a synthesized entry appended when no file
// lives at EntryPath. The input slice is not modified.
func WithEntry(files []ProjectFile) []ProjectFile {
	for _, f := range files {
		if f.Path == EntryPath {
			return files
		}
	}
	out := make([]ProjectFile, len(files), len(files)+1)
	copy(out, files)
	return append(out, SynthesizeEntry(files))
}

// SynthesizeEntry builds an entry page rendering the first component-like file.
// Its output depends only on the input paths.
func SynthesizeEntry(files []ProjectFile) ProjectFile {
	var component string
	for _, f := range files {
		if strings.HasSuffix(f.Path, componentExt) {
			component = f.Path
			break
		}
	}

	var b strings.Builder
	b.WriteString("---\n")
	if component != "" {
		fmt.Fprintf(&b, "import Component from %q;\n", component)
	}
	b.WriteString("---\n")
	if component != "" {
		b.WriteString("<Component />\n")
	} else {
		b.WriteString("<p>Nothing to render yet.</p>\n")
	}
	return ProjectFile{Path: EntryPath, Content: b.String(), Language: "astro"}
}
