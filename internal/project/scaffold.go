package project

import (
	"embed"
	"fmt"

	"playground/internal/fstree"
)

//go:embed assets
var assets embed.FS

// Scaffold holds the fixed auxiliary files merged into every project.
type Scaffold struct {
	// Files are project-relative entries merged at the project root unless
	// the user already provides the same path.
	Files []fstree.Entry
	// Manifest and Lockfile are mounted at the sandbox root for installation.
	Manifest string
	Lockfile string
}

var scaffoldLayout = []struct {
	asset string
	path  string
}{
	{"default.css", "/default.css"},
	{"env.d.ts", "/src/env.d.ts"},
	{"astro.config.mjs", "/astro.config.mjs"},
	{"svelte.config.mjs", "/svelte.config.mjs"},
	{"tsconfig.json", "/tsconfig.json"},
	{"package.json", "/package.json"},
	{"package-lock.json", "/package-lock.json"},
}

// DefaultScaffold loads the embedded scaffold assets.
func DefaultScaffold() (*Scaffold, error) {
	s := &Scaffold{}
	for _, l := range scaffoldLayout {
		data, err := assets.ReadFile("assets/" + l.asset)
		if err != nil {
			return nil, fmt.Errorf("read scaffold asset %s: %w", l.asset, err)
		}
		s.Files = append(s.Files, fstree.Entry{Path: l.path, Contents: string(data)})
		switch l.asset {
		case "package.json":
			s.Manifest = string(data)
		case "package-lock.json":
			s.Lockfile = string(data)
		}
	}
	return s, nil
}

// MustDefaultScaffold is DefaultScaffold that panics on error. The assets are
// compiled in, so an error means a broken build.
func MustDefaultScaffold() *Scaffold {
	s, err := DefaultScaffold()
	if err != nil {
		panic(err)
	}
	return s
}

// InstallTree is the tree mounted at the sandbox root before dependencies are
// installed: the manifest, the lockfile and an empty projects home.
func (s *Scaffold) InstallTree() fstree.Tree {
	return fstree.Tree{
		"~": {Directory: fstree.Tree{
			"projects": {Directory: fstree.Tree{}},
		}},
		"package.json":      {File: &fstree.File{Contents: s.Manifest}},
		"package-lock.json": {File: &fstree.File{Contents: s.Lockfile}},
	}
}
