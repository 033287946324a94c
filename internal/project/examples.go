package project

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed examples
var examples embed.FS

// Example is a named starter project shown on the index page.
type Example struct {
	Name  string
	Files []ProjectFile
}

// Examples returns the embedded starter projects sorted by name. Within a
// project, pages come first so the entry is the initially active document.
func Examples() ([]Example, error) {
	dirs, err := fs.ReadDir(examples, "examples")
	if err != nil {
		return nil, err
	}
	var out []Example
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		ex, err := loadExample(d.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

func loadExample(name string) (Example, error) {
	root := "examples/" + name
	var files []ProjectFile
	err := fs.WalkDir(examples, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := examples.ReadFile(p)
		if err != nil {
			return err
		}
		path := strings.TrimPrefix(p, root)
		files = append(files, ProjectFile{Path: path, Content: string(data), Language: LanguageFor(path)})
		return nil
	})
	if err != nil {
		return Example{}, fmt.Errorf("load example %s: %w", name, err)
	}
	sort.SliceStable(files, func(i, j int) bool {
		return pageRank(files[i].Path) < pageRank(files[j].Path)
	})
	return Example{Name: name, Files: files}, nil
}

func pageRank(path string) int {
	if strings.HasPrefix(path, "/src/pages/") {
		return 0
	}
	return 1
}
