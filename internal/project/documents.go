package project

import (
	"errors"
	"fmt"
	"sync"
)

// ErrUnknownPath is returned when an operation names a path that has no document.
var ErrUnknownPath = errors.New("unknown document path")

// Document is a point-in-time copy of one editable buffer.
type Document struct {
	Path     string `json:"path"`
	Language string `json:"lang"`
	Text     string `json:"text"`
	Active   bool   `json:"active"`
}

// DocumentSet holds one editable text buffer per project file. Exactly one
// document is active at any time. It owns no I/O.
type DocumentSet struct {
	mu      sync.RWMutex
	order   []string
	initial map[string]ProjectFile
	current map[string]string
	active  string
}

// NewDocumentSet creates a document per file; the first file becomes active.
func NewDocumentSet(files []ProjectFile) (*DocumentSet, error) {
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	d := &DocumentSet{
		order:   make([]string, 0, len(files)),
		initial: make(map[string]ProjectFile, len(files)),
		current: make(map[string]string, len(files)),
	}
	for _, f := range files {
		if _, dup := d.initial[f.Path]; dup {
			return nil, fmt.Errorf("duplicate document %q", f.Path)
		}
		if f.Language == "" {
			f.Language = LanguageFor(f.Path)
		}
		d.order = append(d.order, f.Path)
		d.initial[f.Path] = f
		d.current[f.Path] = f.Content
	}
	d.active = d.order[0]
	return d, nil
}

// Paths returns document paths in their initial order.
func (d *DocumentSet) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.order...)
}

// Active returns the active document path.
func (d *DocumentSet) Active() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.active
}

// Get returns a copy of the document at path.
func (d *DocumentSet) Get(path string) (Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	f, ok := d.initial[path]
	if !ok {
		return Document{}, false
	}
	return Document{Path: path, Language: f.Language, Text: d.current[path], Active: path == d.active}, true
}

// Text returns the current text of path.
func (d *DocumentSet) Text(path string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	text, ok := d.current[path]
	return text, ok
}

// SetActive makes path the active document. It reports false when path was
// already active.
func (d *DocumentSet) SetActive(path string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.initial[path]; !ok {
		return false, fmt.Errorf("activate %q: %w", path, ErrUnknownPath)
	}
	if d.active == path {
		return false, nil
	}
	d.active = path
	return true, nil
}

// Update replaces the text of path.
func (d *DocumentSet) Update(path, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.initial[path]; !ok {
		return fmt.Errorf("update %q: %w", path, ErrUnknownPath)
	}
	d.current[path] = text
	return nil
}

// Reset restores every document to its initial content and re-selects the
// first document. It returns the paths whose text actually changed.
func (d *DocumentSet) Reset() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var changed []string
	for _, p := range d.order {
		if d.current[p] != d.initial[p].Content {
			changed = append(changed, p)
		}
		d.current[p] = d.initial[p].Content
	}
	d.active = d.order[0]
	return changed
}

// Documents returns copies of all documents in initial order.
func (d *DocumentSet) Documents() []Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Document, 0, len(d.order))
	for _, p := range d.order {
		out = append(out, Document{
			Path:     p,
			Language: d.initial[p].Language,
			Text:     d.current[p],
			Active:   p == d.active,
		})
	}
	return out
}

// Files returns the project files carrying their current text.
func (d *DocumentSet) Files() []ProjectFile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ProjectFile, 0, len(d.order))
	for _, p := range d.order {
		f := d.initial[p]
		f.Content = d.current[p]
		out = append(out, f)
	}
	return out
}

// Initial returns the files as they were when the set was created.
func (d *DocumentSet) Initial() []ProjectFile {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ProjectFile, 0, len(d.order))
	for _, p := range d.order {
		out = append(out, d.initial[p])
	}
	return out
}

// Texts returns path -> current text.
func (d *DocumentSet) Texts() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]string, len(d.current))
	for p, t := range d.current {
		out[p] = t
	}
	return out
}
