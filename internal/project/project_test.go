package project

import (
	"testing"

	"playground/internal/fstree"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFiles() []ProjectFile {
	return []ProjectFile{
		{Path: "/src/pages/index.astro", Content: "<h1>home</h1>", Language: "astro"},
		{Path: "/src/components/Foo.astro", Content: "<p>foo</p>", Language: "astro"},
	}
}

func TestBuildKeepsUserEntry(t *testing.T) {
	b := NewBuilder(MustDefaultScaffold())

	tree, err := b.Build(sampleFiles())
	require.NoError(t, err)

	assert.Equal(t, "<h1>home</h1>", tree.Lookup(EntryPath).File.Contents)
	assert.Equal(t, "<p>foo</p>", tree.Lookup("/src/components/Foo.astro").File.Contents)
	for _, p := range []string{"/default.css", "/src/env.d.ts", "/astro.config.mjs", "/svelte.config.mjs", "/tsconfig.json", "/package.json", "/package-lock.json"} {
		assert.True(t, tree.Has(p), p)
	}
}

func TestBuildSynthesizesEntry(t *testing.T) {
	files := []ProjectFile{{Path: "/src/components/Foo.astro", Content: "<p>foo</p>"}}
	b := NewBuilder(MustDefaultScaffold())

	first, err := b.Build(files)
	require.NoError(t, err)
	second, err := b.Build(files)
	require.NoError(t, err)

	entry := first.Lookup(EntryPath)
	require.NotNil(t, entry)
	assert.Contains(t, entry.File.Contents, `import Component from "/src/components/Foo.astro";`)
	assert.Contains(t, entry.File.Contents, "<Component />")
	assert.Equal(t, entry.File.Contents, second.Lookup(EntryPath).File.Contents)
	assert.Len(t, files, 1, "input must not be modified")
}

func TestSynthesizeEntryPicksFirstComponent(t *testing.T) {
	entry := SynthesizeEntry([]ProjectFile{
		{Path: "/src/styles.css"},
		{Path: "/src/components/B.astro"},
		{Path: "/src/components/A.astro"},
	})
	assert.Contains(t, entry.Content, `"/src/components/B.astro"`)

	empty := SynthesizeEntry([]ProjectFile{{Path: "/notes.md"}})
	assert.NotContains(t, empty.Content, "import")
}

func TestBuildUserConfigWins(t *testing.T) {
	files := append(sampleFiles(), ProjectFile{Path: "/astro.config.mjs", Content: "export default {}"})
	tree, err := NewBuilder(MustDefaultScaffold()).Build(files)
	require.NoError(t, err)
	assert.Equal(t, "export default {}", tree.Lookup("/astro.config.mjs").File.Contents)
}

func TestBuildConflict(t *testing.T) {
	files := []ProjectFile{
		{Path: "/src", Content: "oops"},
		{Path: "/src/components/Foo.astro", Content: "x"},
	}
	_, err := NewBuilder(nil).Build(files)
	assert.ErrorIs(t, err, fstree.ErrPathConflict)
}

func TestBuildNoFiles(t *testing.T) {
	_, err := NewBuilder(nil).Build(nil)
	assert.ErrorIs(t, err, ErrNoFiles)
}

func TestInstallTree(t *testing.T) {
	s := MustDefaultScaffold()
	tree := s.InstallTree()
	assert.True(t, tree["~"].IsDir())
	assert.Contains(t, tree["package.json"].File.Contents, `"astro"`)
	assert.NotEmpty(t, tree["package-lock.json"].File.Contents)
}

func TestDecodeFiles(t *testing.T) {
	files, err := DecodeFiles([]byte(`[{"name":"/src/pages/index.astro","code":"<h1/>","lang":"astro"}]`))
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "/src/pages/index.astro", files[0].Path)
	assert.Equal(t, "<h1/>", files[0].Content)

	files, err = DecodeFiles([]byte(`{"files":[{"name":"/a.astro","code":""}]}`))
	require.NoError(t, err)
	assert.Len(t, files, 1)

	_, err = DecodeFiles([]byte(`[{"name":"relative.astro","code":""}]`))
	assert.Error(t, err)

	_, err = DecodeFiles([]byte(`[{"name":"/a.astro"}]`))
	assert.Error(t, err)

	_, err = DecodeFiles([]byte(`not json`))
	assert.Error(t, err)
}

func TestDocumentSet(t *testing.T) {
	docs, err := NewDocumentSet(sampleFiles())
	require.NoError(t, err)

	assert.Equal(t, "/src/pages/index.astro", docs.Active())

	changed, err := docs.SetActive("/src/components/Foo.astro")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = docs.SetActive("/src/components/Foo.astro")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = docs.SetActive("/missing.astro")
	assert.ErrorIs(t, err, ErrUnknownPath)
	assert.ErrorIs(t, docs.Update("/missing.astro", ""), ErrUnknownPath)

	require.NoError(t, docs.Update("/src/components/Foo.astro", "edited"))
	doc, ok := docs.Get("/src/components/Foo.astro")
	require.True(t, ok)
	assert.Equal(t, "edited", doc.Text)
	assert.True(t, doc.Active)
}

func TestDocumentSetReset(t *testing.T) {
	docs, err := NewDocumentSet(sampleFiles())
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		require.NoError(t, docs.Update("/src/pages/index.astro", "edit"))
		require.NoError(t, docs.Update("/src/components/Foo.astro", "edit"))
	}
	_, err = docs.SetActive("/src/components/Foo.astro")
	require.NoError(t, err)

	changed := docs.Reset()

	assert.ElementsMatch(t, []string{"/src/pages/index.astro", "/src/components/Foo.astro"}, changed)
	assert.Equal(t, "/src/pages/index.astro", docs.Active())
	for _, f := range sampleFiles() {
		text, _ := docs.Text(f.Path)
		assert.Equal(t, f.Content, text)
	}
}

func TestNewDocumentSetRejects(t *testing.T) {
	_, err := NewDocumentSet(nil)
	assert.ErrorIs(t, err, ErrNoFiles)

	_, err = NewDocumentSet([]ProjectFile{{Path: "/a"}, {Path: "/a"}})
	assert.Error(t, err)
}

func TestLanguageFor(t *testing.T) {
	assert.Equal(t, "astro", LanguageFor("/src/pages/index.astro"))
	assert.Equal(t, "typescript", LanguageFor("/src/env.d.ts"))
	assert.Equal(t, "plaintext", LanguageFor("/LICENSE"))
}

func TestExamples(t *testing.T) {
	exs, err := Examples()
	require.NoError(t, err)
	require.Len(t, exs, 2)

	assert.Equal(t, "counter", exs[0].Name)
	assert.Equal(t, EntryPath, exs[0].Files[0].Path)
	assert.Equal(t, "astro", exs[0].Files[0].Language)

	assert.Equal(t, "greeting", exs[1].Name)
	require.Len(t, exs[1].Files, 1)
	assert.Equal(t, "/src/components/Greeting.astro", exs[1].Files[0].Path)

	_, err = NewDocumentSet(exs[1].Files)
	require.NoError(t, err)
}
