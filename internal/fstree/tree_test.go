package fstree

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"/a.txt", []string{"a.txt"}},
		{"/src/pages/index.astro", []string{"src", "pages", "index.astro"}},
		{"/src//x", []string{"src", "x"}},
		{"/", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Split(tt.in), tt.in)
	}
}

func TestBuildRoundTrip(t *testing.T) {
	entries := []Entry{
		{Path: "/README.md", Contents: "readme"},
		{Path: "/src/components/Foo.astro", Contents: "<p>foo</p>"},
		{Path: "/src/pages/index.astro", Contents: "---\n---"},
		{Path: "/src/pages/blog/[slug].astro", Contents: "slug"},
	}

	tree, err := Build(entries)
	require.NoError(t, err)

	want := []Entry{
		{Path: "/README.md", Contents: "readme"},
		{Path: "/src/components/Foo.astro", Contents: "<p>foo</p>"},
		{Path: "/src/pages/blog/[slug].astro", Contents: "slug"},
		{Path: "/src/pages/index.astro", Contents: "---\n---"},
	}
	assert.Equal(t, want, tree.Flatten())
	assert.Equal(t, 4, tree.Count())
}

func TestBuildRootLevelFile(t *testing.T) {
	tree, err := Build([]Entry{{Path: "/astro.config.mjs", Contents: "cfg"}})
	require.NoError(t, err)

	node := tree["astro.config.mjs"]
	require.NotNil(t, node)
	assert.False(t, node.IsDir())
	assert.Equal(t, "cfg", node.File.Contents)
}

func TestBuildConflict(t *testing.T) {
	_, err := Build([]Entry{
		{Path: "/src", Contents: "file"},
		{Path: "/src/index.astro", Contents: "x"},
	})
	assert.ErrorIs(t, err, ErrPathConflict)

	_, err = Build([]Entry{
		{Path: "/src/index.astro", Contents: "x"},
		{Path: "/src", Contents: "file"},
	})
	assert.ErrorIs(t, err, ErrPathConflict)
}

func TestMergeKeepsExisting(t *testing.T) {
	tree, err := Build([]Entry{{Path: "/astro.config.mjs", Contents: "user"}})
	require.NoError(t, err)
	extra, err := Build([]Entry{
		{Path: "/astro.config.mjs", Contents: "default"},
		{Path: "/tsconfig.json", Contents: "{}"},
	})
	require.NoError(t, err)

	require.NoError(t, tree.Merge(extra, false))

	assert.Equal(t, "user", tree.Lookup("/astro.config.mjs").File.Contents)
	assert.True(t, tree.Has("/tsconfig.json"))
}

func TestSingle(t *testing.T) {
	tree, mount := Single("projects/project-0", "/src/pages/index.astro", "hello")
	assert.Equal(t, "projects/project-0/src/pages", mount)
	require.Contains(t, tree, "index.astro")
	assert.Equal(t, "hello", tree["index.astro"].File.Contents)

	tree, mount = Single("projects/project-0", "/astro.config.mjs", "cfg")
	assert.Equal(t, "projects/project-0", mount)
	assert.Len(t, tree, 1)
}

func TestWireFormat(t *testing.T) {
	tree := Wrap(Tree{"a.txt": {File: &File{Contents: "x"}}}, "projects", "p")
	raw, err := json.Marshal(tree)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"projects":{"directory":{"p":{"directory":{"a.txt":{"file":{"contents":"x"}}}}}}}`,
		string(raw))
}
