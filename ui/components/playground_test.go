package components

import (
	"bytes"
	"context"
	"net/url"
	"testing"

	"github.com/a-h/templ"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func renderString(t *testing.T, c templ.Component) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, c.Render(context.Background(), &buf))
	return buf.String()
}

func TestNavEncodesPathQuery(t *testing.T) {
	path := "/src/a b&c#d+e.astro"
	out := renderString(t, Nav("project-0", []NavItem{
		{Path: "/src/pages/index.astro"},
		{Path: path, Active: true},
	}))

	assert.Contains(t, out, `@post('/playgrounds/project-0/select?path=%2Fsrc%2Fa+b%26c%23d%2Be.astro')`)
	assert.Contains(t, out, `data-file="/src/a b&amp;c#d+e.astro" aria-selected="true"`)
	assert.Contains(t, out, `data-file="/src/pages/index.astro" data-on-click`)

	q, err := url.ParseQuery("path=%2Fsrc%2Fa+b%26c%23d%2Be.astro")
	require.NoError(t, err)
	assert.Equal(t, path, q.Get("path"))
}

func TestPreviewStates(t *testing.T) {
	loading := renderString(t, Preview("project-0", "", 0))
	assert.Contains(t, loading, `class="preview loading"`)
	assert.NotContains(t, loading, "src=")

	ready := renderString(t, Preview("project-0", "http://localhost:3000", 1))
	assert.Contains(t, ready, `src="http://localhost:3000"`)
	assert.Contains(t, ready, `data-reloads="1"`)
}
